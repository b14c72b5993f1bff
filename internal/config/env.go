package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Environment variables recognized by ApplyEnv.
const (
	EnvRegisters      = "REGCOMP_REGISTERS"
	EnvMaxAbbrWidth   = "REGCOMP_MAX_ABBR_WIDTH"
	EnvHighlightGroup = "REGCOMP_HL_GROUP"
	EnvLogLevel       = "REGCOMP_LOG_LEVEL"
	EnvLogFile        = "REGCOMP_LOG_FILE"
	EnvEncoding       = "REGCOMP_ENCODING"
	EnvColumns        = "REGCOMP_COLUMNS"
	EnvClipboard      = "REGCOMP_CLIPBOARD"
)

// ApplyEnv overrides cfg from environment variables. An empty value is a
// value, not an unset variable, so REGCOMP_HL_GROUP= disables highlighting.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvRegisters); ok {
		cfg.Source.Registers = v
	}
	if v, ok := lookup(EnvHighlightGroup); ok {
		cfg.Source.HighlightGroup = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v, ok := lookup(EnvLogFile); ok {
		cfg.Log.File = v
	}
	if v, ok := lookup(EnvEncoding); ok {
		cfg.Host.Encoding = v
	}

	if v, ok := lookup(EnvMaxAbbrWidth); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, EnvMaxAbbrWidth, v)
		}
		cfg.Source.MaxAbbrWidth = n
	}
	if v, ok := lookup(EnvColumns); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, EnvColumns, v)
		}
		cfg.Host.Columns = n
	}
	if v, ok := lookup(EnvClipboard); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalid, EnvClipboard, v)
		}
		cfg.Host.Clipboard = b
	}
	return nil
}
