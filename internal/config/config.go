// Package config holds regcomp's configuration: the completion source
// parameters, logging, and the in-process host settings.
//
// Configuration comes from three layers, lowest priority first: built-in
// defaults, a TOML file, and REGCOMP_* environment variables. Editors may
// also send per-pass source parameters, which are merged over the result
// with MergeParams.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/regcomp/internal/logging"
)

// DefaultHighlightGroup is the highlight group used for substituted glyphs.
const DefaultHighlightGroup = "SpecialKey"

var (
	// ErrInvalid indicates a configuration value failed validation.
	ErrInvalid = errors.New("invalid configuration")
)

// Params are the completion source parameters.
type Params struct {
	// Registers lists the register names to collect, e.g. "012ab#".
	// Empty collects every register.
	Registers string `toml:"registers" json:"registers" msgpack:"registers" jsonschema:"description=Register names to collect; empty collects all"`

	// MaxAbbrWidth caps the abbreviation width. Zero means the editor's
	// visible width.
	MaxAbbrWidth int `toml:"max_abbr_width" json:"maxAbbrWidth" msgpack:"maxAbbrWidth" jsonschema:"minimum=0,description=Maximum abbreviation width; 0 uses the visible columns"`

	// HighlightGroup highlights substituted glyphs. Empty disables
	// highlighting.
	HighlightGroup string `toml:"ctrl_char_hl_group" json:"ctrlCharHlGroup" msgpack:"ctrlCharHlGroup" jsonschema:"default=SpecialKey,description=Highlight group for unprintable glyphs; empty disables highlighting"`
}

// HighlightEnabled reports whether spans should be computed.
func (p Params) HighlightEnabled() bool {
	return p.HighlightGroup != ""
}

// AbbrWidth returns the abbreviation width for an editor showing columns
// cells.
func (p Params) AbbrWidth(columns int) int {
	if p.MaxAbbrWidth > 0 && p.MaxAbbrWidth < columns {
		return p.MaxAbbrWidth
	}
	return columns
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `toml:"level" json:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	// File receives log output. Empty means stderr.
	File string `toml:"file" json:"file"`
}

// HostConfig configures the in-process host used by the preview and Lua
// front ends.
type HostConfig struct {
	// Encoding names the encoding byte lengths are measured in.
	Encoding string `toml:"encoding" json:"encoding" jsonschema:"default=utf-8"`
	// Columns is the visible width reported to the source.
	Columns int `toml:"columns" json:"columns" jsonschema:"minimum=1"`
	// Clipboard makes the "*" and "+" registers available.
	Clipboard bool `toml:"clipboard" json:"clipboard"`
}

// Config is the complete configuration.
type Config struct {
	Source Params     `toml:"source" json:"source"`
	Log    LogConfig  `toml:"log" json:"log"`
	Host   HostConfig `toml:"host" json:"host"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Source: Params{HighlightGroup: DefaultHighlightGroup},
		Log:    LogConfig{Level: "info"},
		Host:   HostConfig{Encoding: "utf-8", Columns: 80},
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	var problems []string
	if c.Source.MaxAbbrWidth < 0 {
		problems = append(problems, fmt.Sprintf("source.max_abbr_width must be >= 0, got %d", c.Source.MaxAbbrWidth))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q must be debug, info, warn, or error", c.Log.Level))
	}
	if c.Host.Columns <= 0 {
		problems = append(problems, fmt.Sprintf("host.columns must be positive, got %d", c.Host.Columns))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// LogLevel returns the parsed log level.
func (c Config) LogLevel() logging.LogLevel {
	return logging.ParseLogLevel(c.Log.Level)
}

// MergeParams overlays editor-supplied JSON parameters on base. Keys the
// editor omits keep their base value, so an explicit empty highlight group
// still disables highlighting.
func MergeParams(base Params, raw json.RawMessage) (Params, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return base, nil
	}
	out := base
	if err := json.Unmarshal(raw, &out); err != nil {
		return base, fmt.Errorf("decode source params: %w", err)
	}
	if out.MaxAbbrWidth < 0 {
		return base, fmt.Errorf("%w: maxAbbrWidth must be >= 0, got %d", ErrInvalid, out.MaxAbbrWidth)
	}
	return out, nil
}

// ParseError represents an error while parsing a configuration file.
type ParseError struct {
	// Path is the file path that failed to parse.
	Path string
	// Line and Column locate the error when known.
	Line   int
	Column int
	// Message describes the parse error.
	Message string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("parse error in %s at line %d, column %d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %s at line %d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}
