// Package logging provides the leveled, field-carrying logger used by every
// regcomp component.
//
// Standard output is owned by the RPC channel when regcomp runs as an editor
// plugin, so loggers default to stderr and are usually pointed at a file.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LogLevel represents the severity level of a log message.
type LogLevel int

const (
	// LogLevelDebug is for detailed debugging information.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is for general informational messages.
	LogLevelInfo
	// LogLevelWarn is for warning messages.
	LogLevelWarn
	// LogLevelError is for error messages.
	LogLevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l LogLevel) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLogLevel maps a configuration value to a level. Unknown values give
// LogLevelInfo.
func ParseLogLevel(s string) LogLevel {
	s = strings.ToUpper(s)
	if s == "WARNING" {
		return LogLevelWarn
	}
	for i, name := range levelNames {
		if s == name {
			return LogLevel(i)
		}
	}
	return LogLevelInfo
}

// sink is the destination shared by a logger and everything derived from
// it, so a level change reaches every component.
type sink struct {
	mu     sync.Mutex
	out    io.Writer
	level  atomic.Int32
	prefix string
}

type field struct {
	key   string
	value any
}

// Logger writes leveled lines to a shared sink. Loggers are immutable;
// WithField and WithComponent return derived copies.
type Logger struct {
	sink      *sink
	fields    []field // sorted by key
	component string
}

// Config configures a logger.
type Config struct {
	// Level is the minimum level written.
	Level LogLevel
	// Output defaults to os.Stderr.
	Output io.Writer
	// Prefix starts every message.
	Prefix string
}

// DefaultConfig returns info-level logging to stderr.
func DefaultConfig() Config {
	return Config{Level: LogLevelInfo, Output: os.Stderr, Prefix: "regcomp"}
}

// New creates a logger.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	s := &sink{out: cfg.Output, prefix: cfg.Prefix}
	s.level.Store(int32(cfg.Level))
	return &Logger{sink: s}
}

// NullLogger discards everything.
var NullLogger = &Logger{}

// OrNull returns l, or NullLogger when l is nil.
func OrNull(l *Logger) *Logger {
	if l == nil {
		return NullLogger
	}
	return l
}

// WithField returns a logger that appends key=value to every line. An
// existing key is replaced.
func (l *Logger) WithField(key string, value any) *Logger {
	i := sort.Search(len(l.fields), func(i int) bool { return l.fields[i].key >= key })
	fields := make([]field, 0, len(l.fields)+1)
	fields = append(fields, l.fields[:i]...)
	fields = append(fields, field{key, value})
	if i < len(l.fields) && l.fields[i].key == key {
		i++
	}
	fields = append(fields, l.fields[i:]...)
	return &Logger{sink: l.sink, fields: fields, component: l.component}
}

// WithComponent names the emitting component. Nested components are joined
// with a slash, e.g. "server/source".
func (l *Logger) WithComponent(component string) *Logger {
	if l.component != "" {
		component = l.component + "/" + component
	}
	derived := l.WithField("component", component)
	derived.component = component
	return derived
}

// SetLevel changes the minimum level for this logger and every logger
// sharing its output.
func (l *Logger) SetLevel(level LogLevel) {
	if l.sink != nil {
		l.sink.level.Store(int32(level))
	}
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level LogLevel) bool {
	return l.sink != nil && level >= LogLevel(l.sink.level.Load())
}

// Debug logs a printf-style message at debug level.
func (l *Logger) Debug(msg string, args ...any) { l.log(LogLevelDebug, msg, args) }

// Info logs a printf-style message at info level.
func (l *Logger) Info(msg string, args ...any) { l.log(LogLevelInfo, msg, args) }

// Warn logs a printf-style message at warn level.
func (l *Logger) Warn(msg string, args ...any) { l.log(LogLevelWarn, msg, args) }

// Error logs a printf-style message at error level.
func (l *Logger) Error(msg string, args ...any) { l.log(LogLevelError, msg, args) }

func (l *Logger) log(level LogLevel, msg string, args []any) {
	if !l.Enabled(level) {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s [%s] ", time.Now().Format("2006-01-02T15:04:05.000"), level)
	if l.sink.prefix != "" {
		sb.WriteString(l.sink.prefix + ": ")
	}
	sb.WriteString(msg)
	for i, f := range l.fields {
		sep := ", "
		if i == 0 {
			sep = " {"
		}
		fmt.Fprintf(&sb, "%s%s=%v", sep, f.key, f.value)
	}
	if len(l.fields) > 0 {
		sb.WriteByte('}')
	}
	sb.WriteByte('\n')

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	_, _ = io.WriteString(l.sink.out, sb.String())
}
