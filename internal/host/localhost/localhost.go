// Package localhost implements an in-process editor host backed by a
// register store and a line buffer. It serves the preview and Lua front
// ends, and stands in for a real editor in tests.
package localhost

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/mattn/go-runewidth"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/dshills/regcomp/internal/batch"
	"github.com/dshills/regcomp/internal/host"
	"github.com/dshills/regcomp/internal/logging"
	"github.com/dshills/regcomp/internal/register"
)

// Host is an in-process editor. It is safe for concurrent use.
type Host struct {
	mu sync.Mutex

	store  *register.Store
	lines  []string
	cursor host.Cursor

	columns   int
	encName   string
	encoder   *encoding.Encoder
	width     *runewidth.Condition
	printable func(rune) bool

	// failNext fails the next batch as a whole, once.
	failNext error
	trips    int

	log *logging.Logger
}

// Option configures a Host.
type Option func(*Host) error

// WithColumns sets the visible width reported to the source.
func WithColumns(n int) Option {
	return func(h *Host) error {
		if n <= 0 {
			return fmt.Errorf("columns must be positive, got %d", n)
		}
		h.columns = n
		return nil
	}
}

// WithEncoding measures byte lengths in the named encoding (any WHATWG
// label, e.g. "utf-8", "latin1", "shift_jis", "euc-jp").
func WithEncoding(name string) Option {
	return func(h *Host) error {
		if name == "" {
			return nil
		}
		enc, err := htmlindex.Get(name)
		if err != nil {
			return fmt.Errorf("encoding %q: %w", name, err)
		}
		h.encName = name
		if canonical, _ := htmlindex.Name(enc); canonical == "utf-8" {
			// Go strings are already UTF-8; the encoder would widen
			// invalid bytes to U+FFFD.
			h.encoder = nil
			return nil
		}
		h.encoder = encoding.ReplaceUnsupported(enc.NewEncoder())
		return nil
	}
}

// WithLines sets the buffer contents and puts the cursor on the last line.
func WithLines(lines ...string) Option {
	return func(h *Host) error {
		h.lines = append([]string(nil), lines...)
		h.cursor = host.Cursor{Line: len(h.lines), Column: 1}
		return nil
	}
}

// WithPrintable replaces the printable oracle.
func WithPrintable(fn func(rune) bool) Option {
	return func(h *Host) error {
		h.printable = fn
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(h *Host) error {
		h.log = l.WithComponent("localhost")
		return nil
	}
}

// New creates a host over store. A nil store gets a fresh store without
// clipboard registers.
func New(store *register.Store, opts ...Option) (*Host, error) {
	if store == nil {
		store = register.NewStore(false)
	}
	h := &Host{
		store:     store,
		lines:     []string{""},
		cursor:    host.Cursor{Line: 1, Column: 1},
		columns:   80,
		width:     narrowCondition(),
		printable: unicode.IsPrint,
		log:       logging.NullLogger,
	}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func narrowCondition() *runewidth.Condition {
	c := runewidth.NewCondition()
	c.EastAsianWidth = false
	return c
}

// Store returns the register store.
func (h *Host) Store() *register.Store {
	return h.store
}

// ExecuteBatch serves every call of a batch in one step.
func (h *Host) ExecuteBatch(ctx context.Context, calls []*batch.Call) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.trips++
	if err := h.failNext; err != nil {
		h.failNext = nil
		return err
	}

	for _, c := range calls {
		if err := h.serve(c); err != nil {
			c.Err = err
		}
	}
	h.log.Debug("served batch of %d calls", len(calls))
	return nil
}

func (h *Host) serve(c *batch.Call) error {
	switch c.Method {
	case host.MethodRegisterInfo:
		name, ok := host.StringArg(c, 0)
		if !ok || name == "" {
			return fmt.Errorf("%s: missing register name", c.Method)
		}
		info, ok := h.store.Info([]rune(name)[0])
		if !ok {
			return host.ErrNoContent
		}
		return c.Resolve(info)

	case host.MethodHasClipboard:
		return c.Resolve(h.store.HasClipboard())

	case host.MethodIsPrintable:
		cp, ok := host.IntArg(c, 0)
		if !ok {
			return fmt.Errorf("%s: missing code point", c.Method)
		}
		return c.Resolve(h.printable(rune(cp)))

	case host.MethodColumns:
		return c.Resolve(h.columns)

	case host.MethodByteLength:
		s, ok := host.StringArg(c, 0)
		if !ok {
			return fmt.Errorf("%s: missing string", c.Method)
		}
		n, err := h.byteLength(s)
		if err != nil {
			return err
		}
		return c.Resolve(n)

	case host.MethodTruncate:
		s, ok := host.StringArg(c, 0)
		w, ok2 := host.IntArg(c, 1)
		if !ok || !ok2 {
			return fmt.Errorf("%s: want (string, width)", c.Method)
		}
		return c.Resolve(h.width.Truncate(s, w, ""))

	case host.MethodLine:
		lnum, ok := host.IntArg(c, 0)
		if !ok || lnum < 1 || lnum > len(h.lines) {
			return fmt.Errorf("%s: invalid line number %v", c.Method, c.Args)
		}
		return c.Resolve(h.lines[lnum-1])

	default:
		return fmt.Errorf("%w: %s", host.ErrUnknownMethod, c.Method)
	}
}

func (h *Host) byteLength(s string) (int, error) {
	if h.encoder == nil {
		return len(s), nil
	}
	out, err := h.encoder.String(s)
	if err != nil {
		return 0, fmt.Errorf("encode as %s: %w", h.encName, err)
	}
	return len(out), nil
}

// ByteLength measures s in the host encoding. Text the encoding cannot
// represent measures as UTF-8.
func (h *Host) ByteLength(s string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, err := h.byteLength(s)
	if err != nil {
		return len(s)
	}
	return n
}

// ReplaceLines replaces line start with lines and moves the cursor.
func (h *Host) ReplaceLines(ctx context.Context, start int, lines []string, cursor host.Cursor) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if start < 1 || start > len(h.lines) {
		return fmt.Errorf("replace lines: line %d out of range 1..%d", start, len(h.lines))
	}

	next := make([]string, 0, len(h.lines)+len(lines)-1)
	next = append(next, h.lines[:start-1]...)
	next = append(next, lines...)
	next = append(next, h.lines[start:]...)
	h.lines = next
	h.cursor = cursor
	h.log.Debug("replaced line %d with %d lines", start, len(lines))
	return nil
}

// Lines returns a copy of the buffer.
func (h *Host) Lines() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.lines...)
}

// Text returns the buffer joined with newlines.
func (h *Host) Text() string {
	return strings.Join(h.Lines(), "\n")
}

// SetLine overwrites line lnum, growing the buffer if needed.
func (h *Host) SetLine(lnum int, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for len(h.lines) < lnum {
		h.lines = append(h.lines, "")
	}
	h.lines[lnum-1] = text
}

// Cursor returns the cursor position.
func (h *Host) Cursor() host.Cursor {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor
}

// FailNextBatch makes the next ExecuteBatch fail with err.
func (h *Host) FailNextBatch(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failNext = err
}

// RoundTrips returns the number of batches served.
func (h *Host) RoundTrips() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.trips
}
