// Package nvimhost implements host.Host over a Neovim msgpack-RPC
// connection. Every batch is sent as one atomic call.
package nvimhost

import (
	"context"
	"errors"
	"fmt"

	"github.com/neovim/go-client/nvim"

	"github.com/dshills/regcomp/internal/batch"
	"github.com/dshills/regcomp/internal/host"
	"github.com/dshills/regcomp/internal/logging"
	"github.com/dshills/regcomp/internal/register"
)

// ErrAborted marks calls that never ran because an earlier call of the same
// atomic batch failed.
var ErrAborted = errors.New("batch aborted before call")

// batcher is the subset of *nvim.Batch the host uses.
type batcher interface {
	Call(fname string, result any, args ...any)
	Eval(expr string, result any)
	SetBufferLines(buffer nvim.Buffer, start, end int, strict bool, replacement [][]byte)
	SetWindowCursor(window nvim.Window, pos [2]int)
	Execute() error
}

// Host talks to one Neovim instance.
type Host struct {
	newBatch func() batcher
	log      *logging.Logger
}

// New wraps an established connection.
func New(v *nvim.Nvim, log *logging.Logger) *Host {
	return &Host{
		newBatch: func() batcher { return v.NewBatch() },
		log:      logging.OrNull(log).WithComponent("nvimhost"),
	}
}

// call pairs a batch.Call with the step that resolves it once Neovim has
// decoded the reply.
type call struct {
	c      *batch.Call
	finish func() error
}

// ExecuteBatch sends every call in one nvim_call_atomic request.
func (h *Host) ExecuteBatch(ctx context.Context, calls []*batch.Call) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b := h.newBatch()
	queued := make([]*call, 0, len(calls))
	for _, c := range calls {
		q, err := h.queue(b, c)
		if err != nil {
			c.Err = err
			continue
		}
		queued = append(queued, q)
	}
	if len(queued) == 0 {
		return nil
	}

	if err := execute(ctx, b); err != nil {
		var be *nvim.BatchError
		if !errors.As(err, &be) {
			return err
		}
		// Calls before the failing one completed; the rest never ran.
		for i, q := range queued {
			switch {
			case i < be.Index:
				if ferr := q.finish(); ferr != nil {
					q.c.Err = ferr
				}
			case i == be.Index:
				q.c.Err = be.Err
			default:
				q.c.Err = fmt.Errorf("%w %d", ErrAborted, be.Index)
			}
		}
		h.log.Debug("atomic batch of %d calls failed at %d: %v", len(queued), be.Index, be.Err)
		return nil
	}

	for _, q := range queued {
		if err := q.finish(); err != nil {
			q.c.Err = err
		}
	}
	h.log.Debug("executed batch of %d calls", len(queued))
	return nil
}

// execute runs the batch, abandoning it if ctx ends first. A late reply is
// dropped since every batched call is a read.
func execute(ctx context.Context, b batcher) error {
	done := make(chan error, 1)
	go func() { done <- b.Execute() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Host) queue(b batcher, c *batch.Call) (*call, error) {
	switch c.Method {
	case host.MethodRegisterInfo:
		name, ok := host.StringArg(c, 0)
		if !ok {
			return nil, fmt.Errorf("%s: missing register name", c.Method)
		}
		var info register.Info
		b.Call("getreginfo", &info, name)
		return &call{c: c, finish: func() error {
			if info.Empty() {
				return host.ErrNoContent
			}
			return c.Resolve(info)
		}}, nil

	case host.MethodHasClipboard:
		var n int
		b.Call("has", &n, "clipboard")
		return &call{c: c, finish: func() error { return c.Resolve(n != 0) }}, nil

	case host.MethodIsPrintable:
		cp, ok := host.IntArg(c, 0)
		if !ok {
			return nil, fmt.Errorf("%s: missing code point", c.Method)
		}
		var n int
		b.Eval(printableExpr(cp), &n)
		return &call{c: c, finish: func() error { return c.Resolve(n != 0) }}, nil

	case host.MethodColumns:
		var n int
		b.Eval("&columns", &n)
		return &call{c: c, finish: func() error { return c.Resolve(n) }}, nil

	case host.MethodByteLength:
		s, ok := host.StringArg(c, 0)
		if !ok {
			return nil, fmt.Errorf("%s: missing string", c.Method)
		}
		var n int
		b.Call("strlen", &n, s)
		return &call{c: c, finish: func() error { return c.Resolve(n) }}, nil

	case host.MethodTruncate:
		s, ok := host.StringArg(c, 0)
		w, ok2 := host.IntArg(c, 1)
		if !ok || !ok2 {
			return nil, fmt.Errorf("%s: want (string, width)", c.Method)
		}
		var out string
		b.Call("printf", &out, "%.*S", w, s)
		return &call{c: c, finish: func() error { return c.Resolve(out) }}, nil

	case host.MethodLine:
		lnum, ok := host.IntArg(c, 0)
		if !ok {
			return nil, fmt.Errorf("%s: missing line number", c.Method)
		}
		var line string
		b.Call("getline", &line, lnum)
		return &call{c: c, finish: func() error { return c.Resolve(line) }}, nil

	default:
		return nil, fmt.Errorf("%w: %s", host.ErrUnknownMethod, c.Method)
	}
}

// printableExpr asks whether Neovim displays code point cp as itself.
func printableExpr(cp int) string {
	return fmt.Sprintf("strtrans(nr2char(%d)) ==# nr2char(%d)", cp, cp)
}

// ReplaceLines replaces one line of the current buffer and moves the cursor
// of the current window in a single atomic request.
func (h *Host) ReplaceLines(ctx context.Context, start int, lines []string, cursor host.Cursor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	replacement := make([][]byte, len(lines))
	for i, l := range lines {
		replacement[i] = []byte(l)
	}

	b := h.newBatch()
	b.SetBufferLines(0, start-1, start, true, replacement)
	// The window cursor column is 0-based.
	b.SetWindowCursor(0, [2]int{cursor.Line, cursor.Column - 1})
	if err := b.Execute(); err != nil {
		return fmt.Errorf("replace line %d: %w", start, err)
	}
	return nil
}
