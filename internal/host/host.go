// Package host defines the editor operations the completion source consumes
// and typed helpers for issuing them through a batch.
//
// Read operations are only ever issued through a batch.Batch so that a
// whole rendering stage costs one round-trip. The single mutating operation,
// ReplaceLines, is issued on its own.
//
// Implementations live in subpackages: nvimhost (Neovim msgpack-RPC),
// rpchost (JSON-RPC 2.0 over stdio) and localhost (in-process).
package host

import (
	"context"
	"errors"

	"github.com/dshills/regcomp/internal/batch"
	"github.com/dshills/regcomp/internal/register"
)

// Method names understood by every host implementation.
const (
	MethodRegisterInfo = "registerInfo"
	MethodHasClipboard = "hasClipboard"
	MethodIsPrintable  = "isPrintable"
	MethodColumns      = "columns"
	MethodByteLength   = "byteLength"
	MethodTruncate     = "truncate"
	MethodLine         = "line"
)

// DefaultColumns is used when the editor does not report its width.
const DefaultColumns = 9999

var (
	// ErrNoContent marks a register read that found nothing.
	ErrNoContent = errors.New("register has no content")

	// ErrUnknownMethod is returned for a call no host method matches.
	ErrUnknownMethod = errors.New("unknown host method")
)

// Cursor is a 1-based line and 1-based byte column.
type Cursor struct {
	Line   int `json:"line" msgpack:"line"`
	Column int `json:"column" msgpack:"column"`
}

// Host is an editor connection.
type Host interface {
	batch.Executor

	// ReplaceLines replaces line start (1-based) with lines and moves the
	// cursor. It is not batched and not retried.
	ReplaceLines(ctx context.Context, start int, lines []string, cursor Cursor) error
}

// RegisterInfo queues a read of a register's contents and type.
func RegisterInfo(b *batch.Batch, name rune) *batch.Future[register.Info] {
	return batch.Enqueue[register.Info](b, MethodRegisterInfo, string(name))
}

// HasClipboard queues a clipboard availability check.
func HasClipboard(b *batch.Batch) *batch.Future[bool] {
	return batch.Enqueue[bool](b, MethodHasClipboard)
}

// IsPrintable queues a printable check for one code point.
func IsPrintable(b *batch.Batch, cp rune) *batch.Future[bool] {
	return batch.Enqueue[bool](b, MethodIsPrintable, int(cp))
}

// Columns queues a read of the editor's visible width.
func Columns(b *batch.Batch) *batch.Future[int] {
	return batch.Enqueue[int](b, MethodColumns)
}

// ByteLength queues a byte length measurement in the editor's encoding.
func ByteLength(b *batch.Batch, s string) *batch.Future[int] {
	return batch.Enqueue[int](b, MethodByteLength, s)
}

// Truncate queues a display-width truncation of s to width cells.
func Truncate(b *batch.Batch, s string, width int) *batch.Future[string] {
	return batch.Enqueue[string](b, MethodTruncate, s, width)
}

// Line queues a read of buffer line lnum (1-based) of the current buffer.
func Line(b *batch.Batch, lnum int) *batch.Future[string] {
	return batch.Enqueue[string](b, MethodLine, lnum)
}

// StringArg returns argument i of c as a string.
func StringArg(c *batch.Call, i int) (string, bool) {
	if i >= len(c.Args) {
		return "", false
	}
	s, ok := c.Args[i].(string)
	return s, ok
}

// IntArg returns argument i of c as an int. Any integer or float type is
// accepted so arguments survive a JSON or msgpack round-trip.
func IntArg(c *batch.Call, i int) (int, bool) {
	if i >= len(c.Args) {
		return 0, false
	}
	switch v := c.Args[i].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case int32:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
