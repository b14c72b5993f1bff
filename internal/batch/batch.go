// Package batch coalesces independent, read-only host queries into a single
// round-trip.
//
// A Batch is a request builder: Enqueue records a call descriptor and hands
// back a Future immediately. Flush sends every recorded call to an Executor
// in one round-trip and resolves the futures in issuance order. Calls in one
// batch must not depend on each other's results.
//
//	infos, err := batch.Defer(ctx, exec, func(b *batch.Batch) []*batch.Future[register.Info] {
//	    var out []*batch.Future[register.Info]
//	    for _, name := range names {
//	        out = append(out, batch.Enqueue[register.Info](b, "registerInfo", string(name)))
//	    }
//	    return out
//	})
package batch

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrFlushed is returned when a batch is flushed or extended twice.
	ErrFlushed = errors.New("batch already flushed")

	// ErrNotResolved is returned by a future read before its batch flushed.
	ErrNotResolved = errors.New("batch future not resolved")

	// ErrNoExecutor is returned when Flush is called with a nil executor.
	ErrNoExecutor = errors.New("batch executor is nil")
)

// Call is one query descriptor. Executors fill Result (a non-nil pointer)
// or set Err for a per-call failure.
type Call struct {
	Method string
	Args   []any
	Result any
	Err    error
}

// Resolve stores v into the call's result pointer. v must be assignable or
// convertible to the pointed-to type.
func (c *Call) Resolve(v any) error {
	dst := reflect.ValueOf(c.Result)
	if dst.Kind() != reflect.Pointer || dst.IsNil() {
		return fmt.Errorf("%s: result target is %T, not a pointer", c.Method, c.Result)
	}
	elem := dst.Elem()
	if v == nil {
		elem.Set(reflect.Zero(elem.Type()))
		return nil
	}

	src := reflect.ValueOf(v)
	switch {
	case src.Type().AssignableTo(elem.Type()):
		elem.Set(src)
	case isNumber(src.Kind()) && isNumber(elem.Kind()):
		elem.Set(src.Convert(elem.Type()))
	default:
		return fmt.Errorf("%s: cannot store %T into %s", c.Method, v, elem.Type())
	}
	return nil
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// Executor performs a whole batch in one round-trip. A non-nil error fails
// every call in the batch; per-call failures go in Call.Err.
type Executor interface {
	ExecuteBatch(ctx context.Context, calls []*Call) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, calls []*Call) error

// ExecuteBatch calls f.
func (f ExecutorFunc) ExecuteBatch(ctx context.Context, calls []*Call) error {
	return f(ctx, calls)
}

// Batch accumulates calls until it is flushed. A Batch is used from one
// goroutine during a single synchronous construction step.
type Batch struct {
	calls   []*Call
	flushed bool
	err     error
}

// New returns an empty batch.
func New() *Batch {
	return &Batch{}
}

// Len returns the number of recorded calls.
func (b *Batch) Len() int {
	return len(b.calls)
}

// Calls returns the recorded calls in issuance order.
func (b *Batch) Calls() []*Call {
	return b.calls
}

func (b *Batch) add(c *Call) {
	if b.flushed {
		c.Err = ErrFlushed
		return
	}
	b.calls = append(b.calls, c)
}

// Flush executes every recorded call in one round-trip. An empty batch
// performs no round-trip.
func (b *Batch) Flush(ctx context.Context, exec Executor) error {
	if b.flushed {
		return ErrFlushed
	}
	b.flushed = true

	if len(b.calls) == 0 {
		return nil
	}
	b.err = b.execute(ctx, exec)
	return b.err
}

func (b *Batch) execute(ctx context.Context, exec Executor) error {
	if exec == nil {
		return ErrNoExecutor
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := exec.ExecuteBatch(ctx, b.calls); err != nil {
		return fmt.Errorf("execute batch of %d calls: %w", len(b.calls), err)
	}
	// A cancelled pass discards whatever arrived.
	return ctx.Err()
}

// Defer runs build against a fresh batch, flushes it once, and returns the
// structure build produced with every future in it resolved.
func Defer[R any](ctx context.Context, exec Executor, build func(b *Batch) R) (R, error) {
	b := New()
	result := build(b)
	if err := b.Flush(ctx, exec); err != nil {
		var zero R
		return zero, err
	}
	return result, nil
}
