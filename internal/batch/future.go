package batch

// Future is the deferred result of one call. It is readable once the batch
// that issued it has been flushed.
type Future[T any] struct {
	call  *Call
	value T
	batch *Batch
}

// Enqueue records a call to method on b and returns its future.
func Enqueue[T any](b *Batch, method string, args ...any) *Future[T] {
	f := &Future[T]{batch: b}
	f.call = &Call{Method: method, Args: args, Result: &f.value}
	b.add(f.call)
	return f
}

// Get returns the resolved value, or the per-call error.
func (f *Future[T]) Get() (T, error) {
	if f.call.Err != nil {
		var zero T
		return zero, f.call.Err
	}
	if !f.batch.flushed {
		var zero T
		return zero, ErrNotResolved
	}
	if f.batch.err != nil {
		var zero T
		return zero, f.batch.err
	}
	return f.value, nil
}

// Value returns the resolved value, or the zero value on any error.
func (f *Future[T]) Value() T {
	v, _ := f.Get()
	return v
}

// OK reports whether the call resolved without error.
func (f *Future[T]) OK() bool {
	_, err := f.Get()
	return err == nil
}

// Call returns the underlying descriptor.
func (f *Future[T]) Call() *Call {
	return f.call
}
