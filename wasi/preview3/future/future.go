package future

import (
	"context"
	"sync"

	"code.hybscloud.com/iox"

	"github.com/wippyai/wasi-shim/errors"
)

type slot[T any] struct {
	value    T
	err      error
	done     chan struct{}
	mu       sync.Mutex
	written  bool
	present  bool
	consumed bool
}

// New creates a connected write-once/read-once pair.
func New[T any]() (*Writer[T], *Reader[T]) {
	s := &slot[T]{done: make(chan struct{})}
	return &Writer[T]{s: s}, &Reader[T]{s: s}
}

// Resolved returns a reader already holding v.
func Resolved[T any](v T) *Reader[T] {
	w, r := New[T]()
	_ = w.Write(v)
	return r
}

// Rejected returns a reader already holding err.
func Rejected[T any](err error) *Reader[T] {
	w, r := New[T]()
	_ = w.Abort(err)
	return r
}

// Writer is the producing end of a future.
type Writer[T any] struct {
	s     *slot[T]
	moved bool
}

// Write fulfills the future with v.
func (w *Writer[T]) Write(v T) error {
	return w.settle(v, true, nil, true)
}

// Abort rejects the future with reason.
func (w *Writer[T]) Abort(reason error) error {
	var zero T
	return w.settle(zero, false, reason, true)
}

// Close fulfills the future without a value. It is a no-op once written.
func (w *Writer[T]) Close() error {
	var zero T
	return w.settle(zero, false, nil, false)
}

// CloseWithError rejects the future. It is a no-op once written.
func (w *Writer[T]) CloseWithError(err error) error {
	var zero T
	return w.settle(zero, false, err, false)
}

func (w *Writer[T]) settle(v T, present bool, err error, strict bool) error {
	s := w.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.moved {
		return errors.Transferred(errors.PhaseFuture, "FutureWriter")
	}
	if s.written {
		if strict {
			return errors.AlreadyWritten(errors.PhaseFuture, "FutureWriter")
		}
		return nil
	}
	s.written = true
	s.value = v
	s.present = present
	s.err = err
	close(s.done)
	return nil
}

// Reader is the consuming end of a future.
type Reader[T any] struct {
	s     *slot[T]
	moved bool
}

// Read suspends until the future is settled and returns its value.
// The first read consumes it: (v, true, nil) on fulfillment or
// (zero, false, err) on rejection. Every later read returns
// (zero, false, nil).
func (r *Reader[T]) Read(ctx context.Context) (T, bool, error) {
	v, ok, _, err := r.read(ctx)
	return v, ok, err
}

// TryRead is Read without suspension; it returns iox.ErrWouldBlock while
// the future is pending.
func (r *Reader[T]) TryRead() (T, bool, error) {
	var zero T
	select {
	case <-r.s.done:
	default:
		if r.isMoved() {
			return zero, false, errors.Transferred(errors.PhaseFuture, "FutureReader")
		}
		return zero, false, iox.ErrWouldBlock
	}
	return r.Read(context.Background())
}

// Await reads the future and treats an already-consumed future as an error.
// A future closed without a value yields the zero value.
func (r *Reader[T]) Await(ctx context.Context) (T, error) {
	v, _, first, err := r.read(ctx)
	if err != nil {
		return v, err
	}
	if !first {
		return v, errors.New(errors.PhaseFuture, errors.KindConsumed).
			Resource("FutureReader").
			Detail("future already read").
			Build()
	}
	return v, nil
}

func (r *Reader[T]) read(ctx context.Context) (v T, ok, first bool, err error) {
	if r.isMoved() {
		return v, false, false, errors.Transferred(errors.PhaseFuture, "FutureReader")
	}
	select {
	case <-r.s.done:
	case <-ctx.Done():
		return v, false, false, ctx.Err()
	}

	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumed {
		return v, false, false, nil
	}
	s.consumed = true
	v, ok, err = s.value, s.present, s.err
	var zero T
	s.value = zero
	s.err = nil
	return v, ok, true, err
}

func (r *Reader[T]) isMoved() bool {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.moved
}

// Done is closed once the future is settled.
func (r *Reader[T]) Done() <-chan struct{} {
	return r.s.done
}

// Cancel is not supported: the producer alone decides when a future
// settles.
func (r *Reader[T]) Cancel() error {
	return errors.Unsupported(errors.PhaseFuture, "cancel not supported")
}

// Close releases the reader. It never preempts the producer.
func (r *Reader[T]) Close() error {
	return nil
}

// Then returns a future of fn applied to r's value. A rejection passes
// through untouched.
func Then[T, U any](ctx context.Context, r *Reader[T], fn func(T) (U, error)) *Reader[U] {
	w, out := New[U]()
	go func() {
		v, ok, err := r.Read(ctx)
		if err != nil {
			w.Abort(err)
			return
		}
		if !ok {
			w.Close()
			return
		}
		u, err := fn(v)
		if err != nil {
			w.Abort(err)
			return
		}
		w.Write(u)
	}()
	return out
}
