package future

import (
	"code.hybscloud.com/atomix"

	"github.com/wippyai/wasi-shim/errors"
)

// WriterTransfer carries a writer endpoint into another execution context.
type WriterTransfer[T any] struct {
	s      *slot[T]
	opened atomix.Uint32
}

// ReaderTransfer carries a reader endpoint into another execution context.
type ReaderTransfer[T any] struct {
	s      *slot[T]
	opened atomix.Uint32
}

// IntoTransferable consumes w.
func (w *Writer[T]) IntoTransferable() (*WriterTransfer[T], error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	if w.moved {
		return nil, errors.Transferred(errors.PhaseFuture, "FutureWriter")
	}
	w.moved = true
	return &WriterTransfer[T]{s: w.s}, nil
}

// IntoTransferable consumes r.
func (r *Reader[T]) IntoTransferable() (*ReaderTransfer[T], error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.moved {
		return nil, errors.Transferred(errors.PhaseFuture, "FutureReader")
	}
	r.moved = true
	return &ReaderTransfer[T]{s: r.s}, nil
}

// Open yields the writer on the receiving side, once.
func (t *WriterTransfer[T]) Open() (*Writer[T], error) {
	if t.opened.Add(1) != 1 {
		return nil, errors.Transferred(errors.PhaseFuture, "FutureWriter")
	}
	return &Writer[T]{s: t.s}, nil
}

// Abandon rejects the future if it is still unwritten.
func (t *WriterTransfer[T]) Abandon(reason error) {
	w := &Writer[T]{s: t.s}
	_ = w.CloseWithError(reason)
}

// Open yields the reader on the receiving side, once.
func (t *ReaderTransfer[T]) Open() (*Reader[T], error) {
	if t.opened.Add(1) != 1 {
		return nil, errors.Transferred(errors.PhaseFuture, "FutureReader")
	}
	return &Reader[T]{s: t.s}, nil
}

// Abandon drops the reader side; futures have no consumer-side
// preemption, so nothing is signalled to the producer.
func (t *ReaderTransfer[T]) Abandon(error) {}
