package stream

import (
	"code.hybscloud.com/atomix"

	"github.com/wippyai/wasi-shim/errors"
)

// ReaderTransfer carries a reader endpoint across an execution-context
// boundary. It is opened exactly once on the receiving side.
type ReaderTransfer[T any] struct {
	p      *pipe[T]
	opened atomix.Uint32
}

// WriterTransfer carries a writer endpoint across an execution-context
// boundary. It is opened exactly once on the receiving side.
type WriterTransfer[T any] struct {
	p      *pipe[T]
	opened atomix.Uint32
}

// IntoTransferable consumes r; every later call on r fails with a
// transferred error.
func (r *Reader[T]) IntoTransferable() (*ReaderTransfer[T], error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()
	if r.moved {
		return nil, errors.Transferred(errors.PhaseStream, "StreamReader")
	}
	if r.p.reading {
		return nil, errors.Busy(errors.PhaseStream, "StreamReader", "transfer")
	}
	r.moved = true
	return &ReaderTransfer[T]{p: r.p}, nil
}

// IntoTransferable consumes w; every later call on w fails with a
// transferred error.
func (w *Writer[T]) IntoTransferable() (*WriterTransfer[T], error) {
	w.p.mu.Lock()
	defer w.p.mu.Unlock()
	if w.moved {
		return nil, errors.Transferred(errors.PhaseStream, "StreamWriter")
	}
	w.moved = true
	return &WriterTransfer[T]{p: w.p}, nil
}

// Open yields the reader on the receiving side.
func (t *ReaderTransfer[T]) Open() (*Reader[T], error) {
	if t.opened.Add(1) != 1 {
		return nil, errors.Transferred(errors.PhaseStream, "StreamReader")
	}
	return &Reader[T]{p: t.p}, nil
}

// Abandon cancels the stream when the receiving context can no longer
// service it.
func (t *ReaderTransfer[T]) Abandon(reason error) {
	t.p.mu.Lock()
	defer t.p.mu.Unlock()
	t.p.cancelLocked(reason)
}

// Open yields the writer on the receiving side.
func (t *WriterTransfer[T]) Open() (*Writer[T], error) {
	if t.opened.Add(1) != 1 {
		return nil, errors.Transferred(errors.PhaseStream, "StreamWriter")
	}
	return &Writer[T]{p: t.p}, nil
}

// Abandon ends the stream with reason when the receiving context can no
// longer produce into it.
func (t *WriterTransfer[T]) Abandon(reason error) {
	t.p.mu.Lock()
	defer t.p.mu.Unlock()
	t.p.closeLocked(reason)
}
