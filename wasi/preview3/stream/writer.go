package stream

import (
	"context"

	"code.hybscloud.com/iox"

	"github.com/wippyai/wasi-shim/errors"
)

// Writer is the producing end of a stream.
type Writer[T any] struct {
	p     *pipe[T]
	moved bool
}

// Write queues v, suspending while the stream is full. Writing after
// Close or after the reader canceled is an error; nothing is dropped
// silently.
func (w *Writer[T]) Write(ctx context.Context, v T) error {
	for {
		err := w.TryWrite(v)
		if !iox.IsWouldBlock(err) {
			return err
		}
		select {
		case <-w.p.writable:
		case <-w.p.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// TryWrite is Write without suspension. It returns iox.ErrWouldBlock
// when the stream is full.
func (w *Writer[T]) TryWrite(v T) error {
	p := w.p
	p.mu.Lock()
	defer p.mu.Unlock()

	if w.moved {
		return errors.Transferred(errors.PhaseStream, "StreamWriter")
	}
	if p.canceled {
		return errors.New(errors.PhaseStream, errors.KindCanceled).
			Resource("StreamWriter").
			Op("write").
			Cause(p.cancelErr).
			Build()
	}
	if p.closed {
		return errors.Closed(errors.PhaseStream, "StreamWriter")
	}
	if p.queued >= p.capacity {
		return iox.ErrWouldBlock
	}
	if err := p.queue.Enqueue(&v); err != nil {
		return err
	}
	p.queued++
	signal(p.readable)
	return nil
}

// Close ends the stream gracefully. Queued chunks remain readable.
func (w *Writer[T]) Close() error {
	return w.CloseWithError(nil)
}

// CloseWithError ends the stream abnormally; the reader receives err after
// draining queued chunks. The first close wins; later calls are no-ops.
func (w *Writer[T]) CloseWithError(err error) error {
	p := w.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if w.moved {
		return errors.Transferred(errors.PhaseStream, "StreamWriter")
	}
	p.closeLocked(err)
	return nil
}

// Done is closed when the reader cancels.
func (w *Writer[T]) Done() <-chan struct{} {
	return w.p.done
}

// Err returns the reader's cancel reason, or nil while the reader is live.
func (w *Writer[T]) Err() error {
	w.p.mu.Lock()
	defer w.p.mu.Unlock()
	if !w.p.canceled {
		return nil
	}
	return w.p.cancelErr
}
