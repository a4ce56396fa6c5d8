package stream

import (
	"context"
	"io"

	"code.hybscloud.com/iox"

	"github.com/wippyai/wasi-shim/errors"
)

// Reader is the consuming end of a stream.
type Reader[T any] struct {
	p     *pipe[T]
	moved bool
}

// Read returns the next chunk, suspending until one is available.
// Once the stream has ended Read returns io.EOF, and keeps doing so.
// A producer error is returned once, after queued chunks are drained.
func (r *Reader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if err := r.acquire(); err != nil {
		return zero, err
	}
	defer r.release()

	for {
		v, err := r.next()
		if !iox.IsWouldBlock(err) {
			return v, err
		}
		select {
		case <-r.p.readable:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// TryRead is Read without suspension. It returns iox.ErrWouldBlock when
// no chunk is queued and the stream has not ended.
func (r *Reader[T]) TryRead() (T, error) {
	var zero T
	if err := r.acquire(); err != nil {
		return zero, err
	}
	defer r.release()
	return r.next()
}

func (r *Reader[T]) acquire() error {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if r.moved {
		return errors.Transferred(errors.PhaseStream, "StreamReader")
	}
	if p.reading {
		return errors.Busy(errors.PhaseStream, "StreamReader", "read")
	}
	p.reading = true
	return nil
}

func (r *Reader[T]) release() {
	r.p.mu.Lock()
	r.p.reading = false
	r.p.mu.Unlock()
}

func (r *Reader[T]) next() (T, error) {
	var zero T
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.canceled || p.terminal {
		return zero, io.EOF
	}
	if v, err := p.queue.Dequeue(); err == nil {
		p.queued--
		signal(p.writable)
		return v, nil
	}
	if !p.closed {
		return zero, iox.ErrWouldBlock
	}

	// Closed with nothing left: the end is observed exactly once here.
	p.terminal = true
	err := p.closeErr
	p.closeErr = nil
	if err != nil {
		return zero, err
	}
	return zero, io.EOF
}

// Cancel abandons the stream from the consumer side. The producer
// observes reason through Writer.Err and Writer.Done. Cancel after the
// stream ended is a no-op.
func (r *Reader[T]) Cancel(reason error) {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if r.moved {
		return
	}
	p.cancelLocked(reason)
}

// Close releases the reader. Before the end of the stream it cancels;
// afterwards it is a no-op. Close is idempotent.
func (r *Reader[T]) Close() error {
	r.Cancel(nil)
	return nil
}

// Ended reports whether the reader has observed the end of the stream.
func (r *Reader[T]) Ended() bool {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()
	return r.p.terminal
}
