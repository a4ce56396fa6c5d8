package stream

import (
	"sync"

	"code.hybscloud.com/lfq"
)

const (
	// DefaultCapacity is the number of in-flight chunks a stream buffers
	// before Write suspends.
	DefaultCapacity = 16

	// DefaultChunkSize is the read size used by host-side pumps.
	DefaultChunkSize = 64 * 1024
)

var errCanceled = canceledError{}

type canceledError struct{}

func (canceledError) Error() string { return "stream canceled by reader" }

// pipe is the state shared by one writer and one reader.
type pipe[T any] struct {
	// bounded ring storage; every Enqueue and Dequeue runs under mu
	queue lfq.SPSC[T]

	// capacity-1 wakeup channels; a pending token means "look again"
	readable chan struct{}
	writable chan struct{}
	done     chan struct{}

	mu        sync.Mutex
	capacity  int
	queued    int
	closeErr  error
	cancelErr error
	closed    bool
	canceled  bool
	terminal  bool
	reading   bool
}

// New creates a connected stream pair buffering up to capacity chunks.
// A non-positive capacity selects DefaultCapacity.
func New[T any](capacity int) (*Writer[T], *Reader[T]) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	p := &pipe[T]{
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
		done:     make(chan struct{}),
		capacity: capacity,
	}
	// The ring may round up; capacity is enforced by the queued count.
	p.queue.Init(roundPow2(max(capacity, 2)))
	return &Writer[T]{p: p}, &Reader[T]{p: p}
}

func roundPow2(n int) int {
	c := 1
	for c < n {
		c <<= 1
	}
	return c
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// cancel marks the stream abandoned by its consumer. Caller holds p.mu.
func (p *pipe[T]) cancelLocked(reason error) bool {
	if p.terminal || p.canceled {
		return false
	}
	if reason == nil {
		reason = errCanceled
	}
	p.canceled = true
	p.cancelErr = reason
	p.terminal = true
	close(p.done)
	signal(p.readable)
	signal(p.writable)
	return true
}

// closeLocked ends the stream from the producer side. Caller holds p.mu.
func (p *pipe[T]) closeLocked(err error) {
	if p.closed || p.canceled {
		return
	}
	p.closed = true
	p.closeErr = err
	signal(p.readable)
}
