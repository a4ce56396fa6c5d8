package clocks

import (
	"context"
	"math"
	"time"

	"github.com/wippyai/wasi-shim/wasi/preview3/future"
)

// Instant is a monotonic reading in nanoseconds.
type Instant uint64

type Monotonic struct {
	start time.Time
}

func NewMonotonic() *Monotonic {
	return &Monotonic{start: time.Now()}
}

// Now returns the nanoseconds elapsed since m was created.
func (m *Monotonic) Now() Instant {
	return Instant(time.Since(m.start).Nanoseconds())
}

// Resolution is one nanosecond.
func (m *Monotonic) Resolution() time.Duration {
	return time.Nanosecond
}

// WaitUntil resolves once the clock reaches when. An instant already in
// the past resolves immediately; one beyond the range of time.Duration is
// never reached. Canceling ctx rejects the future.
func (m *Monotonic) WaitUntil(ctx context.Context, when Instant) *future.Reader[struct{}] {
	if when > math.MaxInt64 {
		return never(ctx)
	}
	return m.wait(ctx, m.start.Add(time.Duration(when)))
}

// WaitFor resolves after d has elapsed.
func (m *Monotonic) WaitFor(ctx context.Context, d time.Duration) *future.Reader[struct{}] {
	return m.wait(ctx, time.Now().Add(d))
}

func (m *Monotonic) wait(ctx context.Context, deadline time.Time) *future.Reader[struct{}] {
	d := time.Until(deadline)
	if d <= 0 {
		return future.Resolved(struct{}{})
	}
	if err := ctx.Err(); err != nil {
		return future.Rejected[struct{}](err)
	}

	w, r := future.New[struct{}]()
	timer := time.NewTimer(d)
	go func() {
		defer timer.Stop()
		select {
		case <-timer.C:
			w.Write(struct{}{})
		case <-ctx.Done():
			w.Abort(ctx.Err())
		}
	}()
	return r
}

// never settles only when ctx is done.
func never(ctx context.Context) *future.Reader[struct{}] {
	if err := ctx.Err(); err != nil {
		return future.Rejected[struct{}](err)
	}
	w, r := future.New[struct{}]()
	go func() {
		<-ctx.Done()
		w.Abort(ctx.Err())
	}()
	return r
}

var process = NewMonotonic()

// Now reads the process-wide monotonic clock.
func Now() Instant { return process.Now() }

func Resolution() time.Duration { return process.Resolution() }

func WaitUntil(ctx context.Context, when Instant) *future.Reader[struct{}] {
	return process.WaitUntil(ctx, when)
}

func WaitFor(ctx context.Context, d time.Duration) *future.Reader[struct{}] {
	return process.WaitFor(ctx, d)
}
