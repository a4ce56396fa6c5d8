package offload

import (
	"context"
	"fmt"
	"runtime/debug"
)

// Handler executes requests inside one execution context. Handle is called
// on its own goroutine per request, so implementations must be safe for
// concurrent use; state they keep is private to the context.
type Handler interface {
	Handle(ctx context.Context, req *Request) (any, error)

	// Idle reports whether the context holds no live host resources and
	// may be reclaimed once nothing is pending. It must not block.
	Idle() bool

	// Close releases everything the context still holds.
	Close() error
}

// HandlerFactory builds the private handler of a new context.
type HandlerFactory func() Handler

// HandlerFunc adapts a stateless function to Handler.
type HandlerFunc func(ctx context.Context, req *Request) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, req *Request) (any, error) {
	return f(ctx, req)
}

func (HandlerFunc) Idle() bool { return true }

func (HandlerFunc) Close() error { return nil }

type ctxKey struct{}

type scope struct {
	pool *Pool
	ec   *execContext
}

// ContextFrom returns the id of the execution context running a handler.
func ContextFrom(ctx context.Context) (ContextID, bool) {
	s, ok := ctx.Value(ctxKey{}).(*scope)
	if !ok {
		return 0, false
	}
	return s.ec.id, true
}

// Go runs fn on a new goroutine owned by the execution context behind ctx.
// A panic in fn faults that context like a panicking Handle would. Outside
// an execution context fn simply runs on its own goroutine.
func Go(ctx context.Context, op string, fn func()) {
	s, ok := ctx.Value(ctxKey{}).(*scope)
	if !ok {
		go fn()
		return
	}
	s.pool.wg.Add(1)
	go func() {
		defer s.pool.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.pool.fault(s.ec, op, fmt.Errorf("panic: %v", r), string(debug.Stack()))
			}
		}()
		fn()
	}()
}
