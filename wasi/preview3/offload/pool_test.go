package offload

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/wippyai/wasi-shim/wasi/preview3/errcode"
	"github.com/wippyai/wasi-shim/wasi/preview3/future"
)

type fakeTransfer struct {
	mu     sync.Mutex
	reason error
	calls  int
}

func (f *fakeTransfer) Abandon(reason error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.reason = reason
}

func (f *fakeTransfer) abandoned() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.reason
}

// statefulHandler keeps a resource count so its context is not reclaimed
// while something is open.
type statefulHandler struct {
	mu     sync.Mutex
	open   int
	closed bool
}

func (h *statefulHandler) Handle(ctx context.Context, req *Request) (any, error) {
	id, _ := ContextFrom(ctx)
	h.mu.Lock()
	defer h.mu.Unlock()
	switch req.Op {
	case "open":
		h.open++
	case "close":
		h.open--
	}
	return id, nil
}

func (h *statefulHandler) Idle() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.open == 0
}

func (h *statefulHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPool_SubmitResolves(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(Config{Name: "test"}, func() Handler {
		return HandlerFunc(func(_ context.Context, req *Request) (any, error) {
			return req.Payload.(int) * 2, nil
		})
	})
	defer pool.Close(ctx)

	v, err := pool.Submit("double", 21).Await(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("got %v, want 42", v)
	}

	n, err := Call[int](pool, "double", 4).Await(ctx)
	if err != nil || n != 8 {
		t.Fatalf("Call = %v, %v", n, err)
	}

	if _, err := Call[string](pool, "double", 1).Await(ctx); err == nil {
		t.Fatal("Call with wrong result type should fail")
	}
}

func TestPool_HandlerErrorCrossesBoundary(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(Config{}, func() Handler {
		return HandlerFunc(func(_ context.Context, req *Request) (any, error) {
			switch req.Op {
			case "refused":
				return nil, os.NewSyscallError("connect", syscall.ECONNREFUSED)
			case "relayed":
				return nil, &WireError{Message: "relayed", Code: "EPIPE", Stack: "earlier"}
			default:
				return nil, errcode.InvalidState
			}
		})
	})
	defer pool.Close(ctx)

	_, err := pool.Submit("refused", nil).Await(ctx)
	var we *WireError
	if !errors.As(err, &we) {
		t.Fatalf("error = %T %v, want *WireError", err, err)
	}
	if got := errcode.Network(we.Host()); got != errcode.ConnectionRefused {
		t.Fatalf("mapped to %v, want connection-refused", got)
	}
	if !strings.Contains(we.Stack, "goroutine") {
		t.Fatalf("Stack = %q, want the context-side stack", we.Stack)
	}

	_, err = pool.Submit("state", nil).Await(ctx)
	if !errors.As(err, &we) {
		t.Fatalf("error = %T %v, want *WireError", err, err)
	}
	if c, ok := we.Portable(); !ok || c != errcode.InvalidState {
		t.Fatalf("Portable = %v, %v", c, ok)
	}

	_, err = pool.Submit("relayed", nil).Await(ctx)
	if !errors.As(err, &we) || we.Stack != "earlier" {
		t.Fatalf("relayed error = %v, want its own stack kept", err)
	}
}

func TestPool_UniqueIDs(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	seen := make(map[uint32]bool)
	pool := NewPool(Config{MaxContexts: 2}, func() Handler {
		return HandlerFunc(func(_ context.Context, req *Request) (any, error) {
			mu.Lock()
			defer mu.Unlock()
			if seen[req.ID] {
				t.Errorf("duplicate id %d", req.ID)
			}
			seen[req.ID] = true
			return nil, nil
		})
	})
	defer pool.Close(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := pool.Submit("noop", nil).Await(ctx); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(seen) != 50 {
		t.Fatalf("handled %d requests, want 50", len(seen))
	}
}

func TestPool_ReclaimWhenIdle(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	pool := NewPool(Config{MaxContexts: 1}, func() Handler {
		return HandlerFunc(func(_ context.Context, req *Request) (any, error) {
			<-release
			return req.Payload, nil
		})
	})
	defer pool.Close(ctx)

	futures := []*future.Reader[any]{
		pool.Submit("read", 0),
		pool.Submit("read", 1),
		pool.Submit("read", 2),
	}
	waitFor(t, func() bool { return pool.Stats().Pending == 3 })
	if s := pool.Stats(); s.Live != 1 {
		t.Fatalf("live = %d, want 1", s.Live)
	}
	close(release)

	for i, f := range futures {
		v, err := f.Await(ctx)
		if err != nil || v != i {
			t.Fatalf("future %d = %v, %v", i, v, err)
		}
	}

	waitFor(t, func() bool { return pool.Stats().Live == 0 })
	s := pool.Stats()
	if s.Pending != 0 || s.Reclaimed != 1 || s.Spawned != 1 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestPool_IdleTimeoutDelaysReclaim(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(Config{IdleTimeout: 50 * time.Millisecond}, func() Handler {
		return HandlerFunc(func(context.Context, *Request) (any, error) { return nil, nil })
	})
	defer pool.Close(ctx)

	pool.Submit("noop", nil).Await(ctx)
	if pool.Stats().Live != 1 {
		t.Fatal("context reclaimed before idle timeout")
	}
	pool.Submit("noop", nil).Await(ctx)
	if s := pool.Stats(); s.Spawned != 1 {
		t.Fatalf("context not reused: %+v", s)
	}
	waitFor(t, func() bool { return pool.Stats().Live == 0 })
}

func TestPool_FaultRejectsPending(t *testing.T) {
	ctx := context.Background()
	block := make(chan struct{})
	defer close(block)

	tr := &fakeTransfer{}
	pool := NewPool(Config{MaxContexts: 1}, func() Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) (any, error) {
			switch req.Op {
			case "panic":
				panic("boom")
			case "block":
				select {
				case <-block:
				case <-ctx.Done():
				}
			}
			return "ok", nil
		})
	})
	defer pool.Close(ctx)

	a := pool.Submit("block", nil, WithTransfer(tr))
	b := pool.Submit("block", nil)
	waitFor(t, func() bool { return pool.Stats().Pending == 2 })
	c := pool.Submit("panic", nil)

	for name, f := range map[string]*future.Reader[any]{"a": a, "b": b, "c": c} {
		_, err := f.Await(ctx)
		if !IsFault(err) {
			t.Fatalf("%s: error = %v, want fault", name, err)
		}
		var fe *FaultError
		if !errors.As(err, &fe) || fe.Context != 1 {
			t.Fatalf("%s: fault = %+v", name, fe)
		}
	}

	if n, reason := tr.abandoned(); n != 1 || !IsFault(reason) {
		t.Fatalf("transfer abandoned %d times with %v", n, reason)
	}

	s := pool.Stats()
	if s.Live != 0 || s.Pending != 0 || s.Faulted != 1 {
		t.Fatalf("stats after fault = %+v", s)
	}

	// A fresh context serves later requests.
	if v, err := pool.Submit("ok", nil).Await(ctx); err != nil || v != "ok" {
		t.Fatalf("after fault = %v, %v", v, err)
	}
}

func TestPool_RoutedToOwningContext(t *testing.T) {
	ctx := context.Background()
	handlers := make(chan *statefulHandler, 4)
	pool := NewPool(Config{MaxContexts: 4}, func() Handler {
		h := &statefulHandler{}
		handlers <- h
		return h
	})
	defer pool.Close(ctx)

	v, err := pool.Submit("open", nil).Await(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	owner := v.(ContextID)

	for i := 0; i < 3; i++ {
		v, err := pool.Submit("stat", nil, WithContext(owner)).Await(ctx)
		if err != nil || v.(ContextID) != owner {
			t.Fatalf("routed request ran on %v, %v; want %d", v, err, owner)
		}
	}
	if !pool.Live(owner) {
		t.Fatal("context with open resource was reclaimed")
	}

	pool.Submit("close", nil, WithContext(owner)).Await(ctx)
	waitFor(t, func() bool { return !pool.Live(owner) })

	h := <-handlers
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if !closed {
		t.Fatal("reclaimed handler was not closed")
	}

	tr := &fakeTransfer{}
	_, err = pool.Submit("stat", nil, WithContext(owner), WithTransfer(tr)).Await(ctx)
	if !IsFault(err) {
		t.Fatalf("request to gone context = %v, want fault", err)
	}
	if n, _ := tr.abandoned(); n != 1 {
		t.Fatal("transfer not abandoned for gone context")
	}
}

func TestPool_ErrorAbandonsTransfers(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(Config{}, func() Handler {
		return HandlerFunc(func(context.Context, *Request) (any, error) {
			return nil, errcode.InvalidArgument
		})
	})
	defer pool.Close(ctx)

	tr := &fakeTransfer{}
	if _, err := pool.Submit("bad", nil, WithTransfer(tr)).Await(ctx); err == nil {
		t.Fatal("expected error")
	}
	if n, _ := tr.abandoned(); n != 1 {
		t.Fatalf("transfer abandoned %d times, want 1", n)
	}
}

func TestPool_GoPanicFaultsContext(t *testing.T) {
	ctx := context.Background()
	block := make(chan struct{})
	defer close(block)

	pool := NewPool(Config{MaxContexts: 1}, func() Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) (any, error) {
			if req.Op == "spawn" {
				Go(ctx, "pump", func() { panic("pump failed") })
				return nil, nil
			}
			select {
			case <-block:
			case <-ctx.Done():
			}
			return nil, nil
		})
	})
	defer pool.Close(ctx)

	waiting := pool.Submit("wait", nil)
	waitFor(t, func() bool { return pool.Stats().Pending == 1 })
	pool.Submit("spawn", nil)

	if _, err := waiting.Await(ctx); !IsFault(err) {
		t.Fatalf("pending request = %v, want fault", err)
	}
}

func TestPool_Close(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(Config{}, func() Handler {
		return HandlerFunc(func(ctx context.Context, _ *Request) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
	})

	pending := pool.Submit("hang", nil)
	waitFor(t, func() bool { return pool.Stats().Pending == 1 })

	closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := pool.Close(closeCtx); err != nil {
		t.Fatalf("Close = %v", err)
	}
	if err := pool.Close(closeCtx); err != nil {
		t.Fatalf("second Close = %v", err)
	}

	if _, err := pending.Await(ctx); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("pending = %v, want ErrPoolClosed", err)
	}

	tr := &fakeTransfer{}
	if _, err := pool.Submit("late", nil, WithTransfer(tr)).Await(ctx); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("late submit = %v, want ErrPoolClosed", err)
	}
	if n, _ := tr.abandoned(); n != 1 {
		t.Fatal("late transfer not abandoned")
	}
}
