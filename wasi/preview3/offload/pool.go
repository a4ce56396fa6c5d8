package offload

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"code.hybscloud.com/atomix"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-shim/wasi/preview3/future"
)

// Pool runs blocking host operations in isolated execution contexts and
// correlates their replies with submitted requests.
type Pool struct {
	factory  HandlerFactory
	log      *zap.Logger
	contexts map[ContextID]*execContext
	pending  map[uint32]*pendingRequest
	cfg      Config
	stats    Stats
	wg       sync.WaitGroup
	mu       sync.Mutex
	ids      atomix.Uint32
	nextCtx  ContextID
	closed   bool
}

// Stats is a snapshot of pool activity.
type Stats struct {
	Live      int
	Pending   int
	Spawned   int
	Reclaimed int
	Faulted   int
}

type pendingRequest struct {
	req   *Request
	reply *future.Writer[any]
	owner *execContext
}

type execContext struct {
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
	idle    *time.Timer
	wake    chan struct{}
	queue   []*Request
	pending int
	id      ContextID
	dead    bool
}

// NewPool creates a pool whose contexts run handlers built by factory.
// Contexts are spawned lazily.
func NewPool(cfg Config, factory HandlerFactory) *Pool {
	cfg = cfg.withDefaults()
	return &Pool{
		cfg:      cfg,
		factory:  factory,
		log:      cfg.Logger.With(zap.String("pool", cfg.Name)),
		contexts: make(map[ContextID]*execContext),
		pending:  make(map[uint32]*pendingRequest),
	}
}

// Submit sends op to an execution context and returns immediately. The
// returned future settles with the handler's result, a *WireError, a
// *FaultError, or ErrPoolClosed.
func (p *Pool) Submit(op string, payload any, opts ...SubmitOption) *future.Reader[any] {
	var o submitOptions
	for _, opt := range opts {
		opt(&o)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		abandon(o.transfer, ErrPoolClosed)
		return future.Rejected[any](ErrPoolClosed)
	}

	var ec *execContext
	if o.routed {
		ec = p.contexts[o.context]
		if ec == nil {
			p.mu.Unlock()
			err := &FaultError{Context: o.context, Op: op, Cause: errContextGone}
			abandon(o.transfer, err)
			return future.Rejected[any](err)
		}
	} else {
		ec = p.pick()
	}

	w, r := future.New[any]()
	req := &Request{
		ID:       p.nextID(),
		Op:       op,
		Payload:  payload,
		Transfer: o.transfer,
	}
	p.pending[req.ID] = &pendingRequest{req: req, reply: w, owner: ec}
	ec.pending++
	if ec.idle != nil {
		ec.idle.Stop()
		ec.idle = nil
	}
	ec.queue = append(ec.queue, req)
	p.mu.Unlock()

	signalWake(ec.wake)
	return r
}

// Call submits op and narrows the result to T.
func Call[T any](p *Pool, op string, payload any, opts ...SubmitOption) *future.Reader[T] {
	return future.Then(context.Background(), p.Submit(op, payload, opts...), func(v any) (T, error) {
		if v == nil {
			var zero T
			return zero, nil
		}
		t, ok := v.(T)
		if !ok {
			var zero T
			return zero, fmt.Errorf("offload: %s returned %T, want %T", op, v, zero)
		}
		return t, nil
	})
}

// nextID returns a correlation id unique among outstanding requests.
// Caller holds p.mu.
func (p *Pool) nextID() uint32 {
	for {
		id := p.ids.Add(1)
		if id == 0 {
			continue
		}
		if _, busy := p.pending[id]; !busy {
			return id
		}
	}
}

// pick returns the least-loaded live context, spawning one while below
// MaxContexts. Caller holds p.mu.
func (p *Pool) pick() *execContext {
	var best *execContext
	for _, ec := range p.contexts {
		if best == nil || ec.pending < best.pending || (ec.pending == best.pending && ec.id < best.id) {
			best = ec
		}
	}
	if best != nil && (best.pending == 0 || len(p.contexts) >= p.cfg.MaxContexts) {
		return best
	}
	return p.spawn()
}

// spawn starts a context. Caller holds p.mu.
func (p *Pool) spawn() *execContext {
	p.nextCtx++
	id := p.nextCtx
	ec := &execContext{
		id:      id,
		handler: p.factory(),
		wake:    make(chan struct{}, 1),
	}
	ec.ctx, ec.cancel = context.WithCancel(context.WithValue(context.Background(), ctxKey{}, &scope{pool: p, ec: ec}))
	p.contexts[id] = ec
	p.stats.Spawned++

	p.wg.Add(1)
	go p.run(ec)

	p.log.Debug("context spawned", zap.Uint32("context", uint32(id)))
	return ec
}

func (p *Pool) run(ec *execContext) {
	defer p.wg.Done()
	for {
		select {
		case <-ec.wake:
		case <-ec.ctx.Done():
			return
		}

		p.mu.Lock()
		batch := ec.queue
		ec.queue = nil
		p.mu.Unlock()

		for _, req := range batch {
			p.wg.Add(1)
			go p.dispatch(ec, req)
		}
	}
}

func (p *Pool) dispatch(ec *execContext, req *Request) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			p.fault(ec, req.Op, fmt.Errorf("panic: %v", r), string(debug.Stack()))
		}
	}()

	result, err := ec.handler.Handle(ec.ctx, req)
	p.complete(ec, &Response{ID: req.ID, Result: result, Err: WireErrorFrom(err)})
}

// complete settles the request a response correlates with.
func (p *Pool) complete(ec *execContext, resp *Response) {
	p.mu.Lock()
	pr, ok := p.pending[resp.ID]
	if !ok {
		// Already rejected by a fault or by Close.
		p.mu.Unlock()
		return
	}
	delete(p.pending, resp.ID)
	ec.pending--
	p.maybeReclaim(ec)
	p.mu.Unlock()

	if resp.Err != nil {
		abandon(pr.req.Transfer, resp.Err)
		pr.reply.Abort(resp.Err)
		return
	}
	pr.reply.Write(resp.Result)
}

// maybeReclaim terminates ec once nothing is pending and its handler holds
// no resources. Caller holds p.mu.
func (p *Pool) maybeReclaim(ec *execContext) {
	if ec.dead || ec.pending > 0 || len(ec.queue) > 0 || !ec.handler.Idle() {
		return
	}
	if p.cfg.IdleTimeout <= 0 {
		p.reclaim(ec)
		return
	}
	if ec.idle != nil {
		ec.idle.Stop()
	}
	ec.idle = time.AfterFunc(p.cfg.IdleTimeout, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if ec.dead || ec.pending > 0 || len(ec.queue) > 0 || !ec.handler.Idle() {
			return
		}
		p.reclaim(ec)
	})
}

// reclaim discards an idle context. Caller holds p.mu.
func (p *Pool) reclaim(ec *execContext) {
	ec.dead = true
	ec.idle = nil
	delete(p.contexts, ec.id)
	p.stats.Reclaimed++
	ec.cancel()
	if err := ec.handler.Close(); err != nil {
		p.log.Warn("context close failed", zap.Uint32("context", uint32(ec.id)), zap.Error(err))
	}
	p.log.Debug("context reclaimed", zap.Uint32("context", uint32(ec.id)))
}

// fault terminates ec and rejects every request still pending on it.
func (p *Pool) fault(ec *execContext, op string, cause error, stack string) {
	p.mu.Lock()
	if ec.dead {
		p.mu.Unlock()
		return
	}
	ec.dead = true
	if ec.idle != nil {
		ec.idle.Stop()
		ec.idle = nil
	}
	delete(p.contexts, ec.id)
	p.stats.Faulted++

	var victims []*pendingRequest
	for id, pr := range p.pending {
		if pr.owner == ec {
			victims = append(victims, pr)
			delete(p.pending, id)
		}
	}
	ec.pending = 0
	ec.queue = nil
	p.mu.Unlock()

	ec.cancel()
	p.log.Error("context faulted",
		zap.Uint32("context", uint32(ec.id)),
		zap.String("op", op),
		zap.Int("rejected", len(victims)),
		zap.Error(cause))

	for _, pr := range victims {
		err := &FaultError{Context: ec.id, Op: pr.req.Op, Cause: cause, Stack: stack}
		abandon(pr.req.Transfer, err)
		pr.reply.Abort(err)
	}
	if err := ec.handler.Close(); err != nil {
		p.log.Warn("context close failed", zap.Uint32("context", uint32(ec.id)), zap.Error(err))
	}
}

// Stats returns a snapshot of pool activity.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Live = len(p.contexts)
	s.Pending = len(p.pending)
	return s
}

// Live reports whether a context is still running.
func (p *Pool) Live(id ContextID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.contexts[id]
	return ok
}

// Close stops accepting requests, rejects those still pending with
// ErrPoolClosed, and terminates every context. It waits for handler
// goroutines to return until ctx is done.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	contexts := make([]*execContext, 0, len(p.contexts))
	for _, ec := range p.contexts {
		ec.dead = true
		if ec.idle != nil {
			ec.idle.Stop()
		}
		contexts = append(contexts, ec)
	}
	p.contexts = make(map[ContextID]*execContext)
	victims := make([]*pendingRequest, 0, len(p.pending))
	for _, pr := range p.pending {
		victims = append(victims, pr)
	}
	p.pending = make(map[uint32]*pendingRequest)
	p.mu.Unlock()

	for _, pr := range victims {
		abandon(pr.req.Transfer, ErrPoolClosed)
		pr.reply.Abort(ErrPoolClosed)
	}
	for _, ec := range contexts {
		ec.cancel()
		if err := ec.handler.Close(); err != nil {
			p.log.Warn("context close failed", zap.Uint32("context", uint32(ec.id)), zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func abandon(ts []Transferable, reason error) {
	for _, t := range ts {
		t.Abandon(reason)
	}
}

func signalWake(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

var errContextGone = fmt.Errorf("context no longer running")
