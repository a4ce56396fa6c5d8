package cli

import (
	"context"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasi-shim/errors"
	"github.com/wippyai/wasi-shim/wasi/preview3/future"
	"github.com/wippyai/wasi-shim/wasi/preview3/offload"
	"github.com/wippyai/wasi-shim/wasi/preview3/stream"
)

const (
	opSink  = "cli.write-via-stream"
	opStdin = "cli.read-via-stream"
)

// Target selects the host writer a sink copies to.
type Target uint8

const (
	Stdout Target = iota
	Stderr
)

func (t Target) String() string {
	if t == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Stdio holds the host ends. Nil fields read as empty input and discard
// output.
type Stdio struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func (s Stdio) withDefaults() Stdio {
	if s.Stdin == nil {
		s.Stdin = strings.NewReader("")
	}
	if s.Stdout == nil {
		s.Stdout = io.Discard
	}
	if s.Stderr == nil {
		s.Stderr = io.Discard
	}
	return s
}

type sinkRequest struct {
	Data   *stream.ReaderTransfer[[]byte]
	Stop   <-chan struct{}
	Target Target
}

type stdinRequest struct {
	Data *stream.WriterTransfer[[]byte]
}

type Host struct {
	pool       *offload.Pool
	stops      map[Target]chan struct{}
	mu         sync.Mutex
	stdinTaken bool
	closed     bool
}

// NewHost starts a pool whose contexts copy between streams and stdio.
func NewHost(cfg offload.Config, stdio Stdio) *Host {
	if cfg.Name == "" {
		cfg.Name = "cli"
	}
	stdio = stdio.withDefaults()
	out := &lockedWriter{w: stdio.Stdout}
	errw := &lockedWriter{w: stdio.Stderr}
	in := &lockedReader{r: stdio.Stdin}

	pool := offload.NewPool(cfg, func() offload.Handler {
		return newWorker(in, out, errw)
	})
	return &Host{
		pool:  pool,
		stops: make(map[Target]chan struct{}),
	}
}

// SetStdout copies data to the host stdout. The future settles when data
// ends, is replaced, or a write fails.
func (h *Host) SetStdout(data *stream.Reader[[]byte]) *future.Reader[struct{}] {
	return h.set(Stdout, data)
}

func (h *Host) SetStderr(data *stream.Reader[[]byte]) *future.Reader[struct{}] {
	return h.set(Stderr, data)
}

func (h *Host) set(t Target, data *stream.Reader[[]byte]) *future.Reader[struct{}] {
	if data == nil {
		return future.Rejected[struct{}](errors.InvalidInput(errors.PhaseCLI, "nil stream"))
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return future.Rejected[struct{}](errors.Closed(errors.PhaseCLI, "Stdio"))
	}
	rt, err := data.IntoTransferable()
	if err != nil {
		h.mu.Unlock()
		return future.Rejected[struct{}](err)
	}
	stop := make(chan struct{})
	if prev := h.stops[t]; prev != nil {
		close(prev)
	}
	h.stops[t] = stop
	h.mu.Unlock()

	res := h.pool.Submit(opSink, &sinkRequest{Data: rt, Stop: stop, Target: t}, offload.WithTransfer(rt))
	w, r := future.New[struct{}]()
	go func() {
		if _, err := res.Await(context.Background()); err != nil {
			Logger().Debug("stdio sink failed", zap.Stringer("target", t), zap.Error(err))
			w.Abort(err)
			return
		}
		w.Write(struct{}{})
	}()
	return r
}

// Stdin returns the host input as a byte stream. Reading from the host
// stops at the next chunk boundary after the stream is canceled.
func (h *Host) Stdin() (*stream.Reader[[]byte], error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, errors.Closed(errors.PhaseCLI, "Stdio")
	}
	if h.stdinTaken {
		return nil, errors.Busy(errors.PhaseCLI, "Stdin", "read")
	}

	w, r := stream.New[[]byte](stream.DefaultCapacity)
	wt, err := w.IntoTransferable()
	if err != nil {
		return nil, err
	}
	h.stdinTaken = true

	res := h.pool.Submit(opStdin, &stdinRequest{Data: wt}, offload.WithTransfer(wt))
	go func() {
		if _, err := res.Await(context.Background()); err != nil {
			Logger().Debug("stdin copy failed", zap.Error(err))
		}
	}()
	return r, nil
}

// Close stops every sink and shuts the pool down. A copy blocked in a
// host read of stdin is not interrupted.
func (h *Host) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	for t, stop := range h.stops {
		close(stop)
		delete(h.stops, t)
	}
	h.mu.Unlock()
	return h.pool.Close(ctx)
}

// Pool exposes the underlying offload pool.
func (h *Host) Pool() *offload.Pool {
	return h.pool
}

type lockedWriter struct {
	w  io.Writer
	mu sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

type lockedReader struct {
	r  io.Reader
	mu sync.Mutex
}

func (l *lockedReader) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Read(p)
}
