package cli

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/wippyai/wasi-shim/errors"
	"github.com/wippyai/wasi-shim/resource"
	"github.com/wippyai/wasi-shim/wasi/preview3/offload"
	"github.com/wippyai/wasi-shim/wasi/preview3/stream"
)

var errReplaced = errors.New(errors.PhaseCLI, errors.KindCanceled).
	Resource("Stdio").
	Detail("stream replaced").
	Build()

// sink is a live copy registered in the context's table. Releasing it
// cancels the stream it drains.
type sink struct {
	data *stream.Reader[[]byte]
}

func (s sink) Release() error {
	s.data.Cancel(errReplaced)
	return nil
}

type worker struct {
	table  *resource.Table
	live   *resource.Tracker
	sinks  resource.Typed[sink]
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func newWorker(stdin io.Reader, stdout, stderr io.Writer) *worker {
	t := resource.NewTable()
	live := resource.NewTracker()
	t.Subscribe(live)
	return &worker{
		table:  t,
		live:   live,
		sinks:  resource.NewTyped[sink](t, resource.KindStdioSink),
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}
}

func (w *worker) Handle(ctx context.Context, req *offload.Request) (any, error) {
	switch p := req.Payload.(type) {
	case *sinkRequest:
		return nil, w.sink(ctx, p)
	case *stdinRequest:
		return nil, w.readStdin(ctx, p)
	default:
		return nil, errors.NotFound(errors.PhaseCLI, "operation", req.Op)
	}
}

func (w *worker) Idle() bool {
	return w.table.Len() == 0
}

func (w *worker) Close() error {
	if n := w.live.Live(resource.KindStdioSink); n > 0 {
		Logger().Debug("closing context with live sinks", zap.Int("sinks", n))
	}
	return w.table.Close()
}

func (w *worker) sink(ctx context.Context, req *sinkRequest) error {
	data, err := req.Data.Open()
	if err != nil {
		return err
	}
	h, err := w.sinks.Insert(sink{data: data})
	if err != nil {
		data.Cancel(err)
		return err
	}
	defer w.sinks.Remove(h)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-req.Stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	dst := w.stdout
	if req.Target == Stderr {
		dst = w.stderr
	}
	_, err = stream.Pipe(ctx, dst, data)
	select {
	case <-req.Stop:
		return nil
	default:
	}
	if err != nil {
		Logger().Debug("stdio write failed", zap.Stringer("target", req.Target), zap.Error(err))
	}
	return err
}

func (w *worker) readStdin(ctx context.Context, req *stdinRequest) error {
	out, err := req.Data.Open()
	if err != nil {
		return err
	}
	_, err = stream.Copy(ctx, out, w.stdin, stream.DefaultChunkSize)
	if err != nil {
		if out.Err() != nil {
			return nil
		}
		out.CloseWithError(err)
		return err
	}
	return out.Close()
}
