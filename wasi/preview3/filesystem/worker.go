package filesystem

import (
	"context"
	"errors"
	"io"
	"os"
	"slices"
	"strings"

	"go.uber.org/zap"

	shimerrors "github.com/wippyai/wasi-shim/errors"
	"github.com/wippyai/wasi-shim/resource"
	"github.com/wippyai/wasi-shim/wasi/preview3/offload"
	"github.com/wippyai/wasi-shim/wasi/preview3/stream"
)

// worker services stream operations inside one execution context. Host
// handles in use are tracked so a faulted context releases them.
type worker struct {
	table *resource.Table
	live  *resource.Tracker
	files resource.Typed[ownedFile]
}

// NewHandler creates the per-context filesystem handler.
func NewHandler() offload.Handler {
	t := resource.NewTable()
	live := resource.NewTracker()
	t.Subscribe(live)
	return &worker{
		table: t,
		live:  live,
		files: resource.NewTyped[ownedFile](t, resource.KindDescriptor),
	}
}

func (w *worker) Handle(ctx context.Context, req *offload.Request) (any, error) {
	switch p := req.Payload.(type) {
	case *readRequest:
		return nil, w.read(ctx, p)
	case *writeRequest:
		return nil, w.write(ctx, p)
	case *readDirRequest:
		return nil, w.readDir(ctx, p)
	default:
		return nil, shimerrors.NotFound(shimerrors.PhaseFilesystem, "operation", req.Op)
	}
}

func (w *worker) Idle() bool {
	return w.table.Len() == 0
}

func (w *worker) Close() error {
	if n := w.live.Live(resource.KindDescriptor); n > 0 {
		Logger().Debug("closing context with streams in flight", zap.Int("files", n))
	}
	return w.table.Close()
}

func (w *worker) track(f ownedFile) (func(), error) {
	h, err := w.files.Insert(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return func() { w.files.Remove(h) }, nil
}

func (w *worker) read(ctx context.Context, req *readRequest) error {
	release, err := w.track(req.File)
	if err != nil {
		return err
	}
	defer release()

	out, err := req.Data.Open()
	if err != nil {
		return err
	}

	buf := make([]byte, stream.DefaultChunkSize)
	off := req.Offset
	for {
		n, err := req.File.ReadAt(buf, off)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if werr := out.Write(ctx, chunk); werr != nil {
				return stopped(out.Done(), werr)
			}
			off += int64(n)
		}
		if errors.Is(err, io.EOF) {
			out.Close()
			return nil
		}
		if err != nil {
			mapped := mapError(err)
			Logger().Debug("read failed", zap.String("path", req.File.Name()), zap.Error(err))
			out.CloseWithError(mapped)
			return mapped
		}
	}
}

func (w *worker) write(ctx context.Context, req *writeRequest) error {
	release, err := w.track(req.File)
	if err != nil {
		return err
	}
	defer release()

	in, err := req.Data.Open()
	if err != nil {
		return err
	}
	defer in.Close()

	off := req.Offset
	for {
		chunk, err := in.Read(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		var n int
		if req.Append {
			n, err = req.File.Write(chunk)
		} else {
			n, err = req.File.WriteAt(chunk, off)
		}
		off += int64(n)
		if err != nil {
			mapped := mapError(err)
			Logger().Debug("write failed", zap.String("path", req.File.Name()), zap.Error(err))
			in.Cancel(mapped)
			return mapped
		}
	}
}

func (w *worker) readDir(ctx context.Context, req *readDirRequest) error {
	release, err := w.track(req.File)
	if err != nil {
		return err
	}
	defer release()

	out, err := req.Entries.Open()
	if err != nil {
		return err
	}

	entries, err := req.File.ReadDir(-1)
	if err != nil {
		mapped := mapError(err)
		out.CloseWithError(mapped)
		return mapped
	}
	slices.SortFunc(entries, func(a, b os.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})

	for _, e := range entries {
		entry := DirectoryEntry{Name: e.Name(), Type: typeOf(e.Type())}
		if err := out.Write(ctx, entry); err != nil {
			return stopped(out.Done(), err)
		}
	}
	out.Close()
	return nil
}

// stopped reports a producer write failure. A reader that walked away is
// not an error.
func stopped(done <-chan struct{}, err error) error {
	select {
	case <-done:
		return nil
	default:
		return err
	}
}
