package filesystem

import (
	"context"
	"os"

	"github.com/wippyai/wasi-shim/wasi/preview3/errcode"
	"github.com/wippyai/wasi-shim/wasi/preview3/future"
	"github.com/wippyai/wasi-shim/wasi/preview3/offload"
	"github.com/wippyai/wasi-shim/wasi/preview3/stream"
)

const (
	opRead    = "filesystem.read-via-stream"
	opWrite   = "filesystem.write-via-stream"
	opAppend  = "filesystem.append-via-stream"
	opReadDir = "filesystem.read-directory"
)

// ownedFile is a host handle handed to one request. It is closed by the
// worker, or by the pool if the request never runs.
type ownedFile struct {
	*os.File
}

func (f ownedFile) Abandon(error) {
	f.Close()
}

func (f ownedFile) Release() error {
	return f.Close()
}

type readRequest struct {
	File   ownedFile
	Data   *stream.WriterTransfer[[]byte]
	Offset int64
}

type writeRequest struct {
	File   ownedFile
	Data   *stream.ReaderTransfer[[]byte]
	Offset int64
	Append bool
}

type readDirRequest struct {
	File    ownedFile
	Entries *stream.WriterTransfer[DirectoryEntry]
}

// ReadViaStream streams the file's contents from offset. The future
// settles once the last chunk has been queued or a read fails.
func (d *Descriptor) ReadViaStream(offset uint64) (*stream.Reader[[]byte], *future.Reader[struct{}], error) {
	f, err := d.handle()
	if err != nil {
		return nil, nil, err
	}
	if !d.readable() {
		return nil, nil, errcode.BadDescriptor
	}
	dup, err := duplicate(f, os.O_RDONLY)
	if err != nil {
		return nil, nil, mapError(err)
	}

	w, r := stream.New[[]byte](stream.DefaultCapacity)
	wt, err := w.IntoTransferable()
	if err != nil {
		dup.Close()
		return nil, nil, err
	}
	owned := ownedFile{dup}
	done := d.submit(opRead, &readRequest{File: owned, Data: wt, Offset: int64(offset)}, owned, wt)
	return r, done, nil
}

// WriteViaStream writes data into the file starting at offset.
func (d *Descriptor) WriteViaStream(data *stream.Reader[[]byte], offset uint64) *future.Reader[struct{}] {
	return d.write(data, int64(offset), false)
}

// AppendViaStream writes data at the end of the file.
func (d *Descriptor) AppendViaStream(data *stream.Reader[[]byte]) *future.Reader[struct{}] {
	return d.write(data, 0, true)
}

func (d *Descriptor) write(data *stream.Reader[[]byte], offset int64, appending bool) *future.Reader[struct{}] {
	f, err := d.handle()
	if err != nil {
		return future.Rejected[struct{}](err)
	}
	if !d.writable() {
		return future.Rejected[struct{}](errcode.BadDescriptor)
	}

	var h *os.File
	op := opWrite
	if appending {
		op = opAppend
		h, err = d.root.OpenFile(d.rel, os.O_WRONLY|os.O_APPEND, 0)
	} else {
		h, err = duplicate(f, os.O_WRONLY)
	}
	if err != nil {
		return future.Rejected[struct{}](mapError(err))
	}

	rt, err := data.IntoTransferable()
	if err != nil {
		h.Close()
		return future.Rejected[struct{}](err)
	}
	owned := ownedFile{h}
	return d.submit(op, &writeRequest{File: owned, Data: rt, Offset: offset, Append: appending}, owned, rt)
}

// ReadDirectory streams the directory's entries in name order.
func (d *Descriptor) ReadDirectory() (*stream.Reader[DirectoryEntry], *future.Reader[struct{}], error) {
	if _, err := d.handle(); err != nil {
		return nil, nil, err
	}
	// a fresh open keeps the listing independent of any shared offset
	h, err := d.root.Open(d.rel)
	if err != nil {
		return nil, nil, mapError(err)
	}

	w, r := stream.New[DirectoryEntry](stream.DefaultCapacity)
	wt, err := w.IntoTransferable()
	if err != nil {
		h.Close()
		return nil, nil, err
	}
	owned := ownedFile{h}
	done := d.submit(opReadDir, &readDirRequest{File: owned, Entries: wt}, owned, wt)
	return r, done, nil
}

// submit offloads op and resolves with the mapped outcome.
func (d *Descriptor) submit(op string, payload any, transfer ...offload.Transferable) *future.Reader[struct{}] {
	res := d.pool.Submit(op, payload, offload.WithTransfer(transfer...))
	w, out := future.New[struct{}]()
	go func() {
		if _, err := res.Await(context.Background()); err != nil {
			w.Abort(mapError(err))
			return
		}
		w.Write(struct{}{})
	}()
	return out
}
