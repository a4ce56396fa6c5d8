package stream

import (
	"context"
	"io"
)

// FromSlice returns a reader that yields items and then ends.
func FromSlice[T any](items ...T) *Reader[T] {
	w, r := New[T](len(items))
	for _, it := range items {
		_ = w.TryWrite(it)
	}
	_ = w.Close()
	return r
}

// ReadAll drains a byte stream.
func ReadAll(ctx context.Context, r *Reader[[]byte]) ([]byte, error) {
	var out []byte
	for {
		chunk, err := r.Read(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, chunk...)
	}
}

// Collect drains a stream of values.
func Collect[T any](ctx context.Context, r *Reader[T]) ([]T, error) {
	var out []T
	for {
		v, err := r.Read(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}

// Pipe writes every chunk of r to dst until the stream ends.
func Pipe(ctx context.Context, dst io.Writer, r *Reader[[]byte]) (int64, error) {
	var n int64
	for {
		chunk, err := r.Read(ctx)
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		m, err := dst.Write(chunk)
		n += int64(m)
		if err != nil {
			r.Cancel(err)
			return n, err
		}
	}
}

// Copy reads src in chunks of size and writes them to w until src is
// exhausted. It does not close w. A non-positive size selects
// DefaultChunkSize.
func Copy(ctx context.Context, w *Writer[[]byte], src io.Reader, size int) (int64, error) {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var n int64
	for {
		buf := make([]byte, size)
		m, err := src.Read(buf)
		if m > 0 {
			if werr := w.Write(ctx, buf[:m]); werr != nil {
				return n, werr
			}
			n += int64(m)
		}
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
	}
}
