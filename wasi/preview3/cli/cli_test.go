package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wippyai/wasi-shim/errors"
	"github.com/wippyai/wasi-shim/wasi/preview3/offload"
	"github.com/wippyai/wasi-shim/wasi/preview3/stream"
)

type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestHost(t *testing.T, stdio Stdio) *Host {
	t.Helper()
	h := NewHost(offload.Config{}, stdio)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.Close(ctx)
	})
	return h
}

func TestSetStdout(t *testing.T) {
	out := &syncBuffer{}
	errw := &syncBuffer{}
	h := newTestHost(t, Stdio{Stdout: out, Stderr: errw})
	ctx := context.Background()

	if _, err := h.SetStdout(stream.FromSlice([]byte("hello "), []byte("world"))).Await(ctx); err != nil {
		t.Fatalf("SetStdout failed: %v", err)
	}
	if got := out.String(); got != "hello world" {
		t.Errorf("stdout = %q", got)
	}

	if _, err := h.SetStderr(stream.FromSlice([]byte("oops"))).Await(ctx); err != nil {
		t.Fatalf("SetStderr failed: %v", err)
	}
	if got := errw.String(); got != "oops" {
		t.Errorf("stderr = %q", got)
	}
}

func TestSetStdoutReplacesPrevious(t *testing.T) {
	out := &syncBuffer{}
	h := newTestHost(t, Stdio{Stdout: out})
	ctx := context.Background()

	w, r := stream.New[[]byte](stream.DefaultCapacity)
	first := h.SetStdout(r)
	if err := w.Write(ctx, []byte("a")); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for out.String() != "a" {
		if time.Now().After(deadline) {
			t.Fatalf("first stream never reached stdout: %q", out.String())
		}
		time.Sleep(time.Millisecond)
	}

	second := h.SetStdout(stream.FromSlice([]byte("b")))
	if _, err := first.Await(ctx); err != nil {
		t.Fatalf("replaced sink should settle cleanly, got %v", err)
	}
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("replaced stream was not canceled")
	}
	if err := w.Write(ctx, []byte("lost")); err == nil {
		t.Fatal("write to replaced stream should fail")
	}

	if _, err := second.Await(ctx); err != nil {
		t.Fatalf("second sink failed: %v", err)
	}
	if got := out.String(); got != "ab" {
		t.Errorf("stdout = %q, want ab", got)
	}
}

func TestStdin(t *testing.T) {
	h := newTestHost(t, Stdio{Stdin: strings.NewReader("line one\nline two\n")})
	ctx := context.Background()

	r, err := h.Stdin()
	if err != nil {
		t.Fatalf("Stdin failed: %v", err)
	}
	got, err := stream.ReadAll(ctx, r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(got) != "line one\nline two\n" {
		t.Errorf("stdin = %q", got)
	}

	if _, err := h.Stdin(); !errors.IsKind(err, errors.KindBusy) {
		t.Errorf("second Stdin = %v, want busy", err)
	}
}

func TestEmptyStdin(t *testing.T) {
	h := newTestHost(t, Stdio{})
	r, err := h.Stdin()
	if err != nil {
		t.Fatal(err)
	}
	got, err := stream.ReadAll(context.Background(), r)
	if err != nil || len(got) != 0 {
		t.Fatalf("ReadAll = %q, %v; want empty", got, err)
	}
}

func TestHostClose(t *testing.T) {
	h := NewHost(offload.Config{}, Stdio{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	w, r := stream.New[[]byte](stream.DefaultCapacity)
	pending := h.SetStdout(r)
	w.Write(ctx, []byte("x"))

	if err := h.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := h.Close(ctx); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	// the stop and the pool shutdown race; either settles the sink
	if _, err := pending.Await(ctx); err != nil && !errors.IsKind(err, errors.KindClosed) {
		t.Fatalf("sink stopped by Close = %v", err)
	}

	_, err := h.SetStdout(stream.FromSlice([]byte("late"))).Await(ctx)
	if !errors.IsKind(err, errors.KindClosed) {
		t.Fatalf("SetStdout after Close = %v, want closed", err)
	}
	if _, err := h.Stdin(); !errors.IsKind(err, errors.KindClosed) {
		t.Fatalf("Stdin after Close = %v, want closed", err)
	}
}

func TestTargetString(t *testing.T) {
	if Stdout.String() != "stdout" || Stderr.String() != "stderr" {
		t.Errorf("targets = %s, %s", Stdout, Stderr)
	}
}
