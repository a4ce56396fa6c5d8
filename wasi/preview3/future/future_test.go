package future

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"code.hybscloud.com/iox"

	shimerrors "github.com/wippyai/wasi-shim/errors"
)

func TestFuture_ReadOnce(t *testing.T) {
	ctx := context.Background()
	w, r := New[int]()

	if err := w.Write(42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v, ok, err := r.Read(ctx)
	if err != nil || !ok || v != 42 {
		t.Fatalf("first read = %v, %v, %v", v, ok, err)
	}
	for i := 0; i < 3; i++ {
		v, ok, err = r.Read(ctx)
		if err != nil || ok || v != 0 {
			t.Fatalf("read %d after consume = %v, %v, %v", i, v, ok, err)
		}
	}
}

func TestFuture_AlreadyWritten(t *testing.T) {
	w, _ := New[string]()
	w.Write("a")

	if err := w.Write("b"); !shimerrors.IsKind(err, shimerrors.KindAlreadyWritten) {
		t.Fatalf("second write = %v", err)
	}
	if err := w.Abort(errors.New("x")); !shimerrors.IsKind(err, shimerrors.KindAlreadyWritten) {
		t.Fatalf("abort after write = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close after write = %v, want nil", err)
	}
	if err := w.CloseWithError(errors.New("x")); err != nil {
		t.Fatalf("closeWithError after write = %v, want nil", err)
	}
}

func TestFuture_AbortConsumes(t *testing.T) {
	ctx := context.Background()
	w, r := New[int]()
	boom := errors.New("boom")
	w.Abort(boom)

	if _, _, err := r.Read(ctx); !errors.Is(err, boom) {
		t.Fatalf("read = %v, want boom", err)
	}
	if _, ok, err := r.Read(ctx); ok || err != nil {
		t.Fatalf("read after rejection = %v, %v", ok, err)
	}
}

func TestFuture_ReadSuspends(t *testing.T) {
	ctx := context.Background()
	w, r := New[int]()

	if _, _, err := r.TryRead(); !iox.IsWouldBlock(err) {
		t.Fatalf("TryRead pending = %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		w.Write(7)
	}()
	v, err := r.Await(ctx)
	if err != nil || v != 7 {
		t.Fatalf("Await = %v, %v", v, err)
	}
	if _, err := r.Await(ctx); !shimerrors.IsKind(err, shimerrors.KindConsumed) {
		t.Fatalf("second Await = %v", err)
	}
}

func TestFuture_CloseWithoutValue(t *testing.T) {
	ctx := context.Background()
	w, r := New[int]()
	w.Close()

	v, err := r.Await(ctx)
	if err != nil || v != 0 {
		t.Fatalf("Await closed = %v, %v", v, err)
	}
}

func TestFuture_ReadContext(t *testing.T) {
	_, r := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := r.Read(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("read = %v", err)
	}
}

func TestFuture_CancelUnsupported(t *testing.T) {
	_, r := New[int]()
	if err := r.Cancel(); !shimerrors.IsKind(err, shimerrors.KindUnsupported) {
		t.Fatalf("Cancel = %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close = %v", err)
	}
}

func TestFuture_Constructors(t *testing.T) {
	ctx := context.Background()
	if v, err := Resolved("ok").Await(ctx); err != nil || v != "ok" {
		t.Fatalf("Resolved = %v, %v", v, err)
	}
	boom := errors.New("boom")
	if _, err := Rejected[int](boom).Await(ctx); !errors.Is(err, boom) {
		t.Fatalf("Rejected = %v", err)
	}
}

func TestThen(t *testing.T) {
	ctx := context.Background()
	out := Then(ctx, Resolved(21), func(v int) (string, error) {
		return strconv.Itoa(v * 2), nil
	})
	if v, err := out.Await(ctx); err != nil || v != "42" {
		t.Fatalf("Then = %v, %v", v, err)
	}

	boom := errors.New("boom")
	out = Then(ctx, Rejected[int](boom), func(int) (string, error) {
		t.Error("fn called on rejection")
		return "", nil
	})
	if _, err := out.Await(ctx); !errors.Is(err, boom) {
		t.Fatalf("Then rejection = %v", err)
	}
}

func TestFuture_Transfer(t *testing.T) {
	ctx := context.Background()
	w, r := New[int]()

	tw, err := w.IntoTransferable()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Write(1); !shimerrors.IsKind(err, shimerrors.KindTransferred) {
		t.Fatalf("write on moved writer = %v", err)
	}

	moved, err := tw.Open()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := tw.Open(); !shimerrors.IsKind(err, shimerrors.KindTransferred) {
		t.Fatalf("second open = %v", err)
	}
	moved.Write(5)

	tr, _ := r.IntoTransferable()
	if _, _, err := r.Read(ctx); !shimerrors.IsKind(err, shimerrors.KindTransferred) {
		t.Fatalf("read on moved reader = %v", err)
	}
	mr, _ := tr.Open()
	if v, err := mr.Await(ctx); err != nil || v != 5 {
		t.Fatalf("moved Await = %v, %v", v, err)
	}
}

func TestFuture_WriterAbandon(t *testing.T) {
	ctx := context.Background()
	w, r := New[int]()
	tw, _ := w.IntoTransferable()

	lost := errors.New("lost")
	tw.Abandon(lost)
	if _, err := r.Await(ctx); !errors.Is(err, lost) {
		t.Fatalf("Await = %v", err)
	}
}
