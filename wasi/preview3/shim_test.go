package preview3

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	shimerrors "github.com/wippyai/wasi-shim/errors"
	"github.com/wippyai/wasi-shim/wasi/preview3/errcode"
	"github.com/wippyai/wasi-shim/wasi/preview3/filesystem"
	"github.com/wippyai/wasi-shim/wasi/preview3/sockets"
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

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestBuildFileRoundTrip(t *testing.T) {
	ctx := testContext(t)
	dir := t.TempDir()

	s, err := New().WithPreopens(map[string]string{"/data": dir}).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer s.Close(ctx)

	pre := s.Filesystem().Preopens()
	if len(pre) != 1 || pre[0].Path != "/data" {
		t.Fatalf("preopens = %+v", pre)
	}
	root := pre[0].Descriptor

	f, err := root.OpenAt(0, "notes.txt", filesystem.OpenCreate, filesystem.FlagRead|filesystem.FlagWrite)
	if err != nil {
		t.Fatalf("OpenAt failed: %v", err)
	}
	defer f.Close()

	if _, err := f.WriteViaStream(stream.FromSlice([]byte("async "), []byte("io")), 0).Await(ctx); err != nil {
		t.Fatalf("WriteViaStream failed: %v", err)
	}
	data, done, err := f.ReadViaStream(0)
	if err != nil {
		t.Fatalf("ReadViaStream failed: %v", err)
	}
	got, err := stream.ReadAll(ctx, data)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(got) != "async io" {
		t.Fatalf("read %q", got)
	}
	if _, err := done.Await(ctx); err != nil {
		t.Fatalf("read future failed: %v", err)
	}

	onDisk, err := os.ReadFile(filepath.Join(dir, "notes.txt"))
	if err != nil || string(onDisk) != "async io" {
		t.Fatalf("file on disk = %q, %v", onDisk, err)
	}
}

func TestBuildStdioAndEnvironment(t *testing.T) {
	ctx := testContext(t)
	out := &syncBuffer{}

	s, err := New().
		WithStdio(strings.NewReader("input"), out, nil).
		WithEnv(map[string]string{"MODE": "test"}).
		WithArgs([]string{"prog"}).
		WithCwd("/srv").
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer s.Close(ctx)

	if _, err := s.CLI().SetStdout(stream.FromSlice([]byte("printed"))).Await(ctx); err != nil {
		t.Fatalf("SetStdout failed: %v", err)
	}
	if out.String() != "printed" {
		t.Errorf("stdout = %q", out.String())
	}

	in, err := s.CLI().Stdin()
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := stream.ReadAll(ctx, in); string(got) != "input" {
		t.Errorf("stdin = %q", got)
	}

	env := s.Environment()
	if env.InitialCwd() != "/srv" || env.Arguments()[0] != "prog" || env.Variables()[0][1] != "test" {
		t.Errorf("environment = %v %v %q", env.Variables(), env.Arguments(), env.InitialCwd())
	}
}

func TestBuildSocketsAndClocks(t *testing.T) {
	ctx := testContext(t)
	s, err := New().Build()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close(ctx)

	if _, err := s.Sockets().CreateTCPSocket(ctx, sockets.IPAddressFamily(7)); !errors.Is(err, errcode.InvalidArgument) {
		t.Fatalf("CreateTCPSocket = %v, want invalid-argument", err)
	}

	start := s.Clocks().Now()
	if _, err := s.Clocks().WaitFor(ctx, 2*time.Millisecond).Await(ctx); err != nil {
		t.Fatal(err)
	}
	if s.Clocks().Now() <= start {
		t.Error("monotonic clock did not advance")
	}
	if s.WallClock().Now().Seconds == 0 {
		t.Error("wall clock returned zero")
	}
	if n := len(s.Random().GetRandomBytes(16)); n != 16 {
		t.Errorf("GetRandomBytes length = %d, want 16", n)
	}
}

func TestBuildRejectsBadPreopens(t *testing.T) {
	dir := t.TempDir()

	_, err := New().WithPreopen("", dir, FullAccess).Build()
	if !shimerrors.IsKind(err, shimerrors.KindInvalidInput) {
		t.Errorf("empty guest path = %v, want invalid input", err)
	}

	_, err = New().
		WithPreopen("/a", dir, FullAccess).
		WithPreopen("/a", dir, filesystem.FlagRead).
		Build()
	if !shimerrors.IsKind(err, shimerrors.KindInvalidInput) {
		t.Errorf("duplicate guest path = %v, want invalid input", err)
	}

	file := filepath.Join(dir, "plain")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = New().WithPreopens(map[string]string{"/f": file}).Build()
	if !errors.Is(err, errcode.NotDirectory) {
		t.Errorf("file preopen = %v, want not-directory", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	ctx := testContext(t)
	s, err := New().WithPreopens(map[string]string{"/": t.TempDir()}).Build()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if len(s.Filesystem().Preopens()) != 0 {
		t.Error("preopens survived Close")
	}
}
