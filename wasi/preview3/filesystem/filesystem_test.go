package filesystem

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/wippyai/wasi-shim/wasi/preview3/errcode"
	"github.com/wippyai/wasi-shim/wasi/preview3/offload"
	"github.com/wippyai/wasi-shim/wasi/preview3/stream"
)

const rw = FlagRead | FlagWrite | FlagMutateDirectory

func newTestHost(t *testing.T, flags DescriptorFlags) (*Host, *offload.Pool, string) {
	t.Helper()
	dir := t.TempDir()
	pool := NewPool(offload.Config{})
	host := NewHost(pool)
	if err := host.AddPreopen("/", dir, flags); err != nil {
		t.Fatalf("AddPreopen failed: %v", err)
	}
	t.Cleanup(func() {
		host.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		pool.Close(ctx)
	})
	return host, pool, dir
}

func root(t *testing.T, h *Host) *Descriptor {
	t.Helper()
	pre := h.Preopens()
	if len(pre) != 1 {
		t.Fatalf("preopens = %d, want 1", len(pre))
	}
	return pre[0].Descriptor
}

func waitIdle(t *testing.T, pool *offload.Pool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for pool.Stats().Live != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("contexts not reclaimed: %+v", pool.Stats())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConcurrentReadsReclaim(t *testing.T) {
	host, pool, dir := newTestHost(t, rw)
	if err := os.WriteFile(filepath.Join(dir, "data"), []byte("aaaaabbbbbccccc"), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := root(t, host).OpenAt(0, "data", 0, FlagRead)
	if err != nil {
		t.Fatalf("OpenAt failed: %v", err)
	}
	defer f.Close()

	ctx := context.Background()
	offsets := []uint64{0, 5, 10}
	want := []string{"aaaaabbbbbccccc", "bbbbbccccc", "ccccc"}
	got := make([]string, len(offsets))

	var wg sync.WaitGroup
	for i, off := range offsets {
		r, done, err := f.ReadViaStream(off)
		if err != nil {
			t.Fatalf("ReadViaStream(%d) failed: %v", off, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := stream.ReadAll(ctx, r)
			if err != nil {
				t.Errorf("ReadAll(%d) failed: %v", off, err)
				return
			}
			if _, err := done.Await(ctx); err != nil {
				t.Errorf("future(%d) failed: %v", off, err)
			}
			got[i] = string(data)
		}()
	}
	wg.Wait()

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("offset %d: got %q, want %q", offsets[i], got[i], want[i])
		}
	}
	waitIdle(t, pool)
}

func TestWriteAndAppend(t *testing.T) {
	host, _, dir := newTestHost(t, rw)
	ctx := context.Background()

	f, err := root(t, host).OpenAt(0, "out.txt", OpenCreate, FlagRead|FlagWrite)
	if err != nil {
		t.Fatalf("OpenAt failed: %v", err)
	}
	defer f.Close()

	if _, err := f.WriteViaStream(stream.FromSlice([]byte("hello "), []byte("there")), 0).Await(ctx); err != nil {
		t.Fatalf("WriteViaStream failed: %v", err)
	}
	if _, err := f.AppendViaStream(stream.FromSlice([]byte("!"))).Await(ctx); err != nil {
		t.Fatalf("AppendViaStream failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello there!" {
		t.Fatalf("file = %q", data)
	}
}

func TestCloseDoesNotCancelInFlightRead(t *testing.T) {
	host, _, dir := newTestHost(t, rw)
	payload := bytes.Repeat([]byte("x"), 3*stream.DefaultChunkSize+7)
	if err := os.WriteFile(filepath.Join(dir, "big"), payload, 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := root(t, host).OpenAt(0, "big", 0, FlagRead)
	if err != nil {
		t.Fatal(err)
	}
	r, done, err := f.ReadViaStream(0)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	ctx := context.Background()
	data, err := stream.ReadAll(ctx, r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(data) != len(payload) {
		t.Fatalf("read %d bytes, want %d", len(data), len(payload))
	}
	if _, err := done.Await(ctx); err != nil {
		t.Fatalf("future failed: %v", err)
	}
}

func TestReadDirectoryOrdered(t *testing.T) {
	host, _, dir := newTestHost(t, rw)
	for _, name := range []string{"c", "a"} {
		os.WriteFile(filepath.Join(dir, name), nil, 0o644)
	}
	os.Mkdir(filepath.Join(dir, "b"), 0o755)

	ctx := context.Background()
	r, done, err := root(t, host).ReadDirectory()
	if err != nil {
		t.Fatalf("ReadDirectory failed: %v", err)
	}
	entries, err := stream.Collect(ctx, r)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if _, err := done.Await(ctx); err != nil {
		t.Fatalf("future failed: %v", err)
	}

	want := []DirectoryEntry{
		{Name: "a", Type: DescriptorTypeRegularFile},
		{Name: "b", Type: DescriptorTypeDirectory},
		{Name: "c", Type: DescriptorTypeRegularFile},
	}
	if len(entries) != len(want) {
		t.Fatalf("entries = %+v", entries)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, entries[i], want[i])
		}
	}
}

func TestOpenAtSandbox(t *testing.T) {
	host, _, _ := newTestHost(t, rw)
	d := root(t, host)

	for _, p := range []string{"../escape", "/etc/passwd", "a/../../b"} {
		if _, err := d.OpenAt(0, p, 0, FlagRead); !errors.Is(err, errcode.NotPermitted) {
			t.Errorf("OpenAt(%q) = %v, want not-permitted", p, err)
		}
	}
	if _, err := d.OpenAt(0, "missing", 0, FlagRead); !errors.Is(err, errcode.NoEntry) {
		t.Errorf("OpenAt(missing) = %v, want no-entry", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	host, _, dir := newTestHost(t, rw)
	os.WriteFile(filepath.Join(dir, "f"), []byte("abc"), 0o644)

	f, err := root(t, host).OpenAt(0, "f", 0, FlagRead)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := f.Stat(); !errors.Is(err, errcode.BadDescriptor) {
		t.Fatalf("Stat after Close = %v, want bad-descriptor", err)
	}
}

func TestScalarOps(t *testing.T) {
	host, _, _ := newTestHost(t, rw)
	d := root(t, host)

	if err := d.CreateDirectoryAt("sub"); err != nil {
		t.Fatalf("CreateDirectoryAt failed: %v", err)
	}
	f, err := d.OpenAt(0, "sub/file", OpenCreate, FlagRead|FlagWrite)
	if err != nil {
		t.Fatalf("OpenAt failed: %v", err)
	}
	defer f.Close()

	if n, err := f.Write([]byte("content"), 0); err != nil || n != 7 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	data, eof, err := f.Read(16, 3)
	if err != nil || !eof || string(data) != "tent" {
		t.Fatalf("Read = %q, %v, %v", data, eof, err)
	}

	st, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if st.Type != DescriptorTypeRegularFile || st.Size != 7 {
		t.Fatalf("Stat = %+v", st)
	}

	at, err := d.StatAt(PathSymlinkFollow, "sub")
	if err != nil || at.Type != DescriptorTypeDirectory {
		t.Fatalf("StatAt = %+v, %v", at, err)
	}
	if _, err := d.StatAt(0, "nope"); !errors.Is(err, errcode.NoEntry) {
		t.Fatalf("StatAt(nope) = %v", err)
	}

	h1, _ := f.MetadataHash()
	h2, _ := d.MetadataHashAt(PathSymlinkFollow, "sub/file")
	if h1 != h2 {
		t.Fatalf("metadata hashes differ: %+v vs %+v", h1, h2)
	}

	if err := f.SetSize(2); err != nil {
		t.Fatalf("SetSize failed: %v", err)
	}
	if st, _ := f.Stat(); st.Size != 2 {
		t.Fatalf("size after SetSize = %d", st.Size)
	}

	if err := d.UnlinkFileAt("sub"); !errors.Is(err, errcode.IsDirectory) {
		t.Fatalf("UnlinkFileAt(dir) = %v", err)
	}
	if err := d.RemoveDirectoryAt("sub"); !errors.Is(err, errcode.NotEmpty) {
		t.Fatalf("RemoveDirectoryAt(non-empty) = %v", err)
	}
	if err := d.RenameAt("sub/file", d, "moved"); err != nil {
		t.Fatalf("RenameAt failed: %v", err)
	}
	if err := d.UnlinkFileAt("moved"); err != nil {
		t.Fatalf("UnlinkFileAt failed: %v", err)
	}
	if err := d.RemoveDirectoryAt("sub"); err != nil {
		t.Fatalf("RemoveDirectoryAt failed: %v", err)
	}
}

func TestIsSameObject(t *testing.T) {
	host, _, dir := newTestHost(t, rw)
	os.WriteFile(filepath.Join(dir, "f"), nil, 0o644)
	d := root(t, host)

	a, _ := d.OpenAt(0, "f", 0, FlagRead)
	b, _ := d.OpenAt(0, "f", 0, FlagRead)
	defer a.Close()
	defer b.Close()

	if !a.IsSameObject(b) {
		t.Fatal("two opens of one file should be the same object")
	}
	if a.IsSameObject(d) {
		t.Fatal("file and directory should differ")
	}
}

func TestReadOnlyPreopen(t *testing.T) {
	host, _, _ := newTestHost(t, FlagRead)
	d := root(t, host)

	if err := d.CreateDirectoryAt("x"); !errors.Is(err, errcode.ReadOnly) {
		t.Fatalf("CreateDirectoryAt = %v, want read-only", err)
	}
	if _, err := d.OpenAt(0, "x", OpenCreate, FlagWrite); !errors.Is(err, errcode.ReadOnly) {
		t.Fatalf("OpenAt(create) = %v, want read-only", err)
	}
}

func TestSymlinkEscapeRefused(t *testing.T) {
	host, _, _ := newTestHost(t, rw)
	d := root(t, host)

	if err := d.SymlinkAt("../../outside", "link"); !errors.Is(err, errcode.NotPermitted) {
		t.Fatalf("SymlinkAt = %v, want not-permitted", err)
	}
}

func TestWriteWithoutRights(t *testing.T) {
	host, _, dir := newTestHost(t, rw)
	os.WriteFile(filepath.Join(dir, "f"), nil, 0o644)

	f, _ := root(t, host).OpenAt(0, "f", 0, FlagRead)
	defer f.Close()

	_, err := f.WriteViaStream(stream.FromSlice([]byte("x")), 0).Await(context.Background())
	if !errors.Is(err, errcode.BadDescriptor) {
		t.Fatalf("WriteViaStream = %v, want bad-descriptor", err)
	}
}

func TestSymlinkChainStaysInPreopen(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "root")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(parent, "y"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(parent, "y", "secret"), []byte("outside"), 0o644); err != nil {
		t.Fatal(err)
	}

	pool := NewPool(offload.Config{})
	host := NewHost(pool)
	if err := host.AddPreopen("/", dir, rw); err != nil {
		t.Fatalf("AddPreopen failed: %v", err)
	}
	t.Cleanup(func() {
		host.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		pool.Close(ctx)
	})
	d := root(t, host)

	if err := d.CreateDirectoryAt("d"); err != nil {
		t.Fatalf("CreateDirectoryAt failed: %v", err)
	}
	// each link looks harmless on its own; together they point above the root
	if err := d.SymlinkAt("..", "d/l"); err != nil {
		t.Fatalf("SymlinkAt(d/l) failed: %v", err)
	}
	if err := d.SymlinkAt("..", "d/l/y"); err != nil {
		t.Fatalf("SymlinkAt(d/l/y) failed: %v", err)
	}

	f, err := d.OpenAt(PathSymlinkFollow, "y/secret", 0, FlagRead)
	if err == nil {
		defer f.Close()
		data, _, _ := f.Read(64, 0)
		t.Fatalf("OpenAt escaped the preopen and read %q", data)
	}
	if !errors.Is(err, errcode.NotPermitted) {
		t.Fatalf("OpenAt(y/secret) = %v, want not-permitted", err)
	}
	if _, err := d.StatAt(PathSymlinkFollow, "y/secret"); !errors.Is(err, errcode.NotPermitted) {
		t.Fatalf("StatAt(y/secret) = %v, want not-permitted", err)
	}
	if err := d.LinkAt(PathSymlinkFollow, "y", d, "hard"); !errors.Is(err, errcode.NotPermitted) {
		t.Fatalf("LinkAt(y) = %v, want not-permitted", err)
	}
}

func TestReadLengthBeyondFile(t *testing.T) {
	host, _, dir := newTestHost(t, rw)
	if err := os.WriteFile(filepath.Join(dir, "f"), []byte("abcdef"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := root(t, host).OpenAt(0, "f", 0, FlagRead)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	data, eof, err := f.Read(1<<62, 0)
	if err != nil || !eof || string(data) != "abcdef" {
		t.Fatalf("Read(1<<62, 0) = %q, %v, %v", data, eof, err)
	}
	data, eof, err = f.Read(1<<62, 100)
	if err != nil || !eof || len(data) != 0 {
		t.Fatalf("Read past end = %q, %v, %v", data, eof, err)
	}
	data, eof, err = f.Read(2, 1)
	if err != nil || eof || string(data) != "bc" {
		t.Fatalf("Read(2, 1) = %q, %v, %v", data, eof, err)
	}
}
