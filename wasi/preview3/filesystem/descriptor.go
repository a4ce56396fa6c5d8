package filesystem

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasi-shim/wasi/preview3/errcode"
	"github.com/wippyai/wasi-shim/wasi/preview3/offload"
)

// Descriptor is an open file or directory. Scalar operations run in the
// caller through the embedded Ops; stream operations are offloaded.
//
// Every path operation goes through the preopen's os.Root, so symlinks
// and ".." components cannot leave the preopened directory.
type Descriptor struct {
	Ops

	file   *os.File
	pool   *offload.Pool
	root   *os.Root
	rel    string
	mu     sync.Mutex
	flags  DescriptorFlags
	closed bool
}

func newDescriptor(pool *offload.Pool, root *os.Root, rel string, file *os.File, flags DescriptorFlags) *Descriptor {
	d := &Descriptor{
		file:  file,
		pool:  pool,
		root:  root,
		rel:   rel,
		flags: flags,
	}
	d.Ops = fileOps{d: d}
	return d
}

// Path returns the host path the descriptor was opened at.
func (d *Descriptor) Path() string {
	return filepath.Join(d.root.Name(), d.rel)
}

// Close releases the host handle. Stream operations already submitted
// hold their own handle and run to completion.
func (d *Descriptor) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return mapError(d.file.Close())
}

func (d *Descriptor) handle() (*os.File, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errcode.BadDescriptor
	}
	return d.file, nil
}

func (d *Descriptor) readable() bool {
	return d.flags&FlagRead != 0
}

func (d *Descriptor) writable() bool {
	return d.flags&FlagWrite != 0
}

func (d *Descriptor) mutable() bool {
	return d.flags&FlagMutateDirectory != 0
}

// resolve joins a guest path onto the descriptor's directory and returns
// it relative to the root. Absolute paths and paths that climb out of the
// directory are rejected.
func (d *Descriptor) resolve(path string) (string, error) {
	if _, err := d.handle(); err != nil {
		return "", err
	}
	if filepath.IsAbs(path) || strings.HasPrefix(path, "/") {
		return "", errcode.NotPermitted
	}

	rel := filepath.Join(d.rel, path)
	if !within(d.rel, rel) {
		return "", errcode.NotPermitted
	}
	return rel, nil
}

// sameRoot reports whether two descriptors live under one preopen. Path
// operations spanning two preopens are refused as cross-device.
func (d *Descriptor) sameRoot(other *Descriptor) bool {
	return other != nil && d.root == other.root
}

// OpenAt opens path relative to d. Requested rights may not exceed d's.
func (d *Descriptor) OpenAt(pathFlags PathFlags, path string, openFlags OpenFlags, flags DescriptorFlags) (*Descriptor, error) {
	rel, err := d.resolve(path)
	if err != nil {
		return nil, err
	}
	if (flags&FlagWrite != 0 || openFlags&(OpenCreate|OpenTruncate) != 0) && !d.mutable() {
		return nil, errcode.ReadOnly
	}
	if flags&FlagMutateDirectory != 0 && !d.mutable() {
		return nil, errcode.ReadOnly
	}

	if pathFlags&PathSymlinkFollow == 0 {
		if info, err := d.root.Lstat(rel); err == nil && info.Mode()&os.ModeSymlink != 0 {
			return nil, errcode.Loop
		}
	}

	mode := os.O_RDONLY
	switch {
	case flags&FlagWrite != 0 && flags&FlagRead != 0:
		mode = os.O_RDWR
	case flags&FlagWrite != 0:
		mode = os.O_WRONLY
	}
	if openFlags&OpenCreate != 0 {
		mode |= os.O_CREATE
	}
	if openFlags&OpenExclusive != 0 {
		mode |= os.O_EXCL
	}
	if openFlags&OpenTruncate != 0 {
		mode |= os.O_TRUNC
	}

	f, err := d.root.OpenFile(rel, mode, 0o644)
	if err != nil {
		return nil, mapError(err)
	}
	if openFlags&OpenDirectory != 0 {
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, mapError(err)
		}
		if !info.IsDir() {
			f.Close()
			return nil, errcode.NotDirectory
		}
	}

	Logger().Debug("descriptor opened", zap.String("root", d.root.Name()), zap.String("path", rel))
	return newDescriptor(d.pool, d.root, rel, f, flags), nil
}
