package filesystem

import (
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wippyai/wasi-shim/wasi/preview3/errcode"
)

// Ops lists the descriptor operations that run directly against the host
// file without a stream.
type Ops interface {
	Advise(offset, length uint64, advice Advice) error
	SyncData() error
	GetFlags() (DescriptorFlags, error)
	GetType() (DescriptorType, error)
	SetSize(size uint64) error
	SetTimes(atime, mtime NewTimestamp) error
	Read(length, offset uint64) ([]byte, bool, error)
	Write(buf []byte, offset uint64) (uint64, error)
	Sync() error
	Stat() (DescriptorStat, error)
	IsSameObject(other *Descriptor) bool
	MetadataHash() (MetadataHashValue, error)

	CreateDirectoryAt(path string) error
	StatAt(pathFlags PathFlags, path string) (DescriptorStat, error)
	SetTimesAt(pathFlags PathFlags, path string, atime, mtime NewTimestamp) error
	LinkAt(oldPathFlags PathFlags, oldPath string, newDesc *Descriptor, newPath string) error
	ReadlinkAt(path string) (string, error)
	RemoveDirectoryAt(path string) error
	RenameAt(oldPath string, newDesc *Descriptor, newPath string) error
	SymlinkAt(oldPath, newPath string) error
	UnlinkFileAt(path string) error
	MetadataHashAt(pathFlags PathFlags, path string) (MetadataHashValue, error)
}

// fileOps forwards Ops to the descriptor's host file.
type fileOps struct {
	d *Descriptor
}

var _ Ops = fileOps{}

func (o fileOps) Advise(offset, length uint64, advice Advice) error {
	f, err := o.d.handle()
	if err != nil {
		return err
	}
	return mapError(advise(f, int64(offset), int64(length), advice))
}

func (o fileOps) SyncData() error {
	f, err := o.d.handle()
	if err != nil {
		return err
	}
	return mapError(syncData(f))
}

func (o fileOps) Sync() error {
	f, err := o.d.handle()
	if err != nil {
		return err
	}
	return mapError(f.Sync())
}

func (o fileOps) GetFlags() (DescriptorFlags, error) {
	if _, err := o.d.handle(); err != nil {
		return 0, err
	}
	return o.d.flags, nil
}

func (o fileOps) GetType() (DescriptorType, error) {
	st, err := o.Stat()
	if err != nil {
		return DescriptorTypeUnknown, err
	}
	return st.Type, nil
}

func (o fileOps) SetSize(size uint64) error {
	f, err := o.d.handle()
	if err != nil {
		return err
	}
	if !o.d.writable() {
		return errcode.BadDescriptor
	}
	return mapError(f.Truncate(int64(size)))
}

func (o fileOps) SetTimes(atime, mtime NewTimestamp) error {
	if _, err := o.d.handle(); err != nil {
		return err
	}
	now := time.Now()
	return mapError(o.d.root.Chtimes(o.d.rel, atime.resolve(now), mtime.resolve(now)))
}

// maxReadSize bounds the buffer of one scalar Read. Larger requests
// return a short read.
const maxReadSize = 16 << 20

// Read returns up to length bytes at offset and whether the end of file
// was reached.
func (o fileOps) Read(length, offset uint64) ([]byte, bool, error) {
	f, err := o.d.handle()
	if err != nil {
		return nil, false, err
	}
	if !o.d.readable() {
		return nil, false, errcode.BadDescriptor
	}
	if offset > math.MaxInt64 {
		return nil, false, errcode.Invalid
	}

	limit, atEnd := readLimit(f, length, offset)
	buf := make([]byte, limit)
	n, err := f.ReadAt(buf, int64(offset))
	if errors.Is(err, io.EOF) {
		return buf[:n], true, nil
	}
	if err != nil {
		return nil, false, mapError(err)
	}
	return buf[:n], atEnd, nil
}

// readLimit caps a read at maxReadSize and, for regular files, at the
// bytes left after offset. atEnd reports that the cap is the end of file.
func readLimit(f *os.File, length, offset uint64) (limit uint64, atEnd bool) {
	limit = min(length, maxReadSize)
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		return limit, false
	}
	size := uint64(info.Size())
	if offset >= size {
		return 0, true
	}
	if left := size - offset; left <= limit {
		return left, true
	}
	return limit, false
}

func (o fileOps) Write(buf []byte, offset uint64) (uint64, error) {
	f, err := o.d.handle()
	if err != nil {
		return 0, err
	}
	if !o.d.writable() {
		return 0, errcode.BadDescriptor
	}
	n, err := f.WriteAt(buf, int64(offset))
	return uint64(n), mapError(err)
}

func (o fileOps) Stat() (DescriptorStat, error) {
	f, err := o.d.handle()
	if err != nil {
		return DescriptorStat{}, err
	}
	info, err := f.Stat()
	if err != nil {
		return DescriptorStat{}, mapError(err)
	}
	return statOf(info), nil
}

func (o fileOps) IsSameObject(other *Descriptor) bool {
	if other == nil {
		return false
	}
	a, err := o.info()
	if err != nil {
		return false
	}
	b, err := fileOps{d: other}.info()
	if err != nil {
		return false
	}
	return os.SameFile(a, b)
}

func (o fileOps) info() (os.FileInfo, error) {
	f, err := o.d.handle()
	if err != nil {
		return nil, err
	}
	return f.Stat()
}

func (o fileOps) MetadataHash() (MetadataHashValue, error) {
	info, err := o.info()
	if err != nil {
		return MetadataHashValue{}, mapError(err)
	}
	return hashOf(info), nil
}

func (o fileOps) CreateDirectoryAt(path string) error {
	rel, err := o.mutating(path)
	if err != nil {
		return err
	}
	return mapError(o.d.root.Mkdir(rel, 0o755))
}

func (o fileOps) StatAt(pathFlags PathFlags, path string) (DescriptorStat, error) {
	info, err := o.lookup(pathFlags, path)
	if err != nil {
		return DescriptorStat{}, err
	}
	return statOf(info), nil
}

func (o fileOps) SetTimesAt(pathFlags PathFlags, path string, atime, mtime NewTimestamp) error {
	rel, err := o.mutating(path)
	if err != nil {
		return err
	}
	if pathFlags&PathSymlinkFollow == 0 {
		if info, err := o.d.root.Lstat(rel); err == nil && info.Mode()&os.ModeSymlink != 0 {
			return errcode.Loop
		}
	}
	now := time.Now()
	return mapError(o.d.root.Chtimes(rel, atime.resolve(now), mtime.resolve(now)))
}

func (o fileOps) LinkAt(oldPathFlags PathFlags, oldPath string, newDesc *Descriptor, newPath string) error {
	if newDesc == nil {
		return errcode.BadDescriptor
	}
	oldRel, err := o.d.resolve(oldPath)
	if err != nil {
		return err
	}
	newRel, err := fileOps{d: newDesc}.mutating(newPath)
	if err != nil {
		return err
	}
	if !o.d.sameRoot(newDesc) {
		return errcode.CrossDevice
	}
	if oldPathFlags&PathSymlinkFollow != 0 {
		if oldRel, err = o.follow(oldRel); err != nil {
			return err
		}
	}
	return mapError(o.d.root.Link(oldRel, newRel))
}

// maxSymlinks bounds the chain follow walks before reporting a loop.
const maxSymlinks = 40

// follow resolves rel through trailing symlinks. Each target must stay
// inside the root.
func (o fileOps) follow(rel string) (string, error) {
	for range maxSymlinks {
		info, err := o.d.root.Lstat(rel)
		if err != nil {
			return "", mapError(err)
		}
		if info.Mode()&os.ModeSymlink == 0 {
			return rel, nil
		}
		target, err := o.d.root.Readlink(rel)
		if err != nil {
			return "", mapError(err)
		}
		if filepath.IsAbs(target) {
			return "", errcode.NotPermitted
		}
		rel = filepath.Join(filepath.Dir(rel), target)
		if !within(".", rel) {
			return "", errcode.NotPermitted
		}
	}
	return "", errcode.Loop
}

func (o fileOps) ReadlinkAt(path string) (string, error) {
	rel, err := o.d.resolve(path)
	if err != nil {
		return "", err
	}
	target, err := o.d.root.Readlink(rel)
	if err != nil {
		return "", mapError(err)
	}
	return target, nil
}

func (o fileOps) RemoveDirectoryAt(path string) error {
	rel, err := o.mutating(path)
	if err != nil {
		return err
	}
	info, err := o.d.root.Lstat(rel)
	if err != nil {
		return mapError(err)
	}
	if !info.IsDir() {
		return errcode.NotDirectory
	}
	return mapError(o.d.root.Remove(rel))
}

func (o fileOps) RenameAt(oldPath string, newDesc *Descriptor, newPath string) error {
	if newDesc == nil {
		return errcode.BadDescriptor
	}
	oldRel, err := o.mutating(oldPath)
	if err != nil {
		return err
	}
	newRel, err := fileOps{d: newDesc}.mutating(newPath)
	if err != nil {
		return err
	}
	if !o.d.sameRoot(newDesc) {
		return errcode.CrossDevice
	}
	return mapError(o.d.root.Rename(oldRel, newRel))
}

// SymlinkAt creates newPath pointing at oldPath. Targets that are absolute
// or climb above the descriptor are refused; a link that only escapes once
// other links are followed is stopped by the root when it is used.
func (o fileOps) SymlinkAt(oldPath, newPath string) error {
	rel, err := o.mutating(newPath)
	if err != nil {
		return err
	}
	target := filepath.Join(filepath.Dir(rel), oldPath)
	if filepath.IsAbs(oldPath) || !within(o.d.rel, target) {
		return errcode.NotPermitted
	}
	return mapError(o.d.root.Symlink(oldPath, rel))
}

func (o fileOps) UnlinkFileAt(path string) error {
	rel, err := o.mutating(path)
	if err != nil {
		return err
	}
	info, err := o.d.root.Lstat(rel)
	if err != nil {
		return mapError(err)
	}
	if info.IsDir() {
		return errcode.IsDirectory
	}
	return mapError(o.d.root.Remove(rel))
}

func (o fileOps) MetadataHashAt(pathFlags PathFlags, path string) (MetadataHashValue, error) {
	info, err := o.lookup(pathFlags, path)
	if err != nil {
		return MetadataHashValue{}, err
	}
	return hashOf(info), nil
}

func (o fileOps) lookup(pathFlags PathFlags, path string) (os.FileInfo, error) {
	rel, err := o.d.resolve(path)
	if err != nil {
		return nil, err
	}
	var info os.FileInfo
	if pathFlags&PathSymlinkFollow != 0 {
		info, err = o.d.root.Stat(rel)
	} else {
		info, err = o.d.root.Lstat(rel)
	}
	if err != nil {
		return nil, mapError(err)
	}
	return info, nil
}

// mutating resolves path for an operation that changes the directory.
func (o fileOps) mutating(path string) (string, error) {
	rel, err := o.d.resolve(path)
	if err != nil {
		return "", err
	}
	if !o.d.mutable() {
		return "", errcode.ReadOnly
	}
	return rel, nil
}

func statOf(info os.FileInfo) DescriptorStat {
	mtime := info.ModTime()
	st := DescriptorStat{
		Type:                      typeOf(info.Mode()),
		Size:                      uint64(info.Size()),
		LinkCount:                 1,
		DataModificationTimestamp: &mtime,
	}
	if x, ok := statExtra(info); ok {
		st.LinkCount = x.links
		st.DataAccessTimestamp = &x.atime
		st.StatusChangeTimestamp = &x.ctime
	}
	return st
}

func hashOf(info os.FileInfo) MetadataHashValue {
	h := MetadataHashValue{
		Lower: uint64(info.Size()) ^ uint64(info.ModTime().UnixNano()),
	}
	if x, ok := statExtra(info); ok {
		h.Upper = x.dev<<32 ^ x.ino
	}
	return h
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
