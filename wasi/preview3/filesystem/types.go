package filesystem

import (
	"os"
	"time"
)

type DescriptorType uint8

const (
	DescriptorTypeUnknown DescriptorType = iota
	DescriptorTypeBlockDevice
	DescriptorTypeCharacterDevice
	DescriptorTypeDirectory
	DescriptorTypeFifo
	DescriptorTypeSymbolicLink
	DescriptorTypeRegularFile
	DescriptorTypeSocket
)

func (t DescriptorType) String() string {
	switch t {
	case DescriptorTypeBlockDevice:
		return "block-device"
	case DescriptorTypeCharacterDevice:
		return "character-device"
	case DescriptorTypeDirectory:
		return "directory"
	case DescriptorTypeFifo:
		return "fifo"
	case DescriptorTypeSymbolicLink:
		return "symbolic-link"
	case DescriptorTypeRegularFile:
		return "regular-file"
	case DescriptorTypeSocket:
		return "socket"
	default:
		return "unknown"
	}
}

func typeOf(mode os.FileMode) DescriptorType {
	switch {
	case mode.IsDir():
		return DescriptorTypeDirectory
	case mode.IsRegular():
		return DescriptorTypeRegularFile
	case mode&os.ModeSymlink != 0:
		return DescriptorTypeSymbolicLink
	case mode&os.ModeNamedPipe != 0:
		return DescriptorTypeFifo
	case mode&os.ModeSocket != 0:
		return DescriptorTypeSocket
	case mode&os.ModeDevice != 0:
		if mode&os.ModeCharDevice != 0 {
			return DescriptorTypeCharacterDevice
		}
		return DescriptorTypeBlockDevice
	default:
		return DescriptorTypeUnknown
	}
}

// DescriptorFlags are the access rights of a descriptor.
type DescriptorFlags uint8

const (
	FlagRead DescriptorFlags = 1 << iota
	FlagWrite
	FlagFileIntegritySync
	FlagDataIntegritySync
	FlagRequestedWriteSync
	FlagMutateDirectory
)

// PathFlags control path resolution.
type PathFlags uint8

const (
	PathSymlinkFollow PathFlags = 1 << iota
)

// OpenFlags control OpenAt.
type OpenFlags uint8

const (
	OpenCreate OpenFlags = 1 << iota
	OpenDirectory
	OpenExclusive
	OpenTruncate
)

// Advice is an access pattern hint for Advise.
type Advice uint8

const (
	AdviceNormal Advice = iota
	AdviceSequential
	AdviceRandom
	AdviceWillNeed
	AdviceDontNeed
	AdviceNoReuse
)

type DescriptorStat struct {
	DataAccessTimestamp       *time.Time
	DataModificationTimestamp *time.Time
	StatusChangeTimestamp     *time.Time
	Size                      uint64
	LinkCount                 uint64
	Type                      DescriptorType
}

// MetadataHashValue identifies a file's metadata state; equal values mean
// the metadata has not changed.
type MetadataHashValue struct {
	Lower uint64
	Upper uint64
}

type TimestampKind uint8

const (
	TimestampNoChange TimestampKind = iota
	TimestampNow
	TimestampAt
)

// NewTimestamp is a SetTimes argument.
type NewTimestamp struct {
	Time time.Time
	Kind TimestampKind
}

func (ts NewTimestamp) resolve(now time.Time) time.Time {
	switch ts.Kind {
	case TimestampNow:
		return now
	case TimestampAt:
		return ts.Time
	default:
		// zero leaves the time unchanged in Chtimes
		return time.Time{}
	}
}

type DirectoryEntry struct {
	Name string
	Type DescriptorType
}
