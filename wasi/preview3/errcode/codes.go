package errcode

import "errors"

// Code is a portable error kind. It implements error so callers can match
// with errors.Is(err, errcode.InvalidState).
type Code uint8

// Network codes, shared by every socket resource.
const (
	Unknown Code = iota
	AccessDenied
	NotSupported
	InvalidArgument
	OutOfMemory
	Timeout
	ConcurrencyConflict
	NotInProgress
	WouldBlock
	InvalidState
	NewSocketLimit
	AddressNotBindable
	AddressInUse
	RemoteUnreachable
	ConnectionRefused
	ConnectionReset
	ConnectionAborted
	DatagramTooLarge
	NameUnresolvable
	TemporaryResolverFailure
	PermanentResolverFailure
)

// Filesystem codes.
const (
	Access Code = iota + 64
	Already
	BadDescriptor
	Busy
	Deadlock
	Quota
	Exist
	FileTooLarge
	IllegalByteSequence
	InProgress
	Interrupted
	Invalid
	IO
	IsDirectory
	Loop
	TooManyLinks
	MessageSize
	NameTooLong
	NoDevice
	NoEntry
	NoLock
	InsufficientMemory
	InsufficientSpace
	NotDirectory
	NotEmpty
	NotRecoverable
	Unsupported
	NoTTY
	NoSuchDevice
	Overflow
	NotPermitted
	Pipe
	ReadOnly
	InvalidSeek
	TextFileBusy
	CrossDevice
)

var names = map[Code]string{
	Unknown:                  "unknown",
	AccessDenied:             "access-denied",
	NotSupported:             "not-supported",
	InvalidArgument:          "invalid-argument",
	OutOfMemory:              "out-of-memory",
	Timeout:                  "timeout",
	ConcurrencyConflict:      "concurrency-conflict",
	NotInProgress:            "not-in-progress",
	WouldBlock:               "would-block",
	InvalidState:             "invalid-state",
	NewSocketLimit:           "new-socket-limit",
	AddressNotBindable:       "address-not-bindable",
	AddressInUse:             "address-in-use",
	RemoteUnreachable:        "remote-unreachable",
	ConnectionRefused:        "connection-refused",
	ConnectionReset:          "connection-reset",
	ConnectionAborted:        "connection-aborted",
	DatagramTooLarge:         "datagram-too-large",
	NameUnresolvable:         "name-unresolvable",
	TemporaryResolverFailure: "temporary-resolver-failure",
	PermanentResolverFailure: "permanent-resolver-failure",

	Access:              "access",
	Already:             "already",
	BadDescriptor:       "bad-descriptor",
	Busy:                "busy",
	Deadlock:            "deadlock",
	Quota:               "quota",
	Exist:               "exist",
	FileTooLarge:        "file-too-large",
	IllegalByteSequence: "illegal-byte-sequence",
	InProgress:          "in-progress",
	Interrupted:         "interrupted",
	Invalid:             "invalid",
	IO:                  "io",
	IsDirectory:         "is-directory",
	Loop:                "loop",
	TooManyLinks:        "too-many-links",
	MessageSize:         "message-size",
	NameTooLong:         "name-too-long",
	NoDevice:            "no-device",
	NoEntry:             "no-entry",
	NoLock:              "no-lock",
	InsufficientMemory:  "insufficient-memory",
	InsufficientSpace:   "insufficient-space",
	NotDirectory:        "not-directory",
	NotEmpty:            "not-empty",
	NotRecoverable:      "not-recoverable",
	Unsupported:         "unsupported",
	NoTTY:               "no-tty",
	NoSuchDevice:        "no-such-device",
	Overflow:            "overflow",
	NotPermitted:        "not-permitted",
	Pipe:                "pipe",
	ReadOnly:            "read-only",
	InvalidSeek:         "invalid-seek",
	TextFileBusy:        "text-file-busy",
	CrossDevice:         "cross-device",
}

// String returns the portable vocabulary name, e.g. "address-in-use".
func (c Code) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return "unknown"
}

func (c Code) Error() string {
	return c.String()
}

// IsFilesystem reports whether c belongs to the filesystem vocabulary.
func (c Code) IsFilesystem() bool {
	return c >= Access && c <= CrossDevice
}

// Parse returns the code for a vocabulary name.
func Parse(name string) (Code, bool) {
	for c, s := range names {
		if s == name {
			return c, true
		}
	}
	return Unknown, false
}

// As extracts the portable code carried by err.
func As(err error) (Code, bool) {
	var c Code
	if errors.As(err, &c) {
		return c, true
	}
	return Unknown, false
}
