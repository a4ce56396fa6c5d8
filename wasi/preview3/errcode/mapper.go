package errcode

// HostError describes a host failure as reported by an execution context:
// a symbolic errno name, a numeric platform code, or both.
type HostError struct {
	Name string
	Code int
}

var networkNames = map[string]Code{
	"EACCES":        AccessDenied,
	"EPERM":         AccessDenied,
	"EOPNOTSUPP":    NotSupported,
	"ENOTSUP":       NotSupported,
	"EINVAL":        InvalidArgument,
	"EDESTADDRREQ":  InvalidArgument,
	"EAFNOSUPPORT":  NotSupported,
	"ENOMEM":        OutOfMemory,
	"ENOBUFS":       OutOfMemory,
	"EAI_MEMORY":    OutOfMemory,
	"ETIMEDOUT":     Timeout,
	"EADDRINUSE":    AddressInUse,
	"EADDRNOTAVAIL": AddressNotBindable,
	"EHOSTUNREACH":  RemoteUnreachable,
	"ENETUNREACH":   RemoteUnreachable,
	"ENETDOWN":      RemoteUnreachable,
	"ECONNREFUSED":  ConnectionRefused,
	"ECONNRESET":    ConnectionReset,
	"EPIPE":         ConnectionAborted,
	"ECONNABORTED":  ConnectionAborted,
	"EMSGSIZE":      DatagramTooLarge,
	"ENOTCONN":      InvalidState,
	"EISCONN":       InvalidState,
	"EBADF":         InvalidState,
	"ENOTSOCK":      InvalidState,
	"EALREADY":      ConcurrencyConflict,
	"EWOULDBLOCK":   WouldBlock,
	"EAGAIN":        WouldBlock,
	"EINPROGRESS":   WouldBlock,
	"EMFILE":        NewSocketLimit,
	"ENFILE":        NewSocketLimit,
	"EAI_NONAME":    NameUnresolvable,
	"EAI_AGAIN":     TemporaryResolverFailure,
	"EAI_FAIL":      PermanentResolverFailure,
}

// libuv reports some socket failures as bare numbers; the sign varies by
// platform so both are accepted.
var networkCodes = map[int]Code{
	4053: InvalidState,
	4083: InvalidState,
	4090: AddressNotBindable,
	4091: AddressInUse,
}

var filesystemNames = map[string]Code{
	"EACCES":          Access,
	"EALREADY":        Already,
	"EBADF":           BadDescriptor,
	"EBUSY":           Busy,
	"EDEADLK":         Deadlock,
	"EDQUOT":          Quota,
	"EEXIST":          Exist,
	"EFBIG":           FileTooLarge,
	"EILSEQ":          IllegalByteSequence,
	"EINPROGRESS":     InProgress,
	"EINTR":           Interrupted,
	"EINVAL":          Invalid,
	"EIO":             IO,
	"EISDIR":          IsDirectory,
	"ELOOP":           Loop,
	"EMLINK":          TooManyLinks,
	"EMSGSIZE":        MessageSize,
	"ENAMETOOLONG":    NameTooLong,
	"ENODEV":          NoDevice,
	"ENOENT":          NoEntry,
	"ENOLCK":          NoLock,
	"ENOMEM":          InsufficientMemory,
	"ENOSPC":          InsufficientSpace,
	"ENOTDIR":         NotDirectory,
	"ENOTEMPTY":       NotEmpty,
	"ENOTRECOVERABLE": NotRecoverable,
	"ENOTSUP":         Unsupported,
	"EOPNOTSUPP":      Unsupported,
	"ENOTTY":          NoTTY,
	"ENXIO":           NoSuchDevice,
	"EOVERFLOW":       Overflow,
	"EPERM":           NotPermitted,
	"EPIPE":           Pipe,
	"EROFS":           ReadOnly,
	"ESPIPE":          InvalidSeek,
	"ETXTBSY":         TextFileBusy,
	"EXDEV":           CrossDevice,
}

// uvUnknown is libuv's UV_UNKNOWN, reported for some device failures.
const uvUnknown = -4094

// Network maps a host failure to a network code. Unmapped failures are
// Unknown.
func Network(h HostError) Code {
	if c, ok := networkNames[h.Name]; ok {
		return c
	}
	code := h.Code
	if code < 0 {
		code = -code
	}
	if c, ok := networkCodes[code]; ok {
		return c
	}
	return Unknown
}

// Filesystem maps a host failure to a filesystem code. ok is false when no
// mapping exists; the caller must then surface the raw failure.
func Filesystem(h HostError) (Code, bool) {
	if c, ok := filesystemNames[h.Name]; ok {
		return c, true
	}
	if h.Code == uvUnknown {
		return NoSuchDevice, true
	}
	return 0, false
}
