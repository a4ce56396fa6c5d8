package errcode

import (
	"errors"
	"io/fs"
	"net"
	"os"
	"syscall"

	experimentalsys "github.com/tetratelabs/wazero/experimental/sys"
)

// FromError describes a Go error in host terms. It runs inside execution
// contexts, where errors come straight from os, net and x/sys calls.
func FromError(err error) HostError {
	if err == nil {
		return HostError{}
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return HostError{Name: errnoName(errno), Code: int(errno)}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		switch {
		case dnsErr.IsNotFound:
			return HostError{Name: "EAI_NONAME"}
		case dnsErr.IsTemporary:
			return HostError{Name: "EAI_AGAIN"}
		default:
			return HostError{Name: "EAI_FAIL"}
		}
	}

	var addrErr *net.AddrError
	if errors.As(err, &addrErr) {
		return HostError{Name: "EINVAL"}
	}

	if os.IsTimeout(err) {
		return HostError{Name: "ETIMEDOUT"}
	}

	if isSentinel(err) {
		return HostError{Name: wazeroErrnoName(experimentalsys.UnwrapOSError(err))}
	}
	return HostError{}
}

// isSentinel reports whether err wraps one of the portable fs sentinels,
// which carry no errno of their own.
func isSentinel(err error) bool {
	return errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, fs.ErrExist) ||
		errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, fs.ErrClosed) ||
		errors.Is(err, fs.ErrInvalid)
}

func wazeroErrnoName(e experimentalsys.Errno) string {
	switch e {
	case experimentalsys.EACCES:
		return "EACCES"
	case experimentalsys.EAGAIN:
		return "EAGAIN"
	case experimentalsys.EBADF:
		return "EBADF"
	case experimentalsys.EEXIST:
		return "EEXIST"
	case experimentalsys.EINTR:
		return "EINTR"
	case experimentalsys.EINVAL:
		return "EINVAL"
	case experimentalsys.EIO:
		return "EIO"
	case experimentalsys.EISDIR:
		return "EISDIR"
	case experimentalsys.ELOOP:
		return "ELOOP"
	case experimentalsys.ENAMETOOLONG:
		return "ENAMETOOLONG"
	case experimentalsys.ENOENT:
		return "ENOENT"
	case experimentalsys.ENOSYS:
		return "ENOSYS"
	case experimentalsys.ENOTDIR:
		return "ENOTDIR"
	case experimentalsys.ENOTEMPTY:
		return "ENOTEMPTY"
	case experimentalsys.ENOTSOCK:
		return "ENOTSOCK"
	case experimentalsys.ENOTSUP:
		return "ENOTSUP"
	case experimentalsys.EPERM:
		return "EPERM"
	case experimentalsys.EROFS:
		return "EROFS"
	default:
		return ""
	}
}
