package filesystem

import (
	"errors"

	"github.com/wippyai/wasi-shim/wasi/preview3/errcode"
	"github.com/wippyai/wasi-shim/wasi/preview3/offload"
)

// mapError converts a host failure into a filesystem code. Failures the
// taxonomy does not know are returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if c, ok := errcode.As(err); ok {
		return c
	}
	if escapes(err) {
		return errcode.NotPermitted
	}
	if offload.IsFault(err) {
		return err
	}

	var we *offload.WireError
	if errors.As(err, &we) {
		if c, ok := we.Portable(); ok {
			return c
		}
		if c, ok := errcode.Filesystem(we.Host()); ok {
			return c
		}
		return we
	}

	if c, ok := errcode.Filesystem(errcode.FromError(err)); ok {
		return c
	}
	return err
}

// escapeMessage is the text of the error os.Root reports for a path that
// resolves outside the root. The error value itself is unexported.
const escapeMessage = "path escapes from parent"

func escapes(err error) bool {
	for ; err != nil; err = errors.Unwrap(err) {
		if err.Error() == escapeMessage {
			return true
		}
	}
	return false
}
