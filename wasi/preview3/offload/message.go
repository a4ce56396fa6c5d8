package offload

import (
	"errors"
	"fmt"
	"runtime/debug"

	shimerrors "github.com/wippyai/wasi-shim/errors"
	"github.com/wippyai/wasi-shim/wasi/preview3/errcode"
)

// Transferable is a stream or future endpoint handed to an execution
// context with a request. The pool abandons it when the request fails or
// the context dies before the endpoint is settled.
type Transferable interface {
	Abandon(reason error)
}

// ContextID identifies a live execution context within a pool.
type ContextID uint32

// Request is one correlated message to an execution context.
type Request struct {
	Payload  any
	Op       string
	Transfer []Transferable
	ID       uint32
}

// Response is the correlated reply a context sends back for a Request.
// Exactly one of Result or Err is meaningful.
type Response struct {
	Result any
	Err    *WireError
	ID     uint32
}

// WireError is a host failure as it crosses the context boundary.
// Code is the symbolic errno name and Errno the numeric code; Kind is set
// instead when the handler already decided the portable code.
type WireError struct {
	Message string
	Code    string
	Kind    string
	Stack   string
	Errno   int
}

func (e *WireError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// Host returns the failure in mapper terms.
func (e *WireError) Host() errcode.HostError {
	return errcode.HostError{Name: e.Code, Code: e.Errno}
}

// Portable returns the code the handler chose, if any.
func (e *WireError) Portable() (errcode.Code, bool) {
	if e.Kind == "" {
		return errcode.Unknown, false
	}
	return errcode.Parse(e.Kind)
}

// WireErrorFrom converts a handler error for the wire. Stack is the
// context-side stack at the point of conversion; an error that already
// crossed once keeps its own.
func WireErrorFrom(err error) *WireError {
	if err == nil {
		return nil
	}
	var we *WireError
	if errors.As(err, &we) {
		return we
	}
	stack := string(debug.Stack())
	if c, ok := errcode.As(err); ok {
		return &WireError{Message: err.Error(), Kind: c.String(), Stack: stack}
	}
	h := errcode.FromError(err)
	return &WireError{Message: err.Error(), Code: h.Name, Errno: h.Code, Stack: stack}
}

// FaultError rejects every request pending on a context that terminated
// unexpectedly. It matches ErrFault with errors.Is.
type FaultError struct {
	Cause   error
	Op      string
	Stack   string
	Context ContextID
}

// ErrFault matches any *FaultError.
var ErrFault error = &FaultError{}

func (e *FaultError) Error() string {
	msg := fmt.Sprintf("offload: execution context %d faulted", e.Context)
	if e.Op != "" {
		msg += " during " + e.Op
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *FaultError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a fault.
func (e *FaultError) Is(target error) bool {
	_, ok := target.(*FaultError)
	return ok
}

// IsFault reports whether err is a context fault.
func IsFault(err error) bool {
	return errors.Is(err, ErrFault)
}

// ErrPoolClosed rejects requests submitted to or pending on a closed pool.
var ErrPoolClosed = shimerrors.Closed(shimerrors.PhaseOffload, "pool")
