package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates which layer of the shim raised the error
type Phase string

const (
	PhaseStream     Phase = "stream"     // byte and value streams
	PhaseFuture     Phase = "future"     // single-value futures
	PhaseOffload    Phase = "offload"    // execution offload channel
	PhaseFilesystem Phase = "filesystem" // descriptor resources
	PhaseSockets    Phase = "sockets"    // tcp/udp resources
	PhaseCLI        Phase = "cli"
	PhaseConfig     Phase = "config" // builder validation
)

// Kind categorizes the error
type Kind string

const (
	KindClosed         Kind = "closed"
	KindAlreadyWritten Kind = "already_written"
	KindTransferred    Kind = "transferred"
	KindBusy           Kind = "busy"
	KindConsumed       Kind = "consumed"
	KindCanceled       Kind = "canceled"
	KindUnsupported    Kind = "unsupported"
	KindInvalidInput   Kind = "invalid_input"
	KindNotFound       Kind = "not_found"
	KindNotInitialized Kind = "not_initialized"
)

// Error is the structured usage/protocol error used throughout the shim.
// Host failures never surface as *Error; they are mapped to the portable
// error codes instead.
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Resource string
	Op       string
	Detail   string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Resource != "" || e.Op != "" {
		b.WriteString(" in ")
		switch {
		case e.Resource != "" && e.Op != "":
			b.WriteString(e.Resource)
			b.WriteByte('.')
			b.WriteString(e.Op)
		case e.Resource != "":
			b.WriteString(e.Resource)
		default:
			b.WriteString(e.Op)
		}
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target with an empty Phase matches any phase.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		if t.Phase != "" && e.Phase != t.Phase {
			return false
		}
		return e.Kind == t.Kind
	}
	return false
}

// IsKind reports whether err carries a structured error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Resource sets the resource type name, e.g. "tcp-socket"
func (b *Builder) Resource(name string) *Builder {
	b.err.Resource = name
	return b
}

// Op sets the operation name, e.g. "bind"
func (b *Builder) Op(name string) *Builder {
	b.err.Op = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Closed creates an error for use of an endpoint after close or cancel
func Closed(phase Phase, resource string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindClosed,
		Resource: resource,
		Detail:   fmt.Sprintf("%s is closed", resource),
	}
}

// AlreadyWritten creates an error for a second write to a write-once slot
func AlreadyWritten(phase Phase, resource string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindAlreadyWritten,
		Resource: resource,
		Detail:   fmt.Sprintf("%s is closed", resource),
	}
}

// Transferred creates an error for use of a handle after ownership moved
func Transferred(phase Phase, resource string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindTransferred,
		Resource: resource,
		Detail:   "handle was transferred",
	}
}

// Busy creates an error for a second concurrent consumer
func Busy(phase Phase, resource, op string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindBusy,
		Resource: resource,
		Op:       op,
		Detail:   "another operation is in progress",
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// NotInitialized creates a not-initialized error for a missing component
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
