// Package errors provides structured usage and protocol errors for the shim.
//
// Errors are categorized by Phase (which layer raised it) and Kind (error
// category). Host OS failures are not represented here: they are normalized
// into the portable codes of wasi/preview3/errcode.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseSockets, errors.KindClosed).
//		Resource("tcp-socket").
//		Op("send").
//		Detail("socket disposed").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.AlreadyWritten(errors.PhaseFuture, "FutureWriter")
//	err := errors.Transferred(errors.PhaseStream, "StreamReader")
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
