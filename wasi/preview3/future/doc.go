// Package future implements the write-once/read-once value slot returned by
// every asynchronous shim operation.
//
//	w, r := future.New[int]()
//	go w.Write(42)
//	v, ok, err := r.Read(ctx) // 42, true, nil
//	v, ok, err = r.Read(ctx)  // 0, false, nil: consumed
//
// Writing or aborting a settled future fails with an already-written
// error; Close and CloseWithError on a settled future are no-ops.
// Cancellation is not supported.
package future
