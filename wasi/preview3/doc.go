// Package preview3 assembles the asynchronous resource hosts: filesystem
// descriptors, TCP and UDP sockets, clocks and stdio.
//
// # Quick Start
//
//	shim, err := preview3.New().
//	    WithPreopens(map[string]string{"/data": "./data"}).
//	    WithStdio(os.Stdin, os.Stdout, os.Stderr).
//	    WithLogger(logger).
//	    Build()
//	if err != nil {
//	    return err
//	}
//	defer shim.Close(ctx)
//
//	root := shim.Filesystem().Preopens()[0].Descriptor
//	data, done, err := root.ReadViaStream(0)
//
// # Execution Contexts
//
// Host work runs in offload pools, one per resource family. Callers never
// block on a host call: every operation that touches the host either
// suspends on a future or a stream, or returns a future directly. A socket
// is pinned to the context that created it; descriptors hand a duplicate
// of their handle to whichever context serves the request.
//
// # Errors
//
// Host failures surface as errcode.Code values, matched with errors.Is.
// Usage errors (reading a consumed future, writing a closed stream) are
// structured errors from the errors package.
package preview3
