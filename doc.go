// Package wasishim hosts filesystem, socket, clock and stdio resources
// behind an asynchronous interface of byte streams and single-value
// futures.
//
// # Layout
//
//	wasishim/
//	├── errors/              Structured usage errors (Phase, Kind, Builder)
//	├── resource/            Per-context handle table
//	└── wasi/preview3/       Shim builder and resource hosts
//	    ├── errcode/         Portable error vocabulary and host error mapping
//	    ├── stream/          Bounded byte and value streams
//	    ├── future/          Single-value futures
//	    ├── offload/         Execution-context pool for blocking host work
//	    ├── filesystem/      Descriptors and preopened directories
//	    ├── sockets/         TCP and UDP sockets
//	    ├── clocks/          Monotonic and wall clocks, timers
//	    └── cli/             Stdio sinks, stdin and environment
//
// # Quick Start
//
//	shim, err := preview3.New().
//	    WithPreopens(map[string]string{"/": dir}).
//	    Build()
//	if err != nil {
//	    return err
//	}
//	defer shim.Close(ctx)
//
//	sock, err := shim.Sockets().CreateTCPSocket(ctx, sockets.IPv4)
//	if err := sock.Connect(ctx, sockets.NewIPv4(127, 0, 0, 1, 8080)); err != nil {
//	    return err
//	}
//	done := sock.Send(stream.FromSlice([]byte("hello")))
//	_, err = done.Await(ctx)
package wasishim
