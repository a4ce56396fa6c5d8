// Package sockets implements WASI TCP and UDP sockets on an offload pool.
//
// A TCPSocket or UDPSocket is the caller's view: it owns the socket state
// machine and an option cache, and rejects invalid operations with
// errcode.InvalidState or errcode.InvalidArgument before anything reaches
// the host. Valid operations are submitted to the execution context that
// created the host socket, identified by SocketID.
//
//	network := sockets.NewNetwork(sockets.NewPool(offload.Config{}))
//
//	srv, _ := network.CreateTCPSocket(ctx, sockets.IPv4)
//	srv.Bind(ctx, sockets.NewIPv4(127, 0, 0, 1, 0))
//	accepted, _ := srv.Listen(ctx)
//
//	conn, _ := accepted.Read(ctx)
//	data, done, _ := conn.Receive()
//
// Host sockets are created with x/sys, bound and connected with real
// syscalls inside the context, and handed to the net package once active.
// Builds without unix sockets report errcode.NotSupported.
package sockets
