// Package resource provides the host resource registry used inside an
// execution context.
//
// Each offload context owns one Table. Sockets, descriptors and stdio sinks
// opened by that context are stored under opaque handles; the handle is the
// socket id the caller side uses to route later requests back to the same
// context. Tables are never shared between contexts.
//
// # Handle Table
//
//	table := resource.NewTable()
//
//	// Insert a value, get a handle
//	h, err := table.Insert(resource.KindTCPSocket, sock)
//
//	// Retrieve value by handle
//	value, ok := table.Get(h)
//
//	// Remove releases the value if it implements Releaser
//	_, ok, err = table.Remove(h)
//
// Handles are never reused within a table.
//
// # Typed Views
//
//	socks := resource.NewTyped[*tcpSocket](table, resource.KindTCPSocket)
//	sock, ok := socks.Get(h)
//
// # Observers
//
// Observers receive EventCreated and EventDropped for every handle. The
// Tracker observer counts live handles per kind; execution context
// handlers log its snapshot when they close with resources still open.
//
// # Memory Management
//
// Resources are not garbage collected. Remove or Close must be called for
// every handle; Close releases everything still live and rejects further
// inserts.
package resource
