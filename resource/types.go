package resource

import "errors"

var ErrClosed = errors.New("resource table closed")

// Handle is an opaque reference to a resource in a table.
// Handle 0 is reserved and always invalid. Handles are never reused
// within one table, so a stale handle cannot alias a newer resource.
type Handle uint32

// Kind identifies the host resource type stored under a handle.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindTCPSocket
	KindUDPSocket
	KindDescriptor
	KindStdioSink
)

func (k Kind) String() string {
	switch k {
	case KindTCPSocket:
		return "tcp-socket"
	case KindUDPSocket:
		return "udp-socket"
	case KindDescriptor:
		return "descriptor"
	case KindStdioSink:
		return "stdio-sink"
	default:
		return "unknown"
	}
}

// Event types for resource lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

// Event represents a resource lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Kind   Kind
	Type   EventType
}

// Observer receives notifications about resource lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// Releaser is implemented by values that hold a host handle.
// Release is called exactly once, when the value leaves the table.
type Releaser interface {
	Release() error
}
