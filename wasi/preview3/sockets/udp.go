package sockets

import (
	"context"
	"sync"

	"github.com/wippyai/wasi-shim/wasi/preview3/errcode"
)

type UDPState uint8

const (
	UDPStateUnbound UDPState = iota
	UDPStateBound
	UDPStateConnected
	UDPStateClosed
)

func (s UDPState) String() string {
	switch s {
	case UDPStateUnbound:
		return "unbound"
	case UDPStateBound:
		return "bound"
	case UDPStateConnected:
		return "connected"
	default:
		return "closed"
	}
}

// UDPSocket is the caller side of a host UDP socket.
type UDPSocket struct {
	net               *Network
	remote            *IPSocketAddress
	id                SocketID
	receiveBufferSize uint64
	sendBufferSize    uint64
	mu                sync.Mutex
	family            IPAddressFamily
	state             UDPState
	hopLimit          uint8
	busy              bool
	disposed          bool
}

func newUDPSocket(n *Network, id SocketID, family IPAddressFamily) *UDPSocket {
	return &UDPSocket{
		net:      n,
		id:       id,
		family:   family,
		hopLimit: DefaultHopLimit,
	}
}

func (s *UDPSocket) ID() SocketID {
	return s.id
}

func (s *UDPSocket) State() UDPState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *UDPSocket) AddressFamily() IPAddressFamily {
	return s.family
}

// begin claims the socket for a state-changing host call. ok checks the
// current state; a call already in flight is a concurrency conflict.
func (s *UDPSocket) begin(ok func(UDPState) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !ok(s.state) {
		return errcode.InvalidState
	}
	if s.busy {
		return errcode.ConcurrencyConflict
	}
	s.busy = true
	return nil
}

// finish releases the claim and applies fn unless the socket was closed
// during the call.
func (s *UDPSocket) finish(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if s.state == UDPStateClosed {
		return errcode.InvalidState
	}
	if fn != nil {
		fn()
	}
	return nil
}

// Bind assigns the local address. A failed bind leaves the socket unbound.
func (s *UDPSocket) Bind(ctx context.Context, local IPSocketAddress) error {
	if err := s.begin(func(st UDPState) bool { return st == UDPStateUnbound }); err != nil {
		return err
	}
	if !IsValidLocal(local, s.family) {
		s.finish(nil)
		return errcode.InvalidArgument
	}
	if _, err := s.net.call(ctx, s.id, opUDPBind, &request{Address: local}); err != nil {
		s.finish(nil)
		return err
	}
	return s.finish(func() { s.state = UDPStateBound })
}

// Connect fixes the peer. An unbound socket is bound to the wildcard
// address first; a connected one must disconnect before connecting again.
func (s *UDPSocket) Connect(ctx context.Context, remote IPSocketAddress) error {
	connectable := func(st UDPState) bool { return st == UDPStateUnbound || st == UDPStateBound }
	if err := s.begin(connectable); err != nil {
		return err
	}
	if !IsValidRemote(remote, s.family) {
		s.finish(nil)
		return errcode.InvalidArgument
	}
	if _, err := s.net.call(ctx, s.id, opUDPConnect, &request{Address: remote}); err != nil {
		s.finish(nil)
		return err
	}
	return s.finish(func() {
		s.remote = &remote
		s.state = UDPStateConnected
	})
}

func (s *UDPSocket) Disconnect(ctx context.Context) error {
	if err := s.begin(func(st UDPState) bool { return st == UDPStateConnected }); err != nil {
		return err
	}
	if _, err := s.net.call(ctx, s.id, opUDPDisconnect, &request{}); err != nil {
		s.finish(nil)
		return err
	}
	return s.finish(func() {
		s.remote = nil
		s.state = UDPStateBound
	})
}

// Send transmits one datagram. Without remote the connected peer is used.
func (s *UDPSocket) Send(ctx context.Context, data []byte, remote *IPSocketAddress) error {
	s.mu.Lock()
	if s.state == UDPStateUnbound || s.state == UDPStateClosed {
		s.mu.Unlock()
		return errcode.InvalidState
	}
	connected := s.remote
	s.mu.Unlock()

	var target IPSocketAddress
	switch {
	case remote == nil && connected == nil:
		return errcode.InvalidArgument
	case remote == nil:
		target = *connected
	default:
		if !IsValidRemote(*remote, s.family) {
			return errcode.InvalidArgument
		}
		if connected != nil && *remote != *connected {
			return errcode.InvalidArgument
		}
		target = *remote
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	_, err := s.net.call(ctx, s.id, opUDPSend, &request{Address: target, Data: buf})
	return err
}

// Receive waits for one datagram. A connected socket only yields
// datagrams from its peer.
func (s *UDPSocket) Receive(ctx context.Context) (Datagram, error) {
	switch s.State() {
	case UDPStateUnbound, UDPStateClosed:
		return Datagram{}, errcode.InvalidState
	}
	v, err := s.net.call(ctx, s.id, opUDPReceive, &request{})
	if err != nil {
		return Datagram{}, err
	}
	d, _ := v.(Datagram)
	return d, nil
}

func (s *UDPSocket) LocalAddress(ctx context.Context) (IPSocketAddress, error) {
	switch s.State() {
	case UDPStateUnbound, UDPStateClosed:
		return IPSocketAddress{}, errcode.InvalidState
	}
	v, err := s.net.call(ctx, s.id, opUDPLocalAddress, &request{})
	if err != nil {
		return IPSocketAddress{}, err
	}
	addr, _ := v.(IPSocketAddress)
	return addr, nil
}

func (s *UDPSocket) RemoteAddress() (IPSocketAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != UDPStateConnected || s.remote == nil {
		return IPSocketAddress{}, errcode.InvalidState
	}
	return *s.remote, nil
}

func (s *UDPSocket) UnicastHopLimit() (uint8, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == UDPStateClosed {
		return 0, errcode.InvalidState
	}
	return s.hopLimit, nil
}

func (s *UDPSocket) SetUnicastHopLimit(ctx context.Context, n uint8) error {
	if n < 1 {
		return errcode.InvalidArgument
	}
	if s.State() == UDPStateClosed {
		return errcode.InvalidState
	}
	if _, err := s.net.call(ctx, s.id, opUDPSetHopLimit, &request{Value: uint64(n)}); err != nil {
		return err
	}
	s.mu.Lock()
	s.hopLimit = n
	s.mu.Unlock()
	return nil
}

func (s *UDPSocket) ReceiveBufferSize(ctx context.Context) (uint64, error) {
	return s.bufferSize(ctx, opUDPRecvBufferSize, &s.receiveBufferSize)
}

func (s *UDPSocket) SetReceiveBufferSize(ctx context.Context, size uint64) error {
	return s.setBufferSize(ctx, opUDPSetRecvBufferSize, size, &s.receiveBufferSize)
}

func (s *UDPSocket) SendBufferSize(ctx context.Context) (uint64, error) {
	return s.bufferSize(ctx, opUDPSendBufferSize, &s.sendBufferSize)
}

func (s *UDPSocket) SetSendBufferSize(ctx context.Context, size uint64) error {
	return s.setBufferSize(ctx, opUDPSetSendBufferSize, size, &s.sendBufferSize)
}

// field points into s and is only touched under s.mu.
func (s *UDPSocket) bufferSize(ctx context.Context, op string, field *uint64) (uint64, error) {
	s.mu.Lock()
	if s.state == UDPStateClosed {
		s.mu.Unlock()
		return 0, errcode.InvalidState
	}
	cached := *field
	s.mu.Unlock()
	if cached != 0 {
		return cached, nil
	}

	v, err := s.net.call(ctx, s.id, op, &request{})
	if err != nil {
		return 0, err
	}
	size, _ := v.(uint64)
	s.mu.Lock()
	if *field == 0 {
		*field = size
	}
	s.mu.Unlock()
	return size, nil
}

func (s *UDPSocket) setBufferSize(ctx context.Context, op string, size uint64, field *uint64) error {
	if size == 0 {
		return errcode.InvalidArgument
	}
	if s.State() == UDPStateClosed {
		return errcode.InvalidState
	}
	if _, err := s.net.call(ctx, s.id, op, &request{Value: size}); err != nil {
		return err
	}
	s.mu.Lock()
	*field = size
	s.mu.Unlock()
	return nil
}

// Close releases the host socket without waiting. It is idempotent.
func (s *UDPSocket) Close() error {
	s.mu.Lock()
	s.state = UDPStateClosed
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	s.mu.Unlock()

	s.net.dispose(s.id, opUDPDispose)
	return nil
}
