package sockets

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/wippyai/wasi-shim/wasi/preview3/errcode"
	"github.com/wippyai/wasi-shim/wasi/preview3/future"
	"github.com/wippyai/wasi-shim/wasi/preview3/offload"
	"github.com/wippyai/wasi-shim/wasi/preview3/stream"
)

type TCPState uint8

const (
	TCPStateUnbound TCPState = iota
	TCPStateBound
	TCPStateListening
	TCPStateConnecting
	TCPStateConnected
	TCPStateClosed
)

func (s TCPState) String() string {
	switch s {
	case TCPStateUnbound:
		return "unbound"
	case TCPStateBound:
		return "bound"
	case TCPStateListening:
		return "listening"
	case TCPStateConnecting:
		return "connecting"
	case TCPStateConnected:
		return "connected"
	default:
		return "closed"
	}
}

const (
	DefaultKeepAliveIdleTime = 7200 * time.Second
	DefaultKeepAliveInterval = time.Second
	DefaultKeepAliveCount    = 10
	DefaultHopLimit          = 1
	DefaultListenBacklog     = 128
)

// Options the host cannot configure keep the caller's value so a set is
// always visible to a later get.
type tcpOptions struct {
	keepAliveIdleTime time.Duration
	keepAliveInterval time.Duration
	receiveBufferSize uint64
	sendBufferSize    uint64
	backlog           uint64
	keepAliveCount    uint32
	hopLimit          uint8
	keepAliveEnabled  bool
}

// TCPSocket is the caller side of a host TCP socket. State checks and
// address validation happen here before anything is submitted.
type TCPSocket struct {
	net      *Network
	id       SocketID
	opts     tcpOptions
	mu       sync.Mutex
	family   IPAddressFamily
	state    TCPState
	busy     bool
	disposed bool
}

func newTCPSocket(n *Network, id SocketID, family IPAddressFamily, state TCPState) *TCPSocket {
	return &TCPSocket{
		net:    n,
		id:     id,
		family: family,
		state:  state,
		opts: tcpOptions{
			keepAliveIdleTime: DefaultKeepAliveIdleTime,
			keepAliveInterval: DefaultKeepAliveInterval,
			keepAliveCount:    DefaultKeepAliveCount,
			hopLimit:          DefaultHopLimit,
		},
	}
}

func (s *TCPSocket) ID() SocketID {
	return s.id
}

func (s *TCPSocket) State() TCPState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *TCPSocket) AddressFamily() IPAddressFamily {
	return s.family
}

func (s *TCPSocket) IsListening() bool {
	return s.State() == TCPStateListening
}

// transition moves from one state to another unless the socket was closed
// in the meantime.
func (s *TCPSocket) transition(from, to TCPState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == from {
		s.state = to
	}
}

// idle clears the in-flight claim taken by Bind or Listen.
func (s *TCPSocket) idle() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// Bind assigns the local address. A failed bind leaves the socket unbound.
func (s *TCPSocket) Bind(ctx context.Context, local IPSocketAddress) error {
	s.mu.Lock()
	if s.state != TCPStateUnbound {
		s.mu.Unlock()
		return errcode.InvalidState
	}
	if !IsValidLocal(local, s.family) {
		s.mu.Unlock()
		return errcode.InvalidArgument
	}
	if s.busy {
		s.mu.Unlock()
		return errcode.ConcurrencyConflict
	}
	s.busy = true
	s.mu.Unlock()
	defer s.idle()

	if _, err := s.net.call(ctx, s.id, opTCPBind, &request{Address: local}); err != nil {
		return err
	}
	s.transition(TCPStateUnbound, TCPStateBound)
	return nil
}

// Connect establishes a connection to remote. On failure the socket is
// closed.
func (s *TCPSocket) Connect(ctx context.Context, remote IPSocketAddress) error {
	s.mu.Lock()
	switch s.state {
	case TCPStateConnecting, TCPStateConnected, TCPStateListening, TCPStateClosed:
		s.mu.Unlock()
		return errcode.InvalidState
	}
	if !IsValidRemote(remote, s.family) {
		s.mu.Unlock()
		return errcode.InvalidArgument
	}
	if s.busy {
		s.mu.Unlock()
		return errcode.ConcurrencyConflict
	}
	s.state = TCPStateConnecting
	s.mu.Unlock()

	if _, err := s.net.call(ctx, s.id, opTCPConnect, &request{Address: remote}); err != nil {
		s.transition(TCPStateConnecting, TCPStateClosed)
		logFailure(opTCPConnect, s.id, err)
		return err
	}
	s.transition(TCPStateConnecting, TCPStateConnected)
	return nil
}

// Listen starts accepting connections. The returned stream yields one
// connected socket per accepted connection; canceling it stops accepting.
func (s *TCPSocket) Listen(ctx context.Context) (*stream.Reader[*TCPSocket], error) {
	s.mu.Lock()
	switch s.state {
	case TCPStateListening, TCPStateConnected, TCPStateConnecting, TCPStateClosed:
		s.mu.Unlock()
		return nil, errcode.InvalidState
	}
	if s.busy {
		s.mu.Unlock()
		return nil, errcode.ConcurrencyConflict
	}
	s.busy = true
	backlog := s.opts.backlog
	s.mu.Unlock()
	defer s.idle()

	w, ids := stream.New[SocketID](stream.DefaultCapacity)
	wt, err := w.IntoTransferable()
	if err != nil {
		return nil, err
	}

	_, err = s.net.call(ctx, s.id, opTCPListen, &request{Accepted: wt, Value: backlog}, offload.WithTransfer(wt))
	if err != nil {
		s.mu.Lock()
		s.state = TCPStateClosed
		s.mu.Unlock()
		logFailure(opTCPListen, s.id, err)
		return nil, err
	}

	s.mu.Lock()
	if s.state == TCPStateClosed {
		s.mu.Unlock()
		ids.Cancel(errcode.InvalidState)
		return nil, errcode.InvalidState
	}
	s.state = TCPStateListening
	s.mu.Unlock()

	out, accepted := stream.New[*TCPSocket](stream.DefaultCapacity)
	go s.relayAccepted(ids, out)
	return accepted, nil
}

// relayAccepted wraps accepted host sockets into caller sockets.
func (s *TCPSocket) relayAccepted(ids *stream.Reader[SocketID], out *stream.Writer[*TCPSocket]) {
	ctx := context.Background()
	for {
		id, err := ids.Read(ctx)
		if err == io.EOF {
			out.Close()
			return
		}
		if err != nil {
			out.CloseWithError(mapError(err))
			return
		}

		conn := newTCPSocket(s.net, id, s.family, TCPStateConnected)
		if err := out.Write(ctx, conn); err != nil {
			conn.Close()
			ids.Cancel(err)
			return
		}
	}
}

// Send writes data to the peer. The end of data shuts down the write
// side of the connection.
func (s *TCPSocket) Send(data *stream.Reader[[]byte]) *future.Reader[struct{}] {
	if s.State() != TCPStateConnected {
		return future.Rejected[struct{}](errcode.InvalidState)
	}
	if data == nil {
		return future.Rejected[struct{}](errcode.InvalidArgument)
	}
	rt, err := data.IntoTransferable()
	if err != nil {
		return future.Rejected[struct{}](err)
	}
	return s.net.async(s.id, opTCPSend, &request{Bytes: rt}, offload.WithTransfer(rt))
}

// Receive streams bytes from the peer until it shuts down its write side.
func (s *TCPSocket) Receive() (*stream.Reader[[]byte], *future.Reader[struct{}], error) {
	if s.State() != TCPStateConnected {
		return nil, nil, errcode.InvalidState
	}
	w, r := stream.New[[]byte](stream.DefaultCapacity)
	wt, err := w.IntoTransferable()
	if err != nil {
		return nil, nil, err
	}
	done := s.net.async(s.id, opTCPReceive, &request{Sink: wt}, offload.WithTransfer(wt))
	return r, done, nil
}

func (s *TCPSocket) LocalAddress(ctx context.Context) (IPSocketAddress, error) {
	switch s.State() {
	case TCPStateUnbound, TCPStateClosed:
		return IPSocketAddress{}, errcode.InvalidState
	}
	return s.address(ctx, opTCPLocalAddress)
}

func (s *TCPSocket) RemoteAddress(ctx context.Context) (IPSocketAddress, error) {
	if s.State() != TCPStateConnected {
		return IPSocketAddress{}, errcode.InvalidState
	}
	return s.address(ctx, opTCPRemoteAddress)
}

func (s *TCPSocket) address(ctx context.Context, op string) (IPSocketAddress, error) {
	v, err := s.net.call(ctx, s.id, op, &request{})
	if err != nil {
		return IPSocketAddress{}, err
	}
	addr, _ := v.(IPSocketAddress)
	return addr, nil
}

// SetListenBacklogSize records the backlog used by Listen and updates a
// bound socket's host record.
func (s *TCPSocket) SetListenBacklogSize(ctx context.Context, value uint64) error {
	if value == 0 {
		return errcode.InvalidArgument
	}
	s.mu.Lock()
	state := s.state
	switch state {
	case TCPStateConnecting, TCPStateConnected:
		s.mu.Unlock()
		return errcode.NotSupported
	case TCPStateListening, TCPStateClosed:
		s.mu.Unlock()
		return errcode.InvalidState
	}
	if state != TCPStateBound {
		s.opts.backlog = value
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if _, err := s.net.call(ctx, s.id, opTCPSetBacklog, &request{Value: value}); err != nil {
		return err
	}
	return s.update(func(o *tcpOptions) { o.backlog = value })
}

// options returns a snapshot of the option cache, or invalid-state once
// the socket is closed.
func (s *TCPSocket) options() (tcpOptions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == TCPStateClosed {
		return tcpOptions{}, errcode.InvalidState
	}
	return s.opts, nil
}

func (s *TCPSocket) update(fn func(*tcpOptions)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == TCPStateClosed {
		return errcode.InvalidState
	}
	fn(&s.opts)
	return nil
}

func (s *TCPSocket) KeepAliveEnabled() (bool, error) {
	o, err := s.options()
	return o.keepAliveEnabled, err
}

func (s *TCPSocket) SetKeepAliveEnabled(ctx context.Context, enabled bool) error {
	o, err := s.options()
	if err != nil {
		return err
	}
	if _, err := s.net.call(ctx, s.id, opTCPSetKeepAlive, &request{Enabled: enabled, IdleTime: o.keepAliveIdleTime}); err != nil {
		return err
	}
	return s.update(func(o *tcpOptions) { o.keepAliveEnabled = enabled })
}

func (s *TCPSocket) KeepAliveIdleTime() (time.Duration, error) {
	o, err := s.options()
	return o.keepAliveIdleTime, err
}

// SetKeepAliveIdleTime floors values below one second. It only reaches
// the host while keep-alive is enabled and the value changes.
func (s *TCPSocket) SetKeepAliveIdleTime(ctx context.Context, d time.Duration) error {
	if d < 1 {
		return errcode.InvalidArgument
	}
	if d < time.Second {
		d = time.Second
	}

	o, err := s.options()
	if err != nil {
		return err
	}
	if d == o.keepAliveIdleTime || !o.keepAliveEnabled {
		return nil
	}
	if _, err := s.net.call(ctx, s.id, opTCPSetKeepAlive, &request{Enabled: true, IdleTime: d}); err != nil {
		return err
	}
	return s.update(func(o *tcpOptions) { o.keepAliveIdleTime = d })
}

func (s *TCPSocket) KeepAliveInterval() (time.Duration, error) {
	o, err := s.options()
	return o.keepAliveInterval, err
}

func (s *TCPSocket) SetKeepAliveInterval(d time.Duration) error {
	if d < 1 {
		return errcode.InvalidArgument
	}
	return s.update(func(o *tcpOptions) { o.keepAliveInterval = d })
}

func (s *TCPSocket) KeepAliveCount() (uint32, error) {
	o, err := s.options()
	return o.keepAliveCount, err
}

func (s *TCPSocket) SetKeepAliveCount(n uint32) error {
	if n < 1 {
		return errcode.InvalidArgument
	}
	return s.update(func(o *tcpOptions) { o.keepAliveCount = n })
}

func (s *TCPSocket) HopLimit() (uint8, error) {
	o, err := s.options()
	return o.hopLimit, err
}

func (s *TCPSocket) SetHopLimit(n uint8) error {
	if n < 1 {
		return errcode.InvalidArgument
	}
	return s.update(func(o *tcpOptions) { o.hopLimit = n })
}

// ReceiveBufferSize reads the host value once and then answers from the
// cache.
func (s *TCPSocket) ReceiveBufferSize(ctx context.Context) (uint64, error) {
	return s.bufferSize(ctx, opTCPRecvBufferSize, func(o *tcpOptions) *uint64 { return &o.receiveBufferSize })
}

func (s *TCPSocket) SetReceiveBufferSize(ctx context.Context, size uint64) error {
	return s.setBufferSize(ctx, opTCPSetRecvBufferSize, size, func(o *tcpOptions) *uint64 { return &o.receiveBufferSize })
}

func (s *TCPSocket) SendBufferSize(ctx context.Context) (uint64, error) {
	return s.bufferSize(ctx, opTCPSendBufferSize, func(o *tcpOptions) *uint64 { return &o.sendBufferSize })
}

func (s *TCPSocket) SetSendBufferSize(ctx context.Context, size uint64) error {
	return s.setBufferSize(ctx, opTCPSetSendBufferSize, size, func(o *tcpOptions) *uint64 { return &o.sendBufferSize })
}

func (s *TCPSocket) bufferSize(ctx context.Context, op string, field func(*tcpOptions) *uint64) (uint64, error) {
	var cached uint64
	if err := s.update(func(o *tcpOptions) { cached = *field(o) }); err != nil {
		return 0, err
	}
	if cached != 0 {
		return cached, nil
	}

	v, err := s.net.call(ctx, s.id, op, &request{})
	if err != nil {
		return 0, err
	}
	size, _ := v.(uint64)
	s.update(func(o *tcpOptions) {
		if *field(o) == 0 {
			*field(o) = size
		}
	})
	return size, nil
}

// setBufferSize caches the caller's value once the host accepted it, so a
// later get returns it even when the kernel adjusts the real size.
func (s *TCPSocket) setBufferSize(ctx context.Context, op string, size uint64, field func(*tcpOptions) *uint64) error {
	if size == 0 {
		return errcode.InvalidArgument
	}
	if _, err := s.options(); err != nil {
		return err
	}
	if _, err := s.net.call(ctx, s.id, op, &request{Value: size}); err != nil {
		return err
	}
	return s.update(func(o *tcpOptions) { *field(o) = size })
}

// Close releases the host socket. It does not wait for the release and
// may be called more than once.
func (s *TCPSocket) Close() error {
	s.mu.Lock()
	s.state = TCPStateClosed
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	s.mu.Unlock()

	s.net.dispose(s.id, opTCPDispose)
	return nil
}
