package sockets

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"syscall"
	"time"

	"github.com/wippyai/wasi-shim/wasi/preview3/errcode"
	"github.com/wippyai/wasi-shim/wasi/preview3/stream"
)

// hostSocket is a socket as the execution context sees it. It starts as a
// raw descriptor and is handed to the net package once it becomes a
// connection, a listener or a bound datagram socket.
type hostSocket struct {
	conn     *net.TCPConn
	listener *net.TCPListener
	packet   *net.UDPConn
	remote   *netip.AddrPort
	abort    chan struct{}
	mu       sync.Mutex
	fd       int
	backlog  int
	family   IPAddressFamily
	udp      bool
	released bool
}

// Release closes whatever host object the socket currently holds. A raw
// descriptor with a connect in flight is left to that connect, which is
// told to stop and closes it on return.
func (s *hostSocket) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.abort != nil {
		close(s.abort)
		s.abort = nil
		s.released = true
	} else if s.fd >= 0 {
		errs = append(errs, closeFD(s.fd))
		s.fd = -1
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
	}
	if s.listener != nil {
		errs = append(errs, s.listener.Close())
	}
	if s.packet != nil {
		errs = append(errs, s.packet.Close())
	}
	for i, err := range errs {
		if errors.Is(err, net.ErrClosed) {
			errs[i] = nil
		}
	}
	return errors.Join(errs...)
}

// control runs fn against the descriptor, raw or owned by the net package.
func (s *hostSocket) control(fn func(fd int) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fd >= 0 {
		return fn(s.fd)
	}

	var sc syscall.Conn
	switch {
	case s.conn != nil:
		sc = s.conn
	case s.listener != nil:
		sc = s.listener
	case s.packet != nil:
		sc = s.packet
	default:
		return errcode.InvalidState
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return err
	}
	var ferr error
	if err := rc.Control(func(fd uintptr) { ferr = fn(int(fd)) }); err != nil {
		return err
	}
	return ferr
}

func (s *hostSocket) tcp() *net.TCPConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *hostSocket) udpConn() (*net.UDPConn, *netip.AddrPort) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packet, s.remote
}

func (s *hostSocket) setBacklog(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backlog = n
}

func (s *hostSocket) remoteAddress() (IPSocketAddress, error) {
	conn := s.tcp()
	if conn == nil {
		return IPSocketAddress{}, errcode.InvalidState
	}
	addr, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return IPSocketAddress{}, errcode.InvalidState
	}
	return FromAddrPort(addr.AddrPort()), nil
}

// send copies the stream to the peer and half-closes on its end.
func (s *hostSocket) send(ctx context.Context, rt *stream.ReaderTransfer[[]byte]) error {
	in, err := rt.Open()
	if err != nil {
		return err
	}
	defer in.Close()

	conn := s.tcp()
	if conn == nil {
		return errcode.InvalidState
	}
	stop := interruptOn(ctx, nil, conn.SetWriteDeadline)
	defer stop()

	if _, err := stream.Pipe(ctx, conn, in); err != nil {
		return err
	}
	return conn.CloseWrite()
}

// receive copies the peer's bytes into the stream until EOF.
func (s *hostSocket) receive(ctx context.Context, wt *stream.WriterTransfer[[]byte]) error {
	out, err := wt.Open()
	if err != nil {
		return err
	}
	conn := s.tcp()
	if conn == nil {
		out.CloseWithError(errcode.InvalidState)
		return errcode.InvalidState
	}

	stop := interruptOn(ctx, out.Done(), conn.SetReadDeadline)
	_, err = stream.Copy(ctx, out, conn, stream.DefaultChunkSize)
	stop()

	select {
	case <-out.Done():
		return nil
	default:
	}
	if err != nil {
		code := errcode.Network(errcode.FromError(err))
		out.CloseWithError(code)
		return code
	}
	out.Close()
	return nil
}

// connectUDP fixes the peer. A socket that was never bound is bound to
// the wildcard address of its family first.
func (s *hostSocket) connectUDP(remote IPSocketAddress) error {
	s.mu.Lock()
	unbound := s.packet == nil && s.fd >= 0
	s.mu.Unlock()
	if unbound {
		if err := s.bind(Wildcard(s.family)); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.packet == nil {
		return errcode.InvalidState
	}
	ap := remote.AddrPort()
	s.remote = &ap
	return nil
}

func (s *hostSocket) disconnectUDP() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remote == nil {
		return errcode.InvalidState
	}
	s.remote = nil
	return nil
}

func (s *hostSocket) sendTo(ctx context.Context, data []byte, to IPSocketAddress) error {
	pc, _ := s.udpConn()
	if pc == nil {
		return errcode.InvalidState
	}
	stop := interruptOn(ctx, nil, pc.SetWriteDeadline)
	defer stop()
	_, err := pc.WriteToUDPAddrPort(data, to.AddrPort())
	return err
}

// receiveFrom reads one datagram, discarding those from other peers while
// connected.
func (s *hostSocket) receiveFrom(ctx context.Context) (Datagram, error) {
	pc, _ := s.udpConn()
	if pc == nil {
		return Datagram{}, errcode.InvalidState
	}
	stop := interruptOn(ctx, nil, pc.SetReadDeadline)
	defer stop()

	buf := make([]byte, 65536)
	for {
		n, from, err := pc.ReadFromUDPAddrPort(buf)
		if err != nil {
			return Datagram{}, err
		}
		if _, remote := s.udpConn(); remote != nil && !samePeer(from, *remote) {
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		return Datagram{Data: data, RemoteAddress: FromAddrPort(from)}, nil
	}
}

func samePeer(a, b netip.AddrPort) bool {
	return a.Port() == b.Port() && a.Addr().WithZone("").Unmap() == b.Addr().WithZone("").Unmap()
}

// interruptOn clears any earlier deadline, then expires it when ctx or
// done fires, unblocking a pending read or write. The returned stop must
// be called once the operation returns.
func interruptOn(ctx context.Context, done <-chan struct{}, deadline func(time.Time) error) func() {
	deadline(time.Time{})
	finished := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		case <-finished:
			return
		}
		deadline(time.Now())
	}()
	return func() { close(finished) }
}
