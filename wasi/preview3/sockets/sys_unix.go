//go:build unix

package sockets

import (
	"context"
	"net"
	"net/netip"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// pollInterval is how often, in milliseconds, a pending connect rechecks
// its context.
const pollInterval = 100

func openSocket(family IPAddressFamily, udp bool) (*hostSocket, error) {
	domain := unix.AF_INET
	if family == IPv6 {
		domain = unix.AF_INET6
	}
	typ := unix.SOCK_STREAM
	if udp {
		typ = unix.SOCK_DGRAM
	}

	fd, err := unix.Socket(domain, typ, 0)
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(fd)

	if family == IPv6 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1); err != nil {
			unix.Close(fd)
			return nil, err
		}
	}
	if !udp {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			unix.Close(fd)
			return nil, err
		}
	}
	return &hostSocket{fd: fd, family: family, udp: udp, backlog: DefaultListenBacklog}, nil
}

func closeFD(fd int) error {
	return unix.Close(fd)
}

func sockaddr(a IPSocketAddress) unix.Sockaddr {
	if a.Tag == IPv4 {
		return &unix.SockaddrInet4{Port: int(a.IPv4.Port), Addr: a.IPv4.Address}
	}
	return &unix.SockaddrInet6{
		Port:   int(a.IPv6.Port),
		ZoneId: a.IPv6.ScopeID,
		Addr:   a.Addr().As16(),
	}
}

func fromSockaddr(sa unix.Sockaddr) (IPSocketAddress, error) {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return NewIPv4(v.Addr[0], v.Addr[1], v.Addr[2], v.Addr[3], uint16(v.Port)), nil
	case *unix.SockaddrInet6:
		out := FromAddrPort(netip.AddrPortFrom(netip.AddrFrom16(v.Addr), uint16(v.Port)))
		out.IPv6.ScopeID = v.ZoneId
		return out, nil
	default:
		return IPSocketAddress{}, unix.EAFNOSUPPORT
	}
}

// bind binds the raw descriptor. A datagram socket is handed to the net
// package right away since it is usable once bound.
func (s *hostSocket) bind(a IPSocketAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fd < 0 {
		return unix.EINVAL
	}
	if err := unix.Bind(s.fd, sockaddr(a)); err != nil {
		return err
	}
	if !s.udp {
		return nil
	}

	f := os.NewFile(uintptr(s.fd), "udp")
	s.fd = -1
	defer f.Close()
	pc, err := net.FilePacketConn(f)
	if err != nil {
		return err
	}
	uc, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return unix.EPROTOTYPE
	}
	s.packet = uc
	return nil
}

// connect runs a non-blocking connect on the raw descriptor and adopts
// the result as a *net.TCPConn. The descriptor stays owned by connect
// until it returns, so a concurrent Release cannot close it underneath.
func (s *hostSocket) connect(ctx context.Context, a IPSocketAddress) error {
	s.mu.Lock()
	if s.fd < 0 {
		s.mu.Unlock()
		return unix.EISCONN
	}
	if s.abort != nil {
		s.mu.Unlock()
		return unix.EALREADY
	}
	fd := s.fd
	abort := make(chan struct{})
	s.abort = abort
	s.mu.Unlock()

	err := unix.SetNonblock(fd, true)
	if err == nil {
		err = unix.Connect(fd, sockaddr(a))
		if err == unix.EINTR || err == unix.EINPROGRESS || err == unix.EALREADY {
			err = awaitConnect(ctx, abort, fd)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		s.fd = -1
		closeFD(fd)
		return unix.ECANCELED
	}
	s.abort = nil
	if err != nil {
		return err
	}

	f := os.NewFile(uintptr(fd), "tcp")
	s.fd = -1
	defer f.Close()
	c, err := net.FileConn(f)
	if err != nil {
		return err
	}
	tc, ok := c.(*net.TCPConn)
	if !ok {
		c.Close()
		return unix.EPROTOTYPE
	}
	s.conn = tc
	return nil
}

// awaitConnect polls a pending connect until it completes. Context
// cancellation or a release abandons the wait.
func awaitConnect(ctx context.Context, abort <-chan struct{}, fd int) error {
	for {
		select {
		case <-ctx.Done():
			return unix.ECANCELED
		case <-abort:
			return unix.ECANCELED
		default:
		}
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
		n, err := unix.Poll(fds, pollInterval)
		if err == unix.EINTR || (err == nil && n == 0) {
			continue
		}
		if err != nil {
			return err
		}
		soerr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			return err
		}
		if soerr != 0 {
			return syscall.Errno(soerr)
		}
		return nil
	}
}

func (s *hostSocket) listen() (*net.TCPListener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fd < 0 {
		return nil, unix.EINVAL
	}
	if err := unix.Listen(s.fd, s.backlog); err != nil {
		return nil, err
	}

	f := os.NewFile(uintptr(s.fd), "tcp-listener")
	s.fd = -1
	defer f.Close()
	l, err := net.FileListener(f)
	if err != nil {
		return nil, err
	}
	tl, ok := l.(*net.TCPListener)
	if !ok {
		l.Close()
		return nil, unix.EPROTOTYPE
	}
	s.listener = tl
	return tl, nil
}

func (s *hostSocket) localAddress() (IPSocketAddress, error) {
	var addr IPSocketAddress
	err := s.control(func(fd int) error {
		sa, err := unix.Getsockname(fd)
		if err != nil {
			return err
		}
		addr, err = fromSockaddr(sa)
		return err
	})
	return addr, err
}

func bufferOption(kind bufferKind) int {
	if kind == sendBuffer {
		return unix.SO_SNDBUF
	}
	return unix.SO_RCVBUF
}

func (s *hostSocket) bufferSize(kind bufferKind) (uint64, error) {
	var size int
	err := s.control(func(fd int) error {
		var err error
		size, err = unix.GetsockoptInt(fd, unix.SOL_SOCKET, bufferOption(kind))
		return err
	})
	return uint64(size), err
}

func (s *hostSocket) setBufferSize(kind bufferKind, size uint64) error {
	return s.control(func(fd int) error {
		return unix.SetsockoptInt(fd, unix.SOL_SOCKET, bufferOption(kind), int(size))
	})
}

func (s *hostSocket) setKeepAlive(enabled bool, idle time.Duration) error {
	return s.control(func(fd int) error {
		on := 0
		if enabled {
			on = 1
		}
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, on); err != nil {
			return err
		}
		if !enabled {
			return nil
		}
		return setKeepIdle(fd, int(idle/time.Second))
	})
}

func (s *hostSocket) setHopLimit(n int) error {
	return s.control(func(fd int) error {
		if s.family == IPv6 {
			return unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_UNICAST_HOPS, n)
		}
		return unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TTL, n)
	})
}
