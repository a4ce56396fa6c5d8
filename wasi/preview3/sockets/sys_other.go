//go:build !unix

package sockets

import (
	"context"
	"net"
	"time"

	"github.com/wippyai/wasi-shim/wasi/preview3/errcode"
)

// Host sockets need raw descriptor control, which only unix builds have.

func openSocket(IPAddressFamily, bool) (*hostSocket, error) {
	return nil, errcode.NotSupported
}

func closeFD(int) error { return nil }

func (s *hostSocket) bind(IPSocketAddress) error { return errcode.NotSupported }

func (s *hostSocket) connect(context.Context, IPSocketAddress) error { return errcode.NotSupported }

func (s *hostSocket) listen() (*net.TCPListener, error) { return nil, errcode.NotSupported }

func (s *hostSocket) localAddress() (IPSocketAddress, error) {
	return IPSocketAddress{}, errcode.NotSupported
}

func (s *hostSocket) bufferSize(bufferKind) (uint64, error) { return 0, errcode.NotSupported }

func (s *hostSocket) setBufferSize(bufferKind, uint64) error { return errcode.NotSupported }

func (s *hostSocket) setKeepAlive(bool, time.Duration) error { return errcode.NotSupported }

func (s *hostSocket) setHopLimit(int) error { return errcode.NotSupported }
