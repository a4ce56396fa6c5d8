package sockets

import (
	"time"

	"github.com/wippyai/wasi-shim/resource"
	"github.com/wippyai/wasi-shim/wasi/preview3/stream"
)

const (
	opTCPCreate            = "tcp-create"
	opTCPBind              = "tcp-bind"
	opTCPConnect           = "tcp-connect"
	opTCPListen            = "tcp-listen"
	opTCPSend              = "tcp-send"
	opTCPReceive           = "tcp-receive"
	opTCPLocalAddress      = "tcp-get-local-address"
	opTCPRemoteAddress     = "tcp-get-remote-address"
	opTCPSetBacklog        = "tcp-set-listen-backlog-size"
	opTCPSetKeepAlive      = "tcp-set-keep-alive"
	opTCPRecvBufferSize    = "tcp-recv-buffer-size"
	opTCPSendBufferSize    = "tcp-send-buffer-size"
	opTCPSetRecvBufferSize = "tcp-set-recv-buffer-size"
	opTCPSetSendBufferSize = "tcp-set-send-buffer-size"
	opTCPDispose           = "tcp-dispose"

	opUDPCreate            = "udp-create"
	opUDPBind              = "udp-bind"
	opUDPConnect           = "udp-connect"
	opUDPDisconnect        = "udp-disconnect"
	opUDPSend              = "udp-send"
	opUDPReceive           = "udp-receive"
	opUDPLocalAddress      = "udp-get-local-address"
	opUDPSetHopLimit       = "udp-set-unicast-hop-limit"
	opUDPRecvBufferSize    = "udp-recv-buffer-size"
	opUDPSendBufferSize    = "udp-send-buffer-size"
	opUDPSetRecvBufferSize = "udp-set-recv-buffer-size"
	opUDPSetSendBufferSize = "udp-set-send-buffer-size"
	opUDPDispose           = "udp-dispose"
)

// request is the payload of every socket operation. Each op reads only
// the fields it needs.
type request struct {
	Address  IPSocketAddress
	Bytes    *stream.ReaderTransfer[[]byte]
	Sink     *stream.WriterTransfer[[]byte]
	Accepted *stream.WriterTransfer[SocketID]
	Data     []byte
	Value    uint64
	IdleTime time.Duration
	Handle   resource.Handle
	Family   IPAddressFamily
	Enabled  bool
}

// Datagram is one received UDP message.
type Datagram struct {
	Data          []byte
	RemoteAddress IPSocketAddress
}

type bufferKind uint8

const (
	receiveBuffer bufferKind = iota
	sendBuffer
)
