package sockets

import (
	"context"
	"errors"
	"fmt"
	"net"

	"code.hybscloud.com/iox"
	"go.uber.org/zap"

	shimerrors "github.com/wippyai/wasi-shim/errors"
	"github.com/wippyai/wasi-shim/resource"
	"github.com/wippyai/wasi-shim/wasi/preview3/errcode"
	"github.com/wippyai/wasi-shim/wasi/preview3/offload"
	"github.com/wippyai/wasi-shim/wasi/preview3/stream"
)

// worker owns the host sockets of one execution context.
type worker struct {
	table *resource.Table
	live  *resource.Tracker
	tcp   resource.Typed[*hostSocket]
	udp   resource.Typed[*hostSocket]
}

// NewHandler creates the per-context socket handler.
func NewHandler() offload.Handler {
	t := resource.NewTable()
	live := resource.NewTracker()
	t.Subscribe(live)
	return &worker{
		table: t,
		live:  live,
		tcp:   resource.NewTyped[*hostSocket](t, resource.KindTCPSocket),
		udp:   resource.NewTyped[*hostSocket](t, resource.KindUDPSocket),
	}
}

// Idle reports whether no host socket is open. Contexts holding sockets
// are kept alive so their handles stay valid.
func (w *worker) Idle() bool {
	return w.table.Len() == 0
}

// Close releases every socket still open, logging how many were left.
func (w *worker) Close() error {
	if open := w.live.Snapshot(); len(open) > 0 {
		Logger().Debug("closing context with open sockets",
			zap.Int("tcp", open[resource.KindTCPSocket]),
			zap.Int("udp", open[resource.KindUDPSocket]))
	}
	return w.table.Close()
}

func (w *worker) Handle(ctx context.Context, req *offload.Request) (any, error) {
	r, ok := req.Payload.(*request)
	if !ok {
		return nil, fmt.Errorf("sockets: %s: unexpected payload %T", req.Op, req.Payload)
	}

	switch req.Op {
	case opTCPCreate:
		return w.create(ctx, w.tcp, r.Family, false)
	case opUDPCreate:
		return w.create(ctx, w.udp, r.Family, true)
	case opTCPDispose:
		_, err := w.tcp.Remove(r.Handle)
		return nil, err
	case opUDPDispose:
		_, err := w.udp.Remove(r.Handle)
		return nil, err
	}

	view := w.tcp
	if isUDP(req.Op) {
		view = w.udp
	}
	s, ok := view.Get(r.Handle)
	if !ok {
		return nil, errcode.InvalidState
	}

	switch req.Op {
	case opTCPBind, opUDPBind:
		return nil, s.bind(r.Address)
	case opTCPConnect:
		return nil, s.connect(ctx, r.Address)
	case opTCPListen:
		return nil, w.listen(ctx, s, r)
	case opTCPSend:
		return nil, s.send(ctx, r.Bytes)
	case opTCPReceive:
		return nil, s.receive(ctx, r.Sink)
	case opTCPLocalAddress, opUDPLocalAddress:
		return s.localAddress()
	case opTCPRemoteAddress:
		return s.remoteAddress()
	case opTCPSetBacklog:
		s.setBacklog(int(r.Value))
		return nil, nil
	case opTCPSetKeepAlive:
		return nil, s.setKeepAlive(r.Enabled, r.IdleTime)
	case opTCPRecvBufferSize, opUDPRecvBufferSize:
		return s.bufferSize(receiveBuffer)
	case opTCPSendBufferSize, opUDPSendBufferSize:
		return s.bufferSize(sendBuffer)
	case opTCPSetRecvBufferSize, opUDPSetRecvBufferSize:
		return nil, s.setBufferSize(receiveBuffer, r.Value)
	case opTCPSetSendBufferSize, opUDPSetSendBufferSize:
		return nil, s.setBufferSize(sendBuffer, r.Value)
	case opUDPConnect:
		return nil, s.connectUDP(r.Address)
	case opUDPDisconnect:
		return nil, s.disconnectUDP()
	case opUDPSend:
		return nil, s.sendTo(ctx, r.Data, r.Address)
	case opUDPReceive:
		return s.receiveFrom(ctx)
	case opUDPSetHopLimit:
		return nil, s.setHopLimit(int(r.Value))
	default:
		return nil, shimerrors.NotFound(shimerrors.PhaseSockets, "operation", req.Op)
	}
}

func isUDP(op string) bool {
	return len(op) > 4 && op[:4] == "udp-"
}

func (w *worker) create(ctx context.Context, view resource.Typed[*hostSocket], family IPAddressFamily, udp bool) (SocketID, error) {
	s, err := openSocket(family, udp)
	if err != nil {
		return SocketID{}, err
	}
	h, err := view.Insert(s)
	if err != nil {
		s.Release()
		return SocketID{}, err
	}
	cid, _ := offload.ContextFrom(ctx)
	return SocketID{Context: cid, Handle: h}, nil
}

// listen starts the host listener and an accept loop feeding the stream.
// The loop ends when the listener closes or the reader cancels.
func (w *worker) listen(ctx context.Context, s *hostSocket, r *request) error {
	out, err := r.Accepted.Open()
	if err != nil {
		return err
	}
	if r.Value > 0 {
		s.setBacklog(int(r.Value))
	}

	ln, err := s.listen()
	if err != nil {
		out.CloseWithError(errcode.Network(errcode.FromError(err)))
		return err
	}

	cid, _ := offload.ContextFrom(ctx)
	offload.Go(ctx, opTCPListen, func() {
		w.accept(ctx, cid, s.family, ln, out)
	})
	return nil
}

func (w *worker) accept(ctx context.Context, cid offload.ContextID, family IPAddressFamily, ln *net.TCPListener, out *stream.Writer[SocketID]) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-out.Done():
		case <-ctx.Done():
		case <-stop:
			return
		}
		ln.Close()
	}()

	var bo iox.Backoff
	for {
		conn, err := ln.AcceptTCP()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				out.Close()
				return
			}
			if transientAccept(err) {
				bo.Wait()
				continue
			}
			Logger().Debug("accept failed", zap.Error(err))
			out.CloseWithError(errcode.Network(errcode.FromError(err)))
			return
		}
		bo.Reset()

		h, err := w.tcp.Insert(&hostSocket{fd: -1, family: family, conn: conn})
		if err != nil {
			conn.Close()
			out.CloseWithError(err)
			return
		}
		if err := out.Write(ctx, SocketID{Context: cid, Handle: h}); err != nil {
			w.tcp.Remove(h)
			return
		}
	}
}

// transientAccept reports accept failures that clear up on their own.
func transientAccept(err error) bool {
	switch errcode.FromError(err).Name {
	case "ECONNABORTED", "EMFILE", "ENFILE", "ENOBUFS", "EINTR":
		return true
	}
	return false
}
