package sockets

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	shimerrors "github.com/wippyai/wasi-shim/errors"
	"github.com/wippyai/wasi-shim/resource"
	"github.com/wippyai/wasi-shim/wasi/preview3/errcode"
	"github.com/wippyai/wasi-shim/wasi/preview3/future"
	"github.com/wippyai/wasi-shim/wasi/preview3/offload"
)

// SocketID names a host socket: the execution context that owns it and
// its handle in that context's table.
type SocketID struct {
	Context offload.ContextID
	Handle  resource.Handle
}

func (id SocketID) String() string {
	return fmt.Sprintf("%d/%d", id.Context, id.Handle)
}

// Network creates sockets whose host side lives on one offload pool.
type Network struct {
	pool *offload.Pool
}

// NewPool creates an offload pool running socket handlers.
func NewPool(cfg offload.Config) *offload.Pool {
	if cfg.Name == "" {
		cfg.Name = "sockets"
	}
	return offload.NewPool(cfg, NewHandler)
}

// NewNetwork creates a network submitting to pool.
func NewNetwork(pool *offload.Pool) *Network {
	return &Network{pool: pool}
}

// CreateTCPSocket opens an unbound TCP socket of family.
func (n *Network) CreateTCPSocket(ctx context.Context, family IPAddressFamily) (*TCPSocket, error) {
	id, err := n.create(ctx, opTCPCreate, family)
	if err != nil {
		return nil, err
	}
	return newTCPSocket(n, id, family, TCPStateUnbound), nil
}

// CreateUDPSocket opens an unbound UDP socket of family.
func (n *Network) CreateUDPSocket(ctx context.Context, family IPAddressFamily) (*UDPSocket, error) {
	id, err := n.create(ctx, opUDPCreate, family)
	if err != nil {
		return nil, err
	}
	return newUDPSocket(n, id, family), nil
}

func (n *Network) create(ctx context.Context, op string, family IPAddressFamily) (SocketID, error) {
	if !family.valid() {
		return SocketID{}, errcode.InvalidArgument
	}
	v, err := n.pool.Submit(op, &request{Family: family}).Await(ctx)
	if err != nil {
		Logger().Debug("socket create failed", zap.String("op", op), zap.Error(err))
		return SocketID{}, mapError(err)
	}
	id, ok := v.(SocketID)
	if !ok {
		return SocketID{}, fmt.Errorf("sockets: %s returned %T", op, v)
	}
	return id, nil
}

// call submits op for the socket and waits for the reply.
func (n *Network) call(ctx context.Context, id SocketID, op string, r *request, opts ...offload.SubmitOption) (any, error) {
	r.Handle = id.Handle
	opts = append(opts, offload.WithContext(id.Context))
	v, err := n.pool.Submit(op, r, opts...).Await(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return v, nil
}

// async submits op for the socket and returns a future of the mapped
// outcome.
func (n *Network) async(id SocketID, op string, r *request, opts ...offload.SubmitOption) *future.Reader[struct{}] {
	r.Handle = id.Handle
	opts = append(opts, offload.WithContext(id.Context))
	res := n.pool.Submit(op, r, opts...)

	w, out := future.New[struct{}]()
	go func() {
		if _, err := res.Await(context.Background()); err != nil {
			w.Abort(mapError(err))
			return
		}
		w.Write(struct{}{})
	}()
	return out
}

// dispose releases the host socket without waiting.
func (n *Network) dispose(id SocketID, op string) {
	n.pool.Submit(op, &request{Handle: id.Handle}, offload.WithContext(id.Context))
}

func logFailure(op string, id SocketID, err error) {
	Logger().Debug("socket operation failed",
		zap.String("op", op),
		zap.Stringer("socket", id),
		zap.Error(err))
}

// mapError normalizes a failure to a network code. Faults, usage errors
// and context errors pass through.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if c, ok := errcode.As(err); ok {
		return c
	}
	if offload.IsFault(err) {
		return err
	}

	var we *offload.WireError
	if errors.As(err, &we) {
		if c, ok := we.Portable(); ok {
			return c
		}
		return errcode.Network(we.Host())
	}

	var usage *shimerrors.Error
	if errors.As(err, &usage) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errcode.Network(errcode.FromError(err))
}
