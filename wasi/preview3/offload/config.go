package offload

import (
	"time"

	"go.uber.org/zap"
)

const (
	DefaultMaxContexts = 4
)

// Config controls a pool's context lifecycle.
type Config struct {
	// Logger overrides the package logger for this pool.
	Logger *zap.Logger

	// Name labels log lines, e.g. "filesystem" or "sockets".
	Name string

	// MaxContexts bounds the number of live contexts. Unrouted requests
	// go to the least-loaded context once the bound is reached.
	MaxContexts int

	// IdleTimeout delays reclaiming an idle context. Zero reclaims as soon
	// as the last pending request completes.
	IdleTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxContexts <= 0 {
		c.MaxContexts = DefaultMaxContexts
	}
	if c.Name == "" {
		c.Name = "offload"
	}
	if c.Logger == nil {
		c.Logger = Logger()
	}
	return c
}

// SubmitOption adjusts a single submission.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	transfer []Transferable
	context  ContextID
	routed   bool
}

// WithTransfer hands endpoints to the request.
func WithTransfer(t ...Transferable) SubmitOption {
	return func(o *submitOptions) {
		o.transfer = append(o.transfer, t...)
	}
}

// WithContext routes the request to the context that owns a resource.
// If that context is gone the request fails with a *FaultError.
func WithContext(id ContextID) SubmitOption {
	return func(o *submitOptions) {
		o.context = id
		o.routed = true
	}
}
