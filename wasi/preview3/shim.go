package preview3

import (
	"context"
	"io"
	"maps"
	"slices"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-shim/errors"
	"github.com/wippyai/wasi-shim/wasi/preview3/cli"
	"github.com/wippyai/wasi-shim/wasi/preview3/clocks"
	"github.com/wippyai/wasi-shim/wasi/preview3/filesystem"
	"github.com/wippyai/wasi-shim/wasi/preview3/offload"
	"github.com/wippyai/wasi-shim/wasi/preview3/random"
	"github.com/wippyai/wasi-shim/wasi/preview3/sockets"
)

// FullAccess grants read, write and directory mutation.
const FullAccess = filesystem.FlagRead | filesystem.FlagWrite | filesystem.FlagMutateDirectory

type preopen struct {
	guest string
	host  string
	flags filesystem.DescriptorFlags
}

// Builder configures a Shim. Use New and the With methods, then Build.
type Builder struct {
	logger   *zap.Logger
	env      map[string]string
	stdio    cli.Stdio
	cwd      string
	preopens []preopen
	args     []string
	pool     offload.Config
}

// New creates a builder with no preopens and discarded stdio.
func New() *Builder {
	return &Builder{cwd: "/"}
}

// WithPreopens grants each host directory with full access under its
// guest path.
func (b *Builder) WithPreopens(preopens map[string]string) *Builder {
	for _, guest := range slices.Sorted(maps.Keys(preopens)) {
		b.preopens = append(b.preopens, preopen{guest: guest, host: preopens[guest], flags: FullAccess})
	}
	return b
}

// WithPreopen grants one host directory with explicit rights.
func (b *Builder) WithPreopen(guest, host string, flags filesystem.DescriptorFlags) *Builder {
	b.preopens = append(b.preopens, preopen{guest: guest, host: host, flags: flags})
	return b
}

// WithLogger routes the pools' log lines to l.
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithPool sets the template every pool is created from. Name and Logger
// are filled in per pool.
func (b *Builder) WithPool(cfg offload.Config) *Builder {
	b.pool = cfg
	return b
}

func (b *Builder) WithStdio(stdin io.Reader, stdout, stderr io.Writer) *Builder {
	b.stdio = cli.Stdio{Stdin: stdin, Stdout: stdout, Stderr: stderr}
	return b
}

func (b *Builder) WithEnv(env map[string]string) *Builder {
	b.env = env
	return b
}

func (b *Builder) WithArgs(args []string) *Builder {
	b.args = args
	return b
}

func (b *Builder) WithCwd(cwd string) *Builder {
	b.cwd = cwd
	return b
}

func (b *Builder) poolConfig(name string) offload.Config {
	cfg := b.pool
	cfg.Name = name
	if b.logger != nil {
		cfg.Logger = b.logger.Named(name)
	}
	return cfg
}

func (b *Builder) validate() error {
	seen := make(map[string]bool, len(b.preopens))
	for _, p := range b.preopens {
		if p.guest == "" {
			return errors.InvalidInput(errors.PhaseConfig, "preopen guest path is empty")
		}
		if seen[p.guest] {
			return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Value(p.guest).
				Detail("duplicate preopen %q", p.guest).
				Build()
		}
		seen[p.guest] = true
	}
	return nil
}

// Build opens the preopens and starts the pools.
func (b *Builder) Build() (*Shim, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	fsPool := filesystem.NewPool(b.poolConfig("filesystem"))
	s := &Shim{
		fsPool:   fsPool,
		fs:       filesystem.NewHost(fsPool),
		sockPool: sockets.NewPool(b.poolConfig("sockets")),
		clock:    clocks.NewMonotonic(),
		random:   random.NewHost(),
		cli:      cli.NewHost(b.poolConfig("cli"), b.stdio),
		env:      cli.NewEnvironment(b.env, b.args, b.cwd),
	}
	s.net = sockets.NewNetwork(s.sockPool)

	for _, p := range b.preopens {
		if err := s.fs.AddPreopen(p.guest, p.host, p.flags); err != nil {
			s.Close(context.Background())
			return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Value(p.host).
				Cause(err).
				Detail("preopen %q", p.guest).
				Build()
		}
	}
	return s, nil
}

// Shim bundles the resource hosts. Each host owns an explicit pool.
type Shim struct {
	fsPool   *offload.Pool
	sockPool *offload.Pool
	fs       *filesystem.Host
	net      *sockets.Network
	clock    *clocks.Monotonic
	random   *random.Host
	cli      *cli.Host
	env      *cli.Environment
	wall     clocks.Wall
	once     sync.Once
	closeErr error
}

func (s *Shim) Filesystem() *filesystem.Host { return s.fs }

func (s *Shim) Sockets() *sockets.Network { return s.net }

func (s *Shim) Clocks() *clocks.Monotonic { return s.clock }

func (s *Shim) WallClock() clocks.Wall { return s.wall }

func (s *Shim) Random() *random.Host { return s.random }

func (s *Shim) CLI() *cli.Host { return s.cli }

func (s *Shim) Environment() *cli.Environment { return s.env }

// Close closes the preopens, then shuts every pool down. Requests still
// pending are rejected.
func (s *Shim) Close(ctx context.Context) error {
	s.once.Do(func() {
		err := s.fs.Close()
		err = multierr.Append(err, s.cli.Close(ctx))
		err = multierr.Append(err, s.fsPool.Close(ctx))
		err = multierr.Append(err, s.sockPool.Close(ctx))
		s.closeErr = err
	})
	return s.closeErr
}
