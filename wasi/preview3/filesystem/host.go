package filesystem

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasi-shim/wasi/preview3/errcode"
	"github.com/wippyai/wasi-shim/wasi/preview3/offload"
)

// Preopen is a directory granted to the guest under a logical path.
type Preopen struct {
	Descriptor *Descriptor
	Path       string
}

// Host owns the preopened directories and the pool stream operations run on.
type Host struct {
	pool     *offload.Pool
	preopens []Preopen
	roots    []*os.Root
	mu       sync.Mutex
}

// NewPool creates an offload pool running filesystem handlers.
func NewPool(cfg offload.Config) *offload.Pool {
	if cfg.Name == "" {
		cfg.Name = "filesystem"
	}
	return offload.NewPool(cfg, NewHandler)
}

// NewHost creates a host that submits stream operations to pool.
func NewHost(pool *offload.Pool) *Host {
	return &Host{pool: pool}
}

// AddPreopen opens hostPath as a directory visible to the guest as
// guestPath.
func (h *Host) AddPreopen(guestPath, hostPath string, flags DescriptorFlags) error {
	abs, err := filepath.Abs(hostPath)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return mapError(err)
	}
	if !info.IsDir() {
		return errcode.NotDirectory
	}
	root, err := os.OpenRoot(abs)
	if err != nil {
		return mapError(err)
	}
	f, err := root.Open(".")
	if err != nil {
		root.Close()
		return mapError(err)
	}

	h.mu.Lock()
	h.roots = append(h.roots, root)
	h.preopens = append(h.preopens, Preopen{
		Descriptor: newDescriptor(h.pool, root, ".", f, flags),
		Path:       guestPath,
	})
	sort.Slice(h.preopens, func(i, j int) bool { return h.preopens[i].Path < h.preopens[j].Path })
	h.mu.Unlock()

	Logger().Debug("preopen added", zap.String("guest", guestPath), zap.String("host", abs))
	return nil
}

// Preopens returns the granted directories ordered by guest path.
func (h *Host) Preopens() []Preopen {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Preopen, len(h.preopens))
	copy(out, h.preopens)
	return out
}

// Close closes every preopened descriptor and its root. Descriptors
// opened beneath a preopen fail their path operations afterwards.
func (h *Host) Close() error {
	h.mu.Lock()
	preopens, roots := h.preopens, h.roots
	h.preopens, h.roots = nil, nil
	h.mu.Unlock()

	var first error
	for _, p := range preopens {
		if err := p.Descriptor.Close(); err != nil && first == nil {
			first = err
		}
	}
	for _, r := range roots {
		if err := r.Close(); err != nil && first == nil {
			first = mapError(err)
		}
	}
	return first
}
