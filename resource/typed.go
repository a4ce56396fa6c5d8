package resource

import "sync"

// Typed provides type-safe access to resources of one kind.
type Typed[T any] struct {
	table *Table
	kind  Kind
}

// NewTyped returns a view of t restricted to kind.
func NewTyped[T any](t *Table, kind Kind) Typed[T] {
	return Typed[T]{table: t, kind: kind}
}

// Insert adds a value and returns its handle.
func (v Typed[T]) Insert(value T) (Handle, error) {
	return v.table.Insert(v.kind, value)
}

// Get retrieves a value by handle.
func (v Typed[T]) Get(h Handle) (T, bool) {
	var zero T
	value, ok := v.table.GetKind(h, v.kind)
	if !ok {
		return zero, false
	}
	typed, ok := value.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Remove drops a value of this kind, releasing it.
func (v Typed[T]) Remove(h Handle) (bool, error) {
	if _, ok := v.table.GetKind(h, v.kind); !ok {
		return false, nil
	}
	_, ok, err := v.table.Remove(h)
	return ok, err
}

// Tracker is an Observer counting live resources per kind. Context
// handlers attach one to report host handles still open when they close.
type Tracker struct {
	counts map[Kind]int
	mu     sync.RWMutex
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{counts: make(map[Kind]int)}
}

// OnResourceEvent implements Observer.
func (t *Tracker) OnResourceEvent(e Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch e.Type {
	case EventCreated:
		t.counts[e.Kind]++
	case EventDropped:
		t.counts[e.Kind]--
	}
}

// Live returns the number of live resources of kind.
func (t *Tracker) Live(kind Kind) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.counts[kind]
}

// Snapshot returns the kinds with live resources and their counts.
func (t *Tracker) Snapshot() map[Kind]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[Kind]int, len(t.counts))
	for k, n := range t.counts {
		if n > 0 {
			out[k] = n
		}
	}
	return out
}
