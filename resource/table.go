package resource

import (
	"errors"
	"sort"
	"sync"
)

// Table is a registry of host resources private to one execution context.
type Table struct {
	entries   map[Handle]entry
	observers []Observer
	next      Handle
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

type entry struct {
	value any
	kind  Kind
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		entries: make(map[Handle]entry, 16),
	}
}

// Insert adds a value and returns its handle.
func (t *Table) Insert(kind Kind, value any) (Handle, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, ErrClosed
	}
	t.next++
	h := t.next
	t.entries[h] = entry{value: value, kind: kind}
	t.mu.Unlock()

	t.notify(Event{
		Type:   EventCreated,
		Handle: h,
		Kind:   kind,
		Value:  value,
	})
	return h, nil
}

// Get retrieves a value by handle.
func (t *Table) Get(h Handle) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.entries[h]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// GetKind retrieves a value only if it was inserted with the given kind.
func (t *Table) GetKind(h Handle, kind Kind) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.entries[h]
	if !ok || e.kind != kind {
		return nil, false
	}
	return e.value, true
}

// Remove drops a resource, releasing it if it implements Releaser.
// The returned error is the release error, if any.
func (t *Table) Remove(h Handle) (any, bool, error) {
	t.mu.Lock()
	e, ok := t.entries[h]
	if ok {
		delete(t.entries, h)
	}
	t.mu.Unlock()
	if !ok {
		return nil, false, nil
	}

	var err error
	if r, ok := e.value.(Releaser); ok {
		err = r.Release()
	}

	t.notify(Event{
		Type:   EventDropped,
		Handle: h,
		Kind:   e.kind,
		Value:  e.value,
	})
	return e.value, true, err
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Len returns the number of live resources.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Each iterates over live resources in handle order.
func (t *Table) Each(fn func(Handle, Kind, any) bool) {
	type item struct {
		e entry
		h Handle
	}

	// Snapshot so fn may call back into the table.
	t.mu.RLock()
	items := make([]item, 0, len(t.entries))
	for h, e := range t.entries {
		items = append(items, item{h: h, e: e})
	}
	t.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool { return items[i].h < items[j].h })
	for _, it := range items {
		if !fn(it.h, it.e.kind, it.e.value) {
			return
		}
	}
}

// Clear drops all resources and returns the joined release errors.
func (t *Table) Clear() error {
	var handles []Handle
	t.Each(func(h Handle, _ Kind, _ any) bool {
		handles = append(handles, h)
		return true
	})

	var errs []error
	for _, h := range handles {
		if _, _, err := t.Remove(h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases all resources and stops accepting inserts.
func (t *Table) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	return t.Clear()
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
