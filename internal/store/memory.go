package store

import (
	"sync"

	"github.com/dandytbermillo/canvasd/internal/models"
	"github.com/dandytbermillo/canvasd/internal/panelkey"
)

// Memory is the default PanelStore: a mutex-guarded map with synchronous
// listener fan-out. Events are dispatched after the lock is released so a
// listener may call back into the store.
type Memory struct {
	mu        sync.RWMutex
	records   map[panelkey.StoreKey]models.PanelRecord
	listeners map[int]Listener
	nextID    int
}

// NewMemory creates an empty in-memory panel store.
func NewMemory() *Memory {
	return &Memory{
		records:   make(map[panelkey.StoreKey]models.PanelRecord),
		listeners: make(map[int]Listener),
	}
}

// Get returns the record for key.
func (m *Memory) Get(key panelkey.StoreKey) (models.PanelRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	return rec, ok
}

// Set inserts or replaces the record for key and notifies listeners with
// OpSet for a new key or OpUpdate for an existing one.
func (m *Memory) Set(key panelkey.StoreKey, rec models.PanelRecord) {
	m.mu.Lock()
	_, existed := m.records[key]
	m.records[key] = rec
	ls := m.snapshotListeners()
	m.mu.Unlock()

	op := OpSet
	if existed {
		op = OpUpdate
	}
	recCopy := rec
	dispatch(ls, Event{Op: op, Key: key, Record: &recCopy})
}

// Has reports whether key is present.
func (m *Memory) Has(key panelkey.StoreKey) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[key]
	return ok
}

// Delete removes key if present and notifies listeners.
func (m *Memory) Delete(key panelkey.StoreKey) {
	m.mu.Lock()
	_, existed := m.records[key]
	delete(m.records, key)
	ls := m.snapshotListeners()
	m.mu.Unlock()

	if existed {
		dispatch(ls, Event{Op: OpDelete, Key: key})
	}
}

// Keys returns every key currently present.
func (m *Memory) Keys() []panelkey.StoreKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]panelkey.StoreKey, 0, len(m.records))
	for k := range m.records {
		out = append(out, k)
	}
	return out
}

// Subscribe registers l and returns its cancel func.
func (m *Memory) Subscribe(l Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// snapshotListeners copies the listener set; callers must hold mu.
func (m *Memory) snapshotListeners() []Listener {
	out := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		out = append(out, l)
	}
	return out
}

func dispatch(ls []Listener, ev Event) {
	for _, l := range ls {
		l(ev)
	}
}
