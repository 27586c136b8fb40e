package canvas

import (
	"fmt"
	"sync"

	"github.com/dandytbermillo/canvasd/internal/apperr"
	"github.com/dandytbermillo/canvasd/internal/models"
	"github.com/dandytbermillo/canvasd/internal/panelkey"
)

// Manager owns one engine per open note. Open is idempotent; closing a note
// flushes its snapshot, tears the engine down, and leaves a position hint so
// reopening the note soon lands where it was.
type Manager struct {
	deps Deps

	mu      sync.Mutex
	engines map[string]*Engine
	closed  bool
}

// NewManager creates an engine manager over shared dependencies.
func NewManager(d Deps) *Manager {
	return &Manager{deps: d, engines: make(map[string]*Engine)}
}

// Open returns the engine for a note, starting (and hydrating) one if the
// note is not yet open.
func (m *Manager) Open(noteID string) (*Engine, error) {
	if !panelkey.Valid(noteID) {
		return nil, fmt.Errorf("canvas: invalid note id %q: %w", noteID, apperr.ErrInvalid)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, apperr.ErrClosed
	}
	if eng, ok := m.engines[noteID]; ok {
		return eng, nil
	}
	eng := New(noteID, m.deps)
	m.engines[noteID] = eng
	return eng, nil
}

// Peek returns the engine for a note only if it is already open.
func (m *Manager) Peek(noteID string) (*Engine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	eng, ok := m.engines[noteID]
	return eng, ok
}

// OpenNotes lists the currently open note ids.
func (m *Manager) OpenNotes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.engines))
	for id := range m.engines {
		out = append(out, id)
	}
	return out
}

// CloseNote tears down one note's engine. The main panel's final position is
// cached as a workspace hint before the engine stops.
func (m *Manager) CloseNote(noteID string) error {
	m.mu.Lock()
	eng, ok := m.engines[noteID]
	if ok {
		delete(m.engines, noteID)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("canvas: note %s not open: %w", noteID, apperr.ErrNotFound)
	}

	m.cacheMainPosition(eng)
	eng.Close()
	return nil
}

// CloseAll stops every engine; the manager refuses new opens afterwards.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	engines := m.engines
	m.engines = make(map[string]*Engine)
	m.closed = true
	m.mu.Unlock()

	for _, eng := range engines {
		m.cacheMainPosition(eng)
		eng.Close()
	}
}

func (m *Manager) cacheMainPosition(eng *Engine) {
	if m.deps.Hints == nil {
		return
	}
	v, err := eng.State()
	if err != nil {
		return
	}
	key := panelkey.Ensure(eng.NoteID(), models.MainPanelID)
	if idx := indexOfKey(v.Items, key); idx >= 0 {
		m.deps.Hints.CachePosition(eng.NoteID(), v.Items[idx].Position)
	}
}
