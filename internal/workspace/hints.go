// Package workspace tracks cross-note position hints that outlive a single
// canvas engine: the pending position of an in-flight move between notes, and
// a short-lived cache of where recently open notes last placed their main
// panel. Both feed the hydration priority order.
package workspace

import (
	"sync"
	"time"

	"github.com/dandytbermillo/canvasd/internal/geom"
)

type cachedPos struct {
	pt      geom.Point
	expires time.Time
}

// Hints holds pending and cached main-panel positions keyed by note id.
// Pending entries live until explicitly cleared; cached entries expire after
// the configured TTL.
type Hints struct {
	ttl time.Duration

	mu      sync.Mutex
	pending map[string]geom.Point
	cached  map[string]cachedPos
}

// NewHints creates an empty hint set. ttl bounds the cached-position entries.
func NewHints(ttl time.Duration) *Hints {
	return &Hints{
		ttl:     ttl,
		pending: make(map[string]geom.Point),
		cached:  make(map[string]cachedPos),
	}
}

// SetPending records the target position of an in-flight workspace operation.
func (h *Hints) SetPending(noteID string, pt geom.Point) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending[noteID] = pt
}

// ClearPending drops the pending entry once the operation lands.
func (h *Hints) ClearPending(noteID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pending, noteID)
}

// PendingPosition returns the pending position for a note, if any.
func (h *Hints) PendingPosition(noteID string) (geom.Point, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pt, ok := h.pending[noteID]
	return pt, ok
}

// CachePosition remembers where a note last placed its main panel.
func (h *Hints) CachePosition(noteID string, pt geom.Point) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cached[noteID] = cachedPos{pt: pt, expires: time.Now().Add(h.ttl)}
}

// CachedPosition returns the cached position for a note unless it has expired.
// Expired entries are evicted on read.
func (h *Hints) CachedPosition(noteID string) (geom.Point, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.cached[noteID]
	if !ok {
		return geom.Point{}, false
	}
	if time.Now().After(entry.expires) {
		delete(h.cached, noteID)
		return geom.Point{}, false
	}
	return entry.pt, true
}
