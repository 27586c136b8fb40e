package snapshot

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dandytbermillo/canvasd/internal/models"
)

// Writer debounces snapshot saves for one note. Enqueue replaces any pending
// snapshot and (re)arms the timer, so a burst of mutations collapses to one
// write of the final state. Writes are serialized: a firing that arrives while
// a save is in flight waits for it, then writes the newer state. A failed save
// is logged and dropped; the next mutation schedules the next attempt.
type Writer struct {
	cache    Cache
	noteID   string
	interval time.Duration
	logger   *slog.Logger
	onSaved  func(models.Snapshot)

	mu      sync.Mutex
	timer   *time.Timer
	pending *models.Snapshot
	closed  bool

	saveMu sync.Mutex
}

// NewWriter creates a debounced writer for one note. onSaved may be nil; when
// set it is called after each committed save.
func NewWriter(cache Cache, noteID string, interval time.Duration, logger *slog.Logger, onSaved func(models.Snapshot)) *Writer {
	return &Writer{
		cache:    cache,
		noteID:   noteID,
		interval: interval,
		logger:   logger,
		onSaved:  onSaved,
	}
}

// Enqueue replaces the pending snapshot and arms (or re-arms) the timer.
func (w *Writer) Enqueue(snap models.Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.pending = &snap
	if w.timer == nil {
		w.timer = time.AfterFunc(w.interval, w.fire)
	} else {
		w.timer.Reset(w.interval)
	}
}

// Flush writes any pending snapshot immediately.
func (w *Writer) Flush() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	w.fire()
}

// Close flushes the pending snapshot and stops the timer. Enqueue calls after
// Close are ignored.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	w.fire()
}

func (w *Writer) fire() {
	w.mu.Lock()
	snap := w.pending
	w.pending = nil
	w.mu.Unlock()
	if snap == nil {
		return
	}

	w.saveMu.Lock()
	defer w.saveMu.Unlock()
	if err := w.cache.Save(w.noteID, *snap); err != nil {
		w.logger.Warn("snapshot: save failed",
			slog.String("note_id", w.noteID),
			slog.String("error", err.Error()))
		return
	}
	if w.onSaved != nil {
		w.onSaved(*snap)
	}
}
