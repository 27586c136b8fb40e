package archive

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dandytbermillo/canvasd/internal/apperr"
	"github.com/dandytbermillo/canvasd/internal/snapshot"
)

// ImportCallback is called after a watcher-driven cache import.
type ImportCallback func(noteID string)

// Watch starts an fsnotify watcher on the archive directory and imports
// documents dropped or rewritten there until ctx is cancelled. A syncing
// tool landing a newer export makes it visible to the next hydration without
// a restart.
//
// Only documents newer than the cached snapshot import; the watcher never
// deletes cache state, a vanished file just stops shadowing the local copy.
// Rename events schedule a short reconciliation pass since the new name
// arrives as a separate create, if at all.
func Watch(ctx context.Context, cache snapshot.Cache, fsProv *FS, logger *slog.Logger, cb ImportCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(fsProv.Root()); err != nil {
		return err
	}

	logger.Info("archive watcher: started", slog.String("root", fsProv.Root()))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("archive watcher: stopped")
			return nil

		case <-reconcileCh:
			if err := Sync(ctx, cache, fsProv, logger); err != nil {
				logger.Warn("archive watcher: reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			noteID := NoteIDFromPath(ev.Name)
			if noteID == "" {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if importDocument(ctx, cache, fsProv, noteID, logger) && cb != nil {
					cb(noteID)
				}

			case ev.Op&fsnotify.Rename != 0:
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("archive watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// importDocument loads one document and imports it when it is newer than the
// cached snapshot. Returns whether the cache changed.
func importDocument(ctx context.Context, cache snapshot.Cache, prov Provider, noteID string, logger *slog.Logger) bool {
	data, err := prov.Read(ctx, noteID)
	if err != nil {
		// The file can vanish between the event and the read.
		if !errors.Is(err, apperr.ErrNotFound) {
			logger.Warn("archive watcher: read failed",
				slog.String("note_id", noteID), slog.String("error", err.Error()))
		}
		return false
	}
	doc, err := Decode(data)
	if err != nil {
		logger.Warn("archive watcher: skipping malformed document",
			slog.String("note_id", noteID), slog.String("error", err.Error()))
		return false
	}

	cached, err := cache.Load(noteID)
	if err == nil && !doc.SavedAt.After(cached.SavedAt) {
		return false
	}
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		logger.Warn("archive watcher: cache load failed",
			slog.String("note_id", noteID), slog.String("error", err.Error()))
		return false
	}
	if err := cache.Save(noteID, doc.Snapshot); err != nil {
		logger.Warn("archive watcher: import failed",
			slog.String("note_id", noteID), slog.String("error", err.Error()))
		return false
	}
	logger.Info("archive watcher: imported", slog.String("note_id", noteID))
	return true
}
