package archive

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dandytbermillo/canvasd/internal/apperr"
	"github.com/dandytbermillo/canvasd/internal/snapshot"
)

// Sync reconciles the snapshot cache with the archive in both directions:
//   - archived documents newer than the cached snapshot (or absent from the
//     cache) are imported
//   - cached snapshots with no archived document are exported
//
// Malformed documents are logged and skipped, never fatal: one corrupt
// export must not block the rest of the workspace from loading.
func Sync(ctx context.Context, cache snapshot.Cache, prov Provider, logger *slog.Logger) error {
	entries, err := prov.List(ctx)
	if err != nil {
		return err
	}

	archived := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		archived[entry.NoteID] = struct{}{}

		data, err := prov.Read(ctx, entry.NoteID)
		if err != nil {
			logger.Warn("archive: read failed",
				slog.String("note_id", entry.NoteID), slog.String("error", err.Error()))
			continue
		}
		doc, err := Decode(data)
		if err != nil {
			logger.Warn("archive: skipping malformed document",
				slog.String("note_id", entry.NoteID), slog.String("error", err.Error()))
			continue
		}
		if doc.NoteID != entry.NoteID {
			logger.Warn("archive: document note id disagrees with its name, skipping",
				slog.String("note_id", entry.NoteID), slog.String("document_note_id", doc.NoteID))
			continue
		}

		cached, err := cache.Load(entry.NoteID)
		if err == nil && !doc.SavedAt.After(cached.SavedAt) {
			continue
		}
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			logger.Warn("archive: cache load failed",
				slog.String("note_id", entry.NoteID), slog.String("error", err.Error()))
			continue
		}
		if err := cache.Save(entry.NoteID, doc.Snapshot); err != nil {
			logger.Warn("archive: cache import failed",
				slog.String("note_id", entry.NoteID), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("archive: imported", slog.String("note_id", entry.NoteID))
	}

	// Export cached notes the archive has never seen.
	noteIDs, err := cache.NoteIDs()
	if err != nil {
		return err
	}
	for _, noteID := range noteIDs {
		if _, ok := archived[noteID]; ok {
			continue
		}
		snap, err := cache.Load(noteID)
		if err != nil {
			continue
		}
		data, err := Encode(noteID, snap)
		if err != nil {
			logger.Warn("archive: encode failed",
				slog.String("note_id", noteID), slog.String("error", err.Error()))
			continue
		}
		if err := prov.Write(ctx, noteID, data); err != nil {
			logger.Warn("archive: export failed",
				slog.String("note_id", noteID), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("archive: exported", slog.String("note_id", noteID))
	}

	return nil
}
