package archive

import (
	"context"
	"log/slog"
	"time"

	"github.com/dandytbermillo/canvasd/internal/models"
)

const exportTimeout = 15 * time.Second

// Exporter writes a note's snapshot to the archive whenever the debounced
// persister lands it. Export runs on the persister's timer goroutine, so a
// slow provider delays at most the next save of the same note, never a
// canvas operation.
type Exporter struct {
	prov   Provider
	logger *slog.Logger
}

// NewExporter wires a provider into an OnSaved hook.
func NewExporter(prov Provider, logger *slog.Logger) *Exporter {
	return &Exporter{prov: prov, logger: logger}
}

// Export archives one saved snapshot. Failures are logged; the snapshot
// cache already holds the state, so the next save retries naturally.
func (e *Exporter) Export(noteID string, snap models.Snapshot) {
	data, err := Encode(noteID, snap)
	if err != nil {
		e.logger.Warn("archive: encode failed",
			slog.String("note_id", noteID), slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
	defer cancel()
	if err := e.prov.Write(ctx, noteID, data); err != nil {
		e.logger.Warn("archive: export failed",
			slog.String("note_id", noteID), slog.String("error", err.Error()))
		return
	}
	e.logger.Debug("archive: exported", slog.String("note_id", noteID))
}
