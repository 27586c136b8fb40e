package canvas

import (
	"errors"
	"log/slog"
	"time"

	"github.com/dandytbermillo/canvasd/internal/apperr"
	"github.com/dandytbermillo/canvasd/internal/geom"
	"github.com/dandytbermillo/canvasd/internal/models"
	"github.com/dandytbermillo/canvasd/internal/panelkey"
)

// Hydration outcomes.
const (
	outcomeFresh    = "fresh"
	outcomeRestored = "restored"
	outcomeRepaired = "repaired"
)

// hydrate reconstructs the canvas from its persisted and cached sources and
// runs once, before the loop serves its first command. The main-panel
// position resolves in priority order: a pending position from an in-flight
// workspace operation, then the short-lived cache of recently open notes,
// then the store record and the snapshot (the store replacing the snapshot
// only on corruption-grade divergence), then the configured default.
func (e *Engine) hydrate() {
	mainKey := panelkey.Ensure(e.noteID, models.MainPanelID)
	now := time.Now().UTC()

	snap, err := e.cache.Load(e.noteID)
	hasSnap := err == nil
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		e.logger.Warn("canvas: snapshot load failed, treating as absent",
			slog.String("note_id", e.noteID), slog.String("error", err.Error()))
	}

	var items []models.PanelItem
	mainFromSnapshot := false
	if hasSnap {
		cam := snap.Viewport
		if cam.Zoom == 0 || !cam.Translate().IsFinite() {
			cam = e.cfg.DefaultCamera
		}
		cam.Zoom = geom.ClampZoom(cam.Zoom, e.cfg.MinZoom, e.cfg.MaxZoom)
		e.cam = cam
		items = normalizeItems(e.noteID, snap.Items)
		mainFromSnapshot = indexOfKey(items, mainKey) >= 0
	} else {
		e.cam = e.cfg.DefaultCamera
	}

	// Panels present in the store but absent from the snapshot are merged
	// in, never silently dropped.
	for _, key := range e.store.Keys() {
		if panelkey.NoteID(key) != e.noteID || indexOfKey(items, key) >= 0 {
			continue
		}
		rec, ok := e.store.Get(key)
		if !ok {
			continue
		}
		pos, ok := rec.Pos()
		if !ok || !pos.IsFinite() {
			continue
		}
		items = append(items, itemFromRecord(e.noteID, key, rec, pos))
	}

	// Exactly one main panel must exist for an open note. Seed it when no
	// source supplied one, persisting the seed at most once.
	seededNow := false
	mainIdx := indexOfKey(items, mainKey)
	if mainIdx < 0 {
		pos := e.cfg.DefaultPanelPosition
		items = append(items, mainPanelItem(e.noteID, mainKey, pos, now))
		mainIdx = len(items) - 1
		seededNow = true
		if !e.seeded && !e.store.Has(mainKey) {
			e.seeded = true
			rec := models.PanelRecord{Position: &pos, Type: models.PanelMain, UpdatedAt: now}
			e.store.Set(mainKey, rec)
			if e.remote != nil {
				e.remote.CreatePanel(e.noteID, items[mainIdx], rec)
			}
		}
		e.stateDirty = true
	}

	outcome := outcomeRestored
	if seededNow && !hasSnap {
		outcome = outcomeFresh
	}

	// A restored main position is checked against the store before it is
	// accepted; gross divergence means the snapshot was written in the
	// wrong coordinate space.
	if mainFromSnapshot {
		if rec, ok := e.store.Get(mainKey); ok {
			if auth, ok := rec.Pos(); ok && auth.IsFinite() {
				restored := items[mainIdx].Position
				fixed, repaired := repairPosition(restored, auth, e.cfg.RepairThreshold)
				if !restored.IsFinite() {
					fixed, repaired = auth, true
				}
				if repaired {
					e.logger.Warn("canvas: restored main position corrupted, repaired from store",
						slog.String("note_id", e.noteID),
						slog.Float64("restored_x", restored.X), slog.Float64("restored_y", restored.Y),
						slog.Float64("store_x", auth.X), slog.Float64("store_y", auth.Y))
					items[mainIdx].Position = fixed
					items[mainIdx].UpdatedAt = now
					outcome = outcomeRepaired
					if e.stats != nil {
						e.stats.PositionRepaired()
					}
					e.stateDirty = true
				}
			}
		} else {
			// The snapshot knows the main panel but the store lost its
			// record; reinstate it so the next boot can validate again.
			pos := items[mainIdx].Position
			e.store.Set(mainKey, models.PanelRecord{Position: &pos, Type: models.PanelMain, Title: items[mainIdx].Title, UpdatedAt: now})
		}
	}

	// Workspace hints outrank every persisted source.
	hintApplied := false
	if e.hints != nil {
		if pt, ok := e.hints.PendingPosition(e.noteID); ok && pt.IsFinite() {
			if pt != items[mainIdx].Position {
				items[mainIdx].Position = pt
				items[mainIdx].UpdatedAt = now
				hintApplied = true
			}
			e.hints.ClearPending(e.noteID)
		} else if pt, ok := e.hints.CachedPosition(e.noteID); ok && pt.IsFinite() && pt != items[mainIdx].Position {
			items[mainIdx].Position = pt
			items[mainIdx].UpdatedAt = now
			hintApplied = true
		}
	}
	if hintApplied {
		// Keep the store record in step with the hinted position so the
		// next boot does not treat the hint as corruption.
		if rec, ok := e.store.Get(mainKey); ok {
			pos := items[mainIdx].Position
			rec.Position = &pos
			rec.UpdatedAt = now
			e.store.Set(mainKey, rec)
		}
		e.stateDirty = true
	}

	if !items[mainIdx].Position.IsFinite() {
		items[mainIdx].Position = e.cfg.DefaultPanelPosition
		e.stateDirty = true
	}

	e.items = items
	e.connsDirty = true
	e.ready.Store(true)

	if e.stats != nil {
		e.stats.HydrationDone(outcome)
	}
	e.publish("canvas.hydrated", map[string]any{
		"noteId": e.noteID, "outcome": outcome, "items": len(items),
	})
	e.logger.Info("canvas: hydrated",
		slog.String("note_id", e.noteID),
		slog.String("outcome", outcome),
		slog.Int("items", len(items)))

	// A brand-new note centers its camera on the main panel once the
	// renderer has measured it. The restored camera is already where the
	// user left it and is deliberately not re-propagated.
	if outcome == outcomeFresh {
		e.probeMeasure(1, mainKey)
	}
}

// probeMeasure waits for a live measurement of the named panel, checking up
// to the configured attempt bound. When a measurement arrives the camera
// centers on it; when the attempts run out the fallback dimensions center
// the camera instead.
func (e *Engine) probeMeasure(attempt int, key panelkey.StoreKey) {
	if r, ok := e.live[key]; ok {
		e.cam = e.cam.CenteredOn(r, e.viewport)
		e.markCamera("")
		return
	}
	if attempt >= e.cfg.MeasureAttempts {
		if idx := e.findItem(key); idx >= 0 {
			e.cam = e.cam.CenteredOn(e.items[idx].Rect(e.cfg.DefaultPanelSize), e.viewport)
			e.markCamera("")
		}
		return
	}
	e.schedule(e.cfg.MeasureDelay, func(e *Engine) {
		e.probeMeasure(attempt+1, key)
	})
}

// normalizeItems canonicalizes snapshot items: every item carries a composite
// key (sources disagree about whether panel ids arrive pre-composed),
// non-finite positions are dropped, and duplicate keys collapse to the newest
// entry while keeping first-seen order.
func normalizeItems(noteID string, in []models.PanelItem) []models.PanelItem {
	out := make([]models.PanelItem, 0, len(in))
	index := make(map[panelkey.StoreKey]int, len(in))

	for _, it := range in {
		owner := it.NoteID
		if owner == "" {
			owner = noteID
		}
		key := it.StoreKey
		if key == "" {
			key = panelkey.Ensure(owner, it.PanelID)
		}
		it.NoteID = panelkey.NoteID(key)
		it.PanelID = panelkey.PanelID(key)
		it.StoreKey = key
		if it.ItemType == "" {
			it.ItemType = models.ItemPanel
		}
		if !it.Position.IsFinite() && it.PanelID != models.MainPanelID {
			continue
		}

		if prev, ok := index[key]; ok {
			if it.UpdatedAt.After(out[prev].UpdatedAt) {
				out[prev] = it
			}
			continue
		}
		index[key] = len(out)
		out = append(out, it)
	}
	return out
}

func indexOfKey(items []models.PanelItem, key panelkey.StoreKey) int {
	for i := range items {
		if items[i].StoreKey == key {
			return i
		}
	}
	return -1
}

func itemFromRecord(noteID string, key panelkey.StoreKey, rec models.PanelRecord, pos geom.Point) models.PanelItem {
	t := rec.Type
	if panelkey.PanelID(key) == models.MainPanelID {
		t = models.PanelMain
	} else if t == "" {
		t = models.PanelBranch
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	return models.PanelItem{
		ItemType:   models.ItemPanel,
		PanelID:    panelkey.PanelID(key),
		NoteID:     noteID,
		StoreKey:   key,
		Position:   pos,
		Dimensions: rec.Dimensions,
		PanelType:  t,
		Title:      rec.Title,
		UpdatedAt:  updated,
	}
}

func mainPanelItem(noteID string, key panelkey.StoreKey, pos geom.Point, now time.Time) models.PanelItem {
	return models.PanelItem{
		ItemType:  models.ItemPanel,
		PanelID:   models.MainPanelID,
		NoteID:    noteID,
		StoreKey:  key,
		Position:  pos,
		PanelType: models.PanelMain,
		ZIndex:    1,
		UpdatedAt: now,
	}
}
