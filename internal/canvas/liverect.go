package canvas

import (
	"fmt"

	"github.com/dandytbermillo/canvasd/internal/apperr"
	"github.com/dandytbermillo/canvasd/internal/geom"
	"github.com/dandytbermillo/canvasd/internal/models"
	"github.com/dandytbermillo/canvasd/internal/panelkey"
)

// The live-rect registry decouples the engine from any particular rendering
// substrate: a renderer reports each panel's current world-space rectangle as
// it draws or drags it, and the engine prefers those measurements over the
// last-known item state for centering and connection anchors. Entries are
// transient; they never persist.

// SetLiveRect records the renderer-reported rectangle for a panel. The
// connection graph recomputes so edges stay glued to a panel mid-drag.
func (e *Engine) SetLiveRect(panelID string, r geom.Rect) error {
	if !r.Pos.IsFinite() {
		return fmt.Errorf("canvas: live rect not finite: %w", apperr.ErrInvalid)
	}
	return e.exec(func(e *Engine) {
		e.live[panelkey.Ensure(e.noteID, panelID)] = r
		e.connsDirty = true
	})
}

// ClearLiveRect forgets a panel's live measurement (panel unmounted).
func (e *Engine) ClearLiveRect(panelID string) error {
	return e.exec(func(e *Engine) {
		delete(e.live, panelkey.Ensure(e.noteID, panelID))
		e.connsDirty = true
	})
}

// CommitPanelRect lands a drag or resize: the live measurement becomes the
// item's position and dimensions and the transient entry is dropped.
func (e *Engine) CommitPanelRect(panelID string, r geom.Rect) error {
	if !r.Pos.IsFinite() {
		return fmt.Errorf("canvas: rect not finite: %w", apperr.ErrInvalid)
	}
	err := e.updateItem(panelID, func(it *models.PanelItem) {
		it.Position = r.Pos
		if !r.Size.IsZero() {
			sz := r.Size
			it.Dimensions = &sz
		}
	})
	if err != nil {
		return err
	}
	return e.exec(func(e *Engine) {
		delete(e.live, panelkey.Ensure(e.noteID, panelID))
	})
}

// liveRect is the rectSource over the registry; loop-goroutine only.
func (e *Engine) liveRect(key panelkey.StoreKey) (geom.Rect, bool) {
	r, ok := e.live[key]
	return r, ok
}

// panelRect resolves a panel's current rectangle, preferring the live
// measurement; loop-goroutine only.
func (e *Engine) panelRect(key panelkey.StoreKey) (geom.Rect, bool) {
	if r, ok := e.live[key]; ok {
		return r, true
	}
	if idx := e.findItem(key); idx >= 0 {
		return e.items[idx].Rect(e.cfg.DefaultPanelSize), true
	}
	return geom.Rect{}, false
}
