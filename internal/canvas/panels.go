package canvas

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dandytbermillo/canvasd/internal/apperr"
	"github.com/dandytbermillo/canvasd/internal/geom"
	"github.com/dandytbermillo/canvasd/internal/models"
	"github.com/dandytbermillo/canvasd/internal/panelkey"
)

// AddPanelRequest describes a panel or component to place on the canvas.
// PanelID is generated when empty. A nil Position places the item at the
// world point currently under the viewport center.
type AddPanelRequest struct {
	PanelID  string
	ItemType models.ItemType
	Type     models.PanelType
	Position *geom.Point
	Size     *geom.Size
	ZIndex   int
	Title    string
	ParentID string
}

// AddPanel creates a panel, writes its record to the panel store, and mirrors
// the create to the remote API. The created item is returned.
func (e *Engine) AddPanel(req AddPanelRequest) (models.PanelItem, error) {
	req.ItemType = models.ItemPanel
	return e.addItem(req)
}

// AddComponent places a non-panel canvas entity (componentType is its
// semantic kind). Components live in the snapshot only; the panel store and
// the remote API never see them.
func (e *Engine) AddComponent(componentType string, pos *geom.Point) (models.PanelItem, error) {
	return e.addItem(AddPanelRequest{
		ItemType: models.ItemComponent,
		Type:     models.PanelType(componentType),
		Position: pos,
	})
}

func (e *Engine) addItem(req AddPanelRequest) (models.PanelItem, error) {
	if req.Position != nil && !req.Position.IsFinite() {
		return models.PanelItem{}, fmt.Errorf("canvas: position not finite: %w", apperr.ErrInvalid)
	}
	var out models.PanelItem
	var opErr error
	err := e.exec(func(e *Engine) { out, opErr = e.placeItem(req) })
	if err != nil {
		return models.PanelItem{}, err
	}
	return out, opErr
}

func (e *Engine) placeItem(req AddPanelRequest) (models.PanelItem, error) {
	id := req.PanelID
	if id == "" {
		id = ulid.Make().String()
	}
	if !panelkey.Valid(id) {
		return models.PanelItem{}, fmt.Errorf("canvas: invalid panel id %q: %w", id, apperr.ErrInvalid)
	}
	key := panelkey.Ensure(e.noteID, id)
	if e.findItem(key) >= 0 {
		return models.PanelItem{}, fmt.Errorf("canvas: panel %s: %w", key, apperr.ErrAlreadyExists)
	}
	if req.ItemType == models.ItemPanel && e.store.Has(key) && !e.closedKeys[key] {
		return models.PanelItem{}, fmt.Errorf("canvas: panel %s: %w", key, apperr.ErrAlreadyExists)
	}

	pos := e.viewportCenterWorld()
	if req.Position != nil {
		pos = *req.Position
	}
	panelType := req.Type
	if panelType == "" {
		panelType = models.PanelBranch
	}
	now := time.Now().UTC()

	item := models.PanelItem{
		ItemType:   req.ItemType,
		PanelID:    id,
		NoteID:     e.noteID,
		StoreKey:   key,
		Position:   pos,
		Dimensions: req.Size,
		PanelType:  panelType,
		Title:      req.Title,
		ZIndex:     e.nextZIndex(req.ZIndex),
		UpdatedAt:  now,
	}
	e.items = append(e.items, item)
	delete(e.closedKeys, key)

	if req.ItemType == models.ItemPanel {
		rec := models.PanelRecord{
			Position:   &pos,
			ParentID:   req.ParentID,
			Type:       panelType,
			Title:      req.Title,
			Dimensions: req.Size,
			UpdatedAt:  now,
		}
		e.store.Set(key, rec)
		if e.remote != nil {
			e.remote.CreatePanel(e.noteID, item, rec)
		}
		e.connsDirty = true
	}

	e.stateDirty = true
	e.publish("panel.created", map[string]any{"noteId": e.noteID, "item": item})
	return item, nil
}

// viewportCenterWorld returns the world point under the viewport center.
func (e *Engine) viewportCenterWorld() geom.Point {
	return e.cam.ScreenToWorld(geom.Point{X: e.viewport.Width / 2, Y: e.viewport.Height / 2})
}

func (e *Engine) nextZIndex(requested int) int {
	if requested != 0 {
		return requested
	}
	max := 0
	for _, it := range e.items {
		if it.ZIndex > max {
			max = it.ZIndex
		}
	}
	return max + 1
}

// ClosePanel removes a panel from the canvas without touching its store
// record; the record re-merges on the next hydration. The main panel cannot
// be closed.
func (e *Engine) ClosePanel(panelID string) error {
	var opErr error
	err := e.exec(func(e *Engine) {
		key := panelkey.Ensure(e.noteID, panelID)
		idx := e.findItem(key)
		if idx < 0 {
			opErr = fmt.Errorf("canvas: panel %s: %w", key, apperr.ErrNotFound)
			return
		}
		if e.items[idx].ItemType == models.ItemPanel && e.items[idx].PanelID == models.MainPanelID {
			opErr = fmt.Errorf("canvas: main panel cannot be closed: %w", apperr.ErrConflict)
			return
		}
		item := e.items[idx]
		e.items = append(e.items[:idx], e.items[idx+1:]...)
		if item.ItemType == models.ItemPanel {
			e.closedKeys[key] = true
		}
		delete(e.live, key)
		e.publish("panel.deleted", map[string]any{
			"noteId": e.noteID, "panelId": item.PanelID, "storeKey": key, "hard": false,
		})
		e.connsDirty = true
		e.stateDirty = true
	})
	if err != nil {
		return err
	}
	return opErr
}

// DeletePanel removes a panel from the canvas and from the panel store, and
// mirrors the delete to the remote API. storeKey, when non-empty, names the
// composite key directly (it wins over panelID). The main panel cannot be
// deleted.
func (e *Engine) DeletePanel(panelID, storeKey string) error {
	var opErr error
	err := e.exec(func(e *Engine) {
		id := panelID
		if storeKey != "" {
			id = storeKey
		}
		key := panelkey.Ensure(e.noteID, id)
		if panelkey.PanelID(key) == models.MainPanelID {
			opErr = fmt.Errorf("canvas: main panel cannot be deleted: %w", apperr.ErrConflict)
			return
		}

		removed := false
		if idx := e.findItem(key); idx >= 0 {
			e.items = append(e.items[:idx], e.items[idx+1:]...)
			removed = true
		}
		if e.store.Has(key) {
			e.store.Delete(key)
			removed = true
		}
		if !removed {
			opErr = fmt.Errorf("canvas: panel %s: %w", key, apperr.ErrNotFound)
			return
		}

		delete(e.live, key)
		delete(e.closedKeys, key)
		if e.remote != nil {
			e.remote.DeletePanel(e.noteID, panelkey.PanelID(key), key)
		}
		e.publish("panel.deleted", map[string]any{
			"noteId": e.noteID, "panelId": panelkey.PanelID(key), "storeKey": key, "hard": true,
		})
		e.connsDirty = true
		e.stateDirty = true
	})
	if err != nil {
		return err
	}
	return opErr
}

// syncRecord mirrors a panel item's mutable fields back onto its store
// record. The store stays the authoritative position source, so committed
// moves must land there, not only in the snapshot.
func (e *Engine) syncRecord(it models.PanelItem) {
	if it.ItemType != models.ItemPanel {
		return
	}
	rec, ok := e.store.Get(it.StoreKey)
	if !ok {
		return
	}
	pos := it.Position
	rec.Position = &pos
	rec.Dimensions = it.Dimensions
	rec.Title = it.Title
	rec.UpdatedAt = it.UpdatedAt
	e.store.Set(it.StoreKey, rec)
}

// MovePanel updates an item's world position (a committed drag, not a live
// frame).
func (e *Engine) MovePanel(panelID string, pos geom.Point) error {
	if !pos.IsFinite() {
		return fmt.Errorf("canvas: position not finite: %w", apperr.ErrInvalid)
	}
	return e.updateItem(panelID, func(it *models.PanelItem) {
		it.Position = pos
	})
}

// ResizePanel records a measured or user-set panel size.
func (e *Engine) ResizePanel(panelID string, size geom.Size) error {
	if size.Width <= 0 || size.Height <= 0 {
		return fmt.Errorf("canvas: size must be positive: %w", apperr.ErrInvalid)
	}
	return e.updateItem(panelID, func(it *models.PanelItem) {
		sz := size
		it.Dimensions = &sz
	})
}

// RenamePanel sets the item title.
func (e *Engine) RenamePanel(panelID, title string) error {
	return e.updateItem(panelID, func(it *models.PanelItem) {
		it.Title = title
	})
}

func (e *Engine) updateItem(panelID string, apply func(*models.PanelItem)) error {
	var opErr error
	err := e.exec(func(e *Engine) {
		key := panelkey.Ensure(e.noteID, panelID)
		idx := e.findItem(key)
		if idx < 0 {
			opErr = fmt.Errorf("canvas: panel %s: %w", key, apperr.ErrNotFound)
			return
		}
		apply(&e.items[idx])
		e.items[idx].UpdatedAt = time.Now().UTC()
		e.syncRecord(e.items[idx])
		e.publish("panel.updated", map[string]any{"noteId": e.noteID, "item": e.items[idx]})
		e.connsDirty = true
		e.stateDirty = true
	})
	if err != nil {
		return err
	}
	return opErr
}
