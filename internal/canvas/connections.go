package canvas

import (
	"sort"

	"github.com/dandytbermillo/canvasd/internal/geom"
	"github.com/dandytbermillo/canvasd/internal/models"
	"github.com/dandytbermillo/canvasd/internal/panelkey"
	"github.com/dandytbermillo/canvasd/internal/store"
)

// rectSource resolves the current bounding rectangle for a panel, preferring
// a live measurement over the last-known item state.
type rectSource func(key panelkey.StoreKey) (geom.Rect, bool)

// buildConnections derives the parent→child edge list for the canvas. Edges
// run from the parent's right-center anchor to the child's left-center
// anchor, in world space. Both pointer directions are honored: a child's
// parentId and a parent's branches list produce the same edge, de-duplicated
// by id. Parent and child ids resolve within the owning panel's note, so a
// merged workspace never links panels across notes by a coincidentally equal
// bare id. A dangling parentId yields no edge. The result is ordered by edge
// id so repeated builds over the same state compare equal.
func buildConnections(items []models.PanelItem, st store.PanelStore, rects rectSource, fallback geom.Size) []models.Connection {
	byKey := make(map[panelkey.StoreKey]models.PanelItem, len(items))
	for _, it := range items {
		if it.ItemType != models.ItemPanel {
			continue
		}
		byKey[it.StoreKey] = it
	}

	rectFor := func(it models.PanelItem) geom.Rect {
		if r, ok := rects(it.StoreKey); ok {
			return r
		}
		return it.Rect(fallback)
	}

	edges := make(map[string]models.Connection)
	addEdge := func(parent, child models.PanelItem) {
		id := models.ConnectionID(parent.PanelID, child.PanelID)
		if _, ok := edges[id]; ok {
			return
		}
		edges[id] = models.Connection{
			ID:   id,
			From: rectFor(parent).RightCenter(),
			To:   rectFor(child).LeftCenter(),
			Kind: models.ConnectionBranch,
		}
	}

	// Forward pass: child records naming a parent.
	for _, it := range byKey {
		rec, ok := st.Get(it.StoreKey)
		if !ok || rec.ParentID == "" {
			continue
		}
		parentKey := panelkey.Ensure(panelkey.NoteID(it.StoreKey), rec.ParentID)
		parent, ok := byKey[parentKey]
		if !ok {
			continue
		}
		addEdge(parent, it)
	}

	// Reverse pass: parent records naming children. Covers stores that only
	// populate one direction.
	for _, it := range byKey {
		rec, ok := st.Get(it.StoreKey)
		if !ok {
			continue
		}
		for _, childID := range rec.Branches {
			childKey := panelkey.Ensure(panelkey.NoteID(it.StoreKey), childID)
			child, ok := byKey[childKey]
			if !ok {
				continue
			}
			addEdge(it, child)
		}
	}

	out := make([]models.Connection, 0, len(edges))
	for _, c := range edges {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
