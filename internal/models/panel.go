// Package models defines the domain types for canvasd.
package models

import (
	"time"

	"github.com/dandytbermillo/canvasd/internal/geom"
	"github.com/dandytbermillo/canvasd/internal/panelkey"
)

// ItemType distinguishes the two kinds of positioned canvas entities.
type ItemType string

const (
	ItemPanel     ItemType = "panel"
	ItemComponent ItemType = "component"
)

// PanelType is the semantic kind of a panel, driving presentation only.
type PanelType string

const (
	PanelMain   PanelType = "main"
	PanelBranch PanelType = "branch"
	PanelNote   PanelType = "note"
)

// MainPanelID is the logical id of the one panel every open note must have.
const MainPanelID = "main"

// PanelItem is a positioned entity on the canvas. Position is always world
// space. StoreKey is derived once from (NoteID, PanelID) and never
// hand-edited after that.
type PanelItem struct {
	ItemType   ItemType          `json:"itemType"`
	PanelID    string            `json:"panelId"`
	NoteID     string            `json:"noteId"`
	StoreKey   panelkey.StoreKey `json:"storeKey"`
	Position   geom.Point        `json:"position"`
	Dimensions *geom.Size        `json:"dimensions,omitempty"`
	PanelType  PanelType         `json:"panelType"`
	Title      string            `json:"title,omitempty"`
	ZIndex     int               `json:"zIndex,omitempty"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// Rect returns the item's bounding rectangle, substituting fallback for a
// missing measurement.
func (p PanelItem) Rect(fallback geom.Size) geom.Rect {
	size := fallback
	if p.Dimensions != nil && !p.Dimensions.IsZero() {
		size = *p.Dimensions
	}
	return geom.Rect{Pos: p.Position, Size: size}
}

// PanelRecord is the externally-owned store record for a panel. The engine
// treats it as read-mostly: it writes Position back only when reconciling a
// repaired coordinate. Older writers populated WorldPosition instead of
// Position, so both survive on the wire.
type PanelRecord struct {
	Position      *geom.Point `json:"position,omitempty"`
	WorldPosition *geom.Point `json:"worldPosition,omitempty"`
	ParentID      string      `json:"parentId,omitempty"`
	Type          PanelType   `json:"type"`
	Branches      []string    `json:"branches,omitempty"`
	Title         string      `json:"title,omitempty"`
	Preview       string      `json:"preview,omitempty"`
	Dimensions    *geom.Size  `json:"dimensions,omitempty"`
	UpdatedAt     time.Time   `json:"updatedAt,omitempty"`
}

// Pos resolves the record's position, preferring the modern field.
func (r PanelRecord) Pos() (geom.Point, bool) {
	if r.Position != nil {
		return *r.Position, true
	}
	if r.WorldPosition != nil {
		return *r.WorldPosition, true
	}
	return geom.Point{}, false
}

// Snapshot is the locally persisted copy of one note's camera and panel
// layout. Hydration ignores SavedAt; only the archive importer compares it,
// to keep the newer of a layout file and its cached counterpart.
type Snapshot struct {
	Viewport geom.Camera `json:"viewport"`
	Items    []PanelItem `json:"items"`
	SavedAt  time.Time   `json:"savedAt"`
}

// ConnectionKind labels the relationship an edge renders.
type ConnectionKind string

const (
	ConnectionBranch ConnectionKind = "branch"
)

// Connection is a derived, non-persisted parent→child edge between two
// panels. From and To are world-space anchor points. ID is
// "<parentPanelID>::<childPanelID>" and is unique within a note.
type Connection struct {
	ID   string         `json:"id"`
	From geom.Point     `json:"from"`
	To   geom.Point     `json:"to"`
	Kind ConnectionKind `json:"kind"`
}

// ConnectionID builds the canonical edge id for a parent/child pair.
func ConnectionID(parentPanelID, childPanelID string) string {
	return parentPanelID + "::" + childPanelID
}
