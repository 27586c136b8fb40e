package api

import (
	"time"

	"github.com/dandytbermillo/canvasd/internal/geom"
	"github.com/dandytbermillo/canvasd/internal/models"
)

// CreatePanelRequest is the request body for creating a panel. Callers that
// already hold a composite store key may send it instead of noteId.
type CreatePanelRequest struct {
	NoteID   string      `json:"noteId,omitempty" example:"note-1"`
	PanelID  string      `json:"panelId,omitempty" example:"branch-1"`
	StoreKey string      `json:"storeKey,omitempty" example:"note-1:branch-1"`
	Type     string      `json:"type" example:"branch" validate:"required"`
	Position *geom.Point `json:"position,omitempty"`
	Size     *geom.Size  `json:"size,omitempty"`
	ZIndex   int         `json:"zIndex,omitempty" example:"120"`
	Title    string      `json:"title,omitempty" example:"Draft"`
	ParentID string      `json:"parentId,omitempty" example:"main"`
}

// ClosePanelRequest is the request body for soft-closing a panel.
type ClosePanelRequest struct {
	PanelID string `json:"panelId" example:"branch-1" validate:"required"`
}

// UpdatePanelRequest is the request body for partial panel updates. Only the
// fields present are applied.
type UpdatePanelRequest struct {
	NoteID   string      `json:"noteId" example:"note-1" validate:"required"`
	Position *geom.Point `json:"position,omitempty"`
	Size     *geom.Size  `json:"size,omitempty"`
	Title    *string     `json:"title,omitempty" example:"Renamed"`
}

// SetCameraRequest is the request body for replacing a note's camera.
type SetCameraRequest struct {
	Camera geom.Camera `json:"camera" validate:"required"`
	UserID string      `json:"userId,omitempty" example:"user-7"`
}

// Command ops accepted by the commands endpoint.
const (
	OpPanBy             = "pan_by"
	OpZoomIn            = "zoom_in"
	OpZoomOut           = "zoom_out"
	OpZoomAt            = "zoom_at"
	OpResetView         = "reset_view"
	OpToggleConnections = "toggle_connections"
	OpCenterPanel       = "center_panel"
	OpSetViewport       = "set_viewport"
)

// CommandRequest is the request body for imperative camera commands.
type CommandRequest struct {
	Op       string      `json:"op" example:"pan_by" validate:"required"`
	Dx       float64     `json:"dx,omitempty" example:"24"`
	Dy       float64     `json:"dy,omitempty" example:"-12"`
	Screen   *geom.Point `json:"screen,omitempty"`
	Factor   float64     `json:"factor,omitempty" example:"1.1"`
	PanelID  string      `json:"panelId,omitempty" example:"branch-1"`
	Viewport *geom.Size  `json:"viewport,omitempty"`
}

// StateResponse is the hydrated canvas state for one note.
type StateResponse struct {
	NoteID      string              `json:"noteId" example:"note-1" validate:"required"`
	Viewport    geom.Camera         `json:"viewport" validate:"required"`
	Items       []models.PanelItem  `json:"items" validate:"required"`
	Connections []models.Connection `json:"connections" validate:"required"`
	SavedAt     time.Time           `json:"savedAt"`
	Ready       bool                `json:"ready" example:"true"`
}

// CameraResponse wraps a camera returned by a command.
type CameraResponse struct {
	Camera geom.Camera `json:"camera" validate:"required"`
}

// ConnectionsResponse wraps the derived edge list.
type ConnectionsResponse struct {
	Connections []models.Connection `json:"connections" validate:"required"`
}

// OpenNotesResponse lists notes with a running engine.
type OpenNotesResponse struct {
	Notes []string `json:"notes" validate:"required"`
}
