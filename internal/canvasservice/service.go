// Package canvasservice is the imperative surface over the engine manager,
// shared by the REST API and the MCP server. It resolves note ids, opens
// engines on demand, and validates requests before they reach an engine loop.
package canvasservice

import (
	"context"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/dandytbermillo/canvasd/internal/apperr"
	"github.com/dandytbermillo/canvasd/internal/canvas"
	"github.com/dandytbermillo/canvasd/internal/geom"
	"github.com/dandytbermillo/canvasd/internal/models"
	"github.com/dandytbermillo/canvasd/internal/panelkey"
)

// Service wraps the engine manager. Every method targeting a note opens its
// engine first, so the first touch of a note hydrates it.
type Service struct {
	manager *canvas.Manager
}

// NewService creates a canvas service over an engine manager.
func NewService(m *canvas.Manager) *Service {
	return &Service{manager: m}
}

// CreatePanelRequest describes a panel to create. PanelID is minted when
// empty; Position nil means "place at the viewport center". A composite
// StoreKey fills in NoteID and PanelID when those are not set explicitly.
type CreatePanelRequest struct {
	NoteID   string
	PanelID  string
	StoreKey string
	Type     string
	Position *geom.Point
	Size     *geom.Size
	ZIndex   int
	Title    string
	ParentID string
}

// Validate checks the request shape before it is handed to an engine.
func (r CreatePanelRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.NoteID, validation.Required, validation.By(validKey)),
		validation.Field(&r.PanelID, validation.By(validKeyOrEmpty)),
		validation.Field(&r.Type, validation.Required),
	)
}

func validKey(value any) error {
	id, _ := value.(string)
	if !panelkey.Valid(id) {
		return fmt.Errorf("must not be empty or contain %q", panelkey.Sep)
	}
	return nil
}

func validKeyOrEmpty(value any) error {
	id, _ := value.(string)
	if id == "" {
		return nil
	}
	return validKey(value)
}

// State opens the note if needed and returns its hydrated canvas view.
func (s *Service) State(_ context.Context, noteID string) (canvas.View, error) {
	eng, err := s.manager.Open(noteID)
	if err != nil {
		return canvas.View{}, err
	}
	return eng.State()
}

// Connections returns the note's derived edge list.
func (s *Service) Connections(_ context.Context, noteID string) ([]models.Connection, error) {
	eng, err := s.manager.Open(noteID)
	if err != nil {
		return nil, err
	}
	return eng.Connections()
}

// OpenNotes lists the ids of notes with a running engine.
func (s *Service) OpenNotes(_ context.Context) []string {
	return s.manager.OpenNotes()
}

// CloseNote flushes and tears down one note's engine.
func (s *Service) CloseNote(_ context.Context, noteID string) error {
	return s.manager.CloseNote(noteID)
}

// CreatePanel places a new panel on the note's canvas. NoteID and PanelID
// left empty are filled from StoreKey before validation.
func (s *Service) CreatePanel(_ context.Context, req CreatePanelRequest) (models.PanelItem, error) {
	if req.StoreKey != "" {
		keyNote, keyPanel := panelkey.Parse(panelkey.StoreKey(req.StoreKey))
		if req.NoteID == "" && keyNote != "" {
			req.NoteID = keyNote
		}
		if req.PanelID == "" && keyNote != "" {
			req.PanelID = keyPanel
		}
	}
	if err := req.Validate(); err != nil {
		return models.PanelItem{}, fmt.Errorf("%w: %s", apperr.ErrInvalid, err)
	}
	eng, err := s.manager.Open(req.NoteID)
	if err != nil {
		return models.PanelItem{}, err
	}
	return eng.AddPanel(canvas.AddPanelRequest{
		PanelID:  req.PanelID,
		Type:     models.PanelType(req.Type),
		Position: req.Position,
		Size:     req.Size,
		ZIndex:   req.ZIndex,
		Title:    req.Title,
		ParentID: req.ParentID,
	})
}

// AddComponent places a non-panel canvas entity.
func (s *Service) AddComponent(_ context.Context, noteID, componentType string, pos *geom.Point) (models.PanelItem, error) {
	if componentType == "" {
		return models.PanelItem{}, fmt.Errorf("%w: component type is required", apperr.ErrInvalid)
	}
	eng, err := s.manager.Open(noteID)
	if err != nil {
		return models.PanelItem{}, err
	}
	return eng.AddComponent(componentType, pos)
}

// DeletePanel removes a panel and its store record. The note is resolved
// from the store key when one is given, otherwise noteID must be set.
func (s *Service) DeletePanel(_ context.Context, noteID, panelID, storeKey string) error {
	if storeKey != "" {
		if fromKey := panelkey.NoteID(panelkey.StoreKey(storeKey)); fromKey != "" {
			noteID = fromKey
		}
	}
	if noteID == "" {
		return fmt.Errorf("%w: note id or store key is required", apperr.ErrInvalid)
	}
	eng, err := s.manager.Open(noteID)
	if err != nil {
		return err
	}
	return eng.DeletePanel(panelID, storeKey)
}

// ClosePanel soft-closes a panel: the item leaves the canvas but the store
// record survives, so the panel can come back later.
func (s *Service) ClosePanel(_ context.Context, noteID, panelID string) error {
	eng, err := s.manager.Open(noteID)
	if err != nil {
		return err
	}
	return eng.ClosePanel(panelID)
}

// MovePanel commits a new world-space position for a panel.
func (s *Service) MovePanel(_ context.Context, noteID, panelID string, pos geom.Point) error {
	eng, err := s.manager.Open(noteID)
	if err != nil {
		return err
	}
	return eng.MovePanel(panelID, pos)
}

// ResizePanel commits new dimensions for a panel.
func (s *Service) ResizePanel(_ context.Context, noteID, panelID string, size geom.Size) error {
	eng, err := s.manager.Open(noteID)
	if err != nil {
		return err
	}
	return eng.ResizePanel(panelID, size)
}

// RenamePanel updates a panel's title.
func (s *Service) RenamePanel(_ context.Context, noteID, panelID, title string) error {
	eng, err := s.manager.Open(noteID)
	if err != nil {
		return err
	}
	return eng.RenamePanel(panelID, title)
}

// SetCamera replaces the note's camera wholesale, attributed to userID.
func (s *Service) SetCamera(_ context.Context, noteID string, cam geom.Camera, userID string) (geom.Camera, error) {
	eng, err := s.manager.Open(noteID)
	if err != nil {
		return geom.Camera{}, err
	}
	return eng.SetCamera(cam, userID)
}

// PanBy shifts the camera by a screen-space delta.
func (s *Service) PanBy(_ context.Context, noteID string, dx, dy float64) (geom.Camera, error) {
	eng, err := s.manager.Open(noteID)
	if err != nil {
		return geom.Camera{}, err
	}
	return eng.PanBy(dx, dy)
}

// ZoomIn zooms toward the viewport center by the configured step.
func (s *Service) ZoomIn(_ context.Context, noteID string) (geom.Camera, error) {
	eng, err := s.manager.Open(noteID)
	if err != nil {
		return geom.Camera{}, err
	}
	return eng.ZoomIn()
}

// ZoomOut zooms away from the viewport center by the configured step.
func (s *Service) ZoomOut(_ context.Context, noteID string) (geom.Camera, error) {
	eng, err := s.manager.Open(noteID)
	if err != nil {
		return geom.Camera{}, err
	}
	return eng.ZoomOut()
}

// ZoomAt zooms anchored at a screen point.
func (s *Service) ZoomAt(_ context.Context, noteID string, screen geom.Point, factor float64) (geom.Camera, error) {
	eng, err := s.manager.Open(noteID)
	if err != nil {
		return geom.Camera{}, err
	}
	return eng.ZoomAt(screen, factor)
}

// ResetView restores the default camera.
func (s *Service) ResetView(_ context.Context, noteID string) (geom.Camera, error) {
	eng, err := s.manager.Open(noteID)
	if err != nil {
		return geom.Camera{}, err
	}
	return eng.ResetView()
}

// ToggleConnections flips connection-line visibility.
func (s *Service) ToggleConnections(_ context.Context, noteID string) (geom.Camera, error) {
	eng, err := s.manager.Open(noteID)
	if err != nil {
		return geom.Camera{}, err
	}
	return eng.ToggleConnections()
}

// CenterPanel recenters the camera on one panel.
func (s *Service) CenterPanel(_ context.Context, noteID, panelID string) (geom.Camera, error) {
	eng, err := s.manager.Open(noteID)
	if err != nil {
		return geom.Camera{}, err
	}
	return eng.CenterOnPanel(panelID)
}

// SetViewport records the renderer's viewport size for centering math.
func (s *Service) SetViewport(_ context.Context, noteID string, sz geom.Size) error {
	eng, err := s.manager.Open(noteID)
	if err != nil {
		return err
	}
	return eng.SetViewportSize(sz)
}
