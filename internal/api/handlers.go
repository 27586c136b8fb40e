package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dandytbermillo/canvasd/internal/apperr"
	"github.com/dandytbermillo/canvasd/internal/canvasservice"
	"github.com/dandytbermillo/canvasd/internal/geom"
	"github.com/dandytbermillo/canvasd/internal/models"
	"github.com/dandytbermillo/canvasd/internal/render"
)

const maxBodyBytes = 1 << 20 // 1 MB

// Handler holds API route handlers.
type Handler struct {
	svc *canvasservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *canvasservice.Service) *Handler {
	return &Handler{svc: svc}
}

// respondError maps domain errors onto HTTP statuses; anything unrecognized
// is a 500 and gets logged.
func respondError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, apperr.ErrAlreadyExists), errors.Is(err, apperr.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, apperr.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	default:
		slog.Error(msg, slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// GetCanvas handles GET /api/canvas/{noteID}.
//
//	@Summary		Get the hydrated canvas state for a note
//	@Tags			canvas
//	@Produce		json
//	@Param			noteID	path		string	true	"Note id"
//	@Success		200		{object}	StateResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/canvas/{noteID} [get]
func (h *Handler) GetCanvas(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "noteID")
	v, err := h.svc.State(r.Context(), noteID)
	if err != nil {
		respondError(w, r, "get canvas failed", err)
		return
	}
	writeJSON(w, http.StatusOK, StateResponse{
		NoteID:      v.NoteID,
		Viewport:    v.Viewport,
		Items:       v.Items,
		Connections: v.Connections,
		SavedAt:     v.SavedAt,
		Ready:       v.Ready,
	})
}

// ListOpen handles GET /api/canvas.
//
//	@Summary		List notes with a running canvas engine
//	@Tags			canvas
//	@Produce		json
//	@Success		200	{object}	OpenNotesResponse
//	@Security		BearerAuth
//	@Router			/canvas [get]
func (h *Handler) ListOpen(w http.ResponseWriter, r *http.Request) {
	notes := h.svc.OpenNotes(r.Context())
	writeJSON(w, http.StatusOK, OpenNotesResponse{Notes: notes})
}

// CloseNote handles DELETE /api/canvas/{noteID}.
//
//	@Summary		Flush and tear down a note's canvas engine
//	@Tags			canvas
//	@Param			noteID	path	string	true	"Note id"
//	@Success		204		"Engine closed"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/canvas/{noteID} [delete]
func (h *Handler) CloseNote(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "noteID")
	if err := h.svc.CloseNote(r.Context(), noteID); err != nil {
		respondError(w, r, "close note failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Connections handles GET /api/canvas/{noteID}/connections.
//
//	@Summary		Get the derived connection edges for a note
//	@Tags			canvas
//	@Produce		json
//	@Param			noteID	path		string	true	"Note id"
//	@Success		200		{object}	ConnectionsResponse
//	@Security		BearerAuth
//	@Router			/canvas/{noteID}/connections [get]
func (h *Handler) Connections(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "noteID")
	conns, err := h.svc.Connections(r.Context(), noteID)
	if err != nil {
		respondError(w, r, "get connections failed", err)
		return
	}
	if conns == nil {
		conns = []models.Connection{}
	}
	writeJSON(w, http.StatusOK, ConnectionsResponse{Connections: conns})
}

// Command handles POST /api/canvas/{noteID}/commands.
//
//	@Summary		Run an imperative camera command
//	@Tags			canvas
//	@Accept			json
//	@Produce		json
//	@Param			noteID	path		string			true	"Note id"
//	@Param			body	body		CommandRequest	true	"Command"
//	@Success		200		{object}	CameraResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/canvas/{noteID}/commands [post]
func (h *Handler) Command(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "noteID")
	var req CommandRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var (
		cam geom.Camera
		err error
	)
	switch req.Op {
	case OpPanBy:
		cam, err = h.svc.PanBy(r.Context(), noteID, req.Dx, req.Dy)
	case OpZoomIn:
		cam, err = h.svc.ZoomIn(r.Context(), noteID)
	case OpZoomOut:
		cam, err = h.svc.ZoomOut(r.Context(), noteID)
	case OpZoomAt:
		if req.Screen == nil {
			writeError(w, http.StatusBadRequest, "zoom_at requires screen")
			return
		}
		cam, err = h.svc.ZoomAt(r.Context(), noteID, *req.Screen, req.Factor)
	case OpResetView:
		cam, err = h.svc.ResetView(r.Context(), noteID)
	case OpToggleConnections:
		cam, err = h.svc.ToggleConnections(r.Context(), noteID)
	case OpCenterPanel:
		if req.PanelID == "" {
			writeError(w, http.StatusBadRequest, "center_panel requires panelId")
			return
		}
		cam, err = h.svc.CenterPanel(r.Context(), noteID, req.PanelID)
	case OpSetViewport:
		if req.Viewport == nil {
			writeError(w, http.StatusBadRequest, "set_viewport requires viewport")
			return
		}
		if err := h.svc.SetViewport(r.Context(), noteID, *req.Viewport); err != nil {
			respondError(w, r, "set viewport failed", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		writeError(w, http.StatusBadRequest, "unknown op")
		return
	}
	if err != nil {
		respondError(w, r, "command failed", err)
		return
	}
	writeJSON(w, http.StatusOK, CameraResponse{Camera: cam})
}

// PatchCamera handles PATCH /api/camera/{noteID}.
//
//	@Summary		Replace the note's camera state
//	@Tags			canvas
//	@Accept			json
//	@Param			noteID	path	string				true	"Note id"
//	@Param			body	body	SetCameraRequest	true	"Camera"
//	@Success		204		"Camera applied"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/camera/{noteID} [patch]
func (h *Handler) PatchCamera(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "noteID")
	var req SetCameraRequest
	if !decodeBody(w, r, &req) {
		return
	}
	userID := req.UserID
	if sub := UserID(r); sub != "" {
		userID = sub
	}
	if _, err := h.svc.SetCamera(r.Context(), noteID, req.Camera, userID); err != nil {
		respondError(w, r, "set camera failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreatePanel handles POST /api/panels.
//
//	@Summary		Create a panel on a note's canvas
//	@Tags			panels
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreatePanelRequest	true	"Panel to create"
//	@Success		201		{object}	models.PanelItem
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/panels [post]
func (h *Handler) CreatePanel(w http.ResponseWriter, r *http.Request) {
	var req CreatePanelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := h.svc.CreatePanel(r.Context(), canvasservice.CreatePanelRequest{
		NoteID:   req.NoteID,
		PanelID:  req.PanelID,
		StoreKey: req.StoreKey,
		Type:     req.Type,
		Position: req.Position,
		Size:     req.Size,
		ZIndex:   req.ZIndex,
		Title:    req.Title,
		ParentID: req.ParentID,
	})
	if err != nil {
		respondError(w, r, "create panel failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// UpdatePanel handles PATCH /api/panels/{panelID}. Present fields apply as
// move, resize, and rename respectively.
//
//	@Summary		Update a panel's position, size, or title
//	@Tags			panels
//	@Accept			json
//	@Param			panelID	path	string				true	"Panel id"
//	@Param			body	body	UpdatePanelRequest	true	"Fields to update"
//	@Success		204		"Panel updated"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/panels/{panelID} [patch]
func (h *Handler) UpdatePanel(w http.ResponseWriter, r *http.Request) {
	panelID := chi.URLParam(r, "panelID")
	var req UpdatePanelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.NoteID == "" {
		writeError(w, http.StatusBadRequest, "noteId is required")
		return
	}
	if req.Position == nil && req.Size == nil && req.Title == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}
	if req.Position != nil {
		if err := h.svc.MovePanel(r.Context(), req.NoteID, panelID, *req.Position); err != nil {
			respondError(w, r, "move panel failed", err)
			return
		}
	}
	if req.Size != nil {
		if err := h.svc.ResizePanel(r.Context(), req.NoteID, panelID, *req.Size); err != nil {
			respondError(w, r, "resize panel failed", err)
			return
		}
	}
	if req.Title != nil {
		if err := h.svc.RenamePanel(r.Context(), req.NoteID, panelID, *req.Title); err != nil {
			respondError(w, r, "rename panel failed", err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeletePanel handles DELETE /api/panels/{panelID}.
//
//	@Summary		Delete a panel and its store record
//	@Tags			panels
//	@Param			panelID		path	string	true	"Panel id"
//	@Param			noteId		query	string	false	"Note id (required without storeKey)"
//	@Param			storeKey	query	string	false	"Composite store key"
//	@Success		204			"Panel deleted"
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/panels/{panelID} [delete]
func (h *Handler) DeletePanel(w http.ResponseWriter, r *http.Request) {
	panelID := chi.URLParam(r, "panelID")
	q := r.URL.Query()
	if err := h.svc.DeletePanel(r.Context(), q.Get("noteId"), panelID, q.Get("storeKey")); err != nil {
		respondError(w, r, "delete panel failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClosePanel handles POST /api/canvas/{noteID}/close-panel.
//
//	@Summary		Soft-close a panel, keeping its store record
//	@Tags			panels
//	@Accept			json
//	@Param			noteID	path	string				true	"Note id"
//	@Param			body	body	ClosePanelRequest	true	"Panel to close"
//	@Success		204		"Panel closed"
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/canvas/{noteID}/close-panel [post]
func (h *Handler) ClosePanel(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "noteID")
	var req ClosePanelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PanelID == "" {
		writeError(w, http.StatusBadRequest, "panelId is required")
		return
	}
	if err := h.svc.ClosePanel(r.Context(), noteID, req.PanelID); err != nil {
		respondError(w, r, "close panel failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RenderPNG handles GET /api/canvas/{noteID}/render.png.
//
//	@Summary		Render the canvas to a PNG at the current camera
//	@Tags			canvas
//	@Produce		png
//	@Param			noteID	path	string	true	"Note id"
//	@Param			w		query	int		false	"Image width"
//	@Param			h		query	int		false	"Image height"
//	@Success		200		"PNG image"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/canvas/{noteID}/render.png [get]
func (h *Handler) RenderPNG(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "noteID")
	v, err := h.svc.State(r.Context(), noteID)
	if err != nil {
		respondError(w, r, "render failed", err)
		return
	}
	q := r.URL.Query()
	opts := render.Options{
		Width:  atoiDefault(q.Get("w"), 0),
		Height: atoiDefault(q.Get("h"), 0),
	}
	w.Header().Set("Content-Type", "image/png")
	if err := render.PNG(w, v, opts); err != nil {
		slog.Error("png encode failed", slog.String("noteId", noteID), slog.String("error", err.Error()))
	}
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
