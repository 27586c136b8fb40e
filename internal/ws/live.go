// Package ws ingests live panel geometry over a WebSocket. A renderer
// streams the rectangle of each panel as it draws, drags, or resizes it;
// frames feed the engine's live-rect registry so centering and connection
// anchors track the screen without waiting for a committed save.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/dandytbermillo/canvasd/internal/canvas"
	"github.com/dandytbermillo/canvasd/internal/geom"
)

const maxFrameBytes = 32 << 10

// frame is one inbound message. A rect frame updates (or, with commit,
// lands) the named panel's geometry; clear drops it; a viewport frame
// reports the window size. Rect coordinates are world space.
type frame struct {
	PanelID  string     `json:"panelId,omitempty"`
	Rect     *rectFrame `json:"rect,omitempty"`
	Commit   bool       `json:"commit,omitempty"`
	Clear    bool       `json:"clear,omitempty"`
	Viewport *geom.Size `json:"viewport,omitempty"`
}

type rectFrame struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r rectFrame) rect() geom.Rect {
	return geom.Rect{
		Pos:  geom.Point{X: r.X, Y: r.Y},
		Size: geom.Size{Width: r.Width, Height: r.Height},
	}
}

// Handler upgrades live-geometry connections, one per open note.
type Handler struct {
	manager  *canvas.Manager
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler wires the live channel to the engine manager.
func NewHandler(manager *canvas.Manager, logger *slog.Logger) *Handler {
	return &Handler{
		manager: manager,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP handles GET /live/{noteID}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "noteID")
	eng, err := h.manager.Open(noteID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("ws: upgrade failed",
			slog.String("note_id", noteID), slog.String("error", err.Error()))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameBytes)

	h.logger.Debug("ws: live channel open", slog.String("note_id", noteID))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("ws: read failed",
					slog.String("note_id", noteID), slog.String("error", err.Error()))
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			h.logger.Warn("ws: malformed frame",
				slog.String("note_id", noteID), slog.String("error", err.Error()))
			continue
		}
		if err := h.apply(eng, f); err != nil {
			h.logger.Warn("ws: frame rejected",
				slog.String("note_id", noteID),
				slog.String("panel_id", f.PanelID),
				slog.String("error", err.Error()))
		}
	}
}

func (h *Handler) apply(eng *canvas.Engine, f frame) error {
	if f.Viewport != nil {
		if err := eng.SetViewportSize(*f.Viewport); err != nil {
			return err
		}
	}
	if f.PanelID == "" {
		return nil
	}
	switch {
	case f.Clear:
		return eng.ClearLiveRect(f.PanelID)
	case f.Rect != nil && f.Commit:
		return eng.CommitPanelRect(f.PanelID, f.Rect.rect())
	case f.Rect != nil:
		return eng.SetLiveRect(f.PanelID, f.Rect.rect())
	}
	return nil
}
