package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dandytbermillo/canvasd/internal/canvasservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authMode selects disabled, token, or jwt enforcement.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// liveHandler, if non-nil, is mounted at GET /live/{noteID} for the
// WebSocket live-rect feed.
func NewRouter(svc *canvasservice.Service, authMode, token, jwtSecret string, sseHandler, liveHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authMode, token, jwtSecret))

	// Canvas state and commands.
	r.Get("/canvas", h.ListOpen)
	r.Get("/canvas/{noteID}", h.GetCanvas)
	r.Delete("/canvas/{noteID}", h.CloseNote)
	r.Get("/canvas/{noteID}/connections", h.Connections)
	r.Post("/canvas/{noteID}/commands", h.Command)
	r.Post("/canvas/{noteID}/close-panel", h.ClosePanel)
	r.Get("/canvas/{noteID}/render.png", h.RenderPNG)

	// Camera.
	r.Patch("/camera/{noteID}", h.PatchCamera)

	// Panels.
	r.Post("/panels", h.CreatePanel)
	r.Patch("/panels/{panelID}", h.UpdatePanel)
	r.Delete("/panels/{panelID}", h.DeletePanel)

	// SSE endpoint (protected by the same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	// Live-rect WebSocket feed.
	if liveHandler != nil {
		r.Get("/live/{noteID}", liveHandler.ServeHTTP)
	}

	return r
}
