package canvas

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dandytbermillo/canvasd/internal/apperr"
	"github.com/dandytbermillo/canvasd/internal/geom"
	"github.com/dandytbermillo/canvasd/internal/panelkey"
)

// PanBy translates the camera by (dx, dy) world units and returns the
// resulting camera. A zero delta mutates nothing and propagates nothing.
func (e *Engine) PanBy(dx, dy float64) (geom.Camera, error) {
	var out geom.Camera
	err := e.exec(func(e *Engine) {
		if dx != 0 || dy != 0 {
			e.cam = e.cam.PannedBy(dx, dy)
			e.markCamera("")
		}
		out = e.cam
	})
	return out, err
}

// ZoomIn multiplies the zoom by the configured step, clamped.
func (e *Engine) ZoomIn() (geom.Camera, error) {
	return e.zoomStep(func(e *Engine) float64 { return e.cfg.ZoomInFactor })
}

// ZoomOut multiplies the zoom by the configured step, clamped.
func (e *Engine) ZoomOut() (geom.Camera, error) {
	return e.zoomStep(func(e *Engine) float64 { return e.cfg.ZoomOutFactor })
}

func (e *Engine) zoomStep(factor func(*Engine) float64) (geom.Camera, error) {
	var out geom.Camera
	err := e.exec(func(e *Engine) {
		next := geom.ClampZoom(e.cam.Zoom*factor(e), e.cfg.MinZoom, e.cfg.MaxZoom)
		if next != e.cam.Zoom {
			e.cam.Zoom = next
			e.markCamera("")
		}
		out = e.cam
	})
	return out, err
}

// ZoomAt zooms by factor anchored at a screen point: the world point under
// the anchor stays under it.
func (e *Engine) ZoomAt(screen geom.Point, factor float64) (geom.Camera, error) {
	if !screen.IsFinite() {
		return geom.Camera{}, fmt.Errorf("canvas: zoom anchor not finite: %w", apperr.ErrInvalid)
	}
	var out geom.Camera
	err := e.exec(func(e *Engine) {
		next := geom.ClampZoom(e.cam.Zoom*factor, e.cfg.MinZoom, e.cfg.MaxZoom)
		if next != e.cam.Zoom {
			e.cam = e.cam.ZoomedAt(screen, next)
			e.markCamera("")
		}
		out = e.cam
	})
	return out, err
}

// ResetView restores the default camera, preserving the connections toggle.
func (e *Engine) ResetView() (geom.Camera, error) {
	var out geom.Camera
	err := e.exec(func(e *Engine) {
		show := e.cam.ShowConnections
		e.cam = e.cfg.DefaultCamera
		e.cam.ShowConnections = show
		e.markCamera("")
		out = e.cam
	})
	return out, err
}

// ToggleConnections flips the connection overlay and returns the camera.
func (e *Engine) ToggleConnections() (geom.Camera, error) {
	var out geom.Camera
	err := e.exec(func(e *Engine) {
		e.cam.ShowConnections = !e.cam.ShowConnections
		e.markCamera("")
		out = e.cam
	})
	return out, err
}

// SetCamera replaces the camera wholesale, attributing the change to userID
// for downstream propagation. Zoom is clamped; non-finite translations are
// rejected.
func (e *Engine) SetCamera(cam geom.Camera, userID string) (geom.Camera, error) {
	if !cam.Translate().IsFinite() {
		return geom.Camera{}, fmt.Errorf("canvas: camera translation not finite: %w", apperr.ErrInvalid)
	}
	var out geom.Camera
	err := e.exec(func(e *Engine) {
		cam.Zoom = geom.ClampZoom(cam.Zoom, e.cfg.MinZoom, e.cfg.MaxZoom)
		e.cam = cam
		e.markCamera(userID)
		out = e.cam
	})
	return out, err
}

// SetViewportSize records the renderer-reported viewport dimensions used by
// centering math.
func (e *Engine) SetViewportSize(sz geom.Size) error {
	if sz.Width <= 0 || sz.Height <= 0 {
		return fmt.Errorf("canvas: viewport size must be positive: %w", apperr.ErrInvalid)
	}
	return e.exec(func(e *Engine) { e.viewport = sz })
}

// CenterOnPanel moves the camera so the named panel sits at the viewport
// center, applied instantly. A live measurement is preferred over the
// last-known item state since the two disagree during an active drag. If the
// panel cannot be located, the lookup is retried with growing delay up to the
// configured attempt bound and then falls back to centering on the default
// position without relocating anything. The returned camera reflects the
// first attempt.
func (e *Engine) CenterOnPanel(panelID string) (geom.Camera, error) {
	var out geom.Camera
	err := e.exec(func(e *Engine) {
		e.tryCenter(panelID, 1)
		out = e.cam
	})
	return out, err
}

func (e *Engine) tryCenter(panelID string, attempt int) {
	key := panelkey.Ensure(e.noteID, panelID)
	if rect, ok := e.panelRect(key); ok {
		e.cam = e.cam.CenteredOn(rect, e.viewport)
		e.markCamera("")
		return
	}
	if attempt >= e.cfg.CenterAttempts {
		e.logger.Warn("canvas: center target not found, using default position",
			slog.String("note_id", e.noteID),
			slog.String("panel_id", panelID),
			slog.Int("attempts", attempt))
		e.cam = e.cam.CenteredOn(geom.Rect{Pos: e.cfg.DefaultPanelPosition, Size: e.cfg.DefaultPanelSize}, e.viewport)
		e.markCamera("")
		return
	}
	e.schedule(time.Duration(attempt)*e.cfg.CenterDelay, func(e *Engine) {
		e.tryCenter(panelID, attempt+1)
	})
}
