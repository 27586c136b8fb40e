// Package geom provides the coordinate-system algebra for the canvas: world
// space (canvas-intrinsic, stable under pan/zoom) and screen space (viewport
// pixels under the current camera).
//
// The transform is screen = (world + translate) * zoom. WorldToScreen and
// ScreenToWorld are exact mutual inverses up to floating-point epsilon; panel
// placement, centering, and corruption repair all compose them.
package geom

import "math"

// Point is a 2D point or vector in either coordinate space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is a convenience constructor for a Point.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Add returns the vector sum of two points.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns the vector difference of two points.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Mul returns the point scaled by a scalar.
func (p Point) Mul(s float64) Point {
	return Point{X: p.X * s, Y: p.Y * s}
}

// Div returns the point divided by a scalar.
func (p Point) Div(s float64) Point {
	return Point{X: p.X / s, Y: p.Y / s}
}

// ManhattanDist returns |dx| + |dy| between two points. This is the distance
// measure used to detect positions stored in the wrong coordinate space.
func (p Point) ManhattanDist(q Point) float64 {
	return math.Abs(p.X-q.X) + math.Abs(p.Y-q.Y)
}

// IsFinite reports whether both coordinates are finite numbers.
func (p Point) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Size holds panel or viewport dimensions in world units.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// IsZero reports whether the size carries no measurement.
func (s Size) IsZero() bool {
	return s.Width == 0 && s.Height == 0
}

// Rect is an axis-aligned rectangle: a position (top-left corner, world
// space) plus a size.
type Rect struct {
	Pos  Point `json:"pos"`
	Size Size  `json:"size"`
}

// Center returns the rectangle's center point.
func (r Rect) Center() Point {
	return Point{X: r.Pos.X + r.Size.Width/2, Y: r.Pos.Y + r.Size.Height/2}
}

// LeftCenter returns the midpoint of the rectangle's left edge, the anchor
// used for the child end of a connection.
func (r Rect) LeftCenter() Point {
	return Point{X: r.Pos.X, Y: r.Pos.Y + r.Size.Height/2}
}

// RightCenter returns the midpoint of the rectangle's right edge, the anchor
// used for the parent end of a connection.
func (r Rect) RightCenter() Point {
	return Point{X: r.Pos.X + r.Size.Width, Y: r.Pos.Y + r.Size.Height/2}
}

// Camera is the pan + zoom applied to convert world space to screen space.
// ShowConnections rides along because the connection overlay toggle is part
// of the persisted view state.
type Camera struct {
	TranslateX      float64 `json:"translateX"`
	TranslateY      float64 `json:"translateY"`
	Zoom            float64 `json:"zoom"`
	ShowConnections bool    `json:"showConnections"`
}

// Translate returns the camera translation as a point.
func (c Camera) Translate() Point {
	return Point{X: c.TranslateX, Y: c.TranslateY}
}

// WorldToScreen converts a world-space point to screen space.
func (c Camera) WorldToScreen(p Point) Point {
	return Point{
		X: (p.X + c.TranslateX) * c.Zoom,
		Y: (p.Y + c.TranslateY) * c.Zoom,
	}
}

// ScreenToWorld converts a screen-space point to world space. It is the
// inverse of WorldToScreen.
func (c Camera) ScreenToWorld(p Point) Point {
	return Point{
		X: p.X/c.Zoom - c.TranslateX,
		Y: p.Y/c.Zoom - c.TranslateY,
	}
}

// PannedBy returns the camera translated by (dx, dy) world units.
func (c Camera) PannedBy(dx, dy float64) Camera {
	c.TranslateX += dx
	c.TranslateY += dy
	return c
}

// ZoomedAt returns the camera at newZoom with the translation recomputed so
// the world point under the given screen point stays under it.
func (c Camera) ZoomedAt(screen Point, newZoom float64) Camera {
	anchor := c.ScreenToWorld(screen)
	c.Zoom = newZoom
	c.TranslateX = screen.X/newZoom - anchor.X
	c.TranslateY = screen.Y/newZoom - anchor.Y
	return c
}

// CenteredOn returns the camera translated so that the given world-space
// rectangle is centered in a viewport of the given size, preserving zoom.
func (c Camera) CenteredOn(target Rect, viewport Size) Camera {
	center := target.Center()
	c.TranslateX = (viewport.Width/2)/c.Zoom - center.X
	c.TranslateY = (viewport.Height/2)/c.Zoom - center.Y
	return c
}

// ClampZoom limits z to [min, max].
func ClampZoom(z, min, max float64) float64 {
	if z < min {
		return min
	}
	if z > max {
		return max
	}
	return z
}
