// Package render rasterizes a canvas view to PNG for diagnostics: the same
// world→screen transform the renderer applies, drawn server-side so a note's
// layout can be inspected without a client.
package render

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"

	"github.com/dandytbermillo/canvasd/internal/canvas"
	"github.com/dandytbermillo/canvasd/internal/geom"
)

const (
	defaultWidth  = 1920
	defaultHeight = 1080
	fontSize      = 12.0
	titlePad      = 8.0
	arrowSize     = 6.0
	arrowAngle    = 0.5
)

// Options controls the output raster. Zero values fall back to the standard
// viewport and panel dimensions.
type Options struct {
	Width     int
	Height    int
	PanelSize geom.Size
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = defaultWidth
	}
	if o.Height <= 0 {
		o.Height = defaultHeight
	}
	if o.PanelSize.IsZero() {
		o.PanelSize = geom.Size{Width: 800, Height: 600}
	}
	return o
}

// PNG draws the view at its current camera and writes the encoded image.
// Connections go down first so panels paint over them, matching the
// renderer's stacking order.
func PNG(w io.Writer, v canvas.View, opts Options) error {
	opts = opts.withDefaults()
	cam := v.Viewport

	dc := gg.NewContext(opts.Width, opts.Height)
	dc.SetColor(color.White)
	dc.Clear()

	ttf, err := truetype.Parse(gomono.TTF)
	if err != nil {
		return fmt.Errorf("render: parse font: %w", err)
	}
	face := truetype.NewFace(ttf, &truetype.Options{
		Size:    fontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	dc.SetFontFace(face)

	if cam.ShowConnections {
		for _, conn := range v.Connections {
			drawConnection(dc, cam, conn.From, conn.To)
		}
	}

	for _, it := range v.Items {
		r := it.Rect(opts.PanelSize)
		drawPanel(dc, cam, r, it.Title, it.PanelID)
	}

	return dc.EncodePNG(w)
}

func drawConnection(dc *gg.Context, cam geom.Camera, from, to geom.Point) {
	f := cam.WorldToScreen(from)
	t := cam.WorldToScreen(to)

	dc.SetLineWidth(1.0)
	dc.SetColor(color.Black)
	dc.DrawLine(f.X, f.Y, t.X, t.Y)
	dc.Stroke()

	drawArrow(dc, f, t)
}

// drawArrow fills a triangular head at the destination end of a segment.
func drawArrow(dc *gg.Context, from, to geom.Point) {
	dx := to.X - from.X
	dy := to.Y - from.Y
	length := math.Sqrt(dx*dx + dy*dy)
	if length < 0.1 {
		return
	}
	dx /= length
	dy /= length

	baseX1 := to.X - arrowSize*dx + arrowSize*dy*arrowAngle
	baseY1 := to.Y - arrowSize*dy - arrowSize*dx*arrowAngle
	baseX2 := to.X - arrowSize*dx - arrowSize*dy*arrowAngle
	baseY2 := to.Y - arrowSize*dy + arrowSize*dx*arrowAngle

	dc.MoveTo(to.X, to.Y)
	dc.LineTo(baseX1, baseY1)
	dc.LineTo(baseX2, baseY2)
	dc.ClosePath()
	dc.Fill()
}

func drawPanel(dc *gg.Context, cam geom.Camera, r geom.Rect, title, panelID string) {
	tl := cam.WorldToScreen(r.Pos)
	width := r.Size.Width * cam.Zoom
	height := r.Size.Height * cam.Zoom

	dc.SetColor(color.White)
	dc.DrawRectangle(tl.X, tl.Y, width, height)
	dc.Fill()

	dc.SetLineWidth(1.0)
	dc.SetColor(color.Black)
	dc.DrawRectangle(tl.X, tl.Y, width, height)
	dc.Stroke()

	label := title
	if label == "" {
		label = panelID
	}
	if label != "" && height > fontSize+titlePad {
		dc.DrawString(label, tl.X+titlePad, tl.Y+titlePad+fontSize)
	}
}
