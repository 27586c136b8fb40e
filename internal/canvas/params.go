package canvas

import (
	"time"

	"github.com/dandytbermillo/canvasd/internal/geom"
)

// Params are the engine tuning knobs. Zero values are invalid; start from
// DefaultParams and override from configuration.
type Params struct {
	MinZoom       float64
	MaxZoom       float64
	ZoomInFactor  float64
	ZoomOutFactor float64

	DefaultCamera        geom.Camera
	DefaultPanelPosition geom.Point
	DefaultPanelSize     geom.Size
	DefaultViewport      geom.Size

	// RepairThreshold is the |Δx|+|Δy| divergence, in world units, beyond
	// which a restored main-panel position is treated as written in the
	// wrong coordinate space and replaced by the store's position.
	RepairThreshold float64

	// FrameInterval is the camera propagation cadence: deltas applied
	// within one interval collapse to a single downstream update.
	FrameInterval time.Duration

	// MeasureAttempts/MeasureDelay bound the wait for a live measurement
	// of a freshly seeded main panel before centering on it.
	MeasureAttempts int
	MeasureDelay    time.Duration

	// CenterAttempts/CenterDelay bound the lookup retries of
	// CenterOnPanel before it falls back to the default position.
	CenterAttempts int
	CenterDelay    time.Duration

	// ConnectionsThrottle limits how often connection-graph change
	// notifications are emitted; the graph itself is always current.
	ConnectionsThrottle time.Duration
}

// DefaultParams returns the stock tuning.
func DefaultParams() Params {
	return Params{
		MinZoom:              0.3,
		MaxZoom:              2.0,
		ZoomInFactor:         1.1,
		ZoomOutFactor:        0.9,
		DefaultCamera:        geom.Camera{TranslateX: -1000, TranslateY: -1200, Zoom: 1},
		DefaultPanelPosition: geom.Point{X: 2000, Y: 1500},
		DefaultPanelSize:     geom.Size{Width: 800, Height: 600},
		DefaultViewport:      geom.Size{Width: 1920, Height: 1080},
		RepairThreshold:      1000,
		FrameInterval:        16 * time.Millisecond,
		MeasureAttempts:      10,
		MeasureDelay:         120 * time.Millisecond,
		CenterAttempts:       5,
		CenterDelay:          80 * time.Millisecond,
		ConnectionsThrottle:  time.Second,
	}
}
