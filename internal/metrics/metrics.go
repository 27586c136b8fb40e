// Package metrics exposes canvasd's Prometheus instrumentation: engine
// counters, snapshot cache write stats, remote mirror outcomes, and the
// exposition endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dandytbermillo/canvasd/internal/canvas"
	"github.com/dandytbermillo/canvasd/internal/models"
	"github.com/dandytbermillo/canvasd/internal/snapshot"
)

var (
	hydrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canvasd_hydrations_total",
		Help: "Canvas hydrations by outcome (fresh, restored, repaired)",
	}, []string{"outcome"})

	positionRepairsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canvasd_position_repairs_total",
		Help: "Persisted panel positions replaced during corruption repair",
	})

	cameraPropagationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canvasd_camera_propagations_total",
		Help: "Coalesced camera frames pushed to subscribers",
	})

	snapshotSavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canvasd_snapshot_saves_total",
		Help: "Snapshot cache writes by status",
	}, []string{"status"})

	snapshotSaveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "canvasd_snapshot_save_duration_seconds",
		Help:    "Duration of snapshot cache writes",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	remoteRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canvasd_remote_requests_total",
		Help: "Remote persistence mirror requests by operation and outcome",
	}, []string{"op", "outcome"})
)

// EngineStats feeds the canvas engine counters into Prometheus.
type EngineStats struct{}

var _ canvas.Stats = EngineStats{}

func (EngineStats) HydrationDone(outcome string) { hydrationsTotal.WithLabelValues(outcome).Inc() }
func (EngineStats) PositionRepaired()            { positionRepairsTotal.Inc() }
func (EngineStats) CameraPropagated()            { cameraPropagationsTotal.Inc() }

// RemoteRequest records one mirror request outcome. Wire it to
// remote.Client.OnResult.
func RemoteRequest(op, outcome string) {
	remoteRequestsTotal.WithLabelValues(op, outcome).Inc()
}

// InstrumentCache returns a Cache that counts and times every Save made
// through it. The other operations pass through untouched.
func InstrumentCache(next snapshot.Cache) snapshot.Cache {
	return instrumentedCache{next}
}

type instrumentedCache struct {
	snapshot.Cache
}

func (c instrumentedCache) Save(noteID string, snap models.Snapshot) error {
	timer := prometheus.NewTimer(snapshotSaveDuration)
	err := c.Cache.Save(noteID, snap)
	timer.ObserveDuration()
	if err != nil {
		snapshotSavesTotal.WithLabelValues("error").Inc()
		return err
	}
	snapshotSavesTotal.WithLabelValues("ok").Inc()
	return nil
}

// TrackSSEClients registers a gauge backed by the broker's live client
// count. Registering twice keeps the first gauge.
func TrackSSEClients(count func() int) {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "canvasd_sse_clients",
		Help: "Connected SSE clients",
	}, func() float64 { return float64(count()) })
	_ = prometheus.Register(g)
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
