// Package canvas implements the viewport/panel state-synchronization engine:
// one Engine per open note owns the camera, the panel-item list, the live
// measurement registry, and the derived connection graph, and keeps them in
// sync with the snapshot cache, the panel store, and the remote persistence
// API.
//
// Concurrency model: a single internal event loop (goroutine) per note owns
// all mutable canvas state. Public methods communicate with this loop through
// channels, so no mutexes are required. The same loop owns the frame timer
// that coalesces camera propagation and the bounded retry timers for
// centering and measurement probes.
package canvas

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dandytbermillo/canvasd/internal/apperr"
	"github.com/dandytbermillo/canvasd/internal/geom"
	"github.com/dandytbermillo/canvasd/internal/models"
	"github.com/dandytbermillo/canvasd/internal/panelkey"
	"github.com/dandytbermillo/canvasd/internal/snapshot"
	"github.com/dandytbermillo/canvasd/internal/store"
	"github.com/dandytbermillo/canvasd/internal/workspace"
)

// EventSink receives canvas change notifications for fan-out to subscribers.
// Implementations must not block.
type EventSink interface {
	Publish(eventType string, data any)
}

// RemotePersister mirrors panel and camera mutations to the remote
// persistence API. All methods are fire-and-forget: implementations log
// failures and never block the caller on network I/O.
type RemotePersister interface {
	CreatePanel(noteID string, item models.PanelItem, rec models.PanelRecord)
	DeletePanel(noteID, panelID string, key panelkey.StoreKey)
	PatchCamera(noteID string, cam geom.Camera, userID string)
}

// Stats receives engine counters. Implementations must be safe for
// concurrent use.
type Stats interface {
	HydrationDone(outcome string)
	PositionRepaired()
	CameraPropagated()
}

// Deps bundles everything an Engine (or the Manager that spawns engines)
// needs. Remote, Sink, Stats, and OnSaved may be nil.
type Deps struct {
	Store  store.PanelStore
	Cache  snapshot.Cache
	Hints  *workspace.Hints
	Remote RemotePersister
	Sink   EventSink
	Stats  Stats
	Params Params
	Logger *slog.Logger

	// SnapshotDebounce is the coalescing window for snapshot writes.
	SnapshotDebounce time.Duration

	// OnSaved runs after each committed snapshot save (archive export).
	OnSaved func(noteID string, snap models.Snapshot)
}

type command struct {
	fn   func(*Engine)
	done chan struct{}
}

// Engine is the per-note canvas state machine.
type Engine struct {
	noteID string
	cfg    Params
	store  store.PanelStore
	cache  snapshot.Cache
	writer *snapshot.Writer
	hints  *workspace.Hints
	remote RemotePersister
	sink   EventSink
	stats  Stats
	logger *slog.Logger

	cmdCh   chan command
	kickCh  chan struct{}
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
	ready   atomic.Bool

	// Everything below is owned by the run loop.
	cam        geom.Camera
	camUser    string
	viewport   geom.Size
	items      []models.PanelItem
	live       map[panelkey.StoreKey]geom.Rect
	conns      []models.Connection
	closedKeys map[panelkey.StoreKey]bool
	seeded     bool
	savedAt    time.Time

	camDirty   bool
	stateDirty bool
	connsDirty bool

	frameTimer *time.Timer
	frameC     <-chan time.Time
	frameArmed bool

	lastConnsEmit time.Time

	timers   map[int]*time.Timer
	timerSeq int

	storeUnsub func()
}

// New creates an engine for one note and starts its loop. The loop hydrates
// before serving any command, so every operation observes fully hydrated
// state; Ready reports hydration completion without queueing.
func New(noteID string, d Deps) *Engine {
	e := &Engine{
		noteID:     noteID,
		cfg:        d.Params,
		store:      d.Store,
		cache:      d.Cache,
		hints:      d.Hints,
		remote:     d.Remote,
		sink:       d.Sink,
		stats:      d.Stats,
		logger:     d.Logger,
		cmdCh:      make(chan command, 64),
		kickCh:     make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
		stopped:    make(chan struct{}),
		viewport:   d.Params.DefaultViewport,
		live:       make(map[panelkey.StoreKey]geom.Rect),
		closedKeys: make(map[panelkey.StoreKey]bool),
		timers:     make(map[int]*time.Timer),
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	onSaved := d.OnSaved
	e.writer = snapshot.NewWriter(d.Cache, noteID, d.SnapshotDebounce, e.logger, func(s models.Snapshot) {
		e.noteSaved(s)
		if onSaved != nil {
			onSaved(noteID, s)
		}
	})
	e.storeUnsub = d.Store.Subscribe(func(ev store.Event) {
		if panelkey.NoteID(ev.Key) != noteID {
			return
		}
		select {
		case e.kickCh <- struct{}{}:
		default:
		}
	})

	go e.run()
	return e
}

// NoteID returns the note this engine serves.
func (e *Engine) NoteID() string { return e.noteID }

// Ready reports whether hydration has completed.
func (e *Engine) Ready() bool { return e.ready.Load() }

func (e *Engine) run() {
	defer close(e.stopped)

	e.hydrate()
	e.afterMutate()

	for {
		select {
		case <-e.stopCh:
			e.teardown()
			return

		case cmd := <-e.cmdCh:
			cmd.fn(e)
			close(cmd.done)
			e.afterMutate()

		case <-e.kickCh:
			e.reconcileStore()
			e.afterMutate()

		case <-e.frameC:
			e.frameArmed = false
			e.propagateCamera()
		}
	}
}

// exec runs fn on the loop goroutine and waits for it to complete.
func (e *Engine) exec(fn func(*Engine)) error {
	if e.closed.Load() {
		return apperr.ErrClosed
	}
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case e.cmdCh <- cmd:
	case <-e.stopped:
		return apperr.ErrClosed
	}
	select {
	case <-cmd.done:
		return nil
	case <-e.stopped:
		return apperr.ErrClosed
	}
}

// Close stops the loop, cancels pending timers, and flushes the final state
// to the snapshot cache. Safe to call more than once.
func (e *Engine) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		<-e.stopped
		return
	}
	close(e.stopCh)
	<-e.stopped

	// The loop has exited; this goroutine is the sole owner of the state
	// now. Flush it so nothing mutated inside the last debounce window is
	// lost.
	e.writer.Enqueue(e.snapshotState())
	e.writer.Close()
}

func (e *Engine) teardown() {
	for _, t := range e.timers {
		t.Stop()
	}
	if e.frameTimer != nil {
		e.frameTimer.Stop()
	}
	if e.storeUnsub != nil {
		e.storeUnsub()
	}
}

// afterMutate settles derived state after each command: rebuilds the
// connection graph, enqueues a debounced snapshot, and arms the frame timer
// for camera propagation.
func (e *Engine) afterMutate() {
	if e.connsDirty {
		e.connsDirty = false
		e.conns = buildConnections(e.items, e.store, e.liveRect, e.cfg.DefaultPanelSize)
		e.emitConnections()
	}
	if e.stateDirty {
		e.stateDirty = false
		e.writer.Enqueue(e.snapshotState())
	}
	if e.camDirty && !e.frameArmed {
		e.armFrame()
	}
}

func (e *Engine) armFrame() {
	if e.frameTimer == nil {
		e.frameTimer = time.NewTimer(e.cfg.FrameInterval)
		e.frameC = e.frameTimer.C
	} else {
		e.frameTimer.Reset(e.cfg.FrameInterval)
	}
	e.frameArmed = true
}

// propagateCamera fires at most once per frame interval and carries only the
// latest camera value, however many deltas arrived within the frame.
func (e *Engine) propagateCamera() {
	if !e.camDirty {
		return
	}
	e.camDirty = false
	cam := e.cam
	user := e.camUser
	e.camUser = ""

	e.publish("camera.updated", map[string]any{"noteId": e.noteID, "camera": cam})
	if e.remote != nil {
		e.remote.PatchCamera(e.noteID, cam, user)
	}
	if e.stats != nil {
		e.stats.CameraPropagated()
	}
}

func (e *Engine) emitConnections() {
	now := time.Now()
	if now.Sub(e.lastConnsEmit) < e.cfg.ConnectionsThrottle {
		return
	}
	e.lastConnsEmit = now
	e.publish("connections.updated", map[string]any{"noteId": e.noteID, "count": len(e.conns)})
}

func (e *Engine) publish(eventType string, data any) {
	if e.sink != nil {
		e.sink.Publish(eventType, data)
	}
}

// markCamera records a camera mutation: applied immediately to the local
// camera, persisted via the debounced snapshot, propagated on the next frame.
func (e *Engine) markCamera(userID string) {
	e.camDirty = true
	e.stateDirty = true
	if userID != "" {
		e.camUser = userID
	}
}

func (e *Engine) snapshotState() models.Snapshot {
	items := make([]models.PanelItem, len(e.items))
	copy(items, e.items)
	return models.Snapshot{Viewport: e.cam, Items: items, SavedAt: time.Now().UTC()}
}

// noteSaved records the commit timestamp; called from the writer goroutine.
func (e *Engine) noteSaved(s models.Snapshot) {
	_ = e.exec(func(e *Engine) { e.savedAt = s.SavedAt })
}

// schedule runs fn on the loop after d. The timer is tracked so teardown can
// cancel it; a fire after Close is dropped by exec.
func (e *Engine) schedule(d time.Duration, fn func(*Engine)) {
	e.timerSeq++
	id := e.timerSeq
	t := time.AfterFunc(d, func() {
		_ = e.exec(func(e *Engine) {
			delete(e.timers, id)
			fn(e)
		})
	})
	e.timers[id] = t
}

func (e *Engine) findItem(key panelkey.StoreKey) int {
	return indexOfKey(e.items, key)
}

// reconcileStore reacts to panel-store changes for this note: records created
// by other writers are merged in, records hard-deleted elsewhere drop their
// items, and the connection graph is rebuilt since record pointers may have
// changed. A missing main record is re-seeded, never dropped.
func (e *Engine) reconcileStore() {
	mainKey := panelkey.Ensure(e.noteID, models.MainPanelID)
	changed := false

	for _, key := range e.store.Keys() {
		if panelkey.NoteID(key) != e.noteID || e.closedKeys[key] {
			continue
		}
		if e.findItem(key) >= 0 {
			continue
		}
		rec, ok := e.store.Get(key)
		if !ok {
			continue
		}
		pos, ok := rec.Pos()
		if !ok || !pos.IsFinite() {
			continue
		}
		item := itemFromRecord(e.noteID, key, rec, pos)
		e.items = append(e.items, item)
		e.publish("panel.created", map[string]any{"noteId": e.noteID, "item": item})
		changed = true
	}

	kept := make([]models.PanelItem, 0, len(e.items))
	for _, it := range e.items {
		if it.ItemType == models.ItemPanel && !e.store.Has(it.StoreKey) {
			if it.StoreKey == mainKey {
				// Reinstate the authoritative record instead of losing
				// the main panel.
				pos := it.Position
				e.store.Set(mainKey, models.PanelRecord{Position: &pos, Type: models.PanelMain, Title: it.Title, UpdatedAt: time.Now().UTC()})
				e.logger.Warn("canvas: main panel record missing, re-seeded", slog.String("note_id", e.noteID))
				kept = append(kept, it)
				continue
			}
			delete(e.live, it.StoreKey)
			e.publish("panel.deleted", map[string]any{
				"noteId": e.noteID, "panelId": it.PanelID, "storeKey": it.StoreKey, "hard": true,
			})
			changed = true
			continue
		}
		kept = append(kept, it)
	}
	e.items = kept

	e.connsDirty = true
	if changed {
		e.stateDirty = true
	}
}

// View is a point-in-time copy of the engine state.
type View struct {
	NoteID      string
	Viewport    geom.Camera
	Items       []models.PanelItem
	Connections []models.Connection
	SavedAt     time.Time
	Ready       bool
}

// State returns a copy of the current canvas state.
func (e *Engine) State() (View, error) {
	var v View
	err := e.exec(func(e *Engine) {
		v = View{
			NoteID:      e.noteID,
			Viewport:    e.cam,
			Items:       append([]models.PanelItem(nil), e.items...),
			Connections: append([]models.Connection(nil), e.conns...),
			SavedAt:     e.savedAt,
			Ready:       e.ready.Load(),
		}
	})
	return v, err
}

// Connections returns a copy of the current edge list.
func (e *Engine) Connections() ([]models.Connection, error) {
	var out []models.Connection
	err := e.exec(func(e *Engine) {
		out = append([]models.Connection(nil), e.conns...)
	})
	return out, err
}
