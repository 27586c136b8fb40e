package canvas

import (
	"errors"
	"log/slog"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dandytbermillo/canvasd/internal/apperr"
	"github.com/dandytbermillo/canvasd/internal/geom"
	"github.com/dandytbermillo/canvasd/internal/models"
	"github.com/dandytbermillo/canvasd/internal/panelkey"
	"github.com/dandytbermillo/canvasd/internal/store"
	"github.com/dandytbermillo/canvasd/internal/workspace"
)

const testNote = "note-1"

// fakeCache is an in-memory snapshot.Cache.
type fakeCache struct {
	mu    sync.Mutex
	snaps map[string]models.Snapshot
}

func newFakeCache() *fakeCache {
	return &fakeCache{snaps: make(map[string]models.Snapshot)}
}

func (c *fakeCache) Save(noteID string, snap models.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[noteID] = snap
	return nil
}

func (c *fakeCache) Load(noteID string) (models.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snaps[noteID]
	if !ok {
		return models.Snapshot{}, apperr.ErrNotFound
	}
	return snap, nil
}

func (c *fakeCache) Delete(noteID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snaps, noteID)
	return nil
}

func (c *fakeCache) NoteIDs() ([]string, error) { return nil, nil }
func (c *fakeCache) Close() error               { return nil }

// fakeSink records published events.
type fakeSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

type sinkEvent struct {
	typ  string
	data any
}

func (s *fakeSink) Publish(eventType string, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{typ: eventType, data: data})
}

func (s *fakeSink) count(eventType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.typ == eventType {
			n++
		}
	}
	return n
}

func (s *fakeSink) last(eventType string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].typ == eventType {
			return s.events[i].data, true
		}
	}
	return nil, false
}

// fakeRemote records fire-and-forget calls.
type fakeRemote struct {
	mu      sync.Mutex
	creates []string
	deletes []string
	patches []geom.Camera
}

func (r *fakeRemote) CreatePanel(noteID string, item models.PanelItem, rec models.PanelRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates = append(r.creates, string(item.StoreKey))
}

func (r *fakeRemote) DeletePanel(noteID, panelID string, key panelkey.StoreKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes = append(r.deletes, string(key))
}

func (r *fakeRemote) PatchCamera(noteID string, cam geom.Camera, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patches = append(r.patches, cam)
}

func (r *fakeRemote) createCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.creates)
}

type testEnv struct {
	deps   Deps
	store  *store.Memory
	cache  *fakeCache
	sink   *fakeSink
	remote *fakeRemote
	hints  *workspace.Hints
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	params := DefaultParams()
	// Keep the probe asleep unless a test opts in.
	params.MeasureDelay = time.Hour
	params.FrameInterval = 20 * time.Millisecond
	params.ConnectionsThrottle = 0

	env := &testEnv{
		store:  store.NewMemory(),
		cache:  newFakeCache(),
		sink:   &fakeSink{},
		remote: &fakeRemote{},
		hints:  workspace.NewHints(time.Minute),
	}
	env.deps = Deps{
		Store:            env.store,
		Cache:            env.cache,
		Hints:            env.hints,
		Remote:           env.remote,
		Sink:             env.sink,
		Params:           params,
		Logger:           slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
		SnapshotDebounce: 10 * time.Millisecond,
	}
	return env
}

func (env *testEnv) open(t *testing.T, noteID string) *Engine {
	t.Helper()
	eng := New(noteID, env.deps)
	t.Cleanup(eng.Close)
	return eng
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestFrameCoalescing(t *testing.T) {
	env := newTestEnv(t)
	eng := env.open(t, testNote)

	for i := 0; i < 5; i++ {
		if _, err := eng.PanBy(10, 0); err != nil {
			t.Fatalf("PanBy: %v", err)
		}
	}

	eventually(t, time.Second, 5*time.Millisecond, func() bool {
		return env.sink.count("camera.updated") >= 1
	}, "camera propagation should fire")
	time.Sleep(3 * env.deps.Params.FrameInterval)

	if n := env.sink.count("camera.updated"); n != 1 {
		t.Fatalf("camera.updated count = %d, want exactly 1 for a burst within one frame", n)
	}

	data, _ := env.sink.last("camera.updated")
	payload := data.(map[string]any)
	cam := payload["camera"].(geom.Camera)
	want := env.deps.Params.DefaultCamera.TranslateX + 50
	if !almostEqual(cam.TranslateX, want) {
		t.Errorf("propagated translateX = %v, want %v (last value wins)", cam.TranslateX, want)
	}
}

func TestPanByZeroIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	eng := env.open(t, testNote)

	cam, err := eng.PanBy(0, 0)
	if err != nil {
		t.Fatalf("PanBy: %v", err)
	}
	if cam != env.deps.Params.DefaultCamera {
		t.Errorf("camera changed on zero pan: %+v", cam)
	}

	time.Sleep(3 * env.deps.Params.FrameInterval)
	if n := env.sink.count("camera.updated"); n != 0 {
		t.Errorf("zero pan should not propagate, got %d events", n)
	}
}

func TestZoomClamp(t *testing.T) {
	env := newTestEnv(t)
	eng := env.open(t, testNote)

	var cam geom.Camera
	for i := 0; i < 30; i++ {
		cam, _ = eng.ZoomIn()
	}
	if cam.Zoom != env.deps.Params.MaxZoom {
		t.Errorf("zoom after repeated ZoomIn = %v, want clamp at %v", cam.Zoom, env.deps.Params.MaxZoom)
	}

	for i := 0; i < 60; i++ {
		cam, _ = eng.ZoomOut()
	}
	if cam.Zoom != env.deps.Params.MinZoom {
		t.Errorf("zoom after repeated ZoomOut = %v, want clamp at %v", cam.Zoom, env.deps.Params.MinZoom)
	}
}

func TestZoomAtKeepsAnchor(t *testing.T) {
	env := newTestEnv(t)
	eng := env.open(t, testNote)

	anchor := geom.Point{X: 960, Y: 540}
	before, _ := eng.State()
	after, err := eng.ZoomAt(anchor, 1.25)
	if err != nil {
		t.Fatalf("ZoomAt: %v", err)
	}

	wBefore := before.Viewport.ScreenToWorld(anchor)
	wAfter := after.ScreenToWorld(anchor)
	if !almostEqual(wBefore.X, wAfter.X) || !almostEqual(wBefore.Y, wAfter.Y) {
		t.Errorf("world point under anchor moved: %+v -> %+v", wBefore, wAfter)
	}
}

func TestResetViewPreservesToggle(t *testing.T) {
	env := newTestEnv(t)
	eng := env.open(t, testNote)

	if _, err := eng.ToggleConnections(); err != nil {
		t.Fatalf("ToggleConnections: %v", err)
	}
	_, _ = eng.PanBy(500, 500)
	cam, err := eng.ResetView()
	if err != nil {
		t.Fatalf("ResetView: %v", err)
	}
	def := env.deps.Params.DefaultCamera
	if cam.TranslateX != def.TranslateX || cam.TranslateY != def.TranslateY || cam.Zoom != def.Zoom {
		t.Errorf("reset camera = %+v, want default transform", cam)
	}
	if !cam.ShowConnections {
		t.Error("reset should preserve the connections toggle")
	}
}

func TestCloseFlushesFinalState(t *testing.T) {
	env := newTestEnv(t)
	eng := New(testNote, env.deps)

	if _, err := eng.PanBy(123, 0); err != nil {
		t.Fatalf("PanBy: %v", err)
	}
	eng.Close()

	snap, err := env.cache.Load(testNote)
	if err != nil {
		t.Fatalf("no snapshot after Close: %v", err)
	}
	want := env.deps.Params.DefaultCamera.TranslateX + 123
	if !almostEqual(snap.Viewport.TranslateX, want) {
		t.Errorf("flushed translateX = %v, want %v", snap.Viewport.TranslateX, want)
	}
}

func TestOpsAfterCloseReturnErrClosed(t *testing.T) {
	env := newTestEnv(t)
	eng := New(testNote, env.deps)
	eng.Close()

	if _, err := eng.PanBy(1, 1); err != apperr.ErrClosed {
		t.Errorf("PanBy after Close = %v, want ErrClosed", err)
	}
	if _, err := eng.State(); err != apperr.ErrClosed {
		t.Errorf("State after Close = %v, want ErrClosed", err)
	}
	// Close is idempotent.
	eng.Close()
}

func TestAddAndDeletePanel(t *testing.T) {
	env := newTestEnv(t)
	eng := env.open(t, testNote)

	item, err := eng.AddPanel(AddPanelRequest{
		Type:     models.PanelBranch,
		Position: &geom.Point{X: 3000, Y: 1500},
		Title:    "branch a",
		ParentID: models.MainPanelID,
	})
	if err != nil {
		t.Fatalf("AddPanel: %v", err)
	}
	if item.PanelID == "" || item.StoreKey != panelkey.Ensure(testNote, item.PanelID) {
		t.Fatalf("generated item malformed: %+v", item)
	}
	if !env.store.Has(item.StoreKey) {
		t.Error("panel record should be written to the store")
	}
	if env.remote.createCount() != 2 { // main seed + branch
		t.Errorf("remote creates = %d, want 2", env.remote.createCount())
	}

	conns, _ := eng.Connections()
	if len(conns) != 1 {
		t.Fatalf("connections = %d, want 1 after adding a child of main", len(conns))
	}

	if err := eng.DeletePanel(item.PanelID, ""); err != nil {
		t.Fatalf("DeletePanel: %v", err)
	}
	if env.store.Has(item.StoreKey) {
		t.Error("hard delete should remove the store record")
	}
	conns, _ = eng.Connections()
	if len(conns) != 0 {
		t.Errorf("connections = %d after delete, want 0", len(conns))
	}
}

func TestDuplicatePanelRejected(t *testing.T) {
	env := newTestEnv(t)
	eng := env.open(t, testNote)

	pos := geom.Point{X: 1, Y: 2}
	if _, err := eng.AddPanel(AddPanelRequest{PanelID: "b1", Position: &pos}); err != nil {
		t.Fatalf("AddPanel: %v", err)
	}
	_, err := eng.AddPanel(AddPanelRequest{PanelID: "b1", Position: &pos})
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate AddPanel err = %v, want ErrAlreadyExists", err)
	}
}

func TestCloseMainPanelRejected(t *testing.T) {
	env := newTestEnv(t)
	eng := env.open(t, testNote)

	if err := eng.ClosePanel(models.MainPanelID); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("ClosePanel(main) = %v, want ErrConflict", err)
	}
	if err := eng.DeletePanel(models.MainPanelID, ""); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("DeletePanel(main) = %v, want ErrConflict", err)
	}
}

func TestSoftCloseKeepsStoreRecord(t *testing.T) {
	env := newTestEnv(t)
	eng := env.open(t, testNote)

	pos := geom.Point{X: 10, Y: 20}
	item, _ := eng.AddPanel(AddPanelRequest{PanelID: "b1", Position: &pos})

	if err := eng.ClosePanel("b1"); err != nil {
		t.Fatalf("ClosePanel: %v", err)
	}
	v, _ := eng.State()
	if indexOfKey(v.Items, item.StoreKey) >= 0 {
		t.Error("closed panel should leave the canvas")
	}
	if !env.store.Has(item.StoreKey) {
		t.Error("soft close must keep the store record")
	}
}

func TestExternalStoreCreateMergesIn(t *testing.T) {
	env := newTestEnv(t)
	eng := env.open(t, testNote)

	pos := geom.Point{X: 400, Y: 500}
	key := panelkey.Ensure(testNote, "ext")
	env.store.Set(key, models.PanelRecord{Position: &pos, Type: models.PanelBranch})

	eventually(t, time.Second, 5*time.Millisecond, func() bool {
		v, err := eng.State()
		return err == nil && indexOfKey(v.Items, key) >= 0
	}, "externally created record should merge into the canvas")
}

func TestExternalStoreDeleteDropsItem(t *testing.T) {
	env := newTestEnv(t)
	eng := env.open(t, testNote)

	pos := geom.Point{X: 400, Y: 500}
	item, _ := eng.AddPanel(AddPanelRequest{PanelID: "b1", Position: &pos})

	env.store.Delete(item.StoreKey)
	eventually(t, time.Second, 5*time.Millisecond, func() bool {
		v, err := eng.State()
		return err == nil && indexOfKey(v.Items, item.StoreKey) < 0
	}, "externally deleted record should drop the item")
}

func TestExternalMainDeleteReSeeded(t *testing.T) {
	env := newTestEnv(t)
	eng := env.open(t, testNote)
	mainKey := panelkey.Ensure(testNote, models.MainPanelID)

	env.store.Delete(mainKey)
	eventually(t, time.Second, 5*time.Millisecond, func() bool {
		return env.store.Has(mainKey)
	}, "main record should be re-seeded after external delete")

	v, _ := eng.State()
	if indexOfKey(v.Items, mainKey) < 0 {
		t.Error("main panel must survive an external record delete")
	}
}
