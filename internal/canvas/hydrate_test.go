package canvas

import (
	"testing"
	"time"

	"github.com/dandytbermillo/canvasd/internal/geom"
	"github.com/dandytbermillo/canvasd/internal/models"
	"github.com/dandytbermillo/canvasd/internal/panelkey"
)

func waitReady(t *testing.T, eng *Engine) View {
	t.Helper()
	var v View
	eventually(t, time.Second, 5*time.Millisecond, func() bool {
		got, err := eng.State()
		if err != nil {
			return false
		}
		v = got
		return v.Ready
	}, "engine should become ready")
	return v
}

func mainItem(t *testing.T, v View, noteID string) models.PanelItem {
	t.Helper()
	idx := indexOfKey(v.Items, panelkey.Ensure(noteID, models.MainPanelID))
	if idx < 0 {
		t.Fatal("no main panel item")
	}
	return v.Items[idx]
}

func TestHydrateFreshNote(t *testing.T) {
	env := newTestEnv(t)
	eng := env.open(t, testNote)
	v := waitReady(t, eng)

	main := mainItem(t, v, testNote)
	if main.Position != env.deps.Params.DefaultPanelPosition {
		t.Errorf("fresh main position = %+v, want default %+v", main.Position, env.deps.Params.DefaultPanelPosition)
	}
	if main.PanelType != models.PanelMain {
		t.Errorf("main panel type = %q", main.PanelType)
	}

	mainKey := panelkey.Ensure(testNote, models.MainPanelID)
	if !env.store.Has(mainKey) {
		t.Error("fresh hydration should seed the store record")
	}
	if env.remote.createCount() != 1 {
		t.Errorf("remote creates = %d, want 1 (the seeded main)", env.remote.createCount())
	}

	data, ok := env.sink.last("canvas.hydrated")
	if !ok {
		t.Fatal("no canvas.hydrated event")
	}
	if outcome := data.(map[string]any)["outcome"]; outcome != "fresh" {
		t.Errorf("hydration outcome = %v, want fresh", outcome)
	}
}

func TestHydrateFreshCentersCamera(t *testing.T) {
	env := newTestEnv(t)
	// One attempt and no live rect: the measure probe falls straight
	// through to the default panel dimensions.
	env.deps.Params.MeasureAttempts = 1
	eng := env.open(t, testNote)
	waitReady(t, eng)

	eventually(t, time.Second, 5*time.Millisecond, func() bool {
		return env.sink.count("camera.updated") >= 1
	}, "fresh hydration should propagate a centering camera update")

	v, _ := eng.State()
	if !almostEqual(v.Viewport.TranslateX, -1440) || !almostEqual(v.Viewport.TranslateY, -1260) {
		t.Errorf("centered camera = (%v, %v), want (-1440, -1260)",
			v.Viewport.TranslateX, v.Viewport.TranslateY)
	}
}

func TestHydrateFreshCentersOnLiveRect(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Params.MeasureAttempts = 5
	env.deps.Params.MeasureDelay = 15 * time.Millisecond
	eng := env.open(t, testNote)
	waitReady(t, eng)

	// The renderer reports the measured main panel while the probe is
	// still polling.
	r := geom.Rect{Pos: geom.Point{X: 5000, Y: 5000}, Size: geom.Size{Width: 100, Height: 100}}
	if err := eng.SetLiveRect(models.MainPanelID, r); err != nil {
		t.Fatalf("SetLiveRect: %v", err)
	}

	eventually(t, time.Second, 5*time.Millisecond, func() bool {
		v, err := eng.State()
		return err == nil && almostEqual(v.Viewport.TranslateX, 960-5050)
	}, "probe should center on the measured rect")

	v, _ := eng.State()
	if !almostEqual(v.Viewport.TranslateY, 540-5050) {
		t.Errorf("translateY = %v, want %v", v.Viewport.TranslateY, 540-5050.0)
	}
}

func TestHydrateRestoresSnapshotWithoutPropagating(t *testing.T) {
	env := newTestEnv(t)
	cam := geom.Camera{TranslateX: -50, TranslateY: -60, Zoom: 1.5}
	pos := geom.Point{X: 2100, Y: 1600}
	env.cache.Save(testNote, models.Snapshot{
		Viewport: cam,
		Items: []models.PanelItem{{
			ItemType: models.ItemPanel, PanelID: models.MainPanelID,
			Position: pos, PanelType: models.PanelMain, UpdatedAt: time.Now().UTC(),
		}},
		SavedAt: time.Now().UTC(),
	})

	eng := env.open(t, testNote)
	v := waitReady(t, eng)

	if v.Viewport.TranslateX != cam.TranslateX || v.Viewport.Zoom != cam.Zoom {
		t.Errorf("restored camera = %+v, want %+v", v.Viewport, cam)
	}
	if got := mainItem(t, v, testNote).Position; got != pos {
		t.Errorf("restored main position = %+v, want %+v", got, pos)
	}

	time.Sleep(3 * env.deps.Params.FrameInterval)
	if n := env.sink.count("camera.updated"); n != 0 {
		t.Errorf("restoring a camera must not propagate it, got %d events", n)
	}
}

func TestHydrateRepairsCorruptedPosition(t *testing.T) {
	env := newTestEnv(t)
	authoritative := geom.Point{X: 2000, Y: 1500}
	env.store.Set(panelkey.Ensure(testNote, models.MainPanelID),
		models.PanelRecord{Position: &authoritative, Type: models.PanelMain, UpdatedAt: time.Now().UTC()})

	// Screen-space coordinates leaked into a world-space snapshot.
	env.cache.Save(testNote, models.Snapshot{
		Viewport: geom.Camera{Zoom: 1},
		Items: []models.PanelItem{{
			ItemType: models.ItemPanel, PanelID: models.MainPanelID,
			Position: geom.Point{X: 50, Y: 50}, PanelType: models.PanelMain,
			UpdatedAt: time.Now().UTC(),
		}},
	})

	eng := env.open(t, testNote)
	v := waitReady(t, eng)

	if got := mainItem(t, v, testNote).Position; got != authoritative {
		t.Errorf("repaired position = %+v, want store position %+v", got, authoritative)
	}
	data, _ := env.sink.last("canvas.hydrated")
	if outcome := data.(map[string]any)["outcome"]; outcome != "repaired" {
		t.Errorf("hydration outcome = %v, want repaired", outcome)
	}
}

func TestHydrateKeepsPlausibleDivergence(t *testing.T) {
	env := newTestEnv(t)
	stored := geom.Point{X: 2000, Y: 1500}
	restored := geom.Point{X: 2300, Y: 1900} // 700 apart, under the threshold
	env.store.Set(panelkey.Ensure(testNote, models.MainPanelID),
		models.PanelRecord{Position: &stored, Type: models.PanelMain, UpdatedAt: time.Now().UTC()})
	env.cache.Save(testNote, models.Snapshot{
		Viewport: geom.Camera{Zoom: 1},
		Items: []models.PanelItem{{
			ItemType: models.ItemPanel, PanelID: models.MainPanelID,
			Position: restored, PanelType: models.PanelMain, UpdatedAt: time.Now().UTC(),
		}},
	})

	eng := env.open(t, testNote)
	v := waitReady(t, eng)

	if got := mainItem(t, v, testNote).Position; got != restored {
		t.Errorf("position = %+v, want snapshot position %+v kept", got, restored)
	}
	data, _ := env.sink.last("canvas.hydrated")
	if outcome := data.(map[string]any)["outcome"]; outcome != "restored" {
		t.Errorf("hydration outcome = %v, want restored", outcome)
	}
}

func TestHydrateMergesStoreOnlyPanels(t *testing.T) {
	env := newTestEnv(t)
	env.cache.Save(testNote, models.Snapshot{
		Viewport: geom.Camera{Zoom: 1},
		Items: []models.PanelItem{{
			ItemType: models.ItemPanel, PanelID: models.MainPanelID,
			Position: geom.Point{X: 2000, Y: 1500}, PanelType: models.PanelMain,
			UpdatedAt: time.Now().UTC(),
		}},
	})
	orphanPos := geom.Point{X: 3200, Y: 900}
	orphanKey := panelkey.Ensure(testNote, "orphan")
	env.store.Set(orphanKey, models.PanelRecord{Position: &orphanPos, Type: models.PanelBranch})

	eng := env.open(t, testNote)
	v := waitReady(t, eng)

	idx := indexOfKey(v.Items, orphanKey)
	if idx < 0 {
		t.Fatal("store-only panel was not merged into the canvas")
	}
	if v.Items[idx].Position != orphanPos {
		t.Errorf("merged position = %+v, want %+v", v.Items[idx].Position, orphanPos)
	}
}

func TestHydrateDeduplicatesNewestWins(t *testing.T) {
	env := newTestEnv(t)
	old := time.Now().UTC().Add(-time.Hour)
	fresh := time.Now().UTC()
	env.cache.Save(testNote, models.Snapshot{
		Viewport: geom.Camera{Zoom: 1},
		Items: []models.PanelItem{
			{ItemType: models.ItemPanel, PanelID: models.MainPanelID,
				Position: geom.Point{X: 2000, Y: 1500}, PanelType: models.PanelMain, UpdatedAt: fresh},
			{ItemType: models.ItemPanel, PanelID: "b1",
				Position: geom.Point{X: 1, Y: 1}, UpdatedAt: old},
			{ItemType: models.ItemPanel, PanelID: "b1",
				Position: geom.Point{X: 9, Y: 9}, UpdatedAt: fresh},
		},
	})

	eng := env.open(t, testNote)
	v := waitReady(t, eng)

	key := panelkey.Ensure(testNote, "b1")
	var seen []geom.Point
	for _, it := range v.Items {
		if it.StoreKey == key {
			seen = append(seen, it.Position)
		}
	}
	if len(seen) != 1 {
		t.Fatalf("duplicate keys survived: %v", seen)
	}
	if seen[0] != (geom.Point{X: 9, Y: 9}) {
		t.Errorf("kept position = %+v, want the newest entry", seen[0])
	}
}

func TestHydratePendingHintWins(t *testing.T) {
	env := newTestEnv(t)
	hinted := geom.Point{X: 7000, Y: 7100}
	env.hints.SetPending(testNote, hinted)

	// Both persisted sources disagree with the hint.
	stored := geom.Point{X: 2000, Y: 1500}
	env.store.Set(panelkey.Ensure(testNote, models.MainPanelID),
		models.PanelRecord{Position: &stored, Type: models.PanelMain, UpdatedAt: time.Now().UTC()})
	env.cache.Save(testNote, models.Snapshot{
		Viewport: geom.Camera{Zoom: 1},
		Items: []models.PanelItem{{
			ItemType: models.ItemPanel, PanelID: models.MainPanelID,
			Position: stored, PanelType: models.PanelMain, UpdatedAt: time.Now().UTC(),
		}},
	})

	eng := env.open(t, testNote)
	v := waitReady(t, eng)

	if got := mainItem(t, v, testNote).Position; got != hinted {
		t.Errorf("main position = %+v, want pending hint %+v", got, hinted)
	}
	if _, ok := env.hints.PendingPosition(testNote); ok {
		t.Error("pending hint should be consumed by hydration")
	}
}

func TestHydrateCachedHintUsed(t *testing.T) {
	env := newTestEnv(t)
	cached := geom.Point{X: 4400, Y: 4500}
	env.hints.CachePosition(testNote, cached)

	eng := env.open(t, testNote)
	v := waitReady(t, eng)

	if got := mainItem(t, v, testNote).Position; got != cached {
		t.Errorf("main position = %+v, want cached hint %+v", got, cached)
	}
}

func TestHydrateSeedsStoreOnlyOnce(t *testing.T) {
	env := newTestEnv(t)
	eng := New(testNote, env.deps)
	waitReady(t, eng)

	// Move the main panel, then reopen. The store keeps the moved
	// position; a second hydration must not reset it to the default.
	moved := geom.Point{X: 2600, Y: 1900}
	if err := eng.MovePanel(models.MainPanelID, moved); err != nil {
		t.Fatalf("MovePanel: %v", err)
	}
	eng.Close()

	eng2 := env.open(t, testNote)
	v := waitReady(t, eng2)
	if got := mainItem(t, v, testNote).Position; got != moved {
		t.Errorf("reopened main position = %+v, want %+v", got, moved)
	}
	if env.remote.createCount() != 1 {
		t.Errorf("remote creates = %d, want 1 across reopen", env.remote.createCount())
	}
}

func TestHydrateSnapshotWithoutMainStillSeedsMain(t *testing.T) {
	env := newTestEnv(t)
	env.cache.Save(testNote, models.Snapshot{
		Viewport: geom.Camera{Zoom: 1},
		Items: []models.PanelItem{{
			ItemType: models.ItemPanel, PanelID: "b1",
			Position: geom.Point{X: 100, Y: 200}, UpdatedAt: time.Now().UTC(),
		}},
	})

	eng := env.open(t, testNote)
	v := waitReady(t, eng)

	main := mainItem(t, v, testNote)
	if main.Position != env.deps.Params.DefaultPanelPosition {
		t.Errorf("seeded main position = %+v, want default", main.Position)
	}
	if indexOfKey(v.Items, panelkey.Ensure(testNote, "b1")) < 0 {
		t.Error("snapshot panel should survive alongside the seeded main")
	}
}

func TestHydrateClampsRestoredZoom(t *testing.T) {
	env := newTestEnv(t)
	env.cache.Save(testNote, models.Snapshot{
		Viewport: geom.Camera{TranslateX: -1, TranslateY: -2, Zoom: 9.5},
		Items: []models.PanelItem{{
			ItemType: models.ItemPanel, PanelID: models.MainPanelID,
			Position: geom.Point{X: 2000, Y: 1500}, PanelType: models.PanelMain,
			UpdatedAt: time.Now().UTC(),
		}},
	})

	eng := env.open(t, testNote)
	v := waitReady(t, eng)
	if v.Viewport.Zoom != env.deps.Params.MaxZoom {
		t.Errorf("restored zoom = %v, want clamped to %v", v.Viewport.Zoom, env.deps.Params.MaxZoom)
	}
}
