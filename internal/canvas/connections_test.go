package canvas

import (
	"testing"
	"time"

	"github.com/dandytbermillo/canvasd/internal/geom"
	"github.com/dandytbermillo/canvasd/internal/models"
	"github.com/dandytbermillo/canvasd/internal/panelkey"
	"github.com/dandytbermillo/canvasd/internal/store"
)

func noLiveRects(panelkey.StoreKey) (geom.Rect, bool) { return geom.Rect{}, false }

func connItem(noteID, panelID string, x, y float64) models.PanelItem {
	return models.PanelItem{
		ItemType:  models.ItemPanel,
		PanelID:   panelID,
		NoteID:    noteID,
		StoreKey:  panelkey.Ensure(noteID, panelID),
		Position:  geom.Point{X: x, Y: y},
		UpdatedAt: time.Now().UTC(),
	}
}

func TestBuildConnectionsForwardPointer(t *testing.T) {
	st := store.NewMemory()
	fallback := geom.Size{Width: 800, Height: 600}

	main := connItem(testNote, models.MainPanelID, 2000, 1500)
	child := connItem(testNote, "b1", 3200, 1500)
	st.Set(main.StoreKey, models.PanelRecord{Type: models.PanelMain})
	st.Set(child.StoreKey, models.PanelRecord{ParentID: models.MainPanelID, Type: models.PanelBranch})

	conns := buildConnections([]models.PanelItem{main, child}, st, noLiveRects, fallback)
	if len(conns) != 1 {
		t.Fatalf("connections = %d, want 1", len(conns))
	}

	c := conns[0]
	wantFrom := geom.Point{X: 2800, Y: 1800} // main right-center
	wantTo := geom.Point{X: 3200, Y: 1800}   // child left-center
	if c.From != wantFrom || c.To != wantTo {
		t.Errorf("edge anchors = %+v -> %+v, want %+v -> %+v", c.From, c.To, wantFrom, wantTo)
	}
	if c.Kind != models.ConnectionBranch {
		t.Errorf("edge kind = %q", c.Kind)
	}
}

func TestBuildConnectionsReversePointer(t *testing.T) {
	st := store.NewMemory()
	main := connItem(testNote, models.MainPanelID, 2000, 1500)
	child := connItem(testNote, "b1", 3200, 1500)
	// Only the parent side knows about the relationship.
	st.Set(main.StoreKey, models.PanelRecord{Type: models.PanelMain, Branches: []string{"b1"}})
	st.Set(child.StoreKey, models.PanelRecord{Type: models.PanelBranch})

	conns := buildConnections([]models.PanelItem{main, child}, st, noLiveRects, geom.Size{Width: 800, Height: 600})
	if len(conns) != 1 {
		t.Fatalf("connections = %d, want 1", len(conns))
	}
}

func TestBuildConnectionsBothPointersDeduplicate(t *testing.T) {
	st := store.NewMemory()
	main := connItem(testNote, models.MainPanelID, 2000, 1500)
	child := connItem(testNote, "b1", 3200, 1500)
	st.Set(main.StoreKey, models.PanelRecord{Type: models.PanelMain, Branches: []string{"b1"}})
	st.Set(child.StoreKey, models.PanelRecord{ParentID: models.MainPanelID, Type: models.PanelBranch})

	conns := buildConnections([]models.PanelItem{main, child}, st, noLiveRects, geom.Size{Width: 800, Height: 600})
	if len(conns) != 1 {
		t.Fatalf("connections = %d, want 1 (both directions collapse to one edge)", len(conns))
	}
}

func TestBuildConnectionsDanglingParent(t *testing.T) {
	st := store.NewMemory()
	child := connItem(testNote, "b1", 3200, 1500)
	st.Set(child.StoreKey, models.PanelRecord{ParentID: "gone", Type: models.PanelBranch})

	conns := buildConnections([]models.PanelItem{child}, st, noLiveRects, geom.Size{Width: 800, Height: 600})
	if len(conns) != 0 {
		t.Fatalf("connections = %d, want 0 for a dangling parent id", len(conns))
	}
}

func TestBuildConnectionsPreferLiveRect(t *testing.T) {
	st := store.NewMemory()
	main := connItem(testNote, models.MainPanelID, 2000, 1500)
	child := connItem(testNote, "b1", 3200, 1500)
	st.Set(main.StoreKey, models.PanelRecord{Type: models.PanelMain})
	st.Set(child.StoreKey, models.PanelRecord{ParentID: models.MainPanelID})

	live := map[panelkey.StoreKey]geom.Rect{
		main.StoreKey: {Pos: geom.Point{X: 2500, Y: 1500}, Size: geom.Size{Width: 400, Height: 200}},
	}
	rects := func(key panelkey.StoreKey) (geom.Rect, bool) {
		r, ok := live[key]
		return r, ok
	}

	conns := buildConnections([]models.PanelItem{main, child}, st, rects, geom.Size{Width: 800, Height: 600})
	if len(conns) != 1 {
		t.Fatalf("connections = %d, want 1", len(conns))
	}
	wantFrom := geom.Point{X: 2900, Y: 1600} // measured main right-center
	if conns[0].From != wantFrom {
		t.Errorf("From = %+v, want live-rect anchor %+v", conns[0].From, wantFrom)
	}
}

func TestBuildConnectionsDoNotCrossNotes(t *testing.T) {
	st := store.NewMemory()
	// Two notes merged onto one canvas, each with a panel named "b1" whose
	// record points at "main". Each must link to its own note's main only.
	mainA := connItem("note-a", models.MainPanelID, 0, 0)
	childA := connItem("note-a", "b1", 1000, 0)
	childB := connItem("note-b", "b1", 5000, 0)
	st.Set(mainA.StoreKey, models.PanelRecord{Type: models.PanelMain})
	st.Set(childA.StoreKey, models.PanelRecord{ParentID: models.MainPanelID})
	st.Set(childB.StoreKey, models.PanelRecord{ParentID: models.MainPanelID})

	conns := buildConnections([]models.PanelItem{mainA, childA, childB}, st, noLiveRects, geom.Size{Width: 800, Height: 600})
	if len(conns) != 1 {
		t.Fatalf("connections = %d, want 1 (note-b has no main on this canvas)", len(conns))
	}
}

func TestBuildConnectionsStableOrder(t *testing.T) {
	st := store.NewMemory()
	main := connItem(testNote, models.MainPanelID, 2000, 1500)
	items := []models.PanelItem{main}
	st.Set(main.StoreKey, models.PanelRecord{Type: models.PanelMain})
	for _, id := range []string{"c", "a", "b"} {
		it := connItem(testNote, id, 3200, 1500)
		items = append(items, it)
		st.Set(it.StoreKey, models.PanelRecord{ParentID: models.MainPanelID})
	}

	first := buildConnections(items, st, noLiveRects, geom.Size{Width: 800, Height: 600})
	second := buildConnections(items, st, noLiveRects, geom.Size{Width: 800, Height: 600})
	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("connections = %d/%d, want 3", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("order differs between builds: %v vs %v", first[i].ID, second[i].ID)
		}
	}
	for i := 1; i < len(first); i++ {
		if first[i-1].ID >= first[i].ID {
			t.Errorf("ids not ascending: %v before %v", first[i-1].ID, first[i].ID)
		}
	}
}

func TestComponentsDoNotConnect(t *testing.T) {
	st := store.NewMemory()
	main := connItem(testNote, models.MainPanelID, 2000, 1500)
	comp := connItem(testNote, "calc", 3200, 1500)
	comp.ItemType = models.ItemComponent
	st.Set(main.StoreKey, models.PanelRecord{Type: models.PanelMain, Branches: []string{"calc"}})

	conns := buildConnections([]models.PanelItem{main, comp}, st, noLiveRects, geom.Size{Width: 800, Height: 600})
	if len(conns) != 0 {
		t.Fatalf("connections = %d, want 0 (components take no edges)", len(conns))
	}
}
