package canvas

import (
	"errors"
	"testing"

	"github.com/dandytbermillo/canvasd/internal/apperr"
	"github.com/dandytbermillo/canvasd/internal/geom"
	"github.com/dandytbermillo/canvasd/internal/models"
)

func newTestManager(t *testing.T) (*Manager, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	m := NewManager(env.deps)
	t.Cleanup(m.CloseAll)
	return m, env
}

func TestManagerOpenIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)

	first, err := m.Open(testNote)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	second, err := m.Open(testNote)
	if err != nil {
		t.Fatalf("Open again: %v", err)
	}
	if first != second {
		t.Error("Open twice should return the same engine")
	}
	if got := m.OpenNotes(); len(got) != 1 || got[0] != testNote {
		t.Errorf("OpenNotes = %v, want [%s]", got, testNote)
	}
}

func TestManagerRejectsInvalidNoteID(t *testing.T) {
	m, _ := newTestManager(t)
	for _, id := range []string{"", "note:with:separator"} {
		if _, err := m.Open(id); err == nil {
			t.Errorf("Open(%q) should reject the note id", id)
		}
	}
}

func TestManagerCloseNoteCachesMainPosition(t *testing.T) {
	m, env := newTestManager(t)

	eng, err := m.Open(testNote)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	waitReady(t, eng)
	moved := geom.Point{X: 2750, Y: 1650}
	if err := eng.MovePanel(models.MainPanelID, moved); err != nil {
		t.Fatalf("MovePanel: %v", err)
	}

	if err := m.CloseNote(testNote); err != nil {
		t.Fatalf("CloseNote: %v", err)
	}
	if pt, ok := env.hints.CachedPosition(testNote); !ok || pt != moved {
		t.Errorf("cached hint after close = (%+v, %v), want (%+v, true)", pt, ok, moved)
	}

	if err := m.CloseNote(testNote); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("closing a closed note = %v, want ErrNotFound", err)
	}
}

func TestManagerPeek(t *testing.T) {
	m, _ := newTestManager(t)
	if _, ok := m.Peek(testNote); ok {
		t.Error("Peek before Open should miss")
	}
	eng, _ := m.Open(testNote)
	got, ok := m.Peek(testNote)
	if !ok || got != eng {
		t.Error("Peek after Open should return the open engine")
	}
}

func TestManagerCloseAll(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Open("note-a"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := m.Open("note-b"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	m.CloseAll()
	if got := m.OpenNotes(); len(got) != 0 {
		t.Errorf("OpenNotes after CloseAll = %v", got)
	}
	if _, err := m.Open("note-c"); !errors.Is(err, apperr.ErrClosed) {
		t.Errorf("Open after CloseAll = %v, want ErrClosed", err)
	}
}

func TestManagerReopenSeesFlushedState(t *testing.T) {
	m, _ := newTestManager(t)

	eng, _ := m.Open(testNote)
	waitReady(t, eng)
	if _, err := eng.PanBy(77, 0); err != nil {
		t.Fatalf("PanBy: %v", err)
	}
	if err := m.CloseNote(testNote); err != nil {
		t.Fatalf("CloseNote: %v", err)
	}

	eng2, err := m.Open(testNote)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	v := waitReady(t, eng2)
	want := DefaultParams().DefaultCamera.TranslateX + 77
	if !almostEqual(v.Viewport.TranslateX, want) {
		t.Errorf("reopened translateX = %v, want %v", v.Viewport.TranslateX, want)
	}
}
