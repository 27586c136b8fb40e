package snapshot

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/dandytbermillo/canvasd/internal/apperr"
	"github.com/dandytbermillo/canvasd/internal/geom"
	"github.com/dandytbermillo/canvasd/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "canvasd-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testSnapshot(savedAt time.Time) models.Snapshot {
	return models.Snapshot{
		Viewport: geom.Camera{TranslateX: -1000, TranslateY: -1200, Zoom: 1},
		Items: []models.PanelItem{
			{
				ItemType:  models.ItemPanel,
				PanelID:   "main",
				NoteID:    "note-1",
				StoreKey:  "note-1:main",
				Position:  geom.Point{X: 2000, Y: 1500},
				PanelType: models.PanelMain,
				ZIndex:    1,
			},
		},
		SavedAt: savedAt,
	}
}

func TestSaveAndLoad(t *testing.T) {
	db := testDB(t)
	savedAt := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	if err := db.Save("note-1", testSnapshot(savedAt)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	snap, err := db.Load("note-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.Viewport.TranslateX != -1000 || snap.Viewport.Zoom != 1 {
		t.Errorf("viewport = %+v", snap.Viewport)
	}
	if len(snap.Items) != 1 || snap.Items[0].StoreKey != "note-1:main" {
		t.Errorf("items = %+v", snap.Items)
	}
	if !snap.SavedAt.Equal(savedAt) {
		t.Errorf("savedAt = %v, want %v", snap.SavedAt, savedAt)
	}
}

func TestSaveReplacesPriorEntry(t *testing.T) {
	db := testDB(t)
	first := testSnapshot(time.Now())
	if err := db.Save("note-1", first); err != nil {
		t.Fatalf("Save: %v", err)
	}

	second := first
	second.Viewport.Zoom = 1.5
	second.Items = nil
	if err := db.Save("note-1", second); err != nil {
		t.Fatalf("Save replace: %v", err)
	}

	snap, err := db.Load("note-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.Viewport.Zoom != 1.5 {
		t.Errorf("zoom = %v, want 1.5", snap.Viewport.Zoom)
	}
	if len(snap.Items) != 0 {
		t.Errorf("items should be replaced, got %+v", snap.Items)
	}
}

func TestLoadNotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.Load("missing")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteSnapshot(t *testing.T) {
	db := testDB(t)
	_ = db.Save("note-1", testSnapshot(time.Now()))

	if err := db.Delete("note-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := db.Load("note-1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	// Deleting a missing row is fine.
	if err := db.Delete("note-1"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}

func TestNoteIDs(t *testing.T) {
	db := testDB(t)
	_ = db.Save("note-1", testSnapshot(time.Now()))
	_ = db.Save("note-2", testSnapshot(time.Now()))

	ids, err := db.NoteIDs()
	if err != nil {
		t.Fatalf("NoteIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("want 2 ids, got %v", ids)
	}
}
