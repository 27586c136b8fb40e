package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dandytbermillo/canvasd/internal/apperr"
	"github.com/dandytbermillo/canvasd/internal/geom"
	"github.com/dandytbermillo/canvasd/internal/models"
)

func testSnapshot(zoom float64) models.Snapshot {
	return models.Snapshot{
		Viewport: geom.Camera{TranslateX: -1000, TranslateY: -1200, Zoom: zoom},
		Items: []models.PanelItem{{
			ItemType:  models.ItemPanel,
			PanelID:   models.MainPanelID,
			NoteID:    "note-1",
			StoreKey:  "note-1:main",
			Position:  geom.Point{X: 2000, Y: 1500},
			PanelType: models.PanelMain,
			UpdatedAt: time.Now().UTC().Truncate(time.Second),
		}},
		SavedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestFSWriteReadRoundTrip(t *testing.T) {
	prov, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	ctx := context.Background()

	snap := testSnapshot(1.2)
	data, err := Encode("note-1", snap)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := prov.Write(ctx, "note-1", data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := prov.Read(ctx, "note-1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	doc, err := Decode(got)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if doc.NoteID != "note-1" || doc.Viewport.Zoom != 1.2 {
		t.Errorf("decoded document = %+v", doc)
	}
	if len(doc.Items) != 1 || doc.Items[0].PanelID != models.MainPanelID {
		t.Errorf("decoded items = %+v", doc.Items)
	}
}

func TestFSList(t *testing.T) {
	prov, _ := NewFS(t.TempDir())
	ctx := context.Background()

	for _, id := range []string{"note-a", "note-b"} {
		data, _ := Encode(id, testSnapshot(1))
		if err := prov.Write(ctx, id, data); err != nil {
			t.Fatalf("Write %s: %v", id, err)
		}
	}

	entries, err := prov.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	for _, e := range entries {
		if e.Checksum == "" {
			t.Errorf("entry %s missing checksum", e.NoteID)
		}
	}
}

func TestFSReadMissing(t *testing.T) {
	prov, _ := NewFS(t.TempDir())
	if _, err := prov.Read(context.Background(), "ghost"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Read missing = %v, want ErrNotFound", err)
	}
}

func TestFSDeleteTolerant(t *testing.T) {
	prov, _ := NewFS(t.TempDir())
	ctx := context.Background()
	if err := prov.Delete(ctx, "ghost"); err != nil {
		t.Errorf("Delete missing = %v, want nil", err)
	}

	data, _ := Encode("note-1", testSnapshot(1))
	_ = prov.Write(ctx, "note-1", data)
	if err := prov.Delete(ctx, "note-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := prov.Read(ctx, "note-1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Read after delete = %v, want ErrNotFound", err)
	}
}

func TestFSRejectsTraversal(t *testing.T) {
	prov, _ := NewFS(t.TempDir())
	ctx := context.Background()
	for _, id := range []string{"../escape", "a/b", `a\b`, "..", "."} {
		if err := prov.Write(ctx, id, []byte("{}")); err == nil {
			t.Errorf("Write(%q) should be rejected", id)
		}
	}
}

func TestDecodeRejectsBadDocuments(t *testing.T) {
	if _, err := Decode([]byte("not json")); err == nil {
		t.Error("Decode should reject malformed JSON")
	}
	if _, err := Decode([]byte(`{"version":99,"noteId":"n"}`)); err == nil {
		t.Error("Decode should reject unknown versions")
	}
	if _, err := Decode([]byte(`{"version":1}`)); err == nil {
		t.Error("Decode should reject a missing note id")
	}
}
