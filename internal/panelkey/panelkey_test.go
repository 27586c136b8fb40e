package panelkey

import "testing"

func TestEnsureAndParse(t *testing.T) {
	key := Ensure("note-1", "main")
	if key != "note-1:main" {
		t.Fatalf("key = %q", key)
	}
	n, p := Parse(key)
	if n != "note-1" || p != "main" {
		t.Errorf("Parse = (%q, %q)", n, p)
	}
}

func TestEnsureIdempotent(t *testing.T) {
	key := Ensure("note-1", "main")
	again := Ensure("note-1", string(key))
	if again != key {
		t.Errorf("re-resolution changed key: %q -> %q", key, again)
	}

	// Full round trip through parse and back.
	n, p := Parse(again)
	if final := Ensure(n, p); final != key {
		t.Errorf("ensure/parse/ensure = %q, want %q", final, key)
	}
}

func TestParseBareID(t *testing.T) {
	n, p := Parse(StoreKey("main"))
	if n != "" || p != "main" {
		t.Errorf("Parse bare id = (%q, %q)", n, p)
	}
}

func TestDistinctAcrossNotes(t *testing.T) {
	a := Ensure("note-a", "main")
	b := Ensure("note-b", "main")
	if a == b {
		t.Fatalf("same key for different notes: %q", a)
	}
	if PanelID(a) != "main" || PanelID(b) != "main" {
		t.Errorf("panel ids = %q, %q", PanelID(a), PanelID(b))
	}
	if NoteID(a) != "note-a" || NoteID(b) != "note-b" {
		t.Errorf("note ids = %q, %q", NoteID(a), NoteID(b))
	}
}

func TestPanelIDWithNestedSeparator(t *testing.T) {
	// Parse splits on the first separator only, so a pre-composed id that
	// itself made it into the panel slot still resolves to its own note.
	key := Ensure("ignored", "note-1:branch:deep")
	n, p := Parse(key)
	if n != "note-1" || p != "branch:deep" {
		t.Errorf("Parse = (%q, %q)", n, p)
	}
}

func TestValid(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"main", true},
		{"branch-01J9ZK3V", true},
		{"", false},
		{"a:b", false},
	}
	for _, c := range cases {
		if got := Valid(c.id); got != c.want {
			t.Errorf("Valid(%q) = %v, want %v", c.id, got, c.want)
		}
	}
}
