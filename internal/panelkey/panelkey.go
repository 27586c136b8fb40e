// Package panelkey derives the canonical composite key for panel lookups.
//
// A workspace can hold several open notes, and two notes routinely both carry
// a panel named "main". Every get/set/delete against the panel store must
// therefore use the composite (noteID, panelID) key; looking a panel up by
// bare panel id is the defect class this package exists to eliminate. The
// StoreKey type is distinct from string so a bare id cannot be passed where a
// composite key is required.
package panelkey

import "strings"

// Sep separates the note id from the panel id inside a composite key.
// Note and panel ids must not contain it (see Valid).
const Sep = ":"

// StoreKey is the canonical composite key encoding (noteID, panelID).
type StoreKey string

// Ensure returns the composite key for (noteID, panelID). It is total and
// deterministic. Hydration sources are inconsistent about whether the panel
// id they hand over is already composite, so Ensure detects a pre-composed
// id and returns it unchanged rather than double-wrapping it.
func Ensure(noteID, panelID string) StoreKey {
	if strings.Contains(panelID, Sep) {
		return StoreKey(panelID)
	}
	return StoreKey(noteID + Sep + panelID)
}

// Parse splits a composite key back into (noteID, panelID). It is the left
// inverse of Ensure for all valid ids. A key without a separator is treated
// as a bare panel id with no note, which callers should regard as a defect
// to repair, not an error to propagate.
func Parse(key StoreKey) (noteID, panelID string) {
	s := string(key)
	i := strings.Index(s, Sep)
	if i < 0 {
		return "", s
	}
	return s[:i], s[i+len(Sep):]
}

// NoteID returns the note component of the key.
func NoteID(key StoreKey) string {
	n, _ := Parse(key)
	return n
}

// PanelID returns the panel component of the key.
func PanelID(key StoreKey) string {
	_, p := Parse(key)
	return p
}

// Valid reports whether id can serve as a note or panel id: non-empty and
// free of the separator.
func Valid(id string) bool {
	return id != "" && !strings.Contains(id, Sep)
}
