// Package archive exports note snapshots as durable JSON documents, one file
// (or object) per note. The snapshot cache is an ephemeral local database;
// the archive is the copy that backups, syncing tools, and other machines
// see. At boot the two reconcile by save time, so whichever side carries the
// newer state wins.
package archive

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dandytbermillo/canvasd/internal/models"
)

// DocumentVersion is the current archive document format.
const DocumentVersion = 1

// Suffix is appended to a note id to form its archive name.
const Suffix = ".canvas.json"

// Document is the archived form of one note's canvas state.
type Document struct {
	Version int    `json:"version"`
	NoteID  string `json:"noteId"`
	models.Snapshot
}

// Entry describes one archived note without its payload.
type Entry struct {
	NoteID    string
	Checksum  string
	UpdatedAt time.Time
}

// Encode renders the archive document for a note.
func Encode(noteID string, snap models.Snapshot) ([]byte, error) {
	doc := Document{Version: DocumentVersion, NoteID: noteID, Snapshot: snap}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("archive: encode %s: %w", noteID, err)
	}
	return append(data, '\n'), nil
}

// Decode parses and validates an archive document.
func Decode(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("archive: decode: %w", err)
	}
	if doc.Version != DocumentVersion {
		return Document{}, fmt.Errorf("archive: unsupported document version %d", doc.Version)
	}
	if doc.NoteID == "" {
		return Document{}, fmt.Errorf("archive: document missing note id")
	}
	return doc, nil
}
