// Package snapshot provides the SQLite-backed layout cache and the debounced
// writer that batches canvas mutations into it.
package snapshot

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dandytbermillo/canvasd/internal/apperr"
	"github.com/dandytbermillo/canvasd/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
	note_id  TEXT PRIMARY KEY,
	viewport TEXT NOT NULL DEFAULT '{}',
	items    TEXT NOT NULL DEFAULT '[]',
	saved_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Cache defines the layout cache operations. Consumers should depend on this
// interface rather than the concrete *DB type to facilitate testing with mocks.
type Cache interface {
	Save(noteID string, snap models.Snapshot) error
	Load(noteID string) (models.Snapshot, error)
	Delete(noteID string) error
	NoteIDs() ([]string, error)
	Close() error
}

// Verify *DB satisfies Cache at compile time.
var _ Cache = (*DB)(nil)

// DB wraps a sql.DB with snapshot-specific operations. One row per note holds
// the last committed viewport and item list.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("snapshot: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("snapshot: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("snapshot: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Save inserts or replaces the snapshot row for a note within a transaction.
func (db *DB) Save(noteID string, snap models.Snapshot) error {
	viewportJSON, err := json.Marshal(snap.Viewport)
	if err != nil {
		return fmt.Errorf("snapshot: encode viewport: %w", err)
	}
	itemsJSON, err := json.Marshal(snap.Items)
	if err != nil {
		return fmt.Errorf("snapshot: encode items: %w", err)
	}
	if snap.Items == nil {
		itemsJSON = []byte("[]")
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("snapshot: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO snapshots (note_id, viewport, items, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(note_id) DO UPDATE SET
			viewport = excluded.viewport,
			items    = excluded.items,
			saved_at = excluded.saved_at
	`, noteID, string(viewportJSON), string(itemsJSON), snap.SavedAt.UTC())
	if err != nil {
		return fmt.Errorf("snapshot: upsert: %w", err)
	}

	return tx.Commit()
}

// Load returns the stored snapshot for a note, or apperr.ErrNotFound.
func (db *DB) Load(noteID string) (models.Snapshot, error) {
	var viewportJSON, itemsJSON string
	var savedAt time.Time
	err := db.conn.QueryRow(
		`SELECT viewport, items, saved_at FROM snapshots WHERE note_id = ?`, noteID,
	).Scan(&viewportJSON, &itemsJSON, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Snapshot{}, apperr.ErrNotFound
	}
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("snapshot: load %s: %w", noteID, err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal([]byte(viewportJSON), &snap.Viewport); err != nil {
		return models.Snapshot{}, fmt.Errorf("snapshot: decode viewport for %s: %w", noteID, err)
	}
	if err := json.Unmarshal([]byte(itemsJSON), &snap.Items); err != nil {
		return models.Snapshot{}, fmt.Errorf("snapshot: decode items for %s: %w", noteID, err)
	}
	snap.SavedAt = savedAt
	return snap, nil
}

// Delete removes the snapshot row for a note. Missing rows are not an error.
func (db *DB) Delete(noteID string) error {
	if _, err := db.conn.Exec(`DELETE FROM snapshots WHERE note_id = ?`, noteID); err != nil {
		return fmt.Errorf("snapshot: delete %s: %w", noteID, err)
	}
	return nil
}

// NoteIDs returns every note that has a stored snapshot.
func (db *DB) NoteIDs() ([]string, error) {
	rows, err := db.conn.Query(`SELECT note_id FROM snapshots`)
	if err != nil {
		return nil, fmt.Errorf("snapshot: note ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
