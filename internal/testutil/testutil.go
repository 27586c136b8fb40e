// Package testutil provides shared test helpers for setting up layout caches.
package testutil

import (
	"os"
	"testing"

	"github.com/dandytbermillo/canvasd/internal/snapshot"
)

// TestCache creates a temporary SQLite layout cache that is automatically
// cleaned up after the test and everything registered later, so engine
// flushes registered afterwards still hit an open database.
func TestCache(t *testing.T) *snapshot.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "canvasd-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := snapshot.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
