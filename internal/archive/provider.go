package archive

import "context"

// Provider stores archive documents keyed by note id.
type Provider interface {
	// List returns metadata for every archived note.
	List(ctx context.Context) ([]Entry, error)
	// Read returns the raw document for a note.
	Read(ctx context.Context, noteID string) ([]byte, error)
	// Write durably replaces the document for a note.
	Write(ctx context.Context, noteID string, data []byte) error
	// Delete removes a note's document. Deleting an absent note is not an
	// error.
	Delete(ctx context.Context, noteID string) error
}
