package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dandytbermillo/canvasd/internal/apperr"
	"github.com/dandytbermillo/canvasd/internal/checksum"
	"github.com/dandytbermillo/canvasd/internal/panelkey"
)

// FS implements Provider on a flat local directory, one
// <noteID>.canvas.json per note.
type FS struct {
	root string
}

var _ Provider = (*FS)(nil)

// NewFS roots the provider at dir, creating it when missing.
func NewFS(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("archive: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("archive: create root: %w", err)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute archive directory, for the change watcher.
func (f *FS) Root() string { return f.root }

// path maps a note id to its document path. Note ids never contain path
// separators (see panelkey.Valid), but the id still gets checked so a
// crafted id cannot escape the root.
func (f *FS) path(noteID string) (string, error) {
	if !panelkey.Valid(noteID) || strings.ContainsAny(noteID, `/\`) || noteID == "." || noteID == ".." {
		return "", fmt.Errorf("archive: invalid note id %q", noteID)
	}
	return filepath.Join(f.root, noteID+Suffix), nil
}

// NoteIDFromPath extracts the note id from an archive file path, or "" when
// the path is not an archive document.
func NoteIDFromPath(p string) string {
	name := filepath.Base(p)
	if !strings.HasSuffix(name, Suffix) {
		return ""
	}
	return strings.TrimSuffix(name, Suffix)
}

func (f *FS) List(_ context.Context) ([]Entry, error) {
	dirents, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	var out []Entry
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		noteID := NoteIDFromPath(d.Name())
		if noteID == "" {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(f.root, d.Name()))
		if err != nil {
			continue
		}
		out = append(out, Entry{
			NoteID:    noteID,
			Checksum:  checksum.Sum(data),
			UpdatedAt: info.ModTime(),
		})
	}
	return out, nil
}

func (f *FS) Read(_ context.Context, noteID string) ([]byte, error) {
	p, err := f.path(noteID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("archive: %s: %w", noteID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("archive: read %s: %w", noteID, err)
	}
	return data, nil
}

// Write lands the document atomically: tmp file, fsync, rename.
func (f *FS) Write(_ context.Context, noteID string, data []byte) error {
	p, err := f.path(noteID)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.root, ".canvasd-tmp-*")
	if err != nil {
		return fmt.Errorf("archive: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("archive: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("archive: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("archive: close temp: %w", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("archive: rename: %w", err)
	}
	success = true
	return nil
}

func (f *FS) Delete(_ context.Context, noteID string) error {
	p, err := f.path(noteID)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("archive: delete %s: %w", noteID, err)
	}
	return nil
}
