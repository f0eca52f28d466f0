// Package file implements the local storage backend: one JSON document per
// collection under a data directory, rewritten wholesale on every mutation.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-hub/pkg/storage"
)

// Backend reads and writes JSON documents on disk. Every collection is a
// single array document ("users.json", "events.json", "messages.json")
// except settings, which is a single object. A missing file is an empty
// collection, not an error.
//
// Mutations are read-modify-write guarded by a process-local mutex and
// finished with an atomic rename, so a crash mid-write never leaves a
// truncated document. Nothing protects against a second process writing the
// same directory.
type Backend struct {
	dir    string
	logger *zap.Logger
	mu     sync.Mutex
}

// New creates a file backend rooted at dir, creating the directory if
// needed.
func New(dir string, logger *zap.Logger) (*Backend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	logger.Info("using local file backend", zap.String("dir", dir))
	return &Backend{dir: dir, logger: logger}, nil
}

func (b *Backend) path(collection string) string {
	return filepath.Join(b.dir, collection+".json")
}

// readAll loads a collection document. For the settings collection the
// single object is wrapped in a one-element slice so every caller sees the
// same shape.
func (b *Backend) readAll(collection string) ([]storage.Record, error) {
	data, err := os.ReadFile(b.path(collection))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to read %s: %v", storage.ErrUnavailable, collection, err)
	}

	if collection == storage.CollectionSettings {
		var rec storage.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to parse %s document: %w", collection, err)
		}
		if len(rec) == 0 {
			return nil, nil
		}
		return []storage.Record{rec}, nil
	}

	var recs []storage.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("failed to parse %s document: %w", collection, err)
	}
	return recs, nil
}

// writeAll rewrites a collection document atomically: marshal, write to a
// temp file in the same directory, rename over the original.
func (b *Backend) writeAll(collection string, recs []storage.Record) error {
	var doc any = recs
	if recs == nil {
		doc = []storage.Record{}
	}
	if collection == storage.CollectionSettings {
		if len(recs) == 0 {
			doc = storage.Record{}
		} else {
			doc = recs[0]
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s document: %w", collection, err)
	}

	tmp, err := os.CreateTemp(b.dir, collection+"-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file: %v", storage.ErrUnavailable, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s document: %w", collection, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s document: %w", collection, err)
	}
	if err := os.Rename(tmpName, b.path(collection)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s document: %w", collection, err)
	}
	return nil
}

func matches(rec storage.Record, filter storage.Filter) bool {
	for k, want := range filter {
		if fmt.Sprint(rec[k]) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// List returns the records matching filter in document order.
func (b *Backend) List(ctx context.Context, collection string, filter storage.Filter) ([]storage.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	recs, err := b.readAll(collection)
	if err != nil {
		return nil, err
	}
	if len(filter) == 0 {
		return recs, nil
	}
	out := make([]storage.Record, 0, len(recs))
	for _, rec := range recs {
		if matches(rec, filter) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Get returns the record with the given id or storage.ErrNotFound.
func (b *Backend) Get(ctx context.Context, collection, id string) (storage.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	recs, err := b.readAll(collection)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if storage.RecString(rec, "id") == id {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%w: %s %q", storage.ErrNotFound, collection, id)
}

// Insert appends a record, rejecting duplicate ids with storage.ErrConflict.
func (b *Backend) Insert(ctx context.Context, collection string, rec storage.Record) (storage.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	recs, err := b.readAll(collection)
	if err != nil {
		return nil, err
	}
	id := storage.RecString(rec, "id")
	for _, existing := range recs {
		if storage.RecString(existing, "id") == id {
			return nil, fmt.Errorf("%w: %s %q already exists", storage.ErrConflict, collection, id)
		}
	}
	recs = append(recs, rec)
	if err := b.writeAll(collection, recs); err != nil {
		return nil, err
	}
	return rec, nil
}

// Update merges patch into the record with the given id and rewrites the
// document. A record carrying a version stamp has it bumped by every
// accepted update, so conditional writers racing this one see a conflict.
func (b *Backend) Update(ctx context.Context, collection, id string, patch storage.Record) (storage.Record, error) {
	return b.update(collection, id, patch, nil)
}

// UpdateVersioned merges patch only while the stored version stamp equals
// expected, bumping the stamp in the same rewrite.
func (b *Backend) UpdateVersioned(ctx context.Context, collection, id string, patch storage.Record, expected int64) (storage.Record, error) {
	return b.update(collection, id, patch, &expected)
}

func (b *Backend) update(collection, id string, patch storage.Record, expected *int64) (storage.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	recs, err := b.readAll(collection)
	if err != nil {
		return nil, err
	}
	for i, rec := range recs {
		if storage.RecString(rec, "id") != id {
			continue
		}
		if expected != nil {
			if current := storage.RecInt64(rec, "version"); current != *expected {
				return nil, fmt.Errorf("%w: %s %q version %d, expected %d",
					storage.ErrConflict, collection, id, current, *expected)
			}
		}
		updated := storage.Record{}
		for k, v := range rec {
			updated[k] = v
		}
		for k, v := range patch {
			updated[k] = v
		}
		if _, versioned := rec["version"]; versioned || expected != nil {
			updated["version"] = storage.RecInt64(rec, "version") + 1
		}
		recs[i] = updated
		if err := b.writeAll(collection, recs); err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("%w: %s %q", storage.ErrNotFound, collection, id)
}

// Delete removes the record with the given id. Deleting an absent id
// returns storage.ErrNotFound.
func (b *Backend) Delete(ctx context.Context, collection, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	recs, err := b.readAll(collection)
	if err != nil {
		return err
	}
	for i, rec := range recs {
		if storage.RecString(rec, "id") == id {
			recs = append(recs[:i], recs[i+1:]...)
			return b.writeAll(collection, recs)
		}
	}
	return fmt.Errorf("%w: %s %q", storage.ErrNotFound, collection, id)
}

// Close is a no-op; the backend holds no open handles between calls.
func (b *Backend) Close() {}
