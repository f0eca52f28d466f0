package services

import (
	"context"
	"fmt"

	"github.com/jakechorley/volunteer-hub/pkg/storage"
)

// mockBackend implements a test double for storage.Backend: an in-memory
// collection map with per-operation error injection and call counting.
type mockBackend struct {
	collections map[string][]storage.Record

	listErr   error
	getErr    error
	insertErr error
	updateErr error
	deleteErr error

	// failInsertAfter fails the n+1-th insert when >= 0, for batch abort
	// tests.
	failInsertAfter int
	insertCalls     int
	updateCalls     map[string]int

	// versionRaces simulates that many lost version races: each affected
	// UpdateVersioned bumps the stored stamp behind the caller and returns
	// a conflict, as if a concurrent writer had won.
	versionRaces int
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		collections:     make(map[string][]storage.Record),
		failInsertAfter: -1,
		updateCalls:     make(map[string]int),
	}
}

func (m *mockBackend) seed(collection string, recs ...storage.Record) {
	m.collections[collection] = append(m.collections[collection], recs...)
}

func (m *mockBackend) List(ctx context.Context, collection string, filter storage.Filter) ([]storage.Record, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := []storage.Record{}
	for _, rec := range m.collections[collection] {
		match := true
		for k, want := range filter {
			if fmt.Sprint(rec[k]) != fmt.Sprint(want) {
				match = false
				break
			}
		}
		if match {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

func (m *mockBackend) Get(ctx context.Context, collection, id string) (storage.Record, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, rec := range m.collections[collection] {
		if storage.RecString(rec, "id") == id {
			return cloneRecord(rec), nil
		}
	}
	return nil, fmt.Errorf("%w: %s %q", storage.ErrNotFound, collection, id)
}

func (m *mockBackend) Insert(ctx context.Context, collection string, rec storage.Record) (storage.Record, error) {
	m.insertCalls++
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	if m.failInsertAfter >= 0 && m.insertCalls > m.failInsertAfter {
		return nil, fmt.Errorf("%w: injected insert failure", storage.ErrUnavailable)
	}
	id := storage.RecString(rec, "id")
	for _, existing := range m.collections[collection] {
		if storage.RecString(existing, "id") == id {
			return nil, fmt.Errorf("%w: %s %q already exists", storage.ErrConflict, collection, id)
		}
	}
	m.collections[collection] = append(m.collections[collection], cloneRecord(rec))
	return cloneRecord(rec), nil
}

func (m *mockBackend) Update(ctx context.Context, collection, id string, patch storage.Record) (storage.Record, error) {
	return m.update(collection, id, patch, nil)
}

func (m *mockBackend) UpdateVersioned(ctx context.Context, collection, id string, patch storage.Record, expected int64) (storage.Record, error) {
	return m.update(collection, id, patch, &expected)
}

func (m *mockBackend) update(collection, id string, patch storage.Record, expected *int64) (storage.Record, error) {
	m.updateCalls[id]++
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	for i, rec := range m.collections[collection] {
		if storage.RecString(rec, "id") != id {
			continue
		}
		if expected != nil {
			if m.versionRaces > 0 {
				m.versionRaces--
				raced := cloneRecord(rec)
				raced["version"] = storage.RecInt64(rec, "version") + 1
				m.collections[collection][i] = raced
				return nil, fmt.Errorf("%w: version moved", storage.ErrConflict)
			}
			if current := storage.RecInt64(rec, "version"); current != *expected {
				return nil, fmt.Errorf("%w: version %d, expected %d", storage.ErrConflict, current, *expected)
			}
		}
		updated := cloneRecord(rec)
		for k, v := range patch {
			updated[k] = v
		}
		if _, versioned := rec["version"]; versioned || expected != nil {
			updated["version"] = storage.RecInt64(rec, "version") + 1
		}
		m.collections[collection][i] = updated
		return cloneRecord(updated), nil
	}
	return nil, fmt.Errorf("%w: %s %q", storage.ErrNotFound, collection, id)
}

func (m *mockBackend) Delete(ctx context.Context, collection, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	recs := m.collections[collection]
	for i, rec := range recs {
		if storage.RecString(rec, "id") == id {
			m.collections[collection] = append(recs[:i], recs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s %q", storage.ErrNotFound, collection, id)
}

func (m *mockBackend) Close() {}

func cloneRecord(rec storage.Record) storage.Record {
	out := storage.Record{}
	for k, v := range rec {
		out[k] = v
	}
	return out
}

// mockMailer records sent notifications.
type mockMailer struct {
	sent    []string
	sendErr error
}

func (m *mockMailer) SendEmail(to, subject, body string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, to)
	return nil
}
