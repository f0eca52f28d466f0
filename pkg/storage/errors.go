package storage

import "errors"

// Stable error taxonomy shared by both backends. Backend-native failures are
// translated into one of these before leaving the storage layer, so callers
// can branch with errors.Is without knowing which backend is in use.
var (
	// ErrNotFound: the requested id is absent from the backend.
	ErrNotFound = errors.New("record not found")
	// ErrConflict: unique-constraint violation (duplicate id, duplicate
	// custom URL) or a stale version stamp on a conditional write.
	ErrConflict = errors.New("conflict")
	// ErrReferential: the write referenced a record that does not exist.
	ErrReferential = errors.New("referential integrity violation")
	// ErrValidation: an invariant was violated before any I/O happened.
	ErrValidation = errors.New("validation failed")
	// ErrUnavailable: the backend could not be reached at all.
	ErrUnavailable = errors.New("storage backend unavailable")
)
