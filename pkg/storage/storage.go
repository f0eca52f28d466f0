package storage

import "context"

// Collection names. Roles and volunteers are embedded in event records, so
// four collections cover the whole data model.
const (
	CollectionSettings = "settings"
	CollectionUsers    = "users"
	CollectionEvents   = "events"
	CollectionMessages = "messages"
)

// SettingsID is the well-known id of the singleton settings record.
const SettingsID = "default"

// Record is the flat storage representation of an entity. Field names are
// snake_case; nested ownership (event roles, role volunteers) is carried as
// []any of nested records. Values are restricted to JSON-compatible types:
// string, bool, float64/int/int64, nil, []any and map[string]any.
type Record = map[string]any

// Filter restricts a List call to records whose fields equal the given
// values. An empty or nil filter matches everything.
type Filter = map[string]any

// Backend is the storage contract shared by the remote and local
// implementations. Exactly one backend is constructed per process; there is
// no per-call fallback between them.
//
// Insert and Update return the stored record so callers see backend-populated
// fields (such as the bumped version stamp). Get and Update return
// ErrNotFound for an absent id. Errors native to a backend are translated
// into the taxonomy in errors.go before being returned.
//
// Records carrying a "version" field have the stamp incremented by every
// accepted update, unconditional or not, so a conditional write always
// detects any write that landed after its snapshot.
type Backend interface {
	List(ctx context.Context, collection string, filter Filter) ([]Record, error)
	Get(ctx context.Context, collection, id string) (Record, error)
	Insert(ctx context.Context, collection string, rec Record) (Record, error)
	Update(ctx context.Context, collection, id string, patch Record) (Record, error)
	// UpdateVersioned applies patch only while the record's "version" field
	// equals expected, bumping the stamp as part of the same write. A stale
	// stamp yields ErrConflict. Only event records carry a version.
	UpdateVersioned(ctx context.Context, collection, id string, patch Record, expected int64) (Record, error)
	Delete(ctx context.Context, collection, id string) error
	Close()
}

// RecInt reads an integer field from a record, tolerating the numeric types
// produced by the JSON decoder and the postgres driver.
func RecInt(rec Record, key string) int {
	switch v := rec[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// RecInt64 is RecInt widened for version stamps.
func RecInt64(rec Record, key string) int64 {
	switch v := rec[key].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

// RecString reads a string field, mapping nil to "".
func RecString(rec Record, key string) string {
	if s, ok := rec[key].(string); ok {
		return s
	}
	return ""
}

// RecBool reads a boolean field, mapping nil to false.
func RecBool(rec Record, key string) bool {
	if b, ok := rec[key].(bool); ok {
		return b
	}
	return false
}
