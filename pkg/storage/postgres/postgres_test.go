package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/volunteer-hub/pkg/storage"
)

func TestTranslate_UniqueViolation(t *testing.T) {
	err := translate("insert", "users", &pgconn.PgError{Code: "23505", Message: "duplicate key"})
	assert.True(t, errors.Is(err, storage.ErrConflict))
	assert.Contains(t, err.Error(), "duplicate key")
}

func TestTranslate_ForeignKeyViolation(t *testing.T) {
	err := translate("insert", "messages", &pgconn.PgError{Code: "23503", Message: "violates foreign key"})
	assert.True(t, errors.Is(err, storage.ErrReferential))
}

func TestTranslate_NoRows(t *testing.T) {
	err := translate("get", "events", pgx.ErrNoRows)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestTranslate_UnknownErrorPassesThrough(t *testing.T) {
	cause := errors.New("connection reset")
	err := translate("list", "events", cause)
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, storage.ErrConflict))
}

func TestColumnSet_UnknownCollection(t *testing.T) {
	_, err := columnSet("nope")
	assert.True(t, errors.Is(err, storage.ErrValidation))
}

func TestListQuery_OrdersBySerial(t *testing.T) {
	query, args := listQuery(storage.CollectionEvents, nil)
	assert.Equal(t, `SELECT * FROM "events" ORDER BY "seq"`, query)
	assert.Empty(t, args)
}

func TestListQuery_FilterConditionsAreDeterministic(t *testing.T) {
	query, args := listQuery(storage.CollectionMessages, storage.Filter{
		"recipient_id": "u-1",
		"read":         false,
	})
	assert.Equal(t, `SELECT * FROM "messages" WHERE "read" = $1 AND "recipient_id" = $2 ORDER BY "seq"`, query)
	assert.Equal(t, []any{false, "u-1"}, args)
}

func TestEncodeValue_MarshalsJSONColumns(t *testing.T) {
	v, err := encodeValue(storage.CollectionEvents, "roles", []any{map[string]any{"id": "r-1"}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"r-1"}]`, string(v.([]byte)))
}

func TestEncodeValue_LeavesPlainColumnsAlone(t *testing.T) {
	v, err := encodeValue(storage.CollectionUsers, "name", "Priya")
	require.NoError(t, err)
	assert.Equal(t, "Priya", v)
}
