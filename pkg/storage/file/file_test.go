package file

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-hub/pkg/storage"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return b
}

func TestList_MissingFileIsEmpty(t *testing.T) {
	b := newTestBackend(t)

	recs, err := b.List(context.Background(), storage.CollectionUsers, nil)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestGet_MissingFileIsNotFound(t *testing.T) {
	b := newTestBackend(t)

	_, err := b.Get(context.Background(), storage.CollectionUsers, "u-1")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestInsertGet_RoundTrip(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, err := b.Insert(ctx, storage.CollectionUsers, storage.Record{"id": "u-1", "name": "Priya"})
	require.NoError(t, err)

	got, err := b.Get(ctx, storage.CollectionUsers, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "Priya", storage.RecString(got, "name"))
}

func TestInsert_DuplicateIDConflicts(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, err := b.Insert(ctx, storage.CollectionUsers, storage.Record{"id": "u-1"})
	require.NoError(t, err)

	_, err = b.Insert(ctx, storage.CollectionUsers, storage.Record{"id": "u-1"})
	assert.True(t, errors.Is(err, storage.ErrConflict))
}

func TestList_Filter(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, err := b.Insert(ctx, storage.CollectionMessages, storage.Record{"id": "m-1", "recipient_id": "u-1"})
	require.NoError(t, err)
	_, err = b.Insert(ctx, storage.CollectionMessages, storage.Record{"id": "m-2", "recipient_id": "u-2"})
	require.NoError(t, err)
	_, err = b.Insert(ctx, storage.CollectionMessages, storage.Record{"id": "m-3", "recipient_id": "u-1"})
	require.NoError(t, err)

	recs, err := b.List(ctx, storage.CollectionMessages, storage.Filter{"recipient_id": "u-1"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "m-1", storage.RecString(recs[0], "id"))
	assert.Equal(t, "m-3", storage.RecString(recs[1], "id"))
}

func TestUpdate_MergesPatch(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, err := b.Insert(ctx, storage.CollectionUsers, storage.Record{"id": "u-1", "name": "Priya", "unread_messages": 0})
	require.NoError(t, err)

	updated, err := b.Update(ctx, storage.CollectionUsers, "u-1", storage.Record{"unread_messages": 3})
	require.NoError(t, err)
	assert.Equal(t, 3, storage.RecInt(updated, "unread_messages"))
	assert.Equal(t, "Priya", storage.RecString(updated, "name"), "unpatched fields survive")
}

func TestUpdate_MissingIDIsNotFound(t *testing.T) {
	b := newTestBackend(t)

	_, err := b.Update(context.Background(), storage.CollectionUsers, "nope", storage.Record{"name": "x"})
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestUpdate_BumpsStampOnVersionedRecords(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, err := b.Insert(ctx, storage.CollectionEvents, storage.Record{"id": "ev-1", "version": 0})
	require.NoError(t, err)

	updated, err := b.Update(ctx, storage.CollectionEvents, "ev-1", storage.Record{"name": "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), storage.RecInt64(updated, "version"),
		"unconditional updates move the stamp too")

	_, err = b.UpdateVersioned(ctx, storage.CollectionEvents, "ev-1", storage.Record{"name": "stale"}, 0)
	assert.True(t, errors.Is(err, storage.ErrConflict),
		"a snapshot taken before the update is stale")
}

func TestUpdate_NoStampOnUnversionedRecords(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, err := b.Insert(ctx, storage.CollectionUsers, storage.Record{"id": "u-1"})
	require.NoError(t, err)

	updated, err := b.Update(ctx, storage.CollectionUsers, "u-1", storage.Record{"name": "Priya"})
	require.NoError(t, err)
	_, present := updated["version"]
	assert.False(t, present)
}

func TestUpdateVersioned_BumpsStamp(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, err := b.Insert(ctx, storage.CollectionEvents, storage.Record{"id": "ev-1", "version": 0})
	require.NoError(t, err)

	updated, err := b.UpdateVersioned(ctx, storage.CollectionEvents, "ev-1", storage.Record{"name": "Drop-in"}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), storage.RecInt64(updated, "version"))
}

func TestUpdateVersioned_StaleStampConflicts(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, err := b.Insert(ctx, storage.CollectionEvents, storage.Record{"id": "ev-1", "version": 0})
	require.NoError(t, err)
	_, err = b.UpdateVersioned(ctx, storage.CollectionEvents, "ev-1", storage.Record{"name": "first"}, 0)
	require.NoError(t, err)

	_, err = b.UpdateVersioned(ctx, storage.CollectionEvents, "ev-1", storage.Record{"name": "second"}, 0)
	assert.True(t, errors.Is(err, storage.ErrConflict))

	got, err := b.Get(ctx, storage.CollectionEvents, "ev-1")
	require.NoError(t, err)
	assert.Equal(t, "first", storage.RecString(got, "name"), "losing write must not land")
}

func TestDelete_RemovesRecord(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, err := b.Insert(ctx, storage.CollectionUsers, storage.Record{"id": "u-1"})
	require.NoError(t, err)
	require.NoError(t, b.Delete(ctx, storage.CollectionUsers, "u-1"))

	_, err = b.Get(ctx, storage.CollectionUsers, "u-1")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	err = b.Delete(ctx, storage.CollectionUsers, "u-1")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestSettings_StoredAsSingleObject(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, err := b.Insert(ctx, storage.CollectionSettings, storage.Record{"id": storage.SettingsID, "org_name": "VolunteerHub"})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(b.dir, "settings.json"))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc), "settings.json holds one object, not an array")
	assert.Equal(t, "VolunteerHub", doc["org_name"])

	got, err := b.Get(ctx, storage.CollectionSettings, storage.SettingsID)
	require.NoError(t, err)
	assert.Equal(t, "VolunteerHub", storage.RecString(got, "org_name"))
}

func TestWrites_SurviveReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b, err := New(dir, zap.NewNop())
	require.NoError(t, err)
	_, err = b.Insert(ctx, storage.CollectionEvents, storage.Record{"id": "ev-1", "name": "Drop-in", "version": 0})
	require.NoError(t, err)
	b.Close()

	reopened, err := New(dir, zap.NewNop())
	require.NoError(t, err)
	got, err := reopened.Get(ctx, storage.CollectionEvents, "ev-1")
	require.NoError(t, err)
	assert.Equal(t, "Drop-in", storage.RecString(got, "name"))
}

func TestWriteAll_LeavesNoTempFiles(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, err := b.Insert(ctx, storage.CollectionUsers, storage.Record{"id": "u-1"})
	require.NoError(t, err)

	entries, err := os.ReadDir(b.dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}
