package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-hub/pkg/cache"
	"github.com/jakechorley/volunteer-hub/pkg/services"
	"github.com/jakechorley/volunteer-hub/pkg/storage/file"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	backend, err := file.New(t.TempDir(), logger)
	require.NoError(t, err)

	c := cache.New()
	settings := services.NewSettingsService(backend, c, logger)
	users := services.NewUserService(backend, c, logger)
	events := services.NewEventService(backend, c, logger)
	messages := services.NewMessageService(backend, c, logger)
	fanout := services.NewFanout(users, events, messages, nil, logger)
	inbox := services.NewInbox(messages, users, logger)

	return NewRouter(Services{
		Settings: settings,
		Users:    users,
		Events:   events,
		Messages: messages,
		Fanout:   fanout,
		Inbox:    inbox,
	}, logger)
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetSettings_DefaultsBeforeFirstSave(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "VolunteerHub", body["orgName"])
	assert.Equal(t, true, body["passwordAuthEnabled"])
}

func TestGetEvent_Missing(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/events/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["error"])
}

func TestCreateEvent_InvalidCapacityIsBadRequest(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/events", map[string]any{
		"name": "Bad",
		"date": "2025-07-01",
		"roles": []map[string]any{
			{"name": "Kitchen", "capacity": 3, "maxCapacity": 2},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignUpFlow_RejectsWhenFull(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/events", map[string]any{
		"name": "Saturday drop-in",
		"date": "2025-06-07",
		"roles": []map[string]any{
			{"name": "Door", "capacity": 1},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	created := decodeBody(t, rec)["event"].(map[string]any)
	eventID := created["id"].(string)
	roleID := created["roles"].([]any)[0].(map[string]any)["id"].(string)

	rec = doJSON(t, router, http.MethodPost, "/api/events/"+eventID+"/roles/"+roleID+"/signup", map[string]any{
		"name":  "Sam",
		"email": "sam@example.org",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/events/"+eventID+"/roles/"+roleID+"/signup", map[string]any{
		"name":  "Late",
		"email": "late@example.org",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["success"])
}

func TestSignUp_MissingEmailIsBadRequest(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/events/x/roles/y/signup", map[string]any{
		"name": "No email",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessage_BroadcastEnvelope(t *testing.T) {
	router := newTestRouter(t)

	for _, u := range []map[string]any{
		{"id": "u-1", "name": "Sender", "email": "sender@example.org"},
		{"id": "u-2", "name": "Sam", "email": "sam@example.org"},
		{"id": "u-3", "name": "Priya", "email": "priya@example.org"},
	} {
		rec := doJSON(t, router, http.MethodPost, "/api/users", u)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, router, http.MethodPost, "/api/messages/send", map[string]any{
		"senderId":  "u-1",
		"recipient": map[string]any{"type": "all"},
		"subject":   "Site closed",
		"content":   "No session this week",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(2), body["count"])

	rec = doJSON(t, router, http.MethodGet, "/api/users/u-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["unreadMessages"])
}

func TestCreateUser_OwnerRoleNotAccepted(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/users", map[string]any{
		"id": "u-1", "name": "First", "email": "first@example.org",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/users", map[string]any{
		"id": "u-2", "name": "Usurper", "email": "usurper@example.org", "role": "owner",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInboxVisit_ClearsUnread(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/users", map[string]any{
		"id": "u-1", "name": "Sender", "email": "sender@example.org",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, router, http.MethodPost, "/api/users", map[string]any{
		"id": "u-2", "name": "Sam", "email": "sam@example.org",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/messages/send", map[string]any{
		"senderId":  "u-1",
		"recipient": map[string]any{"type": "individual", "userId": "u-2"},
		"subject":   "Hello",
		"content":   "Welcome aboard",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/users/u-2/inbox", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, true, msgs[0]["read"])

	rec = doJSON(t, router, http.MethodGet, "/api/users/u-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["unreadMessages"])
}

func TestUpdateMessage_ReadOnlyMovesForward(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/messages", map[string]any{
		"senderId":    "u-1",
		"recipientId": "u-2",
		"subject":     "Hello",
		"content":     "Hi",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody(t, rec)["message"].(map[string]any)["id"].(string)

	rec = doJSON(t, router, http.MethodPatch, "/api/messages/"+id, map[string]any{"read": false})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPatch, "/api/messages/"+id, map[string]any{"read": true})
	assert.Equal(t, http.StatusOK, rec.Code)
}
