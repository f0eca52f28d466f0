package codec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/volunteer-hub/pkg/models"
	"github.com/jakechorley/volunteer-hub/pkg/storage"
)

// jsonRoundTrip pushes a record through the JSON encoder and back, the way
// the file backend stores it. Numbers come back as float64.
func jsonRoundTrip(t *testing.T, rec storage.Record) storage.Record {
	t.Helper()
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	var out storage.Record
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestUser_RoundTrip(t *testing.T) {
	u := models.User{
		ID:                 "u-1",
		Name:               "Priya",
		Email:              "priya@example.org",
		Role:               models.RoleManager,
		EmailNotifications: true,
		UnreadMessages:     4,
		AuthProvider:       "google",
	}

	got := DecodeUser(jsonRoundTrip(t, EncodeUser(u)))
	assert.Equal(t, u, got)
}

func TestMessage_RoundTrip(t *testing.T) {
	m := models.Message{
		ID:          "m-1",
		SenderID:    "u-1",
		RecipientID: "u-2",
		Subject:     "Rota change",
		Content:     "Saturday moved to 10am",
		Timestamp:   "2025-06-01T09:30:00Z",
		Read:        true,
	}

	got := DecodeMessage(jsonRoundTrip(t, EncodeMessage(m)))
	assert.Equal(t, m, got)
}

func TestSettings_RoundTrip(t *testing.T) {
	s := models.SystemSettings{
		GoogleAuthEnabled:   true,
		GoogleClientID:      "client-id",
		GoogleClientSecret:  "client-secret",
		PasswordAuthEnabled: true,
		OrgName:             "Ilford Drop-in",
		OrgLogo:             "/logo.png",
		PrimaryColor:        "#16a34a",
		PublicViewing:       false,
	}

	rec := EncodeSettings(s)
	assert.Equal(t, storage.SettingsID, rec["id"])

	got := DecodeSettings(jsonRoundTrip(t, rec))
	assert.Equal(t, s, got)
}

func TestEvent_RoundTrip(t *testing.T) {
	max := 5
	ev := models.Event{
		ID:          "ev-1",
		Name:        "Saturday drop-in",
		Date:        "2025-06-07",
		Location:    "Community hall",
		Description: "Weekly session",
		LandingPage: models.LandingPage{
			Enabled:     true,
			Title:       "Join us",
			Description: "All welcome",
			Image:       "/hall.jpg",
			Theme:       "green",
		},
		CustomURL:  "saturday",
		Recurrence: "FREQ=WEEKLY;BYDAY=SA",
		Version:    7,
		Roles: []models.Role{
			{
				ID:          "r-1",
				EventID:     "ev-1",
				Name:        "Kitchen",
				Description: "Prep and serve",
				Capacity:    2,
				MaxCapacity: &max,
				Volunteers: []models.Volunteer{
					{ID: "v-1", RoleID: "r-1", Name: "Sam", Email: "sam@example.org", Phone: "07700900000", Description: "First aid trained"},
				},
			},
			{
				ID:         "r-2",
				EventID:    "ev-1",
				Name:       "Door",
				Capacity:   1,
				Volunteers: []models.Volunteer{},
			},
		},
	}

	got, err := DecodeEvent(jsonRoundTrip(t, EncodeEvent(ev)))
	require.NoError(t, err)
	assert.Equal(t, ev, got)
}

func TestEncodeEvent_OmitsAbsentMaximum(t *testing.T) {
	ev := models.Event{
		ID:    "ev-1",
		Roles: []models.Role{{ID: "r-1", Capacity: 2, Volunteers: []models.Volunteer{}}},
	}

	rec := EncodeEvent(ev)
	roles := rec["roles"].([]any)
	require.Len(t, roles, 1)
	_, present := roles[0].(map[string]any)["max_capacity"]
	assert.False(t, present)

	got, err := DecodeEvent(rec)
	require.NoError(t, err)
	assert.Nil(t, got.Roles[0].MaxCapacity)
}

func TestDecodeEvent_ParentIDsDerivedFromNesting(t *testing.T) {
	ev := models.Event{
		ID: "ev-9",
		Roles: []models.Role{
			{
				ID:       "r-9",
				Capacity: 1,
				Volunteers: []models.Volunteer{
					{ID: "v-9", Name: "Alex"},
				},
			},
		},
	}

	got, err := DecodeEvent(jsonRoundTrip(t, EncodeEvent(ev)))
	require.NoError(t, err)
	assert.Equal(t, "ev-9", got.Roles[0].EventID)
	assert.Equal(t, "r-9", got.Roles[0].Volunteers[0].RoleID)
}

func TestDecodeEvent_NoRolesKey(t *testing.T) {
	got, err := DecodeEvent(storage.Record{"id": "ev-1", "name": "Bare"})
	require.NoError(t, err)
	assert.Empty(t, got.Roles)
}

func TestDecodeEvent_MalformedRoles(t *testing.T) {
	_, err := DecodeEvent(storage.Record{"id": "ev-1", "roles": "oops"})
	assert.Error(t, err)

	_, err = DecodeEvent(storage.Record{"id": "ev-1", "roles": []any{"oops"}})
	assert.Error(t, err)
}
