// Package codec translates between the flat snake_case records the storage
// backends speak and the nested domain structs the rest of the application
// uses. Encoding then decoding a value is the identity transformation on all
// fields, including absent optionals.
package codec

import (
	"fmt"

	"github.com/jakechorley/volunteer-hub/pkg/models"
	"github.com/jakechorley/volunteer-hub/pkg/storage"
)

// EncodeUser flattens a user into its storage record.
func EncodeUser(u models.User) storage.Record {
	return storage.Record{
		"id":                  u.ID,
		"name":                u.Name,
		"email":               u.Email,
		"user_role":           string(u.Role),
		"email_notifications": u.EmailNotifications,
		"unread_messages":     u.UnreadMessages,
		"auth_provider":       u.AuthProvider,
	}
}

// DecodeUser rebuilds a user from its storage record.
func DecodeUser(rec storage.Record) models.User {
	return models.User{
		ID:                 storage.RecString(rec, "id"),
		Name:               storage.RecString(rec, "name"),
		Email:              storage.RecString(rec, "email"),
		Role:               models.UserRole(storage.RecString(rec, "user_role")),
		EmailNotifications: storage.RecBool(rec, "email_notifications"),
		UnreadMessages:     storage.RecInt(rec, "unread_messages"),
		AuthProvider:       storage.RecString(rec, "auth_provider"),
	}
}

// EncodeMessage flattens a message into its storage record.
func EncodeMessage(m models.Message) storage.Record {
	return storage.Record{
		"id":           m.ID,
		"sender_id":    m.SenderID,
		"recipient_id": m.RecipientID,
		"subject":      m.Subject,
		"content":      m.Content,
		"timestamp":    m.Timestamp,
		"read":         m.Read,
	}
}

// DecodeMessage rebuilds a message from its storage record.
func DecodeMessage(rec storage.Record) models.Message {
	return models.Message{
		ID:          storage.RecString(rec, "id"),
		SenderID:    storage.RecString(rec, "sender_id"),
		RecipientID: storage.RecString(rec, "recipient_id"),
		Subject:     storage.RecString(rec, "subject"),
		Content:     storage.RecString(rec, "content"),
		Timestamp:   storage.RecString(rec, "timestamp"),
		Read:        storage.RecBool(rec, "read"),
	}
}

// EncodeSettings flattens the settings singleton. The record id is always
// storage.SettingsID.
func EncodeSettings(s models.SystemSettings) storage.Record {
	return storage.Record{
		"id":                    storage.SettingsID,
		"google_auth_enabled":   s.GoogleAuthEnabled,
		"google_client_id":      s.GoogleClientID,
		"google_client_secret":  s.GoogleClientSecret,
		"password_auth_enabled": s.PasswordAuthEnabled,
		"org_name":              s.OrgName,
		"org_logo":              s.OrgLogo,
		"primary_color":         s.PrimaryColor,
		"public_viewing":        s.PublicViewing,
	}
}

// DecodeSettings rebuilds the settings singleton from its storage record.
func DecodeSettings(rec storage.Record) models.SystemSettings {
	return models.SystemSettings{
		GoogleAuthEnabled:   storage.RecBool(rec, "google_auth_enabled"),
		GoogleClientID:      storage.RecString(rec, "google_client_id"),
		GoogleClientSecret:  storage.RecString(rec, "google_client_secret"),
		PasswordAuthEnabled: storage.RecBool(rec, "password_auth_enabled"),
		OrgName:             storage.RecString(rec, "org_name"),
		OrgLogo:             storage.RecString(rec, "org_logo"),
		PrimaryColor:        storage.RecString(rec, "primary_color"),
		PublicViewing:       storage.RecBool(rec, "public_viewing"),
	}
}

// EncodeEvent flattens an event, nesting its roles (and their volunteers) as
// snake_case sub-records under the "roles" key in display order.
func EncodeEvent(e models.Event) storage.Record {
	roles := make([]any, len(e.Roles))
	for i, r := range e.Roles {
		roles[i] = encodeRole(r)
	}
	return storage.Record{
		"id":                       e.ID,
		"name":                     e.Name,
		"date":                     e.Date,
		"location":                 e.Location,
		"description":              e.Description,
		"landing_page_enabled":     e.LandingPage.Enabled,
		"landing_page_title":       e.LandingPage.Title,
		"landing_page_description": e.LandingPage.Description,
		"landing_page_image":       e.LandingPage.Image,
		"landing_page_theme":       e.LandingPage.Theme,
		"custom_url":               e.CustomURL,
		"recurrence":               e.Recurrence,
		"roles":                    roles,
		"version":                  e.Version,
	}
}

func encodeRole(r models.Role) map[string]any {
	volunteers := make([]any, len(r.Volunteers))
	for i, v := range r.Volunteers {
		volunteers[i] = map[string]any{
			"id":          v.ID,
			"name":        v.Name,
			"email":       v.Email,
			"phone":       v.Phone,
			"description": v.Description,
		}
	}
	rec := map[string]any{
		"id":          r.ID,
		"name":        r.Name,
		"description": r.Description,
		"capacity":    r.Capacity,
		"volunteers":  volunteers,
	}
	if r.MaxCapacity != nil {
		rec["max_capacity"] = *r.MaxCapacity
	}
	return rec
}

// DecodeEvent rebuilds an event from its storage record. Role and volunteer
// parent ids are derived from nesting, so they survive the round trip even
// though the record never stores them. A malformed roles value is a decoding
// error rather than silent data loss.
func DecodeEvent(rec storage.Record) (models.Event, error) {
	e := models.Event{
		ID:          storage.RecString(rec, "id"),
		Name:        storage.RecString(rec, "name"),
		Date:        storage.RecString(rec, "date"),
		Location:    storage.RecString(rec, "location"),
		Description: storage.RecString(rec, "description"),
		LandingPage: models.LandingPage{
			Enabled:     storage.RecBool(rec, "landing_page_enabled"),
			Title:       storage.RecString(rec, "landing_page_title"),
			Description: storage.RecString(rec, "landing_page_description"),
			Image:       storage.RecString(rec, "landing_page_image"),
			Theme:       storage.RecString(rec, "landing_page_theme"),
		},
		CustomURL:  storage.RecString(rec, "custom_url"),
		Recurrence: storage.RecString(rec, "recurrence"),
		Version:    storage.RecInt64(rec, "version"),
		Roles:      []models.Role{},
	}

	raw, ok := rec["roles"]
	if !ok || raw == nil {
		return e, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return e, fmt.Errorf("event %q: roles is %T, want array", e.ID, raw)
	}
	for i, item := range list {
		roleRec, ok := item.(map[string]any)
		if !ok {
			return e, fmt.Errorf("event %q: roles[%d] is %T, want object", e.ID, i, item)
		}
		role, err := decodeRole(e.ID, roleRec)
		if err != nil {
			return e, fmt.Errorf("event %q: %w", e.ID, err)
		}
		e.Roles = append(e.Roles, role)
	}
	return e, nil
}

func decodeRole(eventID string, rec map[string]any) (models.Role, error) {
	role := models.Role{
		ID:          storage.RecString(rec, "id"),
		EventID:     eventID,
		Name:        storage.RecString(rec, "name"),
		Description: storage.RecString(rec, "description"),
		Capacity:    storage.RecInt(rec, "capacity"),
		Volunteers:  []models.Volunteer{},
	}
	if _, ok := rec["max_capacity"]; ok {
		max := storage.RecInt(rec, "max_capacity")
		role.MaxCapacity = &max
	}

	raw, ok := rec["volunteers"]
	if !ok || raw == nil {
		return role, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return role, fmt.Errorf("role %q: volunteers is %T, want array", role.ID, raw)
	}
	for i, item := range list {
		volRec, ok := item.(map[string]any)
		if !ok {
			return role, fmt.Errorf("role %q: volunteers[%d] is %T, want object", role.ID, i, item)
		}
		role.Volunteers = append(role.Volunteers, models.Volunteer{
			ID:          storage.RecString(volRec, "id"),
			RoleID:      role.ID,
			Name:        storage.RecString(volRec, "name"),
			Email:       storage.RecString(volRec, "email"),
			Phone:       storage.RecString(volRec, "phone"),
			Description: storage.RecString(volRec, "description"),
		})
	}
	return role, nil
}
