package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-hub/pkg/cache"
	"github.com/jakechorley/volunteer-hub/pkg/capacity"
	"github.com/jakechorley/volunteer-hub/pkg/codec"
	"github.com/jakechorley/volunteer-hub/pkg/models"
	"github.com/jakechorley/volunteer-hub/pkg/storage"
)

const (
	eventListKey   = "events"
	eventKeyPrefix = "event" + cache.Sep

	// How many times a sign-up re-reads and retries after losing a
	// version race before giving up.
	signUpRetries = 3
)

// EventService provides cache-aside CRUD over events plus the
// capacity-checked sign-up path.
type EventService struct {
	backend storage.Backend
	cache   *cache.Cache
	logger  *zap.Logger
}

// NewEventService creates an event service over the given backend and cache.
func NewEventService(backend storage.Backend, c *cache.Cache, logger *zap.Logger) *EventService {
	return &EventService{backend: backend, cache: c, logger: logger}
}

// List returns all events, from cache when the list entry is live.
func (s *EventService) List(ctx context.Context) ([]models.Event, error) {
	if cached, ok := s.cache.Get(eventListKey); ok {
		return cached.([]models.Event), nil
	}

	recs, err := s.backend.List(ctx, storage.CollectionEvents, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]models.Event, 0, len(recs))
	for _, rec := range recs {
		ev, err := codec.DecodeEvent(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to decode event: %w", err)
		}
		events = append(events, ev)
		s.cache.Set(eventKeyPrefix+ev.ID, ev, cache.TTLEventDetail)
	}
	s.cache.Set(eventListKey, events, cache.TTLEventList)
	return events, nil
}

// Get returns one event by id.
func (s *EventService) Get(ctx context.Context, id string) (*models.Event, error) {
	if cached, ok := s.cache.Get(eventKeyPrefix + id); ok {
		ev := cached.(models.Event)
		return &ev, nil
	}

	rec, err := s.backend.Get(ctx, storage.CollectionEvents, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get event %q: %w", id, err)
	}
	ev, err := codec.DecodeEvent(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to decode event %q: %w", id, err)
	}
	s.cache.Set(eventKeyPrefix+id, ev, cache.TTLEventDetail)
	return &ev, nil
}

// GetByCustomURL returns the event published under the given landing-page
// slug.
func (s *EventService) GetByCustomURL(ctx context.Context, slug string) (*models.Event, error) {
	recs, err := s.backend.List(ctx, storage.CollectionEvents, storage.Filter{"custom_url": slug})
	if err != nil {
		return nil, fmt.Errorf("failed to look up custom url %q: %w", slug, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: no event with custom url %q", storage.ErrNotFound, slug)
	}
	ev, err := codec.DecodeEvent(recs[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	s.cache.Set(eventKeyPrefix+ev.ID, ev, cache.TTLEventDetail)
	return &ev, nil
}

// validate checks the pre-storage invariants of an event: every role's
// capacity bounds, a parseable recurrence rule, and custom-URL uniqueness.
func (s *EventService) validate(ctx context.Context, ev *models.Event) error {
	for i := range ev.Roles {
		if err := capacity.ValidateRole(&ev.Roles[i]); err != nil {
			return err
		}
	}
	if ev.Recurrence != "" {
		if _, err := rrule.StrToRRule(ev.Recurrence); err != nil {
			return fmt.Errorf("%w: invalid recurrence rule: %v", storage.ErrValidation, err)
		}
	}
	if ev.CustomURL != "" {
		recs, err := s.backend.List(ctx, storage.CollectionEvents, storage.Filter{"custom_url": ev.CustomURL})
		if err != nil {
			return fmt.Errorf("failed to check custom url %q: %w", ev.CustomURL, err)
		}
		for _, rec := range recs {
			if storage.RecString(rec, "id") != ev.ID {
				return fmt.Errorf("%w: custom url %q is already taken", storage.ErrConflict, ev.CustomURL)
			}
		}
	}
	return nil
}

// Create persists a new event. Ids for the event and any nested roles and
// volunteers are generated here when absent; the version stamp starts at 0.
func (s *EventService) Create(ctx context.Context, ev models.Event) (*models.Event, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	for i := range ev.Roles {
		role := &ev.Roles[i]
		if role.ID == "" {
			role.ID = uuid.NewString()
		}
		role.EventID = ev.ID
		for j := range role.Volunteers {
			if role.Volunteers[j].ID == "" {
				role.Volunteers[j].ID = uuid.NewString()
			}
			role.Volunteers[j].RoleID = role.ID
		}
	}
	ev.Version = 0

	if err := s.validate(ctx, &ev); err != nil {
		return nil, err
	}

	stored, err := s.backend.Insert(ctx, storage.CollectionEvents, codec.EncodeEvent(ev))
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	created, err := codec.DecodeEvent(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to decode created event: %w", err)
	}

	s.cache.Set(eventKeyPrefix+created.ID, created, cache.TTLEventDetail)
	if cached, ok := s.cache.Get(eventListKey); ok {
		s.cache.Set(eventListKey, append(cached.([]models.Event), created), cache.TTLEventList)
	}

	s.logger.Info("event created", zap.String("event_id", created.ID), zap.String("name", created.Name))
	return &created, nil
}

// Update replaces the mutable fields of an event. The cache only changes
// after the storage write succeeds; a failed write leaves it stale but
// consistent.
func (s *EventService) Update(ctx context.Context, id string, ev models.Event) (*models.Event, error) {
	ev.ID = id
	for i := range ev.Roles {
		role := &ev.Roles[i]
		if role.ID == "" {
			role.ID = uuid.NewString()
		}
		role.EventID = id
		for j := range role.Volunteers {
			if role.Volunteers[j].ID == "" {
				role.Volunteers[j].ID = uuid.NewString()
			}
			role.Volunteers[j].RoleID = role.ID
		}
	}

	if err := s.validate(ctx, &ev); err != nil {
		return nil, err
	}

	patch := codec.EncodeEvent(ev)
	delete(patch, "id")
	delete(patch, "version")

	stored, err := s.backend.Update(ctx, storage.CollectionEvents, id, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update event %q: %w", id, err)
	}
	updated, err := codec.DecodeEvent(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to decode updated event: %w", err)
	}

	s.refreshCaches(updated)
	return &updated, nil
}

// Delete removes an event and drops it from the caches.
func (s *EventService) Delete(ctx context.Context, id string) error {
	if err := s.backend.Delete(ctx, storage.CollectionEvents, id); err != nil {
		return fmt.Errorf("failed to delete event %q: %w", id, err)
	}

	s.cache.Invalidate(eventKeyPrefix + id)
	if cached, ok := s.cache.Get(eventListKey); ok {
		events := cached.([]models.Event)
		kept := make([]models.Event, 0, len(events))
		for _, ev := range events {
			if ev.ID != id {
				kept = append(kept, ev)
			}
		}
		s.cache.Set(eventListKey, kept, cache.TTLEventList)
	}
	return nil
}

// SignUp appends a volunteer to a role, refusing when the role is at its
// ceiling. The event is always re-read from the backend (never the cache)
// and the append is written conditionally against the version stamp seen by
// that read, so two racing sign-ups for the last slot cannot both land: the
// loser re-reads, sees the role full, and is rejected.
func (s *EventService) SignUp(ctx context.Context, eventID, roleID string, vol models.Volunteer) (*models.Event, error) {
	if vol.ID == "" {
		vol.ID = uuid.NewString()
	}
	vol.RoleID = roleID

	for attempt := 0; attempt < signUpRetries; attempt++ {
		rec, err := s.backend.Get(ctx, storage.CollectionEvents, eventID)
		if err != nil {
			return nil, fmt.Errorf("failed to get event %q: %w", eventID, err)
		}
		ev, err := codec.DecodeEvent(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to decode event %q: %w", eventID, err)
		}

		role := ev.FindRole(roleID)
		if role == nil {
			return nil, fmt.Errorf("%w: role %q in event %q", storage.ErrNotFound, roleID, eventID)
		}
		if capacity.IsFull(role) {
			return nil, fmt.Errorf("%w: role %q is full (%d of %d)",
				storage.ErrValidation, role.Name, capacity.Filled(role), capacity.Ceiling(role))
		}
		role.Volunteers = append(role.Volunteers, vol)

		patch := storage.Record{"roles": codec.EncodeEvent(ev)["roles"]}
		stored, err := s.backend.UpdateVersioned(ctx, storage.CollectionEvents, eventID, patch, ev.Version)
		if errors.Is(err, storage.ErrConflict) {
			s.logger.Debug("sign-up lost version race, retrying",
				zap.String("event_id", eventID),
				zap.String("role_id", roleID),
				zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to sign up for role %q: %w", roleID, err)
		}

		updated, err := codec.DecodeEvent(stored)
		if err != nil {
			return nil, fmt.Errorf("failed to decode updated event: %w", err)
		}
		s.refreshCaches(updated)
		s.logger.Info("volunteer signed up",
			zap.String("event_id", eventID),
			zap.String("role_id", roleID),
			zap.String("volunteer_id", vol.ID))
		return &updated, nil
	}

	return nil, fmt.Errorf("%w: sign-up for role %q kept losing to concurrent updates", storage.ErrConflict, roleID)
}

// Occurrences expands an event's recurrence rule into its next n dates from
// the event's own date onward. An event without a rule has its single date
// as the only occurrence.
func (s *EventService) Occurrences(ev *models.Event, n int) ([]time.Time, error) {
	start, err := time.Parse("2006-01-02", ev.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: event date %q is not a date", storage.ErrValidation, ev.Date)
	}
	if ev.Recurrence == "" {
		return []time.Time{start}, nil
	}

	rule, err := rrule.StrToRRule(ev.Recurrence)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid recurrence rule: %v", storage.ErrValidation, err)
	}
	rule.DTStart(start)

	var dates []time.Time
	iter := rule.Iterator()
	for len(dates) < n {
		d, ok := iter()
		if !ok {
			break
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// refreshCaches overwrites the event's detail entry and patches it in place
// inside the cached list, preserving list order.
func (s *EventService) refreshCaches(ev models.Event) {
	s.cache.Set(eventKeyPrefix+ev.ID, ev, cache.TTLEventDetail)
	if cached, ok := s.cache.Get(eventListKey); ok {
		events := cached.([]models.Event)
		patched := make([]models.Event, len(events))
		for i, e := range events {
			if e.ID == ev.ID {
				patched[i] = ev
			} else {
				patched[i] = e
			}
		}
		s.cache.Set(eventListKey, patched, cache.TTLEventList)
	}
}
