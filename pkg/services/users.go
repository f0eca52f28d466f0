package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-hub/pkg/cache"
	"github.com/jakechorley/volunteer-hub/pkg/codec"
	"github.com/jakechorley/volunteer-hub/pkg/models"
	"github.com/jakechorley/volunteer-hub/pkg/storage"
)

const (
	userListKey   = "users"
	userKeyPrefix = "user" + cache.Sep
)

// UserService provides cache-aside CRUD over user accounts plus the
// unread-counter and ownership operations.
type UserService struct {
	backend storage.Backend
	cache   *cache.Cache
	logger  *zap.Logger
}

// NewUserService creates a user service over the given backend and cache.
func NewUserService(backend storage.Backend, c *cache.Cache, logger *zap.Logger) *UserService {
	return &UserService{backend: backend, cache: c, logger: logger}
}

// List returns all users, from cache when the list entry is live.
func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	if cached, ok := s.cache.Get(userListKey); ok {
		return cached.([]models.User), nil
	}

	recs, err := s.backend.List(ctx, storage.CollectionUsers, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]models.User, 0, len(recs))
	for _, rec := range recs {
		u := codec.DecodeUser(rec)
		users = append(users, u)
		s.cache.Set(userKeyPrefix+u.ID, u, cache.TTLUserDetail)
	}
	s.cache.Set(userListKey, users, cache.TTLScopedList)
	return users, nil
}

// Get returns one user by id.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	if cached, ok := s.cache.Get(userKeyPrefix + id); ok {
		u := cached.(models.User)
		return &u, nil
	}

	rec, err := s.backend.Get(ctx, storage.CollectionUsers, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %q: %w", id, err)
	}
	u := codec.DecodeUser(rec)
	s.cache.Set(userKeyPrefix+id, u, cache.TTLUserDetail)
	return &u, nil
}

// EnsureUser is the identity-collaborator entry point: it returns the
// existing account for the id, or creates one. The first account ever
// created becomes the owner; everyone after that starts as a volunteer
// unless the collaborator supplied a lesser role. Owner cannot be claimed
// at sign-in.
func (s *UserService) EnsureUser(ctx context.Context, u models.User) (*models.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	if rec, err := s.backend.Get(ctx, storage.CollectionUsers, u.ID); err == nil {
		existing := codec.DecodeUser(rec)
		s.cache.Set(userKeyPrefix+existing.ID, existing, cache.TTLUserDetail)
		return &existing, nil
	}

	recs, err := s.backend.List(ctx, storage.CollectionUsers, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	if len(recs) == 0 {
		u.Role = models.RoleOwner
	} else if u.Role == "" || u.Role == models.RoleOwner {
		// Ownership moves only through TransferOwnership. A later
		// sign-in claiming owner is demoted to the default so there is
		// never a second owner.
		u.Role = models.RoleVolunteer
	}
	u.UnreadMessages = 0

	return s.create(ctx, u)
}

// Create persists a user exactly as given (the role must already be set).
func (s *UserService) Create(ctx context.Context, u models.User) (*models.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = models.RoleVolunteer
	}
	return s.create(ctx, u)
}

func (s *UserService) create(ctx context.Context, u models.User) (*models.User, error) {
	stored, err := s.backend.Insert(ctx, storage.CollectionUsers, codec.EncodeUser(u))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	created := codec.DecodeUser(stored)

	s.cache.Set(userKeyPrefix+created.ID, created, cache.TTLUserDetail)
	if cached, ok := s.cache.Get(userListKey); ok {
		s.cache.Set(userListKey, append(cached.([]models.User), created), cache.TTLScopedList)
	}

	s.logger.Info("user created",
		zap.String("user_id", created.ID),
		zap.String("role", string(created.Role)))
	return &created, nil
}

// Update replaces the mutable profile fields of a user. Role changes go
// through TransferOwnership when they involve ownership.
func (s *UserService) Update(ctx context.Context, id string, u models.User) (*models.User, error) {
	patch := codec.EncodeUser(u)
	delete(patch, "id")

	stored, err := s.backend.Update(ctx, storage.CollectionUsers, id, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update user %q: %w", id, err)
	}
	updated := codec.DecodeUser(stored)
	s.refreshCaches(updated)
	return &updated, nil
}

// Delete removes a user account.
func (s *UserService) Delete(ctx context.Context, id string) error {
	if err := s.backend.Delete(ctx, storage.CollectionUsers, id); err != nil {
		return fmt.Errorf("failed to delete user %q: %w", id, err)
	}

	s.cache.Invalidate(userKeyPrefix + id)
	if cached, ok := s.cache.Get(userListKey); ok {
		users := cached.([]models.User)
		kept := make([]models.User, 0, len(users))
		for _, u := range users {
			if u.ID != id {
				kept = append(kept, u)
			}
		}
		s.cache.Set(userListKey, kept, cache.TTLScopedList)
	}
	return nil
}

// IncrementUnread adds one to a user's unread-message counter. The current
// value is re-read from the backend rather than the cache so concurrent
// increments don't clobber each other through a stale snapshot.
func (s *UserService) IncrementUnread(ctx context.Context, id string) (*models.User, error) {
	rec, err := s.backend.Get(ctx, storage.CollectionUsers, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %q: %w", id, err)
	}

	next := storage.RecInt(rec, "unread_messages") + 1
	stored, err := s.backend.Update(ctx, storage.CollectionUsers, id, storage.Record{"unread_messages": next})
	if err != nil {
		return nil, fmt.Errorf("failed to increment unread counter for %q: %w", id, err)
	}
	updated := codec.DecodeUser(stored)
	s.refreshCaches(updated)
	return &updated, nil
}

// ResetUnread zeroes a user's unread-message counter in a single write.
func (s *UserService) ResetUnread(ctx context.Context, id string) (*models.User, error) {
	stored, err := s.backend.Update(ctx, storage.CollectionUsers, id, storage.Record{"unread_messages": 0})
	if err != nil {
		return nil, fmt.Errorf("failed to reset unread counter for %q: %w", id, err)
	}
	updated := codec.DecodeUser(stored)
	s.refreshCaches(updated)
	return &updated, nil
}

// TransferOwnership makes the target user the owner and demotes the current
// owner to manager. The demotion is written first, so a failure between the
// two writes can leave the organization momentarily ownerless but never with
// two owners. No other user's role changes.
func (s *UserService) TransferOwnership(ctx context.Context, targetID string) error {
	recs, err := s.backend.List(ctx, storage.CollectionUsers, nil)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	var owner *models.User
	var target *models.User
	for _, rec := range recs {
		u := codec.DecodeUser(rec)
		if u.Role == models.RoleOwner {
			ownerCopy := u
			owner = &ownerCopy
		}
		if u.ID == targetID {
			targetCopy := u
			target = &targetCopy
		}
	}
	if target == nil {
		return fmt.Errorf("%w: user %q", storage.ErrNotFound, targetID)
	}
	if owner != nil && owner.ID == targetID {
		return nil
	}

	if owner != nil {
		stored, err := s.backend.Update(ctx, storage.CollectionUsers, owner.ID,
			storage.Record{"user_role": string(models.RoleManager)})
		if err != nil {
			return fmt.Errorf("failed to demote owner %q: %w", owner.ID, err)
		}
		s.refreshCaches(codec.DecodeUser(stored))
	}

	stored, err := s.backend.Update(ctx, storage.CollectionUsers, targetID,
		storage.Record{"user_role": string(models.RoleOwner)})
	if err != nil {
		return fmt.Errorf("failed to promote user %q to owner: %w", targetID, err)
	}
	s.refreshCaches(codec.DecodeUser(stored))

	s.logger.Info("ownership transferred", zap.String("to", targetID))
	return nil
}

func (s *UserService) refreshCaches(u models.User) {
	s.cache.Set(userKeyPrefix+u.ID, u, cache.TTLUserDetail)
	if cached, ok := s.cache.Get(userListKey); ok {
		users := cached.([]models.User)
		patched := make([]models.User, len(users))
		for i, existing := range users {
			if existing.ID == u.ID {
				patched[i] = u
			} else {
				patched[i] = existing
			}
		}
		s.cache.Set(userListKey, patched, cache.TTLScopedList)
	}
}
