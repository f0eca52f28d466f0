package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-hub/pkg/cache"
	"github.com/jakechorley/volunteer-hub/pkg/codec"
	"github.com/jakechorley/volunteer-hub/pkg/models"
	"github.com/jakechorley/volunteer-hub/pkg/storage"
)

const settingsKey = "settings"

// SettingsService manages the singleton system-settings record. An absent
// record is not an error: defaults are synthesized until an owner saves.
type SettingsService struct {
	backend storage.Backend
	cache   *cache.Cache
	logger  *zap.Logger
}

// NewSettingsService creates a settings service over the given backend and
// cache.
func NewSettingsService(backend storage.Backend, c *cache.Cache, logger *zap.Logger) *SettingsService {
	return &SettingsService{backend: backend, cache: c, logger: logger}
}

// Get returns the current settings, synthesizing defaults when nothing has
// been saved yet.
func (s *SettingsService) Get(ctx context.Context) (models.SystemSettings, error) {
	if cached, ok := s.cache.Get(settingsKey); ok {
		return cached.(models.SystemSettings), nil
	}

	rec, err := s.backend.Get(ctx, storage.CollectionSettings, storage.SettingsID)
	if errors.Is(err, storage.ErrNotFound) {
		defaults := models.DefaultSettings()
		s.cache.Set(settingsKey, defaults, cache.TTLSettings)
		return defaults, nil
	}
	if err != nil {
		return models.SystemSettings{}, fmt.Errorf("failed to get settings: %w", err)
	}

	settings := codec.DecodeSettings(rec)
	s.cache.Set(settingsKey, settings, cache.TTLSettings)
	return settings, nil
}

// Save upserts the settings record and refreshes the cache only after the
// write succeeds.
func (s *SettingsService) Save(ctx context.Context, settings models.SystemSettings) (models.SystemSettings, error) {
	rec := codec.EncodeSettings(settings)

	stored, err := s.backend.Update(ctx, storage.CollectionSettings, storage.SettingsID, rec)
	if errors.Is(err, storage.ErrNotFound) {
		stored, err = s.backend.Insert(ctx, storage.CollectionSettings, rec)
	}
	if err != nil {
		return models.SystemSettings{}, fmt.Errorf("failed to save settings: %w", err)
	}

	saved := codec.DecodeSettings(stored)
	s.cache.Set(settingsKey, saved, cache.TTLSettings)
	s.logger.Info("settings saved", zap.String("org", saved.OrgName))
	return saved, nil
}
