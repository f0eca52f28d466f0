package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-hub/pkg/cache"
	"github.com/jakechorley/volunteer-hub/pkg/codec"
	"github.com/jakechorley/volunteer-hub/pkg/models"
	"github.com/jakechorley/volunteer-hub/pkg/storage"
)

const (
	messageKeyPrefix     = "message" + cache.Sep
	messageListKeyPrefix = "messages" + cache.Sep
)

// MessageService provides cache-aside CRUD over delivered messages.
// Recipient-scoped inbox lists are the unit of caching; there is no global
// message list in steady-state use.
type MessageService struct {
	backend storage.Backend
	cache   *cache.Cache
	logger  *zap.Logger
}

// NewMessageService creates a message service over the given backend and
// cache.
func NewMessageService(backend storage.Backend, c *cache.Cache, logger *zap.Logger) *MessageService {
	return &MessageService{backend: backend, cache: c, logger: logger}
}

// ListByRecipient returns the messages delivered to one user.
func (s *MessageService) ListByRecipient(ctx context.Context, recipientID string) ([]models.Message, error) {
	key := messageListKeyPrefix + recipientID
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]models.Message), nil
	}

	recs, err := s.backend.List(ctx, storage.CollectionMessages, storage.Filter{"recipient_id": recipientID})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages for %q: %w", recipientID, err)
	}

	msgs := make([]models.Message, 0, len(recs))
	for _, rec := range recs {
		m := codec.DecodeMessage(rec)
		msgs = append(msgs, m)
		s.cache.Set(messageKeyPrefix+m.ID, m, cache.TTLScopedList)
	}
	s.cache.Set(key, msgs, cache.TTLScopedList)
	return msgs, nil
}

// List returns every stored message.
func (s *MessageService) List(ctx context.Context) ([]models.Message, error) {
	recs, err := s.backend.List(ctx, storage.CollectionMessages, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	msgs := make([]models.Message, 0, len(recs))
	for _, rec := range recs {
		msgs = append(msgs, codec.DecodeMessage(rec))
	}
	return msgs, nil
}

// Get returns one message by id.
func (s *MessageService) Get(ctx context.Context, id string) (*models.Message, error) {
	if cached, ok := s.cache.Get(messageKeyPrefix + id); ok {
		m := cached.(models.Message)
		return &m, nil
	}

	rec, err := s.backend.Get(ctx, storage.CollectionMessages, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get message %q: %w", id, err)
	}
	m := codec.DecodeMessage(rec)
	s.cache.Set(messageKeyPrefix+id, m, cache.TTLScopedList)
	return &m, nil
}

// Create persists one message, filling in id and timestamp when absent.
func (s *MessageService) Create(ctx context.Context, m models.Message) (*models.Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp == "" {
		m.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	stored, err := s.backend.Insert(ctx, storage.CollectionMessages, codec.EncodeMessage(m))
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	created := codec.DecodeMessage(stored)
	s.cacheAppend(created)
	return &created, nil
}

// CreateBatch persists a fan-out batch. The write aborts on the first
// failure and reports how far it got; messages persisted before the failure
// stay persisted.
func (s *MessageService) CreateBatch(ctx context.Context, msgs []models.Message) ([]models.Message, error) {
	created := make([]models.Message, 0, len(msgs))
	for i, m := range msgs {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.Timestamp == "" {
			m.Timestamp = time.Now().UTC().Format(time.RFC3339)
		}
		stored, err := s.backend.Insert(ctx, storage.CollectionMessages, codec.EncodeMessage(m))
		if err != nil {
			return created, fmt.Errorf("failed to write message %d of %d: %w", i+1, len(msgs), err)
		}
		created = append(created, codec.DecodeMessage(stored))
	}
	for _, m := range created {
		s.cacheAppend(m)
	}
	s.logger.Info("message batch written", zap.Int("count", len(created)))
	return created, nil
}

// MarkRead flips a message's read flag to true. The flag is monotonic;
// marking an already-read message is a no-op write.
func (s *MessageService) MarkRead(ctx context.Context, id string) (*models.Message, error) {
	stored, err := s.backend.Update(ctx, storage.CollectionMessages, id, storage.Record{"read": true})
	if err != nil {
		return nil, fmt.Errorf("failed to mark message %q read: %w", id, err)
	}
	updated := codec.DecodeMessage(stored)
	s.refreshCaches(updated)
	return &updated, nil
}

// Delete removes one message.
func (s *MessageService) Delete(ctx context.Context, id string) error {
	m, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, storage.CollectionMessages, id); err != nil {
		return fmt.Errorf("failed to delete message %q: %w", id, err)
	}

	s.cache.Invalidate(messageKeyPrefix + id)
	key := messageListKeyPrefix + m.RecipientID
	if cached, ok := s.cache.Get(key); ok {
		msgs := cached.([]models.Message)
		kept := make([]models.Message, 0, len(msgs))
		for _, existing := range msgs {
			if existing.ID != id {
				kept = append(kept, existing)
			}
		}
		s.cache.Set(key, kept, cache.TTLScopedList)
	}
	return nil
}

func (s *MessageService) cacheAppend(m models.Message) {
	s.cache.Set(messageKeyPrefix+m.ID, m, cache.TTLScopedList)
	key := messageListKeyPrefix + m.RecipientID
	if cached, ok := s.cache.Get(key); ok {
		s.cache.Set(key, append(cached.([]models.Message), m), cache.TTLScopedList)
	}
}

func (s *MessageService) refreshCaches(m models.Message) {
	s.cache.Set(messageKeyPrefix+m.ID, m, cache.TTLScopedList)
	key := messageListKeyPrefix + m.RecipientID
	if cached, ok := s.cache.Get(key); ok {
		msgs := cached.([]models.Message)
		patched := make([]models.Message, len(msgs))
		for i, existing := range msgs {
			if existing.ID == m.ID {
				patched[i] = m
			} else {
				patched[i] = existing
			}
		}
		s.cache.Set(key, patched, cache.TTLScopedList)
	}
}
