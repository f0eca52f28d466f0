package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-hub/pkg/models"
)

// Inbox is the message-reading flow: opening an inbox marks everything
// unread as read and zeroes the owner's unread counter.
type Inbox struct {
	messages *MessageService
	users    *UserService
	logger   *zap.Logger
}

// NewInbox creates the inbox flow over the message and user services.
func NewInbox(messages *MessageService, users *UserService, logger *zap.Logger) *Inbox {
	return &Inbox{messages: messages, users: users, logger: logger}
}

// Visit returns a user's messages and applies the visit side effect: each
// unread message transitions to read one at a time, then the unread counter
// is reset in a single write. A message that fails to flip is left unread
// and reported; successfully flipped ones stay flipped.
func (ib *Inbox) Visit(ctx context.Context, userID string) ([]models.Message, error) {
	msgs, err := ib.messages.ListByRecipient(ctx, userID)
	if err != nil {
		return nil, err
	}

	for i := range msgs {
		if msgs[i].Read {
			continue
		}
		updated, err := ib.messages.MarkRead(ctx, msgs[i].ID)
		if err != nil {
			return nil, fmt.Errorf("failed to mark inbox read for %q: %w", userID, err)
		}
		msgs[i] = *updated
	}

	if _, err := ib.users.ResetUnread(ctx, userID); err != nil {
		return nil, err
	}

	ib.logger.Debug("inbox visited", zap.String("user_id", userID), zap.Int("messages", len(msgs)))
	return msgs, nil
}
