package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-hub/pkg/models"
	"github.com/jakechorley/volunteer-hub/pkg/storage"
)

// Mailer sends a plain-text notification e-mail. The Gmail client satisfies
// this; a nil Mailer disables notifications entirely.
type Mailer interface {
	SendEmail(to, subject, body string) error
}

// SendInput is one logical message send before fan-out resolution.
type SendInput struct {
	SenderID string
	Selector models.RecipientSelector
	Subject  string
	Content  string
}

// SendResult reports what a fan-out actually did.
type SendResult struct {
	RecipientIDs []string         `json:"recipientIds"`
	Messages     []models.Message `json:"messages"`
}

// Fanout resolves a logical recipient selector into concrete users and
// writes one message per resolved recipient.
type Fanout struct {
	users    *UserService
	events   *EventService
	messages *MessageService
	mailer   Mailer
	logger   *zap.Logger
}

// NewFanout creates the fan-out component. mailer may be nil.
func NewFanout(users *UserService, events *EventService, messages *MessageService, mailer Mailer, logger *zap.Logger) *Fanout {
	return &Fanout{users: users, events: events, messages: messages, mailer: mailer, logger: logger}
}

// Send resolves the selector, persists the message batch and then applies
// the per-recipient side effects. The batch write is all-or-nothing for the
// side effects: if it fails, no unread counter moves. A failed counter
// increment after a successful batch is logged and skipped — prior
// increments are not rolled back.
func (f *Fanout) Send(ctx context.Context, input SendInput) (*SendResult, error) {
	recipients, err := f.resolve(ctx, input.SenderID, input.Selector)
	if err != nil {
		return nil, err
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)
	batch := make([]models.Message, 0, len(recipients))
	for _, recipientID := range recipients {
		batch = append(batch, models.Message{
			SenderID:    input.SenderID,
			RecipientID: recipientID,
			Subject:     input.Subject,
			Content:     input.Content,
			Timestamp:   timestamp,
			Read:        false,
		})
	}

	created, err := f.messages.CreateBatch(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("failed to fan out message: %w", err)
	}

	for _, recipientID := range recipients {
		if _, err := f.users.IncrementUnread(ctx, recipientID); err != nil {
			f.logger.Warn("failed to increment unread counter",
				zap.String("recipient_id", recipientID),
				zap.Error(err))
		}
	}

	f.notify(ctx, recipients, input.Subject, input.Content)

	f.logger.Info("message sent",
		zap.String("sender_id", input.SenderID),
		zap.String("selector", string(input.Selector.Type)),
		zap.Int("recipients", len(recipients)))
	return &SendResult{RecipientIDs: recipients, Messages: created}, nil
}

// resolve expands a selector into a deduplicated recipient list. The sender
// is excluded in every branch. Event and role selectors join volunteers to
// users by e-mail (case-insensitive) because volunteers carry no user id.
func (f *Fanout) resolve(ctx context.Context, senderID string, sel models.RecipientSelector) ([]string, error) {
	switch sel.Type {
	case models.RecipientIndividual:
		if sel.UserID == "" {
			return nil, fmt.Errorf("%w: individual selector needs a user id", storage.ErrValidation)
		}
		if sel.UserID == senderID {
			return []string{}, nil
		}
		if _, err := f.users.Get(ctx, sel.UserID); err != nil {
			return nil, err
		}
		return []string{sel.UserID}, nil

	case models.RecipientAll:
		users, err := f.users.List(ctx)
		if err != nil {
			return nil, err
		}
		recipients := make([]string, 0, len(users))
		for _, u := range users {
			if u.ID != senderID {
				recipients = append(recipients, u.ID)
			}
		}
		return recipients, nil

	case models.RecipientEvent, models.RecipientRole:
		if sel.EventID == "" {
			return nil, fmt.Errorf("%w: %s selector needs an event id", storage.ErrValidation, sel.Type)
		}
		ev, err := f.events.Get(ctx, sel.EventID)
		if err != nil {
			return nil, err
		}

		emails := make(map[string]bool)
		for i := range ev.Roles {
			role := &ev.Roles[i]
			if sel.Type == models.RecipientRole && role.ID != sel.RoleID {
				continue
			}
			for _, vol := range role.Volunteers {
				if vol.Email != "" {
					emails[strings.ToLower(vol.Email)] = true
				}
			}
		}
		if sel.Type == models.RecipientRole && ev.FindRole(sel.RoleID) == nil {
			return nil, fmt.Errorf("%w: role %q in event %q", storage.ErrNotFound, sel.RoleID, sel.EventID)
		}

		users, err := f.users.List(ctx)
		if err != nil {
			return nil, err
		}
		recipients := []string{}
		seen := make(map[string]bool)
		for _, u := range users {
			if u.ID == senderID || seen[u.ID] {
				continue
			}
			if emails[strings.ToLower(u.Email)] {
				recipients = append(recipients, u.ID)
				seen[u.ID] = true
			}
		}
		return recipients, nil

	default:
		return nil, fmt.Errorf("%w: unknown recipient type %q", storage.ErrValidation, sel.Type)
	}
}

// notify e-mails recipients who opted in. Best effort: mail failures are
// logged and never surface to the sender.
func (f *Fanout) notify(ctx context.Context, recipients []string, subject, content string) {
	if f.mailer == nil {
		return
	}
	for _, recipientID := range recipients {
		u, err := f.users.Get(ctx, recipientID)
		if err != nil || !u.EmailNotifications || u.Email == "" {
			continue
		}
		if err := f.mailer.SendEmail(u.Email, subject, content); err != nil {
			f.logger.Warn("failed to send notification email",
				zap.String("recipient_id", recipientID),
				zap.Error(err))
		}
	}
}
