package gmailclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/jakechorley/volunteer-hub/pkg/utils"
)

// Client wraps the Gmail API for sending notification e-mail. Sends are
// throttled to respect API rate limits.
type Client struct {
	service      *gmail.Service
	sender       string
	lastSendTime time.Time
	sendMutex    sync.Mutex
}

// NewClient creates a Gmail client from OAuth client credentials and a
// stored refresh token. sender is the From address shown to recipients.
func NewClient(ctx context.Context, clientID, clientSecret, refreshToken, sender string) (*Client, error) {
	source := utils.NewGmailTokenSource(ctx, clientID, clientSecret, refreshToken)

	service, err := gmail.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	return &Client{
		service: service,
		sender:  sender,
	}, nil
}
