package utils

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ScopeGmailSend is the only Google scope the application needs: sending
// notification e-mail.
const ScopeGmailSend = "https://www.googleapis.com/auth/gmail.send"

// NewGmailTokenSource builds a self-refreshing token source from a client
// id/secret pair and a long-lived refresh token. The refresh token is minted
// once, out of band, and stored in configuration; the server never runs an
// interactive authorization flow.
func NewGmailTokenSource(ctx context.Context, clientID, clientSecret, refreshToken string) oauth2.TokenSource {
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{ScopeGmailSend},
	}
	return cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
}
