package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"inbox2excel/internal/database"
	"inbox2excel/internal/email"
)

// MailboxProvider opens the mailbox connected by a user
type MailboxProvider interface {
	ForUser(ctx context.Context, userID string) (email.MailClient, email.Provider, error)
}

// OutlookMailboxes opens Microsoft Graph clients from stored account tokens
type OutlookMailboxes struct {
	accounts       *database.AccountStore
	oauth          *email.OutlookOAuth
	graphURL       string
	requestTimeout time.Duration
	logger         *slog.Logger
}

// NewOutlookMailboxes creates a mailbox provider. A nil oauth helper means
// stored access tokens are used as-is and never refreshed.
func NewOutlookMailboxes(accounts *database.AccountStore, oauth *email.OutlookOAuth, graphURL string, requestTimeout time.Duration, logger *slog.Logger) *OutlookMailboxes {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutlookMailboxes{
		accounts:       accounts,
		oauth:          oauth,
		graphURL:       graphURL,
		requestTimeout: requestTimeout,
		logger:         logger,
	}
}

// ForUser returns a Graph client for the user's connected mailbox
func (m *OutlookMailboxes) ForUser(ctx context.Context, userID string) (email.MailClient, email.Provider, error) {
	account, err := m.accounts.Get(userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNoMailbox
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load mail account: %w", err)
	}
	if !account.IsConnected() {
		return nil, "", ErrNoMailbox
	}

	client, err := email.NewOutlookClient(email.OutlookClientConfig{
		TokenSource:    m.TokenSource(ctx, account),
		BaseURL:        m.graphURL,
		RequestTimeout: m.requestTimeout,
		Logger:         m.logger,
	})
	if err != nil {
		return nil, "", err
	}
	return client, email.ProviderOutlook, nil
}

// TokenSource returns a token source for the account that saves refreshed tokens
func (m *OutlookMailboxes) TokenSource(ctx context.Context, account *database.MailAccount) oauth2.TokenSource {
	token := AccountToken(account)
	if m.oauth == nil {
		return oauth2.StaticTokenSource(token)
	}
	return &persistingTokenSource{
		base:     m.oauth.TokenSource(ctx, token),
		accounts: m.accounts,
		userID:   account.UserID,
		last:     token.AccessToken,
		logger:   m.logger,
	}
}

// AccountToken converts stored account credentials to an oauth2 token
func AccountToken(account *database.MailAccount) *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  account.AccessToken,
		RefreshToken: account.RefreshToken,
		TokenType:    account.TokenType,
	}
	if account.ExpiresAt != nil {
		token.Expiry = *account.ExpiresAt
	}
	return token
}

// persistingTokenSource writes refreshed tokens back to the account store
type persistingTokenSource struct {
	base     oauth2.TokenSource
	accounts *database.AccountStore
	userID   string
	logger   *slog.Logger

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken == s.last {
		return token, nil
	}
	s.last = token.AccessToken

	var expiresAt *time.Time
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		expiresAt = &expiry
	}
	if err := s.accounts.UpdateToken(s.userID, token.AccessToken, token.RefreshToken, token.TokenType, expiresAt); err != nil {
		s.logger.Warn("Failed to save refreshed mail token", "user_id", s.userID, "error", err)
	} else {
		s.logger.Debug("Saved refreshed mail token", "user_id", s.userID)
	}
	return token, nil
}
