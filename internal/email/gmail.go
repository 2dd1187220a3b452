package email

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailClient implements MailClient for Gmail API
type GmailClient struct {
	service *gmail.Service
	userID  string
	config  *GmailConfig
	logger  *slog.Logger
}

// GmailConfig holds Gmail API configuration
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	AccessToken  string
	UserEmail    string

	// Request limits
	RequestTimeout time.Duration
	RateLimitDelay time.Duration

	// Endpoint overrides the API root, used by tests
	Endpoint string
	Logger   *slog.Logger
}

func validateGmailConfig(config *GmailConfig) error {
	if config == nil {
		return fmt.Errorf("gmail config is required")
	}
	if config.ClientID == "" {
		return fmt.Errorf("gmail client ID is required")
	}
	if config.ClientSecret == "" {
		return fmt.Errorf("gmail client secret is required")
	}
	if config.RefreshToken == "" && config.AccessToken == "" {
		return fmt.Errorf("gmail refresh token or access token is required")
	}
	return nil
}

// NewGmailClient creates a new Gmail API client
func NewGmailClient(ctx context.Context, config *GmailConfig) (*GmailClient, error) {
	if err := validateGmailConfig(config); err != nil {
		return nil, err
	}

	oauthConfig := &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Scopes:       []string{gmail.GmailReadonlyScope},
		Endpoint:     google.Endpoint,
	}

	token := &oauth2.Token{
		AccessToken:  config.AccessToken,
		RefreshToken: config.RefreshToken,
		TokenType:    "Bearer",
	}

	httpClient := oauthConfig.Client(ctx, token)
	if config.RequestTimeout > 0 {
		httpClient.Timeout = config.RequestTimeout
	}

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(config.Endpoint))
	}

	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	userID := "me"
	if config.UserEmail != "" {
		userID = config.UserEmail
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &GmailClient{
		service: service,
		userID:  userID,
		config:  config,
		logger:  logger,
	}, nil
}

// Search performs a Gmail search built from the query
func (g *GmailClient) Search(ctx context.Context, query Query) ([]EmailMessage, error) {
	q := BuildGmailQuery(query)
	g.logger.Debug("Searching Gmail", "query", q)

	resp, err := g.service.Users.Messages.List(g.userID).
		Q(q).
		MaxResults(int64(query.Limit())).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("gmail search failed: %w", err)
	}

	var messages []EmailMessage
	for _, msg := range resp.Messages {
		if err := g.wait(ctx); err != nil {
			return messages, err
		}

		fullMessage, err := g.GetMessage(ctx, msg.Id)
		if err != nil {
			g.logger.Warn("Failed to get message", "id", msg.Id, "error", err)
			continue
		}
		messages = append(messages, *fullMessage)
	}

	g.logger.Debug("Gmail search completed", "messages", len(messages))
	return messages, nil
}

func (g *GmailClient) wait(ctx context.Context) error {
	if g.config.RateLimitDelay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(g.config.RateLimitDelay):
		return nil
	}
}

// GetMessage retrieves the full content of a specific message
func (g *GmailClient) GetMessage(ctx context.Context, id string) (*EmailMessage, error) {
	msg, err := g.service.Users.Messages.Get(g.userID, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return parseGmailMessage(msg), nil
}

// parseGmailMessage converts Gmail API message to EmailMessage
func parseGmailMessage(msg *gmail.Message) *EmailMessage {
	emailMsg := &EmailMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Headers:  make(map[string]string),
	}
	if msg.Payload == nil {
		return emailMsg
	}

	for _, header := range msg.Payload.Headers {
		emailMsg.Headers[header.Name] = header.Value

		switch strings.ToLower(header.Name) {
		case "from":
			emailMsg.From = header.Value
		case "subject":
			emailMsg.Subject = header.Value
		case "date":
			if date, err := mail.ParseDate(header.Value); err == nil {
				emailMsg.Date = date
			}
		}
	}

	if emailMsg.Date.IsZero() && msg.InternalDate > 0 {
		emailMsg.Date = time.UnixMilli(msg.InternalDate).UTC()
	}

	emailMsg.PlainText, emailMsg.HTMLText = extractContent(msg.Payload)
	return emailMsg
}

// extractContent returns the first plain text and HTML bodies of a payload tree
func extractContent(payload *gmail.MessagePart) (plainText, htmlText string) {
	if payload.Body != nil && payload.Body.Data != "" {
		switch payload.MimeType {
		case "text/plain":
			plainText = decodeBody(payload.Body.Data)
		case "text/html":
			htmlText = decodeBody(payload.Body.Data)
		}
	}

	for _, part := range payload.Parts {
		partPlain, partHTML := extractContent(part)
		if partPlain != "" && plainText == "" {
			plainText = partPlain
		}
		if partHTML != "" && htmlText == "" {
			htmlText = partHTML
		}
	}
	return plainText, htmlText
}

func decodeBody(data string) string {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(decoded)
}

// HealthCheck verifies the Gmail connection is working
func (g *GmailClient) HealthCheck(ctx context.Context) error {
	profile, err := g.service.Users.GetProfile(g.userID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get Gmail profile: %w", err)
	}
	g.logger.Debug("Connected to Gmail account", "email", profile.EmailAddress)
	return nil
}

// Close cleans up resources
func (g *GmailClient) Close() error {
	return nil
}

// BuildGmailQuery constructs a Gmail search query from a Query. Gmail's
// after:/before: operators take whole days, so the range is widened to
// include the boundary days.
func BuildGmailQuery(query Query) string {
	var parts []string

	if s := strings.TrimSpace(query.Subject); s != "" {
		parts = append(parts, "subject:"+gmailTerm(s))
	}
	if s := strings.TrimSpace(query.Sender); s != "" {
		parts = append(parts, "from:"+gmailTerm(s))
	}
	if !query.StartDate.IsZero() {
		parts = append(parts, "after:"+query.StartDate.UTC().Format("2006/01/02"))
	}
	if !query.EndDate.IsZero() {
		parts = append(parts, "before:"+query.EndDate.UTC().AddDate(0, 0, 1).Format("2006/01/02"))
	}

	return strings.Join(parts, " ")
}

func gmailTerm(s string) string {
	if strings.ContainsAny(s, " \t()\"") {
		return `"` + strings.ReplaceAll(s, `"`, "") + `"`
	}
	return s
}
