package email

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultGraphURL is the Microsoft Graph v1.0 root.
const DefaultGraphURL = "https://graph.microsoft.com/v1.0"

// OutlookClient implements MailClient for Microsoft Graph mailboxes
type OutlookClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// OutlookClientConfig holds Graph client configuration
type OutlookClientConfig struct {
	// TokenSource supplies and refreshes the bearer token
	TokenSource oauth2.TokenSource
	// BaseURL overrides DefaultGraphURL
	BaseURL        string
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// GraphProfile is the subset of /me the application stores.
type GraphProfile struct {
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// Email returns the mailbox address, falling back to the principal name.
func (p GraphProfile) Email() string {
	if p.Mail != "" {
		return p.Mail
	}
	return p.UserPrincipalName
}

type graphMessage struct {
	ID               string `json:"id"`
	ConversationID   string `json:"conversationId"`
	Subject          string `json:"subject"`
	ReceivedDateTime string `json:"receivedDateTime"`
	Body             struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	From *struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
}

type graphError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// GraphError is returned when Graph answers with a non-2xx status.
type GraphError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *GraphError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("graph API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("graph API error %d", e.StatusCode)
}

// NewOutlookClient creates a Graph client authorized by the given token source.
func NewOutlookClient(cfg OutlookClientConfig) (*OutlookClient, error) {
	if cfg.TokenSource == nil {
		return nil, fmt.Errorf("outlook client requires a token source")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultGraphURL
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := oauth2.NewClient(context.Background(), cfg.TokenSource)
	httpClient.Timeout = timeout

	return &OutlookClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}, nil
}

// Search lists messages of the signed-in mailbox matching the query.
func (c *OutlookClient) Search(ctx context.Context, query Query) ([]EmailMessage, error) {
	params := BuildGraphParams(query)
	c.logger.Debug("Searching Outlook mailbox", "filter", params.Get("$filter"), "top", params.Get("$top"))

	var page struct {
		Value []graphMessage `json:"value"`
	}
	if err := c.get(ctx, "/me/messages?"+params.Encode(), &page); err != nil {
		return nil, fmt.Errorf("outlook search failed: %w", err)
	}

	messages := make([]EmailMessage, 0, len(page.Value))
	for _, gm := range page.Value {
		messages = append(messages, convertGraphMessage(gm))
	}
	c.logger.Debug("Outlook search completed", "messages", len(messages))
	return messages, nil
}

// Profile returns the signed-in user's profile.
func (c *OutlookClient) Profile(ctx context.Context) (*GraphProfile, error) {
	var p GraphProfile
	if err := c.get(ctx, "/me", &p); err != nil {
		return nil, fmt.Errorf("failed to get Outlook profile: %w", err)
	}
	return &p, nil
}

// HealthCheck verifies the Graph connection is working
func (c *OutlookClient) HealthCheck(ctx context.Context) error {
	p, err := c.Profile(ctx)
	if err != nil {
		return err
	}
	c.logger.Debug("Connected to Outlook account", "email", p.Email())
	return nil
}

// Close cleans up resources
func (c *OutlookClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *OutlookClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		gerr := &GraphError{StatusCode: resp.StatusCode}
		var payload graphError
		if json.Unmarshal(body, &payload) == nil {
			gerr.Code = payload.Error.Code
			gerr.Message = payload.Error.Message
		}
		return gerr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// BuildGraphParams builds the /me/messages query string for a search.
// Only the filters present in the query are included.
func BuildGraphParams(query Query) url.Values {
	params := url.Values{}
	params.Set("$select", "subject,body,receivedDateTime,from")
	params.Set("$top", strconv.Itoa(query.Limit()))
	if filter := BuildODataFilter(query); filter != "" {
		params.Set("$filter", filter)
	}
	return params
}

// BuildODataFilter constructs the OData $filter expression for a search.
func BuildODataFilter(query Query) string {
	var filters []string

	if s := strings.TrimSpace(query.Subject); s != "" {
		filters = append(filters, fmt.Sprintf("contains(subject, '%s')", odataEscape(s)))
	}
	if s := strings.TrimSpace(query.Sender); s != "" {
		filters = append(filters, fmt.Sprintf("contains(from/emailAddress/address, '%s')", odataEscape(s)))
	}
	if !query.StartDate.IsZero() {
		filters = append(filters, "receivedDateTime ge "+query.StartDate.UTC().Format(time.RFC3339))
	}
	if !query.EndDate.IsZero() {
		filters = append(filters, "receivedDateTime le "+query.EndDate.UTC().Format(time.RFC3339))
	}

	return strings.Join(filters, " and ")
}

func odataEscape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func convertGraphMessage(gm graphMessage) EmailMessage {
	msg := EmailMessage{
		ID:       gm.ID,
		ThreadID: gm.ConversationID,
		Subject:  gm.Subject,
	}
	if gm.From != nil {
		msg.From = gm.From.EmailAddress.Address
	}
	if t, err := time.Parse(time.RFC3339, gm.ReceivedDateTime); err == nil {
		msg.Date = t
	}
	if strings.EqualFold(gm.Body.ContentType, "text") {
		msg.PlainText = gm.Body.Content
	} else {
		msg.HTMLText = gm.Body.Content
	}
	return msg
}
