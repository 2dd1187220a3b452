package email

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"inbox2excel/internal/extraction"
)

// DefaultMaxResults caps how many messages a single search returns.
const DefaultMaxResults = 50

// Provider names a mail source.
type Provider string

const (
	ProviderOutlook   Provider = "outlook"
	ProviderGmail     Provider = "gmail"
	ProviderDirectory Provider = "eml"
)

// MailClient defines the interface for mail providers
type MailClient interface {
	// Search returns the messages matching the query, newest first when the provider supports it
	Search(ctx context.Context, query Query) ([]EmailMessage, error)

	// HealthCheck verifies the client connection is working
	HealthCheck(ctx context.Context) error

	// Close cleans up resources
	Close() error
}

// EmailMessage represents an email message with parsed content
type EmailMessage struct {
	ID       string            `json:"id"`
	ThreadID string            `json:"thread_id,omitempty"`
	From     string            `json:"from"`
	Subject  string            `json:"subject"`
	Date     time.Time         `json:"date"`
	Headers  map[string]string `json:"headers,omitempty"`

	// Content in different formats
	PlainText string `json:"plain_text"`
	HTMLText  string `json:"html_text"`
}

// SenderAddress returns the bare address of From, or From itself when it does not parse.
func (m EmailMessage) SenderAddress() string {
	if addr, err := mail.ParseAddress(m.From); err == nil {
		return addr.Address
	}
	return strings.TrimSpace(m.From)
}

// ToExtraction converts the message to extractor input. The HTML body is
// preferred; plain text bodies are used as is.
func (m EmailMessage) ToExtraction() extraction.Message {
	body := m.HTMLText
	if body == "" {
		body = m.PlainText
	}
	return extraction.Message{
		Subject:    m.Subject,
		Sender:     m.SenderAddress(),
		ReceivedAt: m.Date,
		BodyHTML:   body,
	}
}

// ToExtractionMessages converts a batch of messages.
func ToExtractionMessages(msgs []EmailMessage) []extraction.Message {
	out := make([]extraction.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.ToExtraction()
	}
	return out
}

// Query represents a mailbox search. Empty fields do not filter.
type Query struct {
	Subject    string    `json:"subject,omitempty"`
	Sender     string    `json:"sender,omitempty"`
	StartDate  time.Time `json:"startDate,omitempty"`
	EndDate    time.Time `json:"endDate,omitempty"`
	MaxResults int       `json:"maxResults,omitempty"`
}

// Limit returns the effective result cap.
func (q Query) Limit() int {
	if q.MaxResults <= 0 {
		return DefaultMaxResults
	}
	return q.MaxResults
}

// Validate checks that the date range is ordered.
func (q Query) Validate() error {
	if !q.StartDate.IsZero() && !q.EndDate.IsZero() && q.EndDate.Before(q.StartDate) {
		return fmt.Errorf("end date %s is before start date %s",
			q.EndDate.Format(time.RFC3339), q.StartDate.Format(time.RFC3339))
	}
	return nil
}

// Matches applies the query to a message locally. Subject and sender use
// case-insensitive containment, dates are inclusive.
func (q Query) Matches(m EmailMessage) bool {
	if s := strings.TrimSpace(q.Subject); s != "" &&
		!strings.Contains(strings.ToLower(m.Subject), strings.ToLower(s)) {
		return false
	}
	if s := strings.TrimSpace(q.Sender); s != "" &&
		!strings.Contains(strings.ToLower(m.SenderAddress()), strings.ToLower(s)) {
		return false
	}
	if !q.StartDate.IsZero() && m.Date.Before(q.StartDate) {
		return false
	}
	if !q.EndDate.IsZero() && m.Date.After(q.EndDate) {
		return false
	}
	return true
}

// ParseStartDate parses an RFC 3339 timestamp or a YYYY-MM-DD date, which
// is taken as the start of that day in UTC. Empty input yields the zero time.
func ParseStartDate(s string) (time.Time, error) {
	return parseQueryDate(s, false)
}

// ParseEndDate is like ParseStartDate but a bare date means the last second of that day.
func ParseEndDate(s string) (time.Time, error) {
	return parseQueryDate(s, true)
}

func parseQueryDate(s string, endOfDay bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD or RFC 3339", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return t, nil
}
