package email

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery_Matches(t *testing.T) {
	msg := EmailMessage{
		From:    "Billing Team <Billing@Shop.example>",
		Subject: "Your Invoice #42",
		Date:    time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name     string
		query    Query
		expected bool
	}{
		{"Empty query", Query{}, true},
		{"Subject contains", Query{Subject: "invoice"}, true},
		{"Subject mismatch", Query{Subject: "receipt"}, false},
		{"Sender domain", Query{Sender: "@shop.example"}, true},
		{"Sender display name is not matched", Query{Sender: "Billing Team"}, false},
		{"Inside range", Query{StartDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)}, true},
		{"Before start", Query{StartDate: time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)}, false},
		{"After end", Query{EndDate: time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)}, false},
		{"Boundary inclusive", Query{StartDate: msg.Date, EndDate: msg.Date}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.query.Matches(msg); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestQuery_LimitAndValidate(t *testing.T) {
	assert.Equal(t, DefaultMaxResults, Query{}.Limit())
	assert.Equal(t, 10, Query{MaxResults: 10}.Limit())

	start := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	assert.NoError(t, Query{StartDate: start, EndDate: start}.Validate())
	assert.Error(t, Query{StartDate: start, EndDate: start.Add(-time.Hour)}.Validate())
}

func TestParseQueryDates(t *testing.T) {
	start, err := ParseStartDate("2025-01-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), start)

	end, err := ParseEndDate("2025-01-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC), end)

	exact, err := ParseEndDate("2025-01-31T10:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 31, 8, 0, 0, 0, time.UTC), exact)

	zero, err := ParseStartDate("  ")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	_, err = ParseStartDate("31/01/2025")
	assert.Error(t, err)
}

func TestEmailMessage_ToExtraction(t *testing.T) {
	date := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	htmlMsg := EmailMessage{
		From:      "Shop <orders@shop.example>",
		Subject:   "Order",
		Date:      date,
		PlainText: "plain",
		HTMLText:  "<p>html</p>",
	}
	converted := htmlMsg.ToExtraction()
	assert.Equal(t, "orders@shop.example", converted.Sender)
	assert.Equal(t, "<p>html</p>", converted.BodyHTML)
	assert.Equal(t, date, converted.ReceivedAt)
	assert.Equal(t, "Order", converted.Subject)

	plainMsg := EmailMessage{From: "not an address", PlainText: "Total: 5"}
	converted = plainMsg.ToExtraction()
	assert.Equal(t, "not an address", converted.Sender)
	assert.Equal(t, "Total: 5", converted.BodyHTML)

	assert.Len(t, ToExtractionMessages([]EmailMessage{htmlMsg, plainMsg}), 2)
}
