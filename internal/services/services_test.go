package services

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"inbox2excel/internal/database"
	"inbox2excel/internal/email"
	"inbox2excel/internal/extraction"
	"inbox2excel/internal/quota"
)

// MockMailClient is a mock implementation of email.MailClient
type MockMailClient struct {
	mock.Mock
}

func (m *MockMailClient) Search(ctx context.Context, query email.Query) ([]email.EmailMessage, error) {
	args := m.Called(ctx, query)
	msgs, _ := args.Get(0).([]email.EmailMessage)
	return msgs, args.Error(1)
}

func (m *MockMailClient) HealthCheck(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockMailClient) Close() error {
	return m.Called().Error(0)
}

// MockMailboxProvider is a mock implementation of MailboxProvider
type MockMailboxProvider struct {
	mock.Mock
}

func (m *MockMailboxProvider) ForUser(ctx context.Context, userID string) (email.MailClient, email.Provider, error) {
	args := m.Called(ctx, userID)
	client, _ := args.Get(0).(email.MailClient)
	return client, args.Get(1).(email.Provider), args.Error(2)
}

type testQuotaConfig struct {
	disabled bool
}

func (c testQuotaConfig) GetDisableQuotas() bool { return c.disabled }

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func invoiceMessages() []email.EmailMessage {
	return []email.EmailMessage{
		{
			ID:       "m1",
			From:     "Billing <billing@shop.test>",
			Subject:  "Invoice 42",
			Date:     time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
			HTMLText: "<p>Total: 99.90 EUR</p><p>Thanks</p>",
		},
		{
			ID:        "m2",
			From:      "billing@shop.test",
			Subject:   "Invoice 43",
			Date:      time.Date(2026, 3, 3, 9, 30, 0, 0, time.UTC),
			PlainText: "Nothing to see",
		},
	}
}

func totalRule() []extraction.ExtractionRule {
	return []extraction.ExtractionRule{
		{FieldName: "Amount", Keyword: "Total", Direction: extraction.After, Boundary: extraction.Word},
	}
}

func newTestExtractionService(t *testing.T, mailboxes MailboxProvider, cfg quota.Config) (*ExtractionService, *database.DB) {
	t.Helper()
	db := setupTestDB(t)
	svc := NewExtractionService(mailboxes, db, cfg, quota.DefaultPlan, quietLogger())
	svc.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	return svc, db
}

func TestExtractionService_Extract(t *testing.T) {
	client := &MockMailClient{}
	mailboxes := &MockMailboxProvider{}
	svc, db := newTestExtractionService(t, mailboxes, testQuotaConfig{})

	query := email.Query{Subject: "Invoice"}
	mailboxes.On("ForUser", mock.Anything, "user-1").Return(client, email.ProviderOutlook, nil)
	client.On("Search", mock.Anything, query).Return(invoiceMessages(), nil)
	client.On("Close").Return(nil)

	result, err := svc.Extract(context.Background(), "user-1", ExtractionRequest{Query: query, Rules: totalRule()})
	require.NoError(t, err)

	require.Len(t, result.Records, 2)
	amount, _ := result.Records[0].ExtractedData.Get("Amount")
	assert.Equal(t, "99.90", amount)
	missing, _ := result.Records[1].ExtractedData.Get("Amount")
	assert.Equal(t, extraction.NotFound, missing)
	assert.Equal(t, "billing@shop.test", result.Records[1].Sender)

	assert.Equal(t, []extraction.FieldSummary{{Key: "Amount", Matched: 1, NotFound: 1}}, result.Summary)
	assert.Equal(t, 1, result.Usage.Used)
	assert.Equal(t, 499, result.Usage.Remaining)
	assert.NotZero(t, result.RunID)

	used, err := db.Usage.Get("user-1", "2026-03")
	require.NoError(t, err)
	assert.Equal(t, 1, used)

	run, err := db.Runs.GetByID("user-1", result.RunID)
	require.NoError(t, err)
	assert.Equal(t, "outlook", run.Provider)
	assert.Equal(t, 2, run.RecordCount)
	assert.Contains(t, string(run.Query), `"subject":"Invoice"`)

	client.AssertExpectations(t)
	mailboxes.AssertExpectations(t)
}

func TestExtractionService_EmptyMailboxStillCounts(t *testing.T) {
	client := &MockMailClient{}
	mailboxes := &MockMailboxProvider{}
	svc, db := newTestExtractionService(t, mailboxes, testQuotaConfig{})

	mailboxes.On("ForUser", mock.Anything, "user-1").Return(client, email.ProviderOutlook, nil)
	client.On("Search", mock.Anything, mock.Anything).Return([]email.EmailMessage{}, nil)
	client.On("Close").Return(nil)

	result, err := svc.Extract(context.Background(), "user-1", ExtractionRequest{Rules: totalRule()})
	require.NoError(t, err)
	assert.Empty(t, result.Records)

	used, _ := db.Usage.Get("user-1", "2026-03")
	assert.Equal(t, 1, used)
}

func TestExtractionService_QuotaExhausted(t *testing.T) {
	mailboxes := &MockMailboxProvider{}
	svc, db := newTestExtractionService(t, mailboxes, testQuotaConfig{})

	_, err := db.Usage.Increment("user-1", "2026-03", 500)
	require.NoError(t, err)

	_, err = svc.Extract(context.Background(), "user-1", ExtractionRequest{Rules: totalRule()})
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.ErrorIs(t, err, ErrExtractionLimit)
	mailboxes.AssertNotCalled(t, "ForUser", mock.Anything, mock.Anything)
}

func TestExtractionService_FieldLimit(t *testing.T) {
	mailboxes := &MockMailboxProvider{}
	svc, db := newTestExtractionService(t, mailboxes, testQuotaConfig{})

	rules := make([]extraction.ExtractionRule, 10)
	for i := range rules {
		rules[i] = extraction.ExtractionRule{Keyword: "Total", Direction: extraction.After, Boundary: extraction.Word}
	}

	_, err := svc.Extract(context.Background(), "user-1", ExtractionRequest{Rules: rules})
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.ErrorIs(t, err, ErrFieldLimit)
	mailboxes.AssertNotCalled(t, "ForUser", mock.Anything, mock.Anything)

	used, _ := db.Usage.Get("user-1", "2026-03")
	assert.Equal(t, 0, used)

	// a higher plan allows more fields
	require.NoError(t, db.Plans.Set("user-1", "prime"))
	client := &MockMailClient{}
	mailboxes.On("ForUser", mock.Anything, "user-1").Return(client, email.ProviderOutlook, nil)
	client.On("Search", mock.Anything, mock.Anything).Return(invoiceMessages(), nil)
	client.On("Close").Return(nil)

	result, err := svc.Extract(context.Background(), "user-1", ExtractionRequest{Rules: rules})
	require.NoError(t, err)
	require.NotEmpty(t, result.Records)
	assert.Len(t, result.Records[0].ExtractedData, 10)
}

func TestExtractionService_QuotaDisabled(t *testing.T) {
	client := &MockMailClient{}
	mailboxes := &MockMailboxProvider{}
	svc, db := newTestExtractionService(t, mailboxes, testQuotaConfig{disabled: true})

	_, err := db.Usage.Increment("user-1", "2026-03", 500)
	require.NoError(t, err)

	mailboxes.On("ForUser", mock.Anything, "user-1").Return(client, email.ProviderOutlook, nil)
	client.On("Search", mock.Anything, mock.Anything).Return(invoiceMessages(), nil)
	client.On("Close").Return(nil)

	_, err = svc.Extract(context.Background(), "user-1", ExtractionRequest{Rules: totalRule()})
	assert.NoError(t, err)
}

func TestExtractionService_NoMailbox(t *testing.T) {
	mailboxes := &MockMailboxProvider{}
	svc, db := newTestExtractionService(t, mailboxes, testQuotaConfig{})

	mailboxes.On("ForUser", mock.Anything, "user-1").Return(nil, email.Provider(""), ErrNoMailbox)

	_, err := svc.Extract(context.Background(), "user-1", ExtractionRequest{Rules: totalRule()})
	assert.ErrorIs(t, err, ErrNoMailbox)

	used, _ := db.Usage.Get("user-1", "2026-03")
	assert.Equal(t, 0, used)
}

func TestExtractionService_ProviderFailure(t *testing.T) {
	client := &MockMailClient{}
	mailboxes := &MockMailboxProvider{}
	svc, db := newTestExtractionService(t, mailboxes, testQuotaConfig{})

	mailboxes.On("ForUser", mock.Anything, "user-1").Return(client, email.ProviderOutlook, nil)
	client.On("Search", mock.Anything, mock.Anything).Return(nil, errors.New("graph unavailable"))
	client.On("Close").Return(nil)

	_, err := svc.Extract(context.Background(), "user-1", ExtractionRequest{Rules: totalRule()})
	assert.ErrorIs(t, err, ErrMailProvider)

	used, _ := db.Usage.Get("user-1", "2026-03")
	assert.Equal(t, 0, used)
	client.AssertCalled(t, "Close")
}

func TestExtractionService_InvalidQuery(t *testing.T) {
	client := &MockMailClient{}
	mailboxes := &MockMailboxProvider{}
	svc, _ := newTestExtractionService(t, mailboxes, testQuotaConfig{})

	mailboxes.On("ForUser", mock.Anything, "user-1").Return(client, email.ProviderOutlook, nil)
	client.On("Close").Return(nil)

	query := email.Query{
		StartDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	_, err := svc.Extract(context.Background(), "user-1", ExtractionRequest{Query: query, Rules: totalRule()})
	assert.ErrorIs(t, err, ErrInvalidQuery)
	client.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestExtractionService_UsageAndPlan(t *testing.T) {
	svc, db := newTestExtractionService(t, &MockMailboxProvider{}, testQuotaConfig{})

	require.NoError(t, db.Plans.Set("user-1", "pro"))
	_, err := db.Usage.Increment("user-1", "2026-03", 10)
	require.NoError(t, err)

	usage, err := svc.Usage("user-1")
	require.NoError(t, err)
	assert.Equal(t, quota.Usage{
		Plan:               "pro",
		Period:             "2026-03",
		Used:               10,
		Limit:              2500,
		Remaining:          2490,
		MaxFilters:         5,
		MaxFieldsPerFilter: 5,
	}, usage)

	other, err := svc.Usage("user-2")
	require.NoError(t, err)
	assert.Equal(t, "starter", other.Plan)
	assert.Equal(t, 0, other.Used)
}

func TestCollect(t *testing.T) {
	client := &MockMailClient{}
	client.On("Search", mock.Anything, mock.Anything).Return(invoiceMessages()[:1], nil)

	rules := []extraction.ExtractionRule{
		{FieldName: "Amount", Keyword: "Total"},
		{FieldName: "Empty", Keyword: "  "},
		{Keyword: "Thanks", Boundary: extraction.Paragraph},
	}
	records, err := Collect(context.Background(), client, extraction.NewExtractor(quietLogger()), ExtractionRequest{Rules: rules})
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, []string{"Amount", "Empty", "field_3"}, records[0].ExtractedData.Keys())
	empty, _ := records[0].ExtractedData.Get("Empty")
	assert.Equal(t, extraction.NoKeyword, empty)
	para, _ := records[0].ExtractedData.Get("field_3")
	assert.Equal(t, "Thanks", para)
}

func TestFilterService_Limits(t *testing.T) {
	db := setupTestDB(t)
	svc := NewFilterService(db, testQuotaConfig{}, quota.DefaultPlan, quietLogger())

	for i := 0; i < 2; i++ {
		f := &database.SavedFilter{Subject: "Invoice", ExtractionRules: totalRule()}
		require.NoError(t, svc.Save("user-1", f))
		assert.NotZero(t, f.ID)
		assert.Equal(t, database.DefaultFilterName, f.Name)
	}

	err := svc.Save("user-1", &database.SavedFilter{Name: "third"})
	assert.ErrorIs(t, err, ErrFilterLimit)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	tooMany := &database.SavedFilter{ExtractionRules: []extraction.ExtractionRule{
		{Keyword: "a"}, {Keyword: "b"}, {Keyword: "c"},
	}}
	assert.ErrorIs(t, svc.Save("user-2", tooMany), ErrFieldLimit)

	// Other users are unaffected
	require.NoError(t, svc.Save("user-2", &database.SavedFilter{Name: "mine"}))
}

func TestFilterService_UpdateAndDelete(t *testing.T) {
	db := setupTestDB(t)
	svc := NewFilterService(db, testQuotaConfig{}, quota.DefaultPlan, quietLogger())

	f := &database.SavedFilter{Name: "Invoices", ExtractionRules: totalRule()}
	require.NoError(t, svc.Save("user-1", f))
	require.NoError(t, svc.Save("user-1", &database.SavedFilter{Name: "Receipts"}))

	// Updating does not count as a new filter
	f.Name = "Renamed"
	require.NoError(t, svc.Save("user-1", f))
	got, err := svc.Get("user-1", f.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)

	// Another user cannot update or delete it
	stolen := &database.SavedFilter{ID: f.ID, Name: "mine now"}
	assert.ErrorIs(t, svc.Save("user-2", stolen), sql.ErrNoRows)
	assert.ErrorIs(t, svc.Delete("user-2", f.ID), sql.ErrNoRows)

	require.NoError(t, svc.Delete("user-1", f.ID))
	filters, err := svc.List("user-1")
	require.NoError(t, err)
	assert.Len(t, filters, 1)
}

func TestFilterService_Validation(t *testing.T) {
	db := setupTestDB(t)
	svc := NewFilterService(db, testQuotaConfig{}, quota.DefaultPlan, quietLogger())

	draft := &database.SavedFilter{ExtractionRules: []extraction.ExtractionRule{{Keyword: ""}}}
	assert.NoError(t, svc.Save("user-1", draft))

	badRule := &database.SavedFilter{ExtractionRules: []extraction.ExtractionRule{
		{Keyword: "Total", Direction: "sideways"},
	}}
	assert.ErrorIs(t, svc.Save("user-1", badRule), ErrInvalidFilter)

	badDate := &database.SavedFilter{StartDate: "03/01/2026"}
	assert.ErrorIs(t, svc.Save("user-1", badDate), ErrInvalidFilter)
}
