package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inbox2excel/internal/config"
	"inbox2excel/internal/database"
	"inbox2excel/internal/handlers"
	"inbox2excel/internal/quota"
)

const testUser = "user-1"

// newGraphServer serves a mailbox with two invoices
func newGraphServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer stored-token" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"code":"InvalidAuthenticationToken","message":"Access token is empty."}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/me":
			w.Write([]byte(`{"displayName":"Ada","mail":"ada@shop.test"}`))
		case "/me/messages":
			w.Write([]byte(`{"value":[
				{"id":"m1","subject":"Invoice 42","receivedDateTime":"2026-03-02T09:30:00Z",
				 "body":{"contentType":"html","content":"<p>Total: 99.90 EUR</p>"},
				 "from":{"emailAddress":{"name":"Billing","address":"billing@shop.test"}}},
				{"id":"m2","subject":"Invoice 43","receivedDateTime":"2026-03-03T09:30:00Z",
				 "body":{"contentType":"text","content":"Total: 12.00 EUR"},
				 "from":{"emailAddress":{"address":"billing@shop.test"}}}
			]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(dbPath, graphURL string) *config.Config {
	return &config.Config{
		ServerPort:      "0",
		ServerHost:      "127.0.0.1",
		ShutdownTimeout: time.Second,
		DBPath:          dbPath,
		LogLevel:        "error",
		DisableAuth:     true,
		OutlookTenant:   "common",
		DashboardURL:    "http://app.test/dashboard",
		GraphURL:        graphURL,
		MaxResults:      50,
		RequestTimeout:  5 * time.Second,
		DefaultPlan:     quota.DefaultPlan,
	}
}

type testAPI struct {
	handler http.Handler
	db      *database.DB
}

func setupTestAPI(t *testing.T, opts RouterOptions) *testAPI {
	t.Helper()
	graph := newGraphServer(t)

	cfg := testConfig(filepath.Join(t.TempDir(), "api.db"), graph.URL)
	db, err := database.Open(cfg.DBPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h, err := NewHandlers(db, cfg, discardLogger())
	require.NoError(t, err)

	opts.Logger = discardLogger()
	return &testAPI{handler: NewRouter(h, opts), db: db}
}

func (a *testAPI) connectMailbox(t *testing.T) {
	t.Helper()
	require.NoError(t, a.db.Accounts.Connect(&database.MailAccount{
		UserID:      testUser,
		Provider:    "outlook",
		Email:       "ada@shop.test",
		AccessToken: "stored-token",
		TokenType:   "Bearer",
	}))
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", testUser)
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

var amountRules = []map[string]string{
	{"fieldName": "Amount", "keyword": "Total", "direction": "after", "boundary": "word"},
}

func TestRouter_Health(t *testing.T) {
	api := setupTestAPI(t, RouterOptions{DisableAuth: true})

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	api.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var health handlers.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
}

func TestRouter_RequiresUser(t *testing.T) {
	api := setupTestAPI(t, RouterOptions{DisableAuth: true})

	for _, path := range []string{"/api/filters", "/api/usage", "/api/outlook/status", "/api/extractions"} {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		api.handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestRouter_APIKey(t *testing.T) {
	api := setupTestAPI(t, RouterOptions{APIKey: "secret"})

	w := api.do(t, "GET", "/api/usage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest("GET", "/api/usage", nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("X-User-ID", testUser)
	w = httptest.NewRecorder()
	api.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// health stays public
	req = httptest.NewRequest("GET", "/api/health", nil)
	w = httptest.NewRecorder()
	api.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ExtractAndExport(t *testing.T) {
	api := setupTestAPI(t, RouterOptions{DisableAuth: true})

	t.Run("without mailbox", func(t *testing.T) {
		w := api.do(t, "POST", "/api/outlook/extract", map[string]any{
			"subject":         "Invoice",
			"extractionRules": amountRules,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Connect Outlook first")
	})

	api.connectMailbox(t)

	t.Run("over the plan field limit", func(t *testing.T) {
		w := api.do(t, "POST", "/api/outlook/extract", map[string]any{
			"extractionRules": []map[string]string{
				{"keyword": "A"}, {"keyword": "B"}, {"keyword": "C"},
			},
		})
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "too many extraction fields")
	})

	w := api.do(t, "POST", "/api/outlook/extract", map[string]any{
		"subject":         "Invoice",
		"startDate":       "2026-03-01",
		"extractionRules": amountRules,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp handlers.ExtractResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Results, 2)
	amount, _ := resp.Results[0].ExtractedData.Get("Amount")
	assert.Equal(t, "99.90", amount)
	assert.Equal(t, "Invoice 42", resp.Results[0].Subject)
	assert.Equal(t, 1, resp.Usage.Used)
	require.NotZero(t, resp.RunID)

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/outlook/extract", strings.NewReader("{"))
		req.Header.Set("X-User-ID", testUser)
		w := httptest.NewRecorder()
		api.handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("runs", func(t *testing.T) {
		w := api.do(t, "GET", "/api/extractions", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var runs []map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
		assert.Len(t, runs, 1)

		w = api.do(t, "GET", "/api/extractions/9999", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = api.do(t, "GET", "/api/extractions/abc", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("export stored run as csv", func(t *testing.T) {
		w := api.do(t, "GET", "/api/extractions/"+itoa(resp.RunID)+"/export?format=csv", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
		assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
		assert.Contains(t, w.Body.String(), "99.90")
	})

	t.Run("export posted results as xlsx", func(t *testing.T) {
		w := api.do(t, "POST", "/api/export?format=xlsx", map[string]any{"results": resp.Results})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
		// xlsx files are zip archives
		assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))
	})

	t.Run("unsupported export format", func(t *testing.T) {
		w := api.do(t, "POST", "/api/export?format=pdf", map[string]any{"results": resp.Results})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("usage reflects the extraction", func(t *testing.T) {
		w := api.do(t, "GET", "/api/usage", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var usage quota.Usage
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &usage))
		assert.Equal(t, "starter", usage.Plan)
		assert.Equal(t, 1, usage.Used)
		assert.Equal(t, 499, usage.Remaining)
	})
}

func TestRouter_Filters(t *testing.T) {
	api := setupTestAPI(t, RouterOptions{DisableAuth: true})

	w := api.do(t, "GET", "/api/filters", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"filters":[]}`, w.Body.String())

	w = api.do(t, "POST", "/api/filters", map[string]any{
		"name":            "Invoices",
		"subject":         "Invoice",
		"extractionRules": amountRules,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created database.SavedFilter
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotZero(t, created.ID)

	w = api.do(t, "POST", "/api/filters", map[string]any{
		"id":              created.ID,
		"name":            "Renamed",
		"extractionRules": amountRules,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = api.do(t, "POST", "/api/filters", map[string]any{
		"name": "Too many fields",
		"extractionRules": []map[string]string{
			{"keyword": "A"}, {"keyword": "B"}, {"keyword": "C"},
		},
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, "POST", "/api/filters", map[string]any{"id": 4242, "name": "ghost"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, "GET", "/api/filters", nil)
	var list handlers.FiltersResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Filters, 1)
	assert.Equal(t, "Renamed", list.Filters[0].Name)

	w = api.do(t, "DELETE", "/api/filters/"+itoa(created.ID), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = api.do(t, "DELETE", "/api/filters/"+itoa(created.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_Outlook(t *testing.T) {
	api := setupTestAPI(t, RouterOptions{DisableAuth: true})

	w := api.do(t, "GET", "/api/outlook/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"connected":false`)

	w = api.do(t, "POST", "/api/outlook/logout", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// no client registration configured
	w = api.do(t, "GET", "/api/outlook/connect", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	api.connectMailbox(t)

	w = api.do(t, "GET", "/api/outlook/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status handlers.OutlookStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Connected)
	require.NotNil(t, status.Data)
	assert.Equal(t, "ada@shop.test", status.Data.Email)
	assert.Equal(t, "Outlook User", status.Data.DisplayName)

	w = api.do(t, "POST", "/api/outlook/logout", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Outlook disconnected successfully")

	w = api.do(t, "GET", "/api/outlook/status", nil)
	assert.Contains(t, w.Body.String(), `"connected":false`)
}

func TestRouter_OutlookCallback(t *testing.T) {
	api := setupTestAPI(t, RouterOptions{DisableAuth: true})

	tests := []struct {
		name    string
		query   string
		outcome string
	}{
		{"authorization denied", "?error=access_denied&error_description=nope", "outlook=error"},
		{"missing code", "?state=user-1", "outlook=invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/outlook/callback"+tt.query, nil)
			w := httptest.NewRecorder()
			api.handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusFound, w.Code)
			location := w.Header().Get("Location")
			assert.True(t, strings.HasPrefix(location, "http://app.test/dashboard"), location)
			assert.Contains(t, location, tt.outcome)
		})
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	srv := &http.Server{
		Addr:    "127.0.0.1:0",
		Handler: http.NewServeMux(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, srv, time.Second, discardLogger()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServe_ListenFailure(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:-1"}

	err := Serve(context.Background(), srv, time.Second, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server failed")
}

func itoa(n int) string {
	data, _ := json.Marshal(n)
	return string(data)
}
