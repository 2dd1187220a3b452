package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"inbox2excel/internal/database"
	"inbox2excel/internal/quota"
)

// Client represents an HTTP client for the Inbox2Excel API
type Client struct {
	baseURL    string
	userID     string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL, userID string) *Client {
	return NewClientWithTimeout(baseURL, userID, 30*time.Second)
}

// NewClientWithTimeout creates a new API client with a custom timeout
func NewClientWithTimeout(baseURL, userID string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		userID:  userID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewClientFromConfig creates an API client from CLI configuration
func NewClientFromConfig(cfg *Config) *Client {
	c := NewClientWithTimeout(cfg.ServerURL, cfg.UserID, cfg.RequestTimeout)
	c.apiKey = cfg.APIKey
	return c
}

// APIError represents an error from the API
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

// doRequest performs an HTTP request and handles errors
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()

		apiErr := APIError{Code: resp.StatusCode}
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
			apiErr.Message = payload.Message
			if apiErr.Message == "" {
				apiErr.Message = payload.Error
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
		return nil, &apiErr
	}

	return resp, nil
}

func (c *Client) decode(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// HealthCheck checks if the API server is healthy
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.decode(ctx, http.MethodGet, "/api/health", nil, nil)
}

// GetFilters returns the user's saved filters
func (c *Client) GetFilters(ctx context.Context) ([]database.SavedFilter, error) {
	var resp struct {
		Filters []database.SavedFilter `json:"filters"`
	}
	if err := c.decode(ctx, http.MethodGet, "/api/filters", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Filters, nil
}

// DeleteFilter deletes a saved filter
func (c *Client) DeleteFilter(ctx context.Context, id int) error {
	return c.decode(ctx, http.MethodDelete, "/api/filters/"+strconv.Itoa(id), nil, nil)
}

// GetUsage returns the user's usage for the current month
func (c *Client) GetUsage(ctx context.Context) (*quota.Usage, error) {
	var usage quota.Usage
	if err := c.decode(ctx, http.MethodGet, "/api/usage", nil, &usage); err != nil {
		return nil, err
	}
	return &usage, nil
}

// GetRuns returns the user's most recent extraction runs
func (c *Client) GetRuns(ctx context.Context) ([]database.ExtractionRun, error) {
	var runs []database.ExtractionRun
	if err := c.decode(ctx, http.MethodGet, "/api/extractions", nil, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}
