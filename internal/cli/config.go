package cli

import (
	"fmt"
	"strings"
	"time"
)

// Config holds CLI configuration
type Config struct {
	// Server access for the filters and usage commands
	ServerURL      string
	UserID         string
	APIKey         string
	RequestTimeout time.Duration

	// Output
	Format  string
	Quiet   bool
	NoColor bool

	// Local extraction
	Workers int
	Outlook OutlookCredentials
	Gmail   GmailCredentials
}

// OutlookCredentials holds a delegated Microsoft Graph token for local extraction
type OutlookCredentials struct {
	ClientID     string
	ClientSecret string
	Tenant       string
	AccessToken  string
	RefreshToken string
}

// GmailCredentials holds Gmail OAuth credentials for local extraction
type GmailCredentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	UserEmail    string
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		ServerURL:      "http://localhost:8080",
		Format:         "table",
		RequestTimeout: 60 * time.Second,
		Workers:        4,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ServerURL) == "" {
		return fmt.Errorf("server URL cannot be empty")
	}
	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		return fmt.Errorf("invalid server URL format")
	}

	switch c.Format {
	case "table", "json":
	default:
		return fmt.Errorf("invalid format: %s (must be one of: table, json)", c.Format)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}

	return nil
}

// HasOutlook reports whether an Outlook token is configured
func (c *Config) HasOutlook() bool {
	return c.Outlook.AccessToken != "" || c.Outlook.RefreshToken != ""
}

// HasGmail reports whether Gmail credentials are configured
func (c *Config) HasGmail() bool {
	return c.Gmail.ClientID != "" && c.Gmail.ClientSecret != "" && c.Gmail.RefreshToken != ""
}
