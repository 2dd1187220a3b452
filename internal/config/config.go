package config

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"inbox2excel/internal/quota"
)

// Config holds all server configuration
type Config struct {
	// Server configuration
	ServerPort      string
	ServerHost      string
	ShutdownTimeout time.Duration

	// Database configuration
	DBPath string

	// Logging
	LogLevel string

	// Authentication
	APIKey       string
	DisableAuth  bool
	AllowOrigins []string

	// Outlook application registration
	OutlookClientID     string
	OutlookClientSecret string
	OutlookTenant       string
	OutlookRedirectURL  string
	// OutlookStateSecret signs the OAuth state; a random key is used when empty
	OutlookStateSecret string
	OutlookStateTTL    time.Duration
	// DashboardURL receives the browser after the OAuth callback
	DashboardURL string
	GraphURL     string

	// Mail fetching
	MaxResults     int
	RequestTimeout time.Duration

	// Quotas
	DefaultPlan   string
	DisableQuotas bool
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	if c.ServerPort == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	if _, err := strconv.Atoi(c.ServerPort); err != nil {
		return fmt.Errorf("invalid server port: %s", c.ServerPort)
	}

	if c.DBPath == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	if err := validateLogLevel(c.LogLevel); err != nil {
		return err
	}

	if !c.DisableAuth && c.APIKey == "" {
		return fmt.Errorf("API key is required when authentication is enabled")
	}

	if c.MaxResults < 1 || c.MaxResults > 1000 {
		return fmt.Errorf("max results must be between 1 and 1000")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}

	if _, err := quota.LookupPlan(c.DefaultPlan); err != nil {
		return fmt.Errorf("invalid default plan: %w", err)
	}

	return nil
}

func validateLogLevel(level string) error {
	switch level {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", level)
}

// Address returns the full server address
func (c *Config) Address() string {
	return c.ServerHost + ":" + c.ServerPort
}

// OutlookConfigured reports whether the Outlook OAuth application is set up
func (c *Config) OutlookConfigured() bool {
	return c.OutlookClientID != "" && c.OutlookClientSecret != "" && c.OutlookRedirectURL != ""
}

// GetDisableQuotas returns the quota disable flag
func (c *Config) GetDisableQuotas() bool {
	return c.DisableQuotas
}

// ParseLogLevel maps a configured level name to a slog level
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// NewLogger creates the structured text logger used by the binaries
func NewLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLogLevel(level),
	}))
}
