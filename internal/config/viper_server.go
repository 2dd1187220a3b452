package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the application reads
const EnvPrefix = "INBOX2EXCEL"

// LoadServerConfigWithViper loads server configuration using Viper
func LoadServerConfigWithViper(v *viper.Viper) (*Config, error) {
	setServerDefaults(v)
	setupServerEnvBinding(v)

	if err := loadConfigFile(v, "config"); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	config := &Config{}
	if err := unmarshalServerConfig(v, config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setServerDefaults sets default values for server configuration
func setServerDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allow_origins", "")

	v.SetDefault("database.path", "./inbox2excel.db")

	v.SetDefault("logging.level", "info")

	v.SetDefault("auth.api_key", "")
	v.SetDefault("auth.disabled", false)

	v.SetDefault("outlook.tenant", "common")
	v.SetDefault("outlook.redirect_url", "http://localhost:8080/api/outlook/callback")
	v.SetDefault("outlook.dashboard_url", "http://localhost:3000/dashboard")
	v.SetDefault("outlook.graph_url", "https://graph.microsoft.com/v1.0")
	v.SetDefault("outlook.state_ttl", "10m")

	v.SetDefault("mail.max_results", 50)
	v.SetDefault("mail.request_timeout", "30s")

	v.SetDefault("quota.default_plan", "starter")
	v.SetDefault("quota.disabled", false)
}

// setupServerEnvBinding sets up environment variable binding for server configuration
func setupServerEnvBinding(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	envBindings := map[string]string{
		"server.port":             "SERVER_PORT",
		"server.host":             "SERVER_HOST",
		"server.shutdown_timeout": "SERVER_SHUTDOWN_TIMEOUT",
		"server.allow_origins":    "SERVER_ALLOW_ORIGINS",
		"database.path":           "DATABASE_PATH",
		"logging.level":           "LOGGING_LEVEL",
		"auth.api_key":            "AUTH_API_KEY",
		"auth.disabled":           "AUTH_DISABLED",
		"outlook.client_id":       "OUTLOOK_CLIENT_ID",
		"outlook.client_secret":   "OUTLOOK_CLIENT_SECRET",
		"outlook.tenant":          "OUTLOOK_TENANT",
		"outlook.redirect_url":    "OUTLOOK_REDIRECT_URL",
		"outlook.dashboard_url":   "OUTLOOK_DASHBOARD_URL",
		"outlook.graph_url":       "OUTLOOK_GRAPH_URL",
		"outlook.state_secret":    "OUTLOOK_STATE_SECRET",
		"outlook.state_ttl":       "OUTLOOK_STATE_TTL",
		"mail.max_results":        "MAIL_MAX_RESULTS",
		"mail.request_timeout":    "MAIL_REQUEST_TIMEOUT",
		"quota.default_plan":      "QUOTA_DEFAULT_PLAN",
		"quota.disabled":          "QUOTA_DISABLED",
	}
	for configKey, envSuffix := range envBindings {
		v.BindEnv(configKey, EnvPrefix+"_"+envSuffix)
	}

	// Variable names used by the Azure AD app registration guide
	v.BindEnv("outlook.client_id", EnvPrefix+"_OUTLOOK_CLIENT_ID", "AZURE_AD_CLIENT_ID")
	v.BindEnv("outlook.client_secret", EnvPrefix+"_OUTLOOK_CLIENT_SECRET", "AZURE_AD_CLIENT_SECRET")
	v.BindEnv("outlook.redirect_url", EnvPrefix+"_OUTLOOK_REDIRECT_URL", "OUTLOOK_REDIRECT_URI")
}

// loadConfigFile loads configuration file if it exists
func loadConfigFile(v *viper.Viper, name string) error {
	if v.ConfigFileUsed() == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.inbox2excel")
		v.SetConfigName(name)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional, only return error if it's not a "not found" error
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	return nil
}

// unmarshalServerConfig unmarshals Viper configuration into Config struct
func unmarshalServerConfig(v *viper.Viper, config *Config) error {
	config.ServerPort = v.GetString("server.port")
	config.ServerHost = v.GetString("server.host")
	config.DBPath = v.GetString("database.path")
	config.LogLevel = v.GetString("logging.level")

	var err error
	config.ShutdownTimeout, err = time.ParseDuration(v.GetString("server.shutdown_timeout"))
	if err != nil {
		return fmt.Errorf("invalid shutdown timeout: %w", err)
	}
	config.RequestTimeout, err = time.ParseDuration(v.GetString("mail.request_timeout"))
	if err != nil {
		return fmt.Errorf("invalid request timeout: %w", err)
	}

	config.AllowOrigins = parseStringSlice(v.GetString("server.allow_origins"))

	config.APIKey = v.GetString("auth.api_key")
	config.DisableAuth = v.GetBool("auth.disabled")

	config.OutlookClientID = v.GetString("outlook.client_id")
	config.OutlookClientSecret = v.GetString("outlook.client_secret")
	config.OutlookTenant = v.GetString("outlook.tenant")
	config.OutlookRedirectURL = v.GetString("outlook.redirect_url")
	config.DashboardURL = v.GetString("outlook.dashboard_url")
	config.GraphURL = v.GetString("outlook.graph_url")
	config.OutlookStateSecret = v.GetString("outlook.state_secret")
	config.OutlookStateTTL, err = time.ParseDuration(v.GetString("outlook.state_ttl"))
	if err != nil {
		return fmt.Errorf("invalid outlook state ttl: %w", err)
	}

	config.MaxResults = v.GetInt("mail.max_results")

	config.DefaultPlan = v.GetString("quota.default_plan")
	config.DisableQuotas = v.GetBool("quota.disabled")

	return nil
}

func parseStringSlice(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadServerConfig loads server configuration, reading .env first
func LoadServerConfig() (*Config, error) {
	return LoadServerConfigWithEnvFile("")
}

// LoadServerConfigWithFile loads server configuration from a specific file
func LoadServerConfigWithFile(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	return LoadServerConfigWithViper(v)
}

// LoadServerConfigWithEnvFile loads server configuration with .env file support
func LoadServerConfigWithEnvFile(envFile string) (*Config, error) {
	if err := LoadEnvFile(envFile); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}
	return LoadServerConfigWithViper(viper.New())
}
