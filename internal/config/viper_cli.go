package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"inbox2excel/internal/cli"
)

// LoadCLIConfigWithViper loads CLI configuration using Viper
func LoadCLIConfigWithViper(v *viper.Viper) (*cli.Config, error) {
	setCLIDefaults(v)
	setupCLIEnvBinding(v)

	if err := loadCLIConfigFile(v); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	config := cli.DefaultConfig()
	if err := unmarshalCLIConfig(v, config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setCLIDefaults sets default values for CLI configuration
func setCLIDefaults(v *viper.Viper) {
	defaults := cli.DefaultConfig()
	v.SetDefault("server_url", defaults.ServerURL)
	v.SetDefault("user_id", "")
	v.SetDefault("format", defaults.Format)
	v.SetDefault("quiet", false)
	v.SetDefault("no_color", false)
	v.SetDefault("request_timeout", "60s")
	v.SetDefault("workers", defaults.Workers)
	v.SetDefault("outlook.tenant", "common")
}

// setupCLIEnvBinding sets up environment variable binding for CLI configuration
func setupCLIEnvBinding(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	envBindings := map[string]string{
		"server_url":            "CLI_SERVER_URL",
		"user_id":               "CLI_USER_ID",
		"api_key":               "CLI_API_KEY",
		"format":                "CLI_FORMAT",
		"quiet":                 "CLI_QUIET",
		"no_color":              "CLI_NO_COLOR",
		"request_timeout":       "CLI_TIMEOUT",
		"workers":               "CLI_WORKERS",
		"outlook.client_id":     "OUTLOOK_CLIENT_ID",
		"outlook.client_secret": "OUTLOOK_CLIENT_SECRET",
		"outlook.tenant":        "OUTLOOK_TENANT",
		"outlook.access_token":  "OUTLOOK_ACCESS_TOKEN",
		"outlook.refresh_token": "OUTLOOK_REFRESH_TOKEN",
		"gmail.client_id":       "GMAIL_CLIENT_ID",
		"gmail.client_secret":   "GMAIL_CLIENT_SECRET",
		"gmail.refresh_token":   "GMAIL_REFRESH_TOKEN",
		"gmail.user_email":      "GMAIL_USER_EMAIL",
	}

	for configKey, envSuffix := range envBindings {
		v.BindEnv(configKey, EnvPrefix+"_"+envSuffix)
	}

	v.BindEnv("no_color", EnvPrefix+"_CLI_NO_COLOR", "NO_COLOR")
}

// loadCLIConfigFile loads configuration file if it exists
func loadCLIConfigFile(v *viper.Viper) error {
	if v.ConfigFileUsed() == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.inbox2excel")
		v.SetConfigName("cli")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	return nil
}

// unmarshalCLIConfig unmarshals Viper configuration into CLI Config struct
func unmarshalCLIConfig(v *viper.Viper, config *cli.Config) error {
	config.ServerURL = v.GetString("server_url")
	config.UserID = v.GetString("user_id")
	config.APIKey = v.GetString("api_key")
	config.Format = v.GetString("format")
	config.Quiet = v.GetBool("quiet")
	config.NoColor = v.GetBool("no_color")
	config.Workers = v.GetInt("workers")

	config.Outlook = cli.OutlookCredentials{
		ClientID:     v.GetString("outlook.client_id"),
		ClientSecret: v.GetString("outlook.client_secret"),
		Tenant:       v.GetString("outlook.tenant"),
		AccessToken:  v.GetString("outlook.access_token"),
		RefreshToken: v.GetString("outlook.refresh_token"),
	}
	config.Gmail = cli.GmailCredentials{
		ClientID:     v.GetString("gmail.client_id"),
		ClientSecret: v.GetString("gmail.client_secret"),
		RefreshToken: v.GetString("gmail.refresh_token"),
		UserEmail:    v.GetString("gmail.user_email"),
	}

	timeout, err := parseTimeout(v.GetString("request_timeout"))
	if err != nil {
		return err
	}
	config.RequestTimeout = timeout

	return nil
}

// parseTimeout accepts a duration string or a whole number of seconds
func parseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 60 * time.Second, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	seconds, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid request timeout: %s", s)
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("request timeout must be positive, got %d seconds", seconds)
	}
	return time.Duration(seconds) * time.Second, nil
}

// LoadCLIConfig loads CLI configuration using a fresh Viper instance
func LoadCLIConfig() (*cli.Config, error) {
	return LoadCLIConfigWithViper(viper.New())
}

// LoadCLIConfigWithFile loads CLI configuration from a specific file
func LoadCLIConfigWithFile(configFile string) (*cli.Config, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	return LoadCLIConfigWithViper(v)
}
