package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	cliapi "inbox2excel/internal/cli"
	"inbox2excel/internal/config"
)

// Version is reported by --version
const Version = "1.0.0"

var (
	configFile string
	serverURL  string
	userID     string
	format     string
	quiet      bool
	noColor    bool
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "inbox2excel",
	Short: "Extract fields from emails into spreadsheets",
	Long: `Inbox2Excel searches a mailbox, pulls the values that follow (or precede)
keywords in each message body and writes one spreadsheet row per email.

Extraction runs locally against a directory of .eml files, an Outlook
mailbox or a Gmail mailbox. Saved filters, usage and stored runs are read
from an Inbox2Excel server.

CONFIGURATION:
    Settings are read from cli.yaml (., ./config, $HOME/.inbox2excel),
    from INBOX2EXCEL_* environment variables and from a .env file.

    INBOX2EXCEL_CLI_SERVER_URL      - API server address
    INBOX2EXCEL_CLI_USER_ID         - user sent as X-User-ID
    INBOX2EXCEL_CLI_API_KEY         - bearer key for the API
    INBOX2EXCEL_OUTLOOK_*           - Outlook token for local extraction
    INBOX2EXCEL_GMAIL_*             - Gmail OAuth credentials

EXAMPLES:
    inbox2excel extract --eml-dir ./mail --subject Invoice \
        --rule 'after:word:Total=Amount' --output invoices.xlsx

    inbox2excel extract --provider outlook --since 2026-03-01 \
        --rules-file rules.yaml --format json

    inbox2excel filters list --server https://inbox2excel.example.com`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := fang.Execute(context.Background(), rootCmd); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initEnv)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is cli.yaml)")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "API server address")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "user ID sent to the API server")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", "", "Output format (table, json)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (minimal output)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable color output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log progress to stderr")
}

// initEnv loads .env before any configuration is read
func initEnv() {
	if err := config.LoadEnvFile(""); err != nil {
		slog.Warn("Failed to load .env file", "error", err)
	}
}

// loadConfig reads file and environment configuration, then applies the
// flags the user actually set.
func loadConfig(cmd *cobra.Command) (*cliapi.Config, error) {
	var cfg *cliapi.Config
	var err error
	if configFile != "" {
		cfg, err = config.LoadCLIConfigWithFile(configFile)
	} else {
		cfg, err = config.LoadCLIConfig()
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.ServerURL = serverURL
	}
	if flags.Changed("user") {
		cfg.UserID = userID
	}
	if flags.Changed("format") {
		cfg.Format = format
	}
	if flags.Changed("quiet") {
		cfg.Quiet = quiet
	}
	if flags.Changed("no-color") {
		cfg.NoColor = noColor
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger logs to stderr; warnings only unless --verbose is set
func newLogger(cfg *cliapi.Config) *slog.Logger {
	if cfg.Quiet {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	level := "warn"
	if verbose {
		level = "debug"
	}
	return config.NewLogger(os.Stderr, level)
}

// initializeClient sets up configuration, formatter, and API client
func initializeClient(cmd *cobra.Command) (*cliapi.Config, *cliapi.OutputFormatter, *cliapi.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	formatter := cliapi.NewOutputFormatter(cfg.Format, cfg.Quiet)
	client := cliapi.NewClientFromConfig(cfg)

	// Test connectivity
	if err := client.HealthCheck(cmd.Context()); err != nil {
		formatter.PrintError(err)
		return nil, nil, nil, err
	}

	return cfg, formatter, client, nil
}
