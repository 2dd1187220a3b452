package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	cliapi "inbox2excel/internal/cli"
	"inbox2excel/internal/email"
	"inbox2excel/internal/export"
	"inbox2excel/internal/extraction"
	"inbox2excel/internal/services"
)

var (
	emlDir      string
	provider    string
	subject     string
	sender      string
	since       string
	until       string
	maxResults  int
	ruleSpecs   []string
	rulesFile   string
	outputFile  string
	interactive bool
	showSummary bool
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract fields from matching emails",
	Long: `Search a mailbox and extract one row per matching email.

Rules use the form direction:boundary:keyword[=name], for example
after:word:Total=Amount or before:line:EUR. A rules file holds a "rules"
list in JSON, YAML or TOML with the same fields the API accepts.`,
	Example: `  inbox2excel extract --eml-dir ./mail --rule 'after:word:Total=Amount'
  inbox2excel extract --provider gmail --sender billing@shop.test --rules-file rules.yaml -o out.csv`,
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVar(&emlDir, "eml-dir", "", "read .eml files from this directory")
	extractCmd.Flags().StringVarP(&provider, "provider", "p", "", "mail provider (outlook, gmail)")
	extractCmd.Flags().StringVar(&subject, "subject", "", "subject must contain this text")
	extractCmd.Flags().StringVar(&sender, "sender", "", "sender address must contain this text")
	extractCmd.Flags().StringVar(&since, "since", "", "only emails received on or after this date (YYYY-MM-DD or RFC 3339)")
	extractCmd.Flags().StringVar(&until, "until", "", "only emails received on or before this date (YYYY-MM-DD or RFC 3339)")
	extractCmd.Flags().IntVarP(&maxResults, "max", "m", email.DefaultMaxResults, "maximum number of emails to read")
	extractCmd.Flags().StringArrayVarP(&ruleSpecs, "rule", "r", nil, "extraction rule direction:boundary:keyword[=name] (repeatable); the name follows the last '=', write \\= for a literal '=' in the keyword")
	extractCmd.Flags().StringVar(&rulesFile, "rules-file", "", "read extraction rules from a JSON, YAML or TOML file")
	extractCmd.Flags().StringVarP(&outputFile, "output", "o", "", "write results to a .xlsx, .csv or .json file")
	extractCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "browse results in an interactive table")
	extractCmd.Flags().BoolVar(&showSummary, "summary", false, "print per-field match counts")

	extractCmd.MarkFlagsMutuallyExclusive("eml-dir", "provider")
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	formatter := cliapi.NewOutputFormatter(cfg.Format, cfg.Quiet)
	logger := newLogger(cfg)

	rules, err := collectRules(ruleSpecs, rulesFile)
	if err != nil {
		return err
	}

	query, err := buildQuery(subject, sender, since, until, maxResults)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()

	client, err := openMailbox(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	spinner := cliapi.NewProgressSpinner("Searching mailbox", cfg.NoColor || cfg.Quiet)
	spinner.Start()
	records, err := services.Collect(ctx, client, extraction.NewExtractor(logger), services.ExtractionRequest{
		Query: query,
		Rules: rules,
	})
	spinner.Stop()
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	if outputFile != "" {
		if err := writeOutputFile(outputFile, records); err != nil {
			formatter.PrintError(err)
			return err
		}
		formatter.PrintSuccess(fmt.Sprintf("Wrote %d rows to %s", len(records), outputFile))
		return nil
	}

	if shouldUseInteractiveMode(cfg, interactive, isatty.IsTerminal(os.Stdout.Fd())) {
		return cliapi.RunRecordPreview(records, cfg.NoColor)
	}

	if err := formatter.PrintRecords(records); err != nil {
		return err
	}
	if showSummary {
		return formatter.PrintSummary(extraction.Summarize(records))
	}
	return nil
}

// buildQuery turns the search flags into a mailbox query
func buildQuery(subject, sender, since, until string, max int) (email.Query, error) {
	start, err := email.ParseStartDate(since)
	if err != nil {
		return email.Query{}, fmt.Errorf("--since: %w", err)
	}
	end, err := email.ParseEndDate(until)
	if err != nil {
		return email.Query{}, fmt.Errorf("--until: %w", err)
	}
	query := email.Query{
		Subject:    subject,
		Sender:     sender,
		StartDate:  start,
		EndDate:    end,
		MaxResults: max,
	}
	if err := query.Validate(); err != nil {
		return email.Query{}, err
	}
	return query, nil
}

// shouldUseInteractiveMode opens the preview only for table output on a terminal
func shouldUseInteractiveMode(cfg *cliapi.Config, requested, isTerminal bool) bool {
	return requested && isTerminal && cfg.Format == "table" && !cfg.Quiet
}

// openMailbox picks the mail source from flags and configuration
func openMailbox(ctx context.Context, cfg *cliapi.Config, logger *slog.Logger) (email.MailClient, error) {
	switch {
	case emlDir != "":
		return email.NewDirectorySource(emlDir, cfg.Workers, logger)
	case provider == string(email.ProviderOutlook):
		if !cfg.HasOutlook() {
			return nil, fmt.Errorf("outlook token is not configured (set INBOX2EXCEL_OUTLOOK_ACCESS_TOKEN or outlook.refresh_token)")
		}
		return email.NewOutlookClient(email.OutlookClientConfig{
			TokenSource:    outlookTokenSource(ctx, cfg.Outlook),
			RequestTimeout: cfg.RequestTimeout,
			Logger:         logger,
		})
	case provider == string(email.ProviderGmail):
		if !cfg.HasGmail() {
			return nil, fmt.Errorf("gmail credentials are not configured (see INBOX2EXCEL_GMAIL_*)")
		}
		return email.NewGmailClient(ctx, &email.GmailConfig{
			ClientID:       cfg.Gmail.ClientID,
			ClientSecret:   cfg.Gmail.ClientSecret,
			RefreshToken:   cfg.Gmail.RefreshToken,
			UserEmail:      cfg.Gmail.UserEmail,
			RequestTimeout: cfg.RequestTimeout,
			Logger:         logger,
		})
	case provider == "":
		return nil, fmt.Errorf("choose a mail source with --eml-dir or --provider")
	}
	return nil, fmt.Errorf("unknown provider %q (valid: outlook, gmail)", provider)
}

// outlookTokenSource refreshes the configured token when an application
// registration is available, otherwise uses the access token as is.
func outlookTokenSource(ctx context.Context, creds cliapi.OutlookCredentials) oauth2.TokenSource {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
	}
	if creds.ClientID == "" || creds.RefreshToken == "" {
		return oauth2.StaticTokenSource(token)
	}

	tenant := creds.Tenant
	if tenant == "" {
		tenant = "common"
	}
	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Scopes:       email.OutlookScopes,
		Endpoint:     microsoft.AzureADEndpoint(tenant),
	}
	return conf.TokenSource(ctx, token)
}

// writeOutputFile picks the export format from the file extension
func writeOutputFile(path string, records []extraction.Record) error {
	writer, err := export.ForFormat(filepath.Ext(path))
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := writer.Write(f, records); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
