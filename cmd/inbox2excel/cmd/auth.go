package cmd

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
	"google.golang.org/api/gmail/v1"

	"inbox2excel/internal/email"
)

var (
	authClientID     string
	authClientSecret string
	authTenant       string
	authListenAddr   string
	authTimeout      time.Duration
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Obtain a refresh token for local extraction",
	Long: `Run the OAuth authorization code flow in the browser and print the
tokens to put in cli.yaml or .env. The provider redirects to a local
callback server started by this command.`,
}

var authGmailCmd = &cobra.Command{
	Use:   "gmail",
	Short: "Authorize read-only Gmail access",
	RunE:  runAuthGmail,
}

var authOutlookCmd = &cobra.Command{
	Use:   "outlook",
	Short: "Authorize read access to an Outlook mailbox",
	RunE:  runAuthOutlook,
}

func init() {
	for _, c := range []*cobra.Command{authGmailCmd, authOutlookCmd} {
		c.Flags().StringVar(&authClientID, "client-id", "", "OAuth client ID")
		c.Flags().StringVar(&authClientSecret, "client-secret", "", "OAuth client secret")
		c.Flags().StringVar(&authListenAddr, "listen", "localhost:8090", "address of the local callback server")
		c.Flags().DurationVar(&authTimeout, "timeout", 5*time.Minute, "how long to wait for the browser")
		c.MarkFlagRequired("client-id")
		c.MarkFlagRequired("client-secret")
	}
	authOutlookCmd.Flags().StringVar(&authTenant, "tenant", "common", "Microsoft identity tenant")

	authCmd.AddCommand(authGmailCmd, authOutlookCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthGmail(cmd *cobra.Command, args []string) error {
	conf := &oauth2.Config{
		ClientID:     authClientID,
		ClientSecret: authClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}

	token, err := runAuthFlow(cmd, conf, oauth2.AccessTypeOffline)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\nAdd these to your .env file or export as environment variables:")
	fmt.Fprintf(out, "INBOX2EXCEL_GMAIL_CLIENT_ID=%s\n", authClientID)
	fmt.Fprintf(out, "INBOX2EXCEL_GMAIL_CLIENT_SECRET=%s\n", authClientSecret)
	fmt.Fprintf(out, "INBOX2EXCEL_GMAIL_REFRESH_TOKEN=%s\n", token.RefreshToken)
	return nil
}

func runAuthOutlook(cmd *cobra.Command, args []string) error {
	conf := &oauth2.Config{
		ClientID:     authClientID,
		ClientSecret: authClientSecret,
		Endpoint:     microsoft.AzureADEndpoint(authTenant),
		Scopes:       email.OutlookScopes,
	}

	token, err := runAuthFlow(cmd, conf, oauth2.SetAuthURLParam("prompt", "select_account"))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\nAdd these to your .env file or export as environment variables:")
	fmt.Fprintf(out, "INBOX2EXCEL_OUTLOOK_CLIENT_ID=%s\n", authClientID)
	fmt.Fprintf(out, "INBOX2EXCEL_OUTLOOK_CLIENT_SECRET=%s\n", authClientSecret)
	fmt.Fprintf(out, "INBOX2EXCEL_OUTLOOK_TENANT=%s\n", authTenant)
	fmt.Fprintf(out, "INBOX2EXCEL_OUTLOOK_REFRESH_TOKEN=%s\n", token.RefreshToken)
	return nil
}

func runAuthFlow(cmd *cobra.Command, conf *oauth2.Config, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	out := cmd.OutOrStdout()
	return authorize(ctx, conf, authListenAddr, func(authURL string) {
		fmt.Fprintln(out, "Visit this URL in your browser and authorize the application:")
		fmt.Fprintf(out, "\n%s\n\nWaiting for authorization...\n", authURL)
	}, opts...)
}

// authorize runs the authorization code flow against a loopback callback
// server on addr. visit receives the consent URL.
func authorize(ctx context.Context, conf *oauth2.Config, addr string, visit func(authURL string), opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start callback server: %w", err)
	}

	cfg := *conf
	cfg.RedirectURL = fmt.Sprintf("http://%s/callback", listener.Addr())

	state, err := randomState()
	if err != nil {
		listener.Close()
		return nil, err
	}

	type result struct {
		code string
		err  error
	}
	results := make(chan result, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res result
		switch {
		case q.Get("error") != "":
			res.err = fmt.Errorf("authorization failed: %s %s", q.Get("error"), q.Get("error_description"))
		case q.Get("state") != state:
			res.err = errors.New("authorization failed: state mismatch")
		case q.Get("code") == "":
			res.err = errors.New("authorization failed: no code received")
		default:
			res.code = q.Get("code")
		}

		if res.err != nil {
			http.Error(w, html.EscapeString(res.err.Error()), http.StatusBadRequest)
		} else {
			io.WriteString(w, "<html><body><h1>Authorization successful</h1>"+
				"<p>You can close this window and return to the terminal.</p></body></html>")
		}

		select {
		case results <- res:
		default:
		}
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go server.Serve(listener)
	defer server.Close()

	visit(cfg.AuthCodeURL(state, opts...))

	select {
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		token, err := cfg.Exchange(ctx, res.code)
		if err != nil {
			return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
		}
		return token, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("timed out waiting for authorization: %w", ctx.Err())
	}
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
