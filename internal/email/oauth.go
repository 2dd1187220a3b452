package email

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// OutlookScopes are the delegated Graph permissions requested on connect.
var OutlookScopes = []string{"offline_access", "Mail.Read", "User.Read"}

// OutlookOAuthConfig holds the Azure AD application registration.
type OutlookOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Tenant defaults to "common"
	Tenant string
}

// OutlookOAuth drives the authorization code flow against Microsoft identity.
type OutlookOAuth struct {
	config *oauth2.Config
}

// NewOutlookOAuth creates the OAuth helper.
func NewOutlookOAuth(cfg OutlookOAuthConfig) (*OutlookOAuth, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("outlook OAuth requires client ID and client secret")
	}
	if cfg.RedirectURL == "" {
		return nil, fmt.Errorf("outlook OAuth requires a redirect URL")
	}
	tenant := cfg.Tenant
	if tenant == "" {
		tenant = "common"
	}

	return &OutlookOAuth{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       OutlookScopes,
			Endpoint:     microsoft.AzureADEndpoint(tenant),
		},
	}, nil
}

// AuthCodeURL returns the consent URL. Microsoft echoes state back to the callback.
func (o *OutlookOAuth) AuthCodeURL(state string) string {
	return o.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("response_mode", "query"),
		oauth2.SetAuthURLParam("prompt", "select_account"))
}

// Exchange trades an authorization code for tokens.
func (o *OutlookOAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := o.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return token, nil
}

// TokenSource returns a source that refreshes the given token when it expires.
func (o *OutlookOAuth) TokenSource(ctx context.Context, token *oauth2.Token) oauth2.TokenSource {
	return o.config.TokenSource(ctx, token)
}

// Config exposes the underlying oauth2 configuration.
func (o *OutlookOAuth) Config() *oauth2.Config {
	return o.config
}
