package handlers

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"inbox2excel/internal/database"
	"inbox2excel/internal/email"
)

// OutlookHandler connects and disconnects users' Outlook mailboxes
type OutlookHandler struct {
	oauth          *email.OutlookOAuth
	states         *StateSigner
	accounts       *database.AccountStore
	graphURL       string
	dashboardURL   string
	requestTimeout time.Duration
	logger         *slog.Logger
}

// OutlookHandlerConfig holds the dependencies of OutlookHandler
type OutlookHandlerConfig struct {
	// OAuth is nil when no Azure AD application is configured
	OAuth          *email.OutlookOAuth
	States         *StateSigner
	Accounts       *database.AccountStore
	GraphURL       string
	DashboardURL   string
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// NewOutlookHandler creates a new Outlook handler
func NewOutlookHandler(cfg OutlookHandlerConfig) *OutlookHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OutlookHandler{
		oauth:          cfg.OAuth,
		states:         cfg.States,
		accounts:       cfg.Accounts,
		graphURL:       cfg.GraphURL,
		dashboardURL:   cfg.DashboardURL,
		requestTimeout: cfg.RequestTimeout,
		logger:         logger,
	}
}

// OutlookStatus is the reply of GET /api/outlook/status
type OutlookStatus struct {
	Connected bool               `json:"connected"`
	Message   string             `json:"message,omitempty"`
	Data      *OutlookStatusData `json:"data,omitempty"`
}

// OutlookStatusData describes a connected mailbox
type OutlookStatusData struct {
	Email       string     `json:"email"`
	DisplayName string     `json:"displayName"`
	ConnectedAt *time.Time `json:"connectedAt"`
	ExpiresAt   *time.Time `json:"expiresAt"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

// Connect handles GET /api/outlook/connect by redirecting to Microsoft consent
func (h *OutlookHandler) Connect(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil || h.states == nil {
		writeError(w, http.StatusServiceUnavailable, "Outlook is not configured")
		return
	}

	userID := UserIDFromContext(r.Context())
	state, err := h.states.Sign(userID)
	if err != nil {
		h.logger.Error("Failed to sign OAuth state", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusFound)
}

// Callback handles GET /api/outlook/callback. The signed state parameter
// names the user who called Connect.
func (h *OutlookHandler) Callback(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	if authErr := params.Get("error"); authErr != "" {
		h.logger.Warn("Microsoft authorization failed",
			"error", authErr,
			"description", params.Get("error_description"))
		h.redirectToDashboard(w, r, "error")
		return
	}

	code, state := params.Get("code"), params.Get("state")
	if code == "" || state == "" || h.oauth == nil || h.states == nil {
		h.redirectToDashboard(w, r, "invalid")
		return
	}

	userID, err := h.states.Verify(state)
	if err != nil {
		h.logger.Warn("Rejected Outlook callback", "error", err)
		h.redirectToDashboard(w, r, "invalid")
		return
	}

	token, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("Outlook token exchange failed", "user_id", userID, "error", err)
		h.redirectToDashboard(w, r, "failed")
		return
	}

	client, err := email.NewOutlookClient(email.OutlookClientConfig{
		TokenSource:    oauth2.StaticTokenSource(token),
		BaseURL:        h.graphURL,
		RequestTimeout: h.requestTimeout,
		Logger:         h.logger,
	})
	if err != nil {
		h.logger.Error("Failed to create Graph client", "error", err)
		h.redirectToDashboard(w, r, "failed")
		return
	}
	defer client.Close()

	profile, err := client.Profile(r.Context())
	if err != nil {
		h.logger.Error("Failed to read Outlook profile", "user_id", userID, "error", err)
		h.redirectToDashboard(w, r, "failed")
		return
	}

	account := &database.MailAccount{
		UserID:       userID,
		Provider:     string(email.ProviderOutlook),
		Email:        profile.Email(),
		DisplayName:  profile.DisplayName,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		account.ExpiresAt = &expiry
	}

	if err := h.accounts.Connect(account); err != nil {
		h.logger.Error("Failed to store Outlook account", "user_id", userID, "error", err)
		h.redirectToDashboard(w, r, "failed")
		return
	}

	h.logger.Info("Outlook mailbox connected", "user_id", userID, "email", account.Email)
	h.redirectToDashboard(w, r, "connected")
}

// Status handles GET /api/outlook/status
func (h *OutlookHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	account, err := h.accounts.Get(userID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		h.logger.Error("Failed to load Outlook account", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, OutlookStatus{Message: "Internal Server Error"})
		return
	}

	if err != nil || !account.IsConnected() {
		writeJSON(w, http.StatusOK, OutlookStatus{Message: "Outlook account is not connected"})
		return
	}

	displayName := account.DisplayName
	if displayName == "" {
		displayName = "Outlook User"
	}
	connectedAt := account.ConnectedAt
	if connectedAt == nil {
		updated := account.UpdatedAt
		connectedAt = &updated
	}

	writeJSON(w, http.StatusOK, OutlookStatus{
		Connected: true,
		Data: &OutlookStatusData{
			Email:       account.Email,
			DisplayName: displayName,
			ConnectedAt: connectedAt,
			ExpiresAt:   account.ExpiresAt,
		},
	})
}

// Logout handles POST /api/outlook/logout
func (h *OutlookHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	if err := h.accounts.Disconnect(userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, MessageResponse{Message: "No account found to disconnect"})
			return
		}
		h.logger.Error("Failed to disconnect Outlook", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	h.logger.Info("Outlook mailbox disconnected", "user_id", userID)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Outlook disconnected successfully"})
}

func (h *OutlookHandler) redirectToDashboard(w http.ResponseWriter, r *http.Request, outcome string) {
	target, err := url.Parse(h.dashboardURL)
	if err != nil || h.dashboardURL == "" {
		target = &url.URL{Path: "/dashboard"}
	}
	q := target.Query()
	q.Set("outlook", outcome)
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}
