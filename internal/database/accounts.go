package database

import (
	"database/sql"
	"time"
)

// MailAccount is a user's connected mailbox and its OAuth tokens
type MailAccount struct {
	UserID       string     `json:"-"`
	Provider     string     `json:"provider"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"displayName"`
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	TokenType    string     `json:"-"`
	ExpiresAt    *time.Time `json:"expiresAt"`
	Connected    bool       `json:"connected"`
	ConnectedAt  *time.Time `json:"connectedAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// IsConnected reports whether the account can be used to read mail
func (a *MailAccount) IsConnected() bool {
	return a != nil && a.Connected && a.AccessToken != ""
}

// AccountStore handles database operations for mail accounts
type AccountStore struct {
	db *sql.DB
}

// NewAccountStore creates a new account store
func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

// Get returns the user's account or sql.ErrNoRows
func (s *AccountStore) Get(userID string) (*MailAccount, error) {
	query := `SELECT user_id, provider, email, display_name, access_token, refresh_token,
			  token_type, expires_at, connected, connected_at, updated_at
			  FROM mail_accounts WHERE user_id = ?`

	var a MailAccount
	var accessToken, refreshToken, tokenType sql.NullString
	err := s.db.QueryRow(query, userID).Scan(&a.UserID, &a.Provider, &a.Email, &a.DisplayName,
		&accessToken, &refreshToken, &tokenType, &a.ExpiresAt, &a.Connected, &a.ConnectedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	a.AccessToken = accessToken.String
	a.RefreshToken = refreshToken.String
	a.TokenType = tokenType.String
	return &a, nil
}

// Connect stores a freshly authorized account, replacing any previous one
func (s *AccountStore) Connect(a *MailAccount) error {
	now := time.Now().UTC()
	query := `INSERT INTO mail_accounts (user_id, provider, email, display_name, access_token,
			  refresh_token, token_type, expires_at, connected, connected_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, TRUE, ?, CURRENT_TIMESTAMP)
			  ON CONFLICT(user_id) DO UPDATE SET
			  provider = excluded.provider, email = excluded.email,
			  display_name = excluded.display_name, access_token = excluded.access_token,
			  refresh_token = excluded.refresh_token, token_type = excluded.token_type,
			  expires_at = excluded.expires_at, connected = TRUE,
			  connected_at = excluded.connected_at, updated_at = CURRENT_TIMESTAMP`

	_, err := s.db.Exec(query, a.UserID, a.Provider, a.Email, a.DisplayName, a.AccessToken,
		a.RefreshToken, a.TokenType, a.ExpiresAt, now)
	if err != nil {
		return err
	}

	stored, err := s.Get(a.UserID)
	if err != nil {
		return err
	}
	*a = *stored
	return nil
}

// UpdateToken persists refreshed tokens for a connected account
func (s *AccountStore) UpdateToken(userID, accessToken, refreshToken, tokenType string, expiresAt *time.Time) error {
	query := `UPDATE mail_accounts SET access_token = ?, refresh_token = ?, token_type = ?,
			  expires_at = ?, updated_at = CURRENT_TIMESTAMP
			  WHERE user_id = ? AND connected = TRUE`

	result, err := s.db.Exec(query, accessToken, refreshToken, tokenType, expiresAt, userID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Disconnect marks the account disconnected and clears its tokens
func (s *AccountStore) Disconnect(userID string) error {
	query := `UPDATE mail_accounts SET connected = FALSE, access_token = NULL,
			  refresh_token = NULL, token_type = NULL, expires_at = NULL,
			  updated_at = CURRENT_TIMESTAMP
			  WHERE user_id = ?`

	result, err := s.db.Exec(query, userID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
