package handlers

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	stateAudience   = "outlook-connect"
	defaultStateTTL = 10 * time.Minute
)

// ErrInvalidState is returned for OAuth state values this server did not issue
var ErrInvalidState = errors.New("invalid oauth state")

// StateSigner issues the OAuth state parameter as a short-lived HS256 token
// naming the user who started the flow, and verifies it on the callback.
type StateSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewStateSigner creates a signer. An empty secret uses a random key, so
// pending flows do not survive a restart.
func NewStateSigner(secret string, ttl time.Duration) (*StateSigner, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate state key: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &StateSigner{key: key, ttl: ttl, now: time.Now}, nil
}

// Sign returns a state value bound to userID
func (s *StateSigner) Sign(userID string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Audience:  jwt.ClaimStrings{stateAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Verify returns the user ID carried by a state issued by Sign
func (s *StateSigner) Verify(state string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(state, &claims, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if !claims.VerifyAudience(stateAudience, true) || claims.Subject == "" {
		return "", ErrInvalidState
	}
	return claims.Subject, nil
}
