package database

import (
	"database/sql"
	"errors"
)

// UsageStore counts extractions per user and billing period
type UsageStore struct {
	db *sql.DB
}

// NewUsageStore creates a new usage store
func NewUsageStore(db *sql.DB) *UsageStore {
	return &UsageStore{db: db}
}

// Get returns the number of extractions recorded for the period
func (s *UsageStore) Get(userID, period string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT extractions FROM usage_counters WHERE user_id = ? AND period = ?`,
		userID, period).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// Increment adds delta to the period counter and returns the new total
func (s *UsageStore) Increment(userID, period string, delta int) (int, error) {
	query := `INSERT INTO usage_counters (user_id, period, extractions) VALUES (?, ?, ?)
			  ON CONFLICT(user_id, period) DO UPDATE SET
			  extractions = extractions + excluded.extractions, updated_at = CURRENT_TIMESTAMP`

	if _, err := s.db.Exec(query, userID, period, delta); err != nil {
		return 0, err
	}
	return s.Get(userID, period)
}

// PlanStore records which subscription plan a user is on
type PlanStore struct {
	db *sql.DB
}

// NewPlanStore creates a new plan store
func NewPlanStore(db *sql.DB) *PlanStore {
	return &PlanStore{db: db}
}

// Get returns the user's plan name, or "" when none is recorded
func (s *PlanStore) Get(userID string) (string, error) {
	var plan string
	err := s.db.QueryRow(`SELECT plan FROM user_plans WHERE user_id = ?`, userID).Scan(&plan)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return plan, err
}

// Set assigns a plan to the user
func (s *PlanStore) Set(userID, plan string) error {
	query := `INSERT INTO user_plans (user_id, plan) VALUES (?, ?)
			  ON CONFLICT(user_id) DO UPDATE SET plan = excluded.plan, updated_at = CURRENT_TIMESTAMP`
	_, err := s.db.Exec(query, userID, plan)
	return err
}
