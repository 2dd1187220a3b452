package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"inbox2excel/internal/extraction"
)

// ExtractionRun is a stored extraction result, kept so it can be exported again
type ExtractionRun struct {
	ID          int                         `json:"id"`
	UserID      string                      `json:"-"`
	Provider    string                      `json:"provider"`
	Query       json.RawMessage             `json:"query"`
	Rules       []extraction.ExtractionRule `json:"rules"`
	RecordCount int                         `json:"recordCount"`
	Records     []extraction.Record         `json:"records,omitempty"`
	CreatedAt   time.Time                   `json:"createdAt"`
}

// RunStore handles database operations for extraction runs
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a new run store
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// Create stores a run and fills in its ID and timestamp
func (s *RunStore) Create(run *ExtractionRun) error {
	rules, err := encodeRules(run.Rules)
	if err != nil {
		return err
	}
	records := run.Records
	if records == nil {
		records = []extraction.Record{}
	}
	recordData, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	query := "{}"
	if len(run.Query) > 0 {
		query = string(run.Query)
	}

	result, err := s.db.Exec(`INSERT INTO extraction_runs (user_id, provider, query, rules, record_count, records)
			  VALUES (?, ?, ?, ?, ?, ?)`,
		run.UserID, run.Provider, query, rules, len(records), string(recordData))
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}

	run.ID = int(id)
	run.RecordCount = len(records)
	return s.db.QueryRow(`SELECT created_at FROM extraction_runs WHERE id = ?`, id).Scan(&run.CreatedAt)
}

// GetByID returns one of the user's runs including its records
func (s *RunStore) GetByID(userID string, id int) (*ExtractionRun, error) {
	var run ExtractionRun
	var query, rules, records string
	err := s.db.QueryRow(`SELECT id, user_id, provider, query, rules, record_count, records, created_at
			  FROM extraction_runs WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&run.ID, &run.UserID, &run.Provider, &query, &rules, &run.RecordCount, &records, &run.CreatedAt)
	if err != nil {
		return nil, err
	}

	run.Query = json.RawMessage(query)
	if err := json.Unmarshal([]byte(rules), &run.Rules); err != nil {
		return nil, fmt.Errorf("failed to decode rules of run %d: %w", id, err)
	}
	if err := json.Unmarshal([]byte(records), &run.Records); err != nil {
		return nil, fmt.Errorf("failed to decode records of run %d: %w", id, err)
	}
	return &run, nil
}

// ListByUser returns the user's most recent runs without their records
func (s *RunStore) ListByUser(userID string, limit int) ([]ExtractionRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`SELECT id, user_id, provider, query, rules, record_count, created_at
			  FROM extraction_runs WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []ExtractionRun{}
	for rows.Next() {
		var run ExtractionRun
		var query, rules string
		if err := rows.Scan(&run.ID, &run.UserID, &run.Provider, &query, &rules, &run.RecordCount, &run.CreatedAt); err != nil {
			return nil, err
		}
		run.Query = json.RawMessage(query)
		if err := json.Unmarshal([]byte(rules), &run.Rules); err != nil {
			return nil, fmt.Errorf("failed to decode rules of run %d: %w", run.ID, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
