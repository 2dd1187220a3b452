package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"inbox2excel/internal/extraction"
)

// DefaultFilterName is assigned to saved filters created without a name.
const DefaultFilterName = "Nouveau Filtre"

// SavedFilter is a reusable search plus its extraction rules
type SavedFilter struct {
	ID              int                         `json:"id"`
	UserID          string                      `json:"-"`
	Name            string                      `json:"name"`
	Subject         string                      `json:"subject"`
	Sender          string                      `json:"sender"`
	StartDate       string                      `json:"startDate"`
	EndDate         string                      `json:"endDate"`
	ExtractionRules []extraction.ExtractionRule `json:"extractionRules"`
	CreatedAt       time.Time                   `json:"createdAt"`
	UpdatedAt       time.Time                   `json:"updatedAt"`
}

// FilterStore handles database operations for saved filters
type FilterStore struct {
	db *sql.DB
}

// NewFilterStore creates a new filter store
func NewFilterStore(db *sql.DB) *FilterStore {
	return &FilterStore{db: db}
}

const filterColumns = `id, user_id, name, subject, sender, start_date, end_date,
			  extraction_rules, created_at, updated_at`

// ListByUser returns a user's filters, most recently updated first
func (s *FilterStore) ListByUser(userID string) ([]SavedFilter, error) {
	query := `SELECT ` + filterColumns + ` FROM saved_filters
			  WHERE user_id = ? ORDER BY updated_at DESC, id DESC`

	rows, err := s.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	filters := []SavedFilter{}
	for rows.Next() {
		f, err := scanFilter(rows)
		if err != nil {
			return nil, err
		}
		filters = append(filters, *f)
	}
	return filters, rows.Err()
}

// GetByID returns one of the user's filters
func (s *FilterStore) GetByID(userID string, id int) (*SavedFilter, error) {
	query := `SELECT ` + filterColumns + ` FROM saved_filters WHERE id = ? AND user_id = ?`
	return scanFilter(s.db.QueryRow(query, id, userID))
}

// CountByUser returns how many filters a user has saved
func (s *FilterStore) CountByUser(userID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM saved_filters WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

// Create inserts a new filter. An empty name becomes DefaultFilterName.
func (s *FilterStore) Create(f *SavedFilter) error {
	if strings.TrimSpace(f.Name) == "" {
		f.Name = DefaultFilterName
	}
	rules, err := encodeRules(f.ExtractionRules)
	if err != nil {
		return err
	}

	query := `INSERT INTO saved_filters (user_id, name, subject, sender, start_date, end_date, extraction_rules)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.Exec(query, f.UserID, f.Name, f.Subject, f.Sender, f.StartDate, f.EndDate, rules)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}

	created, err := s.GetByID(f.UserID, int(id))
	if err != nil {
		return err
	}
	*f = *created
	return nil
}

// Update replaces one of the user's filters. Returns sql.ErrNoRows when the
// filter does not exist or belongs to another user.
func (s *FilterStore) Update(f *SavedFilter) error {
	if strings.TrimSpace(f.Name) == "" {
		f.Name = DefaultFilterName
	}
	rules, err := encodeRules(f.ExtractionRules)
	if err != nil {
		return err
	}

	query := `UPDATE saved_filters SET name = ?, subject = ?, sender = ?, start_date = ?,
			  end_date = ?, extraction_rules = ?, updated_at = CURRENT_TIMESTAMP
			  WHERE id = ? AND user_id = ?`

	result, err := s.db.Exec(query, f.Name, f.Subject, f.Sender, f.StartDate, f.EndDate, rules, f.ID, f.UserID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}

	updated, err := s.GetByID(f.UserID, f.ID)
	if err != nil {
		return err
	}
	*f = *updated
	return nil
}

// Delete removes one of the user's filters
func (s *FilterStore) Delete(userID string, id int) error {
	result, err := s.db.Exec(`DELETE FROM saved_filters WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFilter(row rowScanner) (*SavedFilter, error) {
	var f SavedFilter
	var rules string
	err := row.Scan(&f.ID, &f.UserID, &f.Name, &f.Subject, &f.Sender, &f.StartDate,
		&f.EndDate, &rules, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rules), &f.ExtractionRules); err != nil {
		return nil, fmt.Errorf("failed to decode rules of filter %d: %w", f.ID, err)
	}
	return &f, nil
}

func encodeRules(rules []extraction.ExtractionRule) (string, error) {
	if rules == nil {
		rules = []extraction.ExtractionRule{}
	}
	data, err := json.Marshal(rules)
	if err != nil {
		return "", fmt.Errorf("failed to encode extraction rules: %w", err)
	}
	return string(data), nil
}
