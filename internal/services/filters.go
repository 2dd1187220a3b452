package services

import (
	"errors"
	"fmt"
	"log/slog"

	"inbox2excel/internal/database"
	"inbox2excel/internal/email"
	"inbox2excel/internal/extraction"
	"inbox2excel/internal/quota"
)

// FilterService manages saved filters within plan limits
type FilterService struct {
	filters     *database.FilterStore
	plans       *database.PlanStore
	quotaConfig quota.Config
	defaultPlan string
	logger      *slog.Logger
}

// NewFilterService creates a new filter service
func NewFilterService(db *database.DB, quotaConfig quota.Config, defaultPlan string, logger *slog.Logger) *FilterService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FilterService{
		filters:     db.Filters,
		plans:       db.Plans,
		quotaConfig: quotaConfig,
		defaultPlan: defaultPlan,
		logger:      logger,
	}
}

// List returns the user's saved filters
func (s *FilterService) List(userID string) ([]database.SavedFilter, error) {
	return s.filters.ListByUser(userID)
}

// Get returns one of the user's saved filters
func (s *FilterService) Get(userID string, id int) (*database.SavedFilter, error) {
	return s.filters.GetByID(userID, id)
}

// Save creates the filter, or updates it when it carries an ID. New filters
// count against the plan's filter limit; every save is checked against the
// per-filter field limit.
func (s *FilterService) Save(userID string, f *database.SavedFilter) error {
	f.UserID = userID

	if err := validateFilter(f); err != nil {
		return err
	}

	plan, err := s.plan(userID)
	if err != nil {
		return err
	}

	if check := quota.CheckFields(s.quotaConfig, plan, len(f.ExtractionRules)); check.ShouldBlock {
		return ErrFieldLimit
	}

	if f.ID != 0 {
		if err := s.filters.Update(f); err != nil {
			return err
		}
		s.logger.Info("Updated saved filter", "user_id", userID, "filter_id", f.ID)
		return nil
	}

	count, err := s.filters.CountByUser(userID)
	if err != nil {
		return fmt.Errorf("failed to count filters: %w", err)
	}
	if check := quota.CheckFilterSave(s.quotaConfig, plan, count); check.ShouldBlock {
		return ErrFilterLimit
	}

	if err := s.filters.Create(f); err != nil {
		return err
	}
	s.logger.Info("Created saved filter", "user_id", userID, "filter_id", f.ID)
	return nil
}

// Delete removes one of the user's saved filters
func (s *FilterService) Delete(userID string, id int) error {
	if err := s.filters.Delete(userID, id); err != nil {
		return err
	}
	s.logger.Info("Deleted saved filter", "user_id", userID, "filter_id", id)
	return nil
}

func (s *FilterService) plan(userID string) (quota.Plan, error) {
	name, err := s.plans.Get(userID)
	if err != nil {
		return quota.Plan{}, fmt.Errorf("failed to load plan: %w", err)
	}
	if name == "" {
		name = s.defaultPlan
	}
	return quota.PlanOrDefault(name), nil
}

// validateFilter rejects unknown directions, boundaries and unparseable
// dates. Rules with an empty keyword are kept so a draft can be saved.
func validateFilter(f *database.SavedFilter) error {
	for i, rule := range f.ExtractionRules {
		if err := rule.Validate(); err != nil && !errors.Is(err, extraction.ErrEmptyKeyword) {
			return fmt.Errorf("%w: rule %d: %v", ErrInvalidFilter, i+1, err)
		}
	}
	if f.StartDate != "" {
		if _, err := email.ParseStartDate(f.StartDate); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
	}
	if f.EndDate != "" {
		if _, err := email.ParseEndDate(f.EndDate); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
	}
	return nil
}
