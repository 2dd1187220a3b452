package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"inbox2excel/internal/database"
	"inbox2excel/internal/email"
	"inbox2excel/internal/extraction"
	"inbox2excel/internal/quota"
)

// ExtractionRequest is a mailbox query plus the rules to apply to each match
type ExtractionRequest struct {
	Query email.Query
	Rules []extraction.ExtractionRule
}

// ExtractionResult is the outcome of one extraction call
type ExtractionResult struct {
	Records []extraction.Record      `json:"results"`
	Summary []extraction.FieldSummary `json:"summary"`
	RunID   int                       `json:"runId,omitempty"`
	Usage   quota.Usage               `json:"usage"`
}

// Collect searches the mailbox and runs the rules over every message found
func Collect(ctx context.Context, client email.MailClient, extractor *extraction.Extractor, req ExtractionRequest) ([]extraction.Record, error) {
	if err := req.Query.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}

	messages, err := client.Search(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMailProvider, err)
	}

	return extractor.Extract(email.ToExtractionMessages(messages), req.Rules), nil
}

// ExtractionService runs quota-checked extractions against a user's mailbox
type ExtractionService struct {
	mailboxes   MailboxProvider
	usage       *database.UsageStore
	plans       *database.PlanStore
	runs        *database.RunStore
	extractor   *extraction.Extractor
	quotaConfig quota.Config
	defaultPlan string
	now         func() time.Time
	logger      *slog.Logger
}

// NewExtractionService creates a new extraction service
func NewExtractionService(
	mailboxes MailboxProvider,
	db *database.DB,
	quotaConfig quota.Config,
	defaultPlan string,
	logger *slog.Logger,
) *ExtractionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractionService{
		mailboxes:   mailboxes,
		usage:       db.Usage,
		plans:       db.Plans,
		runs:        db.Runs,
		extractor:   extraction.NewExtractor(logger),
		quotaConfig: quotaConfig,
		defaultPlan: defaultPlan,
		now:         time.Now,
		logger:      logger,
	}
}

// Plan returns the user's subscription plan
func (s *ExtractionService) Plan(userID string) (quota.Plan, error) {
	name, err := s.plans.Get(userID)
	if err != nil {
		return quota.Plan{}, fmt.Errorf("failed to load plan: %w", err)
	}
	if name == "" {
		name = s.defaultPlan
	}
	return quota.PlanOrDefault(name), nil
}

// Usage reports the user's extraction usage for the current month
func (s *ExtractionService) Usage(userID string) (quota.Usage, error) {
	plan, err := s.Plan(userID)
	if err != nil {
		return quota.Usage{}, err
	}
	period := quota.Period(s.now())
	used, err := s.usage.Get(userID, period)
	if err != nil {
		return quota.Usage{}, fmt.Errorf("failed to load usage: %w", err)
	}
	return quota.Summarize(plan, period, used), nil
}

// Extract checks the monthly and per-request field quotas, fetches matching mail, runs the rules, counts the
// call against the monthly allowance and stores the run for later export.
func (s *ExtractionService) Extract(ctx context.Context, userID string, req ExtractionRequest) (*ExtractionResult, error) {
	plan, err := s.Plan(userID)
	if err != nil {
		return nil, err
	}
	period := quota.Period(s.now())
	used, err := s.usage.Get(userID, period)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage: %w", err)
	}

	if check := quota.CheckExtraction(s.quotaConfig, plan, used); check.ShouldBlock {
		s.logger.Info("Extraction blocked by quota",
			"user_id", userID,
			"plan", plan.Name,
			"used", used,
			"limit", check.Limit)
		return nil, ErrExtractionLimit
	}

	if check := quota.CheckFields(s.quotaConfig, plan, len(req.Rules)); check.ShouldBlock {
		s.logger.Info("Extraction blocked by field limit",
			"user_id", userID,
			"plan", plan.Name,
			"fields", len(req.Rules),
			"limit", check.Limit)
		return nil, ErrFieldLimit
	}

	client, provider, err := s.mailboxes.ForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	start := s.now()
	records, err := Collect(ctx, client, s.extractor, req)
	if err != nil {
		return nil, err
	}

	total, err := s.usage.Increment(userID, period, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to record usage: %w", err)
	}

	result := &ExtractionResult{
		Records: records,
		Summary: extraction.Summarize(records),
		Usage:   quota.Summarize(plan, period, total),
	}

	run := &database.ExtractionRun{
		UserID:   userID,
		Provider: string(provider),
		Rules:    req.Rules,
		Records:  records,
	}
	if query, err := json.Marshal(req.Query); err == nil {
		run.Query = query
	}
	if err := s.runs.Create(run); err != nil {
		s.logger.Warn("Failed to store extraction run", "user_id", userID, "error", err)
	} else {
		result.RunID = run.ID
	}

	s.logger.Info("Extraction completed",
		"user_id", userID,
		"provider", provider,
		"emails", len(records),
		"fields", len(req.Rules),
		"run_id", result.RunID,
		"duration", s.now().Sub(start))

	return result, nil
}

// Run returns one of the user's stored extraction runs
func (s *ExtractionService) Run(userID string, id int) (*database.ExtractionRun, error) {
	return s.runs.GetByID(userID, id)
}

// Runs lists the user's most recent extraction runs without their records
func (s *ExtractionService) Runs(userID string, limit int) ([]database.ExtractionRun, error) {
	return s.runs.ListByUser(userID, limit)
}
