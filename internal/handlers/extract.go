package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"inbox2excel/internal/email"
	"inbox2excel/internal/extraction"
	"inbox2excel/internal/quota"
	"inbox2excel/internal/services"
)

// maxRunsListed caps GET /api/extractions
const maxRunsListed = 50

// ExtractHandler handles extraction requests against the connected mailbox
type ExtractHandler struct {
	service    *services.ExtractionService
	maxResults int
}

// NewExtractHandler creates a new extract handler
func NewExtractHandler(service *services.ExtractionService, maxResults int) *ExtractHandler {
	return &ExtractHandler{service: service, maxResults: maxResults}
}

// ExtractRequest is the body of POST /api/outlook/extract
type ExtractRequest struct {
	Subject         string                      `json:"subject"`
	Sender          string                      `json:"sender"`
	StartDate       string                      `json:"startDate"`
	EndDate         string                      `json:"endDate"`
	MaxResults      int                         `json:"maxResults"`
	ExtractionRules []extraction.ExtractionRule `json:"extractionRules"`
}

// ExtractResponse is the reply of POST /api/outlook/extract
type ExtractResponse struct {
	Success bool                      `json:"success"`
	Results []extraction.Record       `json:"results"`
	Summary []extraction.FieldSummary `json:"summary"`
	RunID   int                       `json:"runId,omitempty"`
	Usage   quota.Usage               `json:"usage"`
}

// Query converts the request to a mailbox query
func (req ExtractRequest) Query(maxResults int) (email.Query, error) {
	start, err := email.ParseStartDate(req.StartDate)
	if err != nil {
		return email.Query{}, err
	}
	end, err := email.ParseEndDate(req.EndDate)
	if err != nil {
		return email.Query{}, err
	}

	limit := maxResults
	if req.MaxResults > 0 && (limit <= 0 || req.MaxResults < limit) {
		limit = req.MaxResults
	}

	return email.Query{
		Subject:    req.Subject,
		Sender:     req.Sender,
		StartDate:  start,
		EndDate:    end,
		MaxResults: limit,
	}, nil
}

// Extract handles POST /api/outlook/extract
func (h *ExtractHandler) Extract(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	var req ExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("ERROR: Invalid JSON in Extract: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	query, err := req.Query(h.maxResults)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.Extract(r.Context(), userID, services.ExtractionRequest{
		Query: query,
		Rules: req.ExtractionRules,
	})
	if err != nil {
		status, message := extractionErrorStatus(err)
		if status >= http.StatusInternalServerError {
			log.Printf("ERROR: Extraction failed for user %s: %v", userID, err)
		}
		writeError(w, status, message)
		return
	}

	records := result.Records
	if records == nil {
		records = []extraction.Record{}
	}
	summary := result.Summary
	if summary == nil {
		summary = []extraction.FieldSummary{}
	}

	writeJSON(w, http.StatusOK, ExtractResponse{
		Success: true,
		Results: records,
		Summary: summary,
		RunID:   result.RunID,
		Usage:   result.Usage,
	})
}

// ListRuns handles GET /api/extractions
func (h *ExtractHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	runs, err := h.service.Runs(userID, maxRunsListed)
	if err != nil {
		log.Printf("ERROR: Failed to list runs for user %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "Failed to list extractions")
		return
	}

	writeJSON(w, http.StatusOK, runs)
}

// GetRun handles GET /api/extractions/{id}
func (h *ExtractHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid extraction ID")
		return
	}

	run, err := h.service.Run(UserIDFromContext(r.Context()), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "Extraction not found")
			return
		}
		log.Printf("ERROR: Failed to get run %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to get extraction")
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// extractionErrorStatus maps service errors to HTTP replies
func extractionErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrNoMailbox):
		return http.StatusBadRequest, "Connect Outlook first"
	case errors.Is(err, services.ErrInvalidQuery):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrQuotaExceeded):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, services.ErrMailProvider):
		var graphErr *email.GraphError
		if errors.As(err, &graphErr) && graphErr.Message != "" {
			return http.StatusBadGateway, graphErr.Message
		}
		return http.StatusBadGateway, "Extraction failed"
	default:
		return http.StatusInternalServerError, "Extraction failed"
	}
}
