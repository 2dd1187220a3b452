package handlers

import (
	"log"
	"net/http"

	"inbox2excel/internal/services"
)

// UsageHandler reports plan limits and monthly consumption
type UsageHandler struct {
	service *services.ExtractionService
}

// NewUsageHandler creates a new usage handler
func NewUsageHandler(service *services.ExtractionService) *UsageHandler {
	return &UsageHandler{service: service}
}

// GetUsage handles GET /api/usage
func (h *UsageHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	usage, err := h.service.Usage(userID)
	if err != nil {
		log.Printf("ERROR: Failed to get usage for user %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "Failed to get usage")
		return
	}

	writeJSON(w, http.StatusOK, usage)
}
