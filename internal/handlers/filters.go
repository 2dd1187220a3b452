package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"inbox2excel/internal/database"
	"inbox2excel/internal/services"
)

// FilterHandler handles saved filter requests
type FilterHandler struct {
	service *services.FilterService
}

// NewFilterHandler creates a new filter handler
func NewFilterHandler(service *services.FilterService) *FilterHandler {
	return &FilterHandler{service: service}
}

// FiltersResponse is the reply of GET /api/filters
type FiltersResponse struct {
	Filters []database.SavedFilter `json:"filters"`
}

// GetFilters handles GET /api/filters
func (h *FilterHandler) GetFilters(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	filters, err := h.service.List(userID)
	if err != nil {
		log.Printf("ERROR: Failed to list filters for user %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "Failed to get filters")
		return
	}
	if filters == nil {
		filters = []database.SavedFilter{}
	}

	writeJSON(w, http.StatusOK, FiltersResponse{Filters: filters})
}

// SaveFilter handles POST /api/filters. A body with an id updates that
// filter, otherwise a new one is created.
func (h *FilterHandler) SaveFilter(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	var filter database.SavedFilter
	if err := json.NewDecoder(r.Body).Decode(&filter); err != nil {
		log.Printf("ERROR: Invalid JSON in SaveFilter: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	creating := filter.ID == 0
	if err := h.service.Save(userID, &filter); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			writeError(w, http.StatusNotFound, "Filter not found")
		case errors.Is(err, services.ErrQuotaExceeded):
			writeError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, services.ErrInvalidFilter):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("ERROR: Failed to save filter for user %s: %v", userID, err)
			writeError(w, http.StatusInternalServerError, "Failed to save filter")
		}
		return
	}

	status := http.StatusOK
	if creating {
		status = http.StatusCreated
	}
	writeJSON(w, status, filter)
}

// DeleteFilter handles DELETE /api/filters/{id}
func (h *FilterHandler) DeleteFilter(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid filter ID")
		return
	}

	if err := h.service.Delete(UserIDFromContext(r.Context()), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "Filter not found")
			return
		}
		log.Printf("ERROR: Failed to delete filter %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to delete filter")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
