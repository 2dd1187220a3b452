package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"inbox2excel/internal/export"
	"inbox2excel/internal/extraction"
	"inbox2excel/internal/services"
)

// ExportHandler turns extraction results into downloadable files
type ExportHandler struct {
	service *services.ExtractionService
}

// NewExportHandler creates a new export handler
func NewExportHandler(service *services.ExtractionService) *ExportHandler {
	return &ExportHandler{service: service}
}

// ExportRequest is the body of POST /api/export
type ExportRequest struct {
	Results []extraction.Record `json:"results"`
}

// Export handles POST /api/export?format=xlsx|csv|json
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	writer, err := export.ForFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("ERROR: Invalid JSON in Export: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	h.sendFile(w, writer, req.Results)
}

// ExportRun handles GET /api/extractions/{id}/export?format=xlsx|csv|json
func (h *ExportHandler) ExportRun(w http.ResponseWriter, r *http.Request) {
	writer, err := export.ForFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

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
		log.Printf("ERROR: Failed to load run %d for export: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to load extraction")
		return
	}

	h.sendFile(w, writer, run.Records)
}

func (h *ExportHandler) sendFile(w http.ResponseWriter, writer export.Writer, records []extraction.Record) {
	var buf bytes.Buffer
	if err := writer.Write(&buf, records); err != nil {
		log.Printf("ERROR: Failed to render export: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to generate file")
		return
	}

	w.Header().Set("Content-Type", writer.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(writer)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
