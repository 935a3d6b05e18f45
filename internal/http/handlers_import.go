package http

import (
	"encoding/json"
	"net/http"

	"budgetbook/internal/auth"
	"budgetbook/internal/log"
	"budgetbook/internal/services"
	"budgetbook/internal/spreadsheet"
)

type importResponse struct {
	Success bool     `json:"success"`
	Count   int      `json:"count"`
	Errors  []string `json:"errors,omitempty"`
}

// handleImport ingests rows in bulk. The request body carries a JSON array
// of raw rows; with ?source=spreadsheet the configured spreadsheet range is
// read instead.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var report services.ImportReport
	if r.URL.Query().Get("source") == "spreadsheet" {
		if s.rows == nil {
			respondError(w, http.StatusServiceUnavailable, "no spreadsheet source configured")
			return
		}
		var err error
		report, err = s.importer.ImportFromSource(r.Context(), userID, s.rows)
		if err != nil {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Spreadsheet import failed",
				log.FieldUserID, userID, log.FieldError, err)
			respondError(w, http.StatusBadGateway, err.Error())
			return
		}
	} else {
		var rows []spreadsheet.Row
		if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body (want JSON array of rows)")
			return
		}
		report = s.importer.Import(r.Context(), userID, rows)
	}

	if report.Processed > 0 {
		s.invalidateProjections(userID)
	}
	respondJSON(w, http.StatusOK, importResponse{
		Success: true,
		Count:   report.Processed,
		Errors:  report.Errors,
	})
}
