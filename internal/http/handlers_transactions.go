package http

import (
	"encoding/json"
	"net/http"

	"budgetbook/internal/auth"
	"budgetbook/internal/core"
	"budgetbook/internal/log"
)

type createTransactionRequest struct {
	Date        string      `json:"date"`
	Description string      `json:"description"`
	Amount      json.Number `json:"amount"`
	Type        string      `json:"type"`
	Category    string      `json:"category"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	date, err := core.ParseDate(req.Date)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid date (want YYYY-MM-DD)")
		return
	}
	cents, err := core.ParseDecimalToCents(req.Amount.String())
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid amount")
		return
	}

	created, err := s.ledger.CreateTransaction(r.Context(), core.Transaction{
		UserID:      userID,
		Date:        date,
		Description: req.Description,
		Amount:      core.Money{Cents: cents},
		Type:        core.TransactionType(req.Type),
		Category:    req.Category,
	})
	if err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}

	s.invalidateProjections(userID)
	respondJSON(w, http.StatusCreated, toTransactionResponse(created))
}

type updateTransactionRequest struct {
	Date        string      `json:"date"`
	Description string      `json:"description"`
	Amount      json.Number `json:"amount"`
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id := r.PathValue("id")

	var req updateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	date, err := core.ParseDate(req.Date)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid date (want YYYY-MM-DD)")
		return
	}
	cents, err := core.ParseDecimalToCents(req.Amount.String())
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid amount")
		return
	}

	if err := s.ledger.UpdateTransaction(r.Context(), userID, id, core.Money{Cents: cents}, date, req.Description); err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}

	s.invalidateProjections(userID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id := r.PathValue("id")

	if err := s.ledger.DeleteTransaction(r.Context(), userID, id); err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}

	s.invalidateProjections(userID)
	w.WriteHeader(http.StatusNoContent)
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

type bulkDeleteResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req bulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		respondJSON(w, http.StatusOK, bulkDeleteResponse{Success: true, Count: 0})
		return
	}

	count, err := s.ledger.BulkDelete(r.Context(), userID, req.IDs)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Bulk delete failed",
			log.FieldUserID, userID, log.FieldError, err)
		respondError(w, statusForError(err), err.Error())
		return
	}

	if count > 0 {
		s.invalidateProjections(userID)
	}
	respondJSON(w, http.StatusOK, bulkDeleteResponse{Success: true, Count: count})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	from, to, err := parseDateRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var txs []core.Transaction
	if category := r.URL.Query().Get("category"); category != "" {
		typ := core.TransactionType(r.URL.Query().Get("type"))
		if err := typ.Validate(); err != nil {
			respondError(w, http.StatusBadRequest, "invalid type (want income or expense)")
			return
		}
		txs, err = s.ledger.ListTransactionsByCategory(r.Context(), userID, category, typ, from, to)
	} else {
		txs, err = s.ledger.ListTransactions(r.Context(), userID, from, to)
	}
	if err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, toTransactionResponses(txs))
}
