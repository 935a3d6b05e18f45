package http

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"budgetbook/internal/core"
)

// respondJSON writes v as a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// respondError writes a structured JSON error.
func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Success: false, Error: msg})
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, core.ErrTransactionNotFound),
		errors.Is(err, core.ErrCategoryNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrCategoryExists):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidType),
		errors.Is(err, core.ErrEmptyCategory),
		errors.Is(err, core.ErrEmptyUser),
		errors.Is(err, core.ErrDescriptionTooLong):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// parseDateRange extracts the required from/to query parameters.
func parseDateRange(r *http.Request) (core.Date, core.Date, error) {
	from, err := core.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		return core.Date{}, core.Date{}, errors.New("invalid or missing 'from' date (want YYYY-MM-DD)")
	}
	to, err := core.ParseDate(r.URL.Query().Get("to"))
	if err != nil {
		return core.Date{}, core.Date{}, errors.New("invalid or missing 'to' date (want YYYY-MM-DD)")
	}
	if to.Before(from.Time) {
		return core.Date{}, core.Date{}, errors.New("'to' date before 'from' date")
	}
	return from, to, nil
}

// generateRequestID returns a random hex id for request tracing.
func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b)
}

// transactionResponse is the wire shape of a ledger transaction.
type transactionResponse struct {
	ID           string `json:"id"`
	Date         string `json:"date"`
	Description  string `json:"description"`
	AmountCents  int64  `json:"amountCents"`
	Type         string `json:"type"`
	Category     string `json:"category"`
	CategoryIcon string `json:"categoryIcon"`
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:           t.ID,
		Date:         t.Date.String(),
		Description:  t.Description,
		AmountCents:  t.Amount.Cents,
		Type:         string(t.Type),
		Category:     t.Category,
		CategoryIcon: t.CategoryIcon,
	}
}

func toTransactionResponses(ts []core.Transaction) []transactionResponse {
	out := make([]transactionResponse, len(ts))
	for i, t := range ts {
		out[i] = toTransactionResponse(t)
	}
	return out
}
