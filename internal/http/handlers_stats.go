package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"budgetbook/internal/auth"
	"budgetbook/internal/core"
)

// respondProjection encodes v, stores it in the projection cache under key
// and writes it out.
func (s *Server) respondProjection(w http.ResponseWriter, key string, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "encode response")
		return
	}
	s.projections.Set(key, body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type categoryStatResponse struct {
	Category string `json:"category"`
	Icon     string `json:"icon"`
	Type     string `json:"type"`
	Total    int64  `json:"totalCents"`
}

func (s *Server) handleCategoriesStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	typ := core.TransactionType(r.URL.Query().Get("type"))
	if err := typ.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid type (want income or expense)")
		return
	}
	from, to, err := parseDateRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := cacheKey(userID, r)
	if s.serveCached(w, key) {
		return
	}

	stats, err := s.ledger.CategoriesStats(r.Context(), userID, typ, from, to)
	if err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}

	out := make([]categoryStatResponse, len(stats))
	for i, st := range stats {
		out[i] = categoryStatResponse{
			Category: st.Category,
			Icon:     st.Icon,
			Type:     string(st.Type),
			Total:    st.Total.Cents,
		}
	}
	s.respondProjection(w, key, out)
}

type balanceResponse struct {
	IncomeCents  int64 `json:"incomeCents"`
	ExpenseCents int64 `json:"expenseCents"`
	NetCents     int64 `json:"netCents"`
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
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

	key := cacheKey(userID, r)
	if s.serveCached(w, key) {
		return
	}

	balance, err := s.ledger.Balance(r.Context(), userID, from, to)
	if err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}

	s.respondProjection(w, key, balanceResponse{
		IncomeCents:  balance.Income.Cents,
		ExpenseCents: balance.Expense.Cents,
		NetCents:     balance.Income.Cents - balance.Expense.Cents,
	})
}

func (s *Server) handleHistoryPeriods(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	key := cacheKey(userID, r)
	if s.serveCached(w, key) {
		return
	}

	years, err := s.ledger.HistoryPeriods(r.Context(), userID)
	if err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}
	if years == nil {
		years = []int{}
	}
	s.respondProjection(w, key, years)
}

type dayBalanceResponse struct {
	Day          int   `json:"day"`
	IncomeCents  int64 `json:"incomeCents"`
	ExpenseCents int64 `json:"expenseCents"`
}

type monthBalanceResponse struct {
	Month        int   `json:"month"`
	IncomeCents  int64 `json:"incomeCents"`
	ExpenseCents int64 `json:"expenseCents"`
}

// handleHistoryData serves the aggregate buckets for a charting timeframe:
// per-day totals of one month, or per-month totals of one year.
func (s *Server) handleHistoryData(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	q := r.URL.Query()
	year, err := strconv.Atoi(q.Get("year"))
	if err != nil || year < 1 {
		respondError(w, http.StatusBadRequest, "invalid or missing 'year'")
		return
	}

	key := cacheKey(userID, r)

	switch q.Get("timeframe") {
	case "month":
		month, err := strconv.Atoi(q.Get("month"))
		if err != nil || month < 1 || month > 12 {
			respondError(w, http.StatusBadRequest, "invalid or missing 'month' (want 1-12)")
			return
		}
		if s.serveCached(w, key) {
			return
		}
		days, err := s.ledger.MonthHistory(r.Context(), userID, year, month)
		if err != nil {
			respondError(w, statusForError(err), err.Error())
			return
		}
		out := make([]dayBalanceResponse, len(days))
		for i, d := range days {
			out[i] = dayBalanceResponse{Day: d.Day, IncomeCents: d.Income.Cents, ExpenseCents: d.Expense.Cents}
		}
		s.respondProjection(w, key, out)

	case "year":
		if s.serveCached(w, key) {
			return
		}
		months, err := s.ledger.YearHistory(r.Context(), userID, year)
		if err != nil {
			respondError(w, statusForError(err), err.Error())
			return
		}
		out := make([]monthBalanceResponse, len(months))
		for i, m := range months {
			out[i] = monthBalanceResponse{Month: m.Month, IncomeCents: m.Income.Cents, ExpenseCents: m.Expense.Cents}
		}
		s.respondProjection(w, key, out)

	default:
		respondError(w, http.StatusBadRequest, "invalid 'timeframe' (want month or year)")
	}
}
