package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"budgetbook/internal/auth"
	"budgetbook/internal/log"
	"budgetbook/internal/services"
	"budgetbook/internal/storage"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	logger := log.New(log.Config{
		Component: "test",
		Handler:   slog.NewTextHandler(io.Discard, nil),
	})

	srv := NewServer(Options{
		Port:     "0",
		Ledger:   services.NewLedgerService(repo, nil),
		Importer: services.NewImportService(repo, nil),
		Verifier: auth.NewVerifier([]byte(testSecret)),
		Logger:   logger,
	})
	t.Cleanup(func() { srv.cacheManager.Stop() })
	return srv
}

func bearerToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + signed
}

func doJSON(t *testing.T, srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.1:1234"
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAPIRejectsMissingToken(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/categories", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/categories", "Bearer garbage", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	token := bearerToken(t, "u1")

	rec := doJSON(t, srv, http.MethodPost, "/api/categories", token,
		map[string]string{"name": "Groceries", "icon": "🛒"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create category status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/transactions", token, map[string]any{
		"date":        "2024-03-15",
		"description": "weekly shop",
		"amount":      45.50,
		"type":        "expense",
		"category":    "Groceries",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[transactionResponse](t, rec)
	if created.ID == "" || created.AmountCents != 4550 || created.CategoryIcon != "🛒" {
		t.Fatalf("created: %+v", created)
	}

	rec = doJSON(t, srv, http.MethodPut, "/api/transactions/"+created.ID, token, map[string]any{
		"date":        "2024-03-16",
		"description": "moved",
		"amount":      "50.00",
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/transactions?from=2024-03-01&to=2024-03-31", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	listed := decode[[]transactionResponse](t, rec)
	if len(listed) != 1 || listed[0].Date != "2024-03-16" || listed[0].AmountCents != 5000 {
		t.Fatalf("listed: %+v", listed)
	}

	rec = doJSON(t, srv, http.MethodDelete, "/api/transactions/"+created.ID, token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodDelete, "/api/transactions/"+created.ID, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("repeat delete status = %d, want 404", rec.Code)
	}
}

func TestCreateTransactionErrors(t *testing.T) {
	srv := newTestServer(t)
	token := bearerToken(t, "u1")

	cases := []struct {
		name string
		body map[string]any
		want int
	}{
		{"unknown category", map[string]any{
			"date": "2024-03-15", "amount": 10, "type": "expense", "category": "Nope",
		}, http.StatusNotFound},
		{"bad date", map[string]any{
			"date": "15/03/2024", "amount": 10, "type": "expense", "category": "X",
		}, http.StatusUnprocessableEntity},
		{"bad amount", map[string]any{
			"date": "2024-03-15", "amount": -1, "type": "expense", "category": "X",
		}, http.StatusUnprocessableEntity},
		{"bad type", map[string]any{
			"date": "2024-03-15", "amount": 10, "type": "loan", "category": "X",
		}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPost, "/api/transactions", token, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestBulkDeleteEndpoint(t *testing.T) {
	srv := newTestServer(t)
	token := bearerToken(t, "u1")

	doJSON(t, srv, http.MethodPost, "/api/categories", token, map[string]string{"name": "Dining"})
	var ids []string
	for i := 0; i < 3; i++ {
		rec := doJSON(t, srv, http.MethodPost, "/api/transactions", token, map[string]any{
			"date": "2024-05-10", "amount": 5, "type": "expense", "category": "Dining",
		})
		ids = append(ids, decode[transactionResponse](t, rec).ID)
	}

	rec := doJSON(t, srv, http.MethodPost, "/api/transactions/bulk-delete", token,
		map[string]any{"ids": append(ids, "missing")})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[bulkDeleteResponse](t, rec)
	if !resp.Success || resp.Count != 3 {
		t.Fatalf("response: %+v", resp)
	}

	// Empty id list is a successful no-op.
	rec = doJSON(t, srv, http.MethodPost, "/api/transactions/bulk-delete", token,
		map[string]any{"ids": []string{}})
	if rec.Code != http.StatusOK || decode[bulkDeleteResponse](t, rec).Count != 0 {
		t.Fatalf("empty ids: status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestImportEndpoint(t *testing.T) {
	srv := newTestServer(t)
	token := bearerToken(t, "u1")

	rows := []map[string]string{
		{"date": "2024-03-15", "amount": "45.50", "category": "Groceries", "type": "expense"},
		{"date": "45000", "amount": "10", "category": "Groceries", "type": "expense"},
		{"date": "bad", "amount": "10", "category": "Groceries", "type": "expense"},
	}
	rec := doJSON(t, srv, http.MethodPost, "/api/transactions/import", token, rows)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[importResponse](t, rec)
	if resp.Count != 2 || len(resp.Errors) != 1 {
		t.Fatalf("response: %+v", resp)
	}

	// No spreadsheet source configured.
	rec = doJSON(t, srv, http.MethodPost, "/api/transactions/import?source=spreadsheet", token, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestBalanceCachingAndInvalidation(t *testing.T) {
	srv := newTestServer(t)
	token := bearerToken(t, "u1")

	doJSON(t, srv, http.MethodPost, "/api/categories", token, map[string]string{"name": "Salary"})
	doJSON(t, srv, http.MethodPost, "/api/transactions", token, map[string]any{
		"date": "2024-03-01", "amount": 2500, "type": "income", "category": "Salary",
	})

	const path = "/api/stats/balance?from=2024-03-01&to=2024-03-31"
	rec := doJSON(t, srv, http.MethodGet, path, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	first := decode[balanceResponse](t, rec)
	if first.IncomeCents != 250000 || first.NetCents != 250000 {
		t.Fatalf("balance: %+v", first)
	}
	if rec.Header().Get("X-Cache") == "hit" {
		t.Fatal("first read must not be a cache hit")
	}

	rec = doJSON(t, srv, http.MethodGet, path, token, nil)
	if rec.Header().Get("X-Cache") != "hit" {
		t.Fatal("second read should be served from cache")
	}

	// A mutation purges the owner's cached projections.
	doJSON(t, srv, http.MethodPost, "/api/transactions", token, map[string]any{
		"date": "2024-03-02", "amount": 100, "type": "income", "category": "Salary",
	})
	rec = doJSON(t, srv, http.MethodGet, path, token, nil)
	if rec.Header().Get("X-Cache") == "hit" {
		t.Fatal("cache should have been invalidated by the mutation")
	}
	if got := decode[balanceResponse](t, rec); got.IncomeCents != 260000 {
		t.Fatalf("balance after mutation: %+v", got)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	srv := newTestServer(t)
	token := bearerToken(t, "u1")

	doJSON(t, srv, http.MethodPost, "/api/categories", token, map[string]string{"name": "Rent"})
	doJSON(t, srv, http.MethodPost, "/api/transactions", token, map[string]any{
		"date": "2024-03-05", "amount": 900, "type": "expense", "category": "Rent",
	})

	rec := doJSON(t, srv, http.MethodGet, "/api/history/periods", token, nil)
	if years := decode[[]int](t, rec); len(years) != 1 || years[0] != 2024 {
		t.Fatalf("periods: %v", years)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/history/data?timeframe=month&year=2024&month=3", token, nil)
	days := decode[[]dayBalanceResponse](t, rec)
	if len(days) != 1 || days[0].Day != 5 || days[0].ExpenseCents != 90000 {
		t.Fatalf("month data: %+v", days)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/history/data?timeframe=year&year=2024", token, nil)
	months := decode[[]monthBalanceResponse](t, rec)
	if len(months) != 1 || months[0].Month != 3 {
		t.Fatalf("year data: %+v", months)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/history/data?timeframe=week&year=2024", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad timeframe status = %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodGet, "/api/history/data?timeframe=month&year=2024&month=13", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad month status = %d", rec.Code)
	}
}

func TestStatsEndpointValidation(t *testing.T) {
	srv := newTestServer(t)
	token := bearerToken(t, "u1")

	rec := doJSON(t, srv, http.MethodGet, "/api/stats/categories?type=expense&from=2024-03-31&to=2024-03-01", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("inverted range status = %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodGet, "/api/stats/categories?type=loan&from=2024-03-01&to=2024-03-31", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad type status = %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodGet, "/api/stats/balance?from=2024-03-01", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing to status = %d", rec.Code)
	}
}

func TestUsersAreIsolated(t *testing.T) {
	srv := newTestServer(t)
	alice := bearerToken(t, "alice")
	bob := bearerToken(t, "bob")

	doJSON(t, srv, http.MethodPost, "/api/categories", alice, map[string]string{"name": "Rent"})
	rec := doJSON(t, srv, http.MethodPost, "/api/transactions", alice, map[string]any{
		"date": "2024-03-05", "amount": 900, "type": "expense", "category": "Rent",
	})
	created := decode[transactionResponse](t, rec)

	// Bob cannot see, update or delete Alice's transaction.
	rec = doJSON(t, srv, http.MethodGet, "/api/transactions?from=2024-03-01&to=2024-03-31", bob, nil)
	if txs := decode[[]transactionResponse](t, rec); len(txs) != 0 {
		t.Fatalf("bob sees alice's rows: %+v", txs)
	}
	rec = doJSON(t, srv, http.MethodDelete, "/api/transactions/"+created.ID, bob, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-user delete status = %d, want 404", rec.Code)
	}
}
