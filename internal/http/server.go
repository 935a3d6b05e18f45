// Package http exposes the ledger over a JSON API: transaction mutations,
// bulk import, category management and the read projections backing the
// dashboard views.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"budgetbook/internal/auth"
	"budgetbook/internal/cache"
	"budgetbook/internal/log"
	"budgetbook/internal/services"
	"budgetbook/internal/spreadsheet"
)

const (
	readHeaderTimeout = 5 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 120 * time.Second

	// API rate limit per client IP.
	rateLimit       = 60
	rateLimitWindow = time.Minute

	projectionCacheSize = 512
	projectionCacheTTL  = 5 * time.Minute
)

// Server wires handlers, middleware and the projection cache around the
// ledger and import services.
type Server struct {
	httpServer *http.Server
	ledger     *services.LedgerService
	importer   *services.ImportService
	rows       spreadsheet.RowSource
	verifier   *auth.Verifier
	logger     *log.Logger

	// projections caches encoded read responses per user. Mutations purge
	// every entry for the owner, so a stale projection never outlives the
	// data it summarizes.
	projections  *cache.LRU[[]byte]
	cacheManager *cache.Manager
	limiter      *rateLimiter
}

// Options configures a Server. Rows is optional; without it the spreadsheet
// pull endpoint responds 503.
type Options struct {
	Port     string
	Ledger   *services.LedgerService
	Importer *services.ImportService
	Rows     spreadsheet.RowSource
	Verifier *auth.Verifier
	Logger   *log.Logger
}

func NewServer(opts Options) *Server {
	s := &Server{
		ledger:       opts.Ledger,
		importer:     opts.Importer,
		rows:         opts.Rows,
		verifier:     opts.Verifier,
		logger:       opts.Logger.WithComponent(log.ComponentHTTP),
		projections:  cache.NewLRU[[]byte](projectionCacheSize, projectionCacheTTL),
		cacheManager: cache.NewManager(),
		limiter:      newRateLimiter(rateLimit, rateLimitWindow),
	}
	s.cacheManager.Register(s.projections)
	s.cacheManager.StartCleanup(time.Minute)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%s", opts.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", promhttp.Handler())

	api := http.NewServeMux()

	api.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	api.HandleFunc("GET /api/transactions", s.handleListTransactions)
	api.HandleFunc("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	api.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)
	api.HandleFunc("POST /api/transactions/bulk-delete", s.handleBulkDelete)
	api.HandleFunc("POST /api/transactions/import", s.handleImport)

	api.HandleFunc("GET /api/categories", s.handleListCategories)
	api.HandleFunc("POST /api/categories", s.handleCreateCategory)
	api.HandleFunc("DELETE /api/categories/{name}", s.handleDeleteCategory)

	api.HandleFunc("GET /api/stats/categories", s.handleCategoriesStats)
	api.HandleFunc("GET /api/stats/balance", s.handleBalance)
	api.HandleFunc("GET /api/history/periods", s.handleHistoryPeriods)
	api.HandleFunc("GET /api/history/data", s.handleHistoryData)

	authed := auth.Middleware(s.verifier)(api)
	mux.Handle("/api/", s.limiter.middleware(authed))

	var handler http.Handler = mux
	handler = log.Middleware(s.logger)(handler)
	handler = withRequestLogging(handler)
	handler = withSecurityHeaders(handler)
	handler = withRecovery(handler)
	return handler
}

// Start blocks serving requests until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops cache maintenance.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cacheManager.Stop()
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the full middleware-wrapped handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "storage not ready")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// cacheKey scopes a cached projection to one owner and one exact query.
func cacheKey(userID string, r *http.Request) string {
	return userID + "|" + r.URL.Path + "?" + r.URL.RawQuery
}

// serveCached writes a cached projection if present.
func (s *Server) serveCached(w http.ResponseWriter, key string) bool {
	body, ok := s.projections.Get(key)
	if !ok {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "hit")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
	return true
}

// invalidateProjections drops every cached read for the owner.
func (s *Server) invalidateProjections(userID string) {
	s.projections.PurgePrefix(userID + "|")
}
