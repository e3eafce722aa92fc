// Package server exposes the transcript webhook and the dashboard read API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/saypay/service/config"
	"github.com/brojonat/saypay/service/db"
	"github.com/brojonat/saypay/service/engine"
	"github.com/brojonat/saypay/service/events"
	"github.com/brojonat/saypay/service/intent"
	"github.com/brojonat/saypay/service/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Store is the subset of db.Store the HTTP handlers need.
type Store interface {
	FindUserByDeviceID(ctx context.Context, deviceID string) (*db.User, error)
	FindUserByUsername(ctx context.Context, username string) (*db.User, error)
	ListUsernames(ctx context.Context) ([]string, error)
	ListTransactions(ctx context.Context, params db.ListTransactionsParams) ([]*db.Transaction, error)
	ListTrades(ctx context.Context, params db.ListTradesParams) ([]*db.Trade, error)
}

// Server represents the HTTP server for the voice payment service.
type Server struct {
	addr      string
	cfg       *config.Config
	store     Store
	extractor intent.Extractor
	engine    *engine.Engine
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The publisher is optional - if nil, ledger events are not published.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, cfg *config.Config, store Store, extractor intent.Extractor, eng *engine.Engine, publisher events.Publisher, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:      addr,
		cfg:       cfg,
		store:     store,
		extractor: extractor,
		engine:    eng,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// routes builds the request mux. Split out so tests can exercise the full
// routing table without binding a listener.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Every named route reports request counts and latency under its handler
	// label. The middleware is a no-op when metrics are not configured.
	instrument := func(name string, h http.Handler) http.Handler {
		return metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
	}

	// Webhook routes
	mux.Handle("POST /memory", instrument("/memory", handleWebhook(s.store, s.extractor, s.engine, s.publisher, s.metrics, s.logger)))
	mux.Handle("GET /memory", instrument("/memory", handleWebhookLiveness()))

	// Dashboard routes (bearer token)
	auth := bearerTokenMiddleware(s.cfg.DashboardToken)
	mux.Handle("GET /api/v1/transactions", instrument("/api/v1/transactions", auth(handleListTransactions(s.store, s.logger))))
	mux.Handle("GET /api/v1/trades", instrument("/api/v1/trades", auth(handleListTrades(s.store, s.logger))))
	mux.Handle("GET /api/v1/users/{username}", instrument("/api/v1/users/{username}", auth(handleGetUser(s.store, s.logger))))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // webhook requests wait on settlement
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// bearerTokenMiddleware rejects requests whose Authorization header does not
// carry the configured dashboard token.
func bearerTokenMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+token {
				writeError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
