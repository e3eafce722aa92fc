package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/saypay/service/config"
	"github.com/brojonat/saypay/service/custody"
	"github.com/brojonat/saypay/service/db"
	"github.com/brojonat/saypay/service/engine"
	"github.com/brojonat/saypay/service/events"
	"github.com/brojonat/saypay/service/intent"
	"github.com/brojonat/saypay/service/metrics"
	"github.com/brojonat/saypay/service/server"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	store := db.NewStore(dbPool)

	// Initialize metrics collectors
	m := metrics.NewMetrics(nil)

	// Initialize custody provider client
	provider := custody.NewClient(cfg.CustodyAPIURL, cfg.CustodyAPIKey, cfg.CustodyAPISecret, logger,
		custody.WithMetrics(m),
	)
	logger.Info("initialized custody client", "url", cfg.CustodyAPIURL)

	// Initialize intent extractor
	extractor, err := intent.NewOpenAIExtractor(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	if err != nil {
		logger.Error("failed to initialize intent extractor", "error", err)
		os.Exit(1)
	}
	logger.Info("initialized intent extractor", "model", cfg.OpenAIModel)

	// Initialize NATS publisher for ledger events. Publishing is best-effort,
	// so a missing NATS server degrades to logging rather than failing startup.
	var publisher events.Publisher
	if js, err := events.NewPublisher(cfg.NATSURL, m, logger); err != nil {
		logger.Warn("NATS unavailable, ledger events disabled", "url", cfg.NATSURL, "error", err)
	} else {
		publisher = js
		defer js.Close()
	}

	// Initialize execution engine
	eng := engine.New(store, provider, cfg.SettlementTimeout, m, logger)

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, cfg, store, extractor, eng, publisher, m, logger)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
