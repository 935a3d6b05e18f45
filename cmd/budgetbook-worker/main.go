package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"budgetbook/internal/amqp"
	"budgetbook/internal/config"
	"budgetbook/internal/log"
	"budgetbook/internal/storage"
	"budgetbook/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig()).WithComponent(log.ComponentWorker)
	log.SetDefault(logger)

	logger.Info("Starting budgetbook-worker", log.FieldOperation, log.OpStartup)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	reconciler := worker.NewReconciler(repo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Full sweep at startup catches drift accumulated while the worker was
	// down or while running without a broker.
	if report, err := reconciler.Sweep(ctx); err != nil {
		logger.Error("Startup sweep failed", log.FieldError, err)
		// Don't exit - continue with normal operation
	} else {
		logger.Info("Startup sweep complete", "checked", report.Checked, "repaired", report.Repaired)
	}

	// Change messages give prompt repairs; the periodic sweep is the
	// backstop when the broker is absent or messages are lost.
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()

		go func() {
			if err := amqpClient.ConsumeLedgerChanges(ctx, reconciler.HandleChangeMessage); err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.Error("Message consumption failed", log.FieldError, err)
				}
				cancel()
			}
		}()
	} else {
		logger.Info("AMQP disabled - relying on periodic sweep only")
	}

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if report, err := reconciler.Sweep(ctx); err != nil {
					logger.Error("Periodic sweep failed", log.FieldError, err)
				} else if report.Repaired > 0 {
					logger.Warn("Periodic sweep repaired buckets",
						"checked", report.Checked, "repaired", report.Repaired)
				}
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String(), log.FieldOperation, log.OpShutdown)
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	cancel()
	logger.Info("Worker shutdown complete")
}
