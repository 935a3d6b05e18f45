package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"budgetbook/internal/amqp"
	"budgetbook/internal/auth"
	"budgetbook/internal/config"
	apphttp "budgetbook/internal/http"
	"budgetbook/internal/log"
	"budgetbook/internal/services"
	"budgetbook/internal/spreadsheet"
	"budgetbook/internal/spreadsheet/google"
	"budgetbook/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig())
	log.SetDefault(logger)

	logger.Info("Starting budgetbook", log.FieldOperation, log.OpStartup)

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

	// AMQP is optional: without it mutations still commit, only change
	// events are skipped and reconciliation runs on the worker's sweep.
	var events *amqp.Client
	if cfg.AMQPURL != "" {
		events, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	// Spreadsheet pull source is optional.
	var rows spreadsheet.RowSource
	if cfg.SpreadsheetID != "" {
		sheets, err := google.New(context.Background(), cfg.SpreadsheetID, cfg.SpreadsheetRange)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		rows = sheets
		logger.Info("Google Sheets source initialized", "spreadsheet_id", cfg.SpreadsheetID)
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	ledger := services.NewLedgerService(repo, events)
	importer := services.NewImportService(repo, events)
	importer.SetBatchSizes(cfg.ImportBatchSize, cfg.ImportWaveSize)

	srv := apphttp.NewServer(apphttp.Options{
		Port:     cfg.Port,
		Ledger:   ledger,
		Importer: importer,
		Rows:     rows,
		Verifier: auth.NewVerifier([]byte(cfg.JWTSecret)),
		Logger:   logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String(), log.FieldOperation, log.OpShutdown)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cancel()
	}()

	if err := srv.Start(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()

	if err := ledger.Close(); err != nil {
		logger.Error("Close error", log.FieldError, err)
	}
	logger.Info("Server stopped gracefully")
}
