package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"budgetbook/internal/amqp"
	"budgetbook/internal/core"
	"budgetbook/internal/metrics"
	"budgetbook/internal/spreadsheet"
	"budgetbook/internal/storage"
)

const (
	// DefaultBatchSize bounds one transactional unit of an import.
	DefaultBatchSize = 500
	// DefaultWaveSize bounds how many bucket upserts run concurrently.
	DefaultWaveSize = 50
)

// ImportReport is the structured outcome of a bulk import. Import is not
// all-or-nothing: a failed batch is recorded here and the remaining batches
// still run.
type ImportReport struct {
	Processed int      `json:"count"`
	Errors    []string `json:"errors,omitempty"`
}

// ImportService ingests raw spreadsheet rows into the ledger in bounded
// batches: normalize, upsert categories, insert rows, then upsert the
// touched aggregate buckets grouped and summed in a single pass.
type ImportService struct {
	storage   *storage.SQLiteRepository
	events    *amqp.Client
	batchSize int
	waveSize  int
}

func NewImportService(storage *storage.SQLiteRepository, events *amqp.Client) *ImportService {
	return &ImportService{
		storage:   storage,
		events:    events,
		batchSize: DefaultBatchSize,
		waveSize:  DefaultWaveSize,
	}
}

// SetBatchSizes overrides the default batch and wave sizes. Values below 1
// keep the current setting.
func (s *ImportService) SetBatchSizes(batchSize, waveSize int) {
	if batchSize >= 1 {
		s.batchSize = batchSize
	}
	if waveSize >= 1 {
		s.waveSize = waveSize
	}
}

// Import normalizes and ingests rows for one owner. Rows that fail
// normalization are skipped and reported; exact duplicates within a batch
// are silently dropped.
func (s *ImportService) Import(ctx context.Context, userID string, rows []spreadsheet.Row) ImportReport {
	var report ImportReport

	normalized := make([]core.Transaction, 0, len(rows))
	for i, row := range rows {
		t, err := row.Normalize(userID)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		normalized = append(normalized, t)
	}

	for start := 0; start < len(normalized); start += s.batchSize {
		end := start + s.batchSize
		if end > len(normalized) {
			end = len(normalized)
		}
		batch := dedupeBatch(normalized[start:end])

		inserted, err := s.storage.InsertImportBatch(ctx, batch)
		if err != nil {
			slog.ErrorContext(ctx, "Import batch failed",
				"user_id", userID,
				"batch_start", start,
				"rows", len(batch),
				"error", err)
			metrics.ImportBatchErrors.Inc()
			report.Errors = append(report.Errors, fmt.Sprintf("batch %d: %v", start, err))
			continue
		}
		report.Processed += inserted
		metrics.ImportRows.Add(float64(inserted))

		deltas := core.NewDeltaSet()
		for _, t := range batch {
			deltas.AddTransaction(t, +1)
		}
		s.applyDeltas(ctx, deltas, &report)

		for key := range deltas.Months {
			s.publishChange(ctx, key)
		}
	}

	slog.InfoContext(ctx, "Import finished",
		"user_id", userID,
		"rows", len(rows),
		"processed", report.Processed,
		"errors", len(report.Errors))

	return report
}

// ImportFromSource drains a row source (e.g. a Google spreadsheet range)
// and imports everything it yields.
func (s *ImportService) ImportFromSource(ctx context.Context, userID string, src spreadsheet.RowSource) (ImportReport, error) {
	rows, err := src.ReadRows(ctx)
	if err != nil {
		return ImportReport{}, fmt.Errorf("read rows: %w", err)
	}
	return s.Import(ctx, userID, rows), nil
}

// applyDeltas upserts every touched bucket once, in concurrent waves.
// Per-bucket failures are logged, counted and skipped; the batch's rows are
// already committed and the reconcile worker repairs any gap.
func (s *ImportService) applyDeltas(ctx context.Context, deltas *core.DeltaSet, report *ImportReport) {
	var (
		mu     sync.Mutex
		failed int
	)
	record := func(err error) {
		slog.ErrorContext(ctx, "Failed to upsert history bucket", "error", err)
		metrics.BucketUpsertErrors.Inc()
		mu.Lock()
		failed++
		mu.Unlock()
	}

	dayKeys := make([]core.DayKey, 0, len(deltas.Days))
	for key := range deltas.Days {
		dayKeys = append(dayKeys, key)
	}
	for start := 0; start < len(dayKeys); start += s.waveSize {
		end := start + s.waveSize
		if end > len(dayKeys) {
			end = len(dayKeys)
		}
		var g errgroup.Group
		for _, key := range dayKeys[start:end] {
			key := key
			g.Go(func() error {
				if err := s.storage.ApplyDayDelta(ctx, key, deltas.Days[key]); err != nil {
					record(err)
				}
				return nil
			})
		}
		g.Wait()
	}

	monthKeys := make([]core.MonthKey, 0, len(deltas.Months))
	for key := range deltas.Months {
		monthKeys = append(monthKeys, key)
	}
	for start := 0; start < len(monthKeys); start += s.waveSize {
		end := start + s.waveSize
		if end > len(monthKeys) {
			end = len(monthKeys)
		}
		var g errgroup.Group
		for _, key := range monthKeys[start:end] {
			key := key
			g.Go(func() error {
				if err := s.storage.ApplyMonthDelta(ctx, key, deltas.Months[key]); err != nil {
					record(err)
				}
				return nil
			})
		}
		g.Wait()
	}

	if failed > 0 {
		report.Errors = append(report.Errors,
			fmt.Sprintf("%d history bucket updates failed and were skipped", failed))
	}
}

func (s *ImportService) publishChange(ctx context.Context, key core.MonthKey) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishLedgerChanged(ctx, key.UserID, key.Year, key.Month, amqp.OpImport); err != nil {
		slog.ErrorContext(ctx, "Failed to publish import change message",
			"user_id", key.UserID,
			"year", key.Year,
			"month", key.Month,
			"error", err)
		// Don't fail the import - the rows are committed
	}
}

// dedupeBatch drops rows that are exact duplicates of an earlier row in the
// same batch, keyed by the natural row content.
func dedupeBatch(batch []core.Transaction) []core.Transaction {
	seen := make(map[string]bool, len(batch))
	out := make([]core.Transaction, 0, len(batch))
	for _, t := range batch {
		key := fmt.Sprintf("%s|%s|%d|%s|%s", t.Date.String(), t.Description, t.Amount.Cents, t.Type, t.Category)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}
