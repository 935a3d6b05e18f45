// Package worker verifies and repairs the aggregate history tables against
// the transaction ledger.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"budgetbook/internal/amqp"
	"budgetbook/internal/core"
	"budgetbook/internal/metrics"
	"budgetbook/internal/storage"
)

// Reconciler recomputes expected bucket values from the ledger and repairs
// any drifted rows. Drift should not occur while every writer goes through
// the mutation coordinator, but bulk import deliberately tolerates skipped
// bucket upserts; reconciliation closes that gap.
type Reconciler struct {
	storage *storage.SQLiteRepository
}

func NewReconciler(storage *storage.SQLiteRepository) *Reconciler {
	return &Reconciler{storage: storage}
}

// Report summarizes one verification pass.
type Report struct {
	Checked  int
	Repaired int
}

// HandleChangeMessage verifies the month group named by a ledger change
// message.
func (r *Reconciler) HandleChangeMessage(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	key := core.MonthKey{UserID: msg.UserID, Year: msg.Year, Month: msg.Month}
	_, err := r.VerifyMonth(ctx, key)
	return err
}

// VerifyMonth compares the stored buckets of one month group against sums
// recomputed from the ledger and overwrites any bucket that drifted. Stored
// buckets with no ledger rows behind them are reset to zero rather than
// deleted, matching the lazy bucket lifecycle.
func (r *Reconciler) VerifyMonth(ctx context.Context, key core.MonthKey) (Report, error) {
	expected, expectedMonth, err := r.storage.ComputeLedgerMonth(ctx, key)
	if err != nil {
		return Report{}, fmt.Errorf("compute ledger month: %w", err)
	}

	stored, storedMonth, err := r.storage.GetStoredMonthBuckets(ctx, key)
	if err != nil {
		return Report{}, fmt.Errorf("get stored buckets: %w", err)
	}

	var report Report

	for dk, want := range expected {
		report.Checked++
		if stored[dk] == want {
			continue
		}
		if err := r.storage.ReplaceDayBucket(ctx, dk, want); err != nil {
			return report, fmt.Errorf("repair day bucket %v: %w", dk, err)
		}
		report.Repaired++
		slog.WarnContext(ctx, "Repaired drifted day bucket",
			"user_id", dk.UserID, "year", dk.Year, "month", dk.Month, "day", dk.Day,
			"stored_income", stored[dk].IncomeCents, "want_income", want.IncomeCents,
			"stored_expense", stored[dk].ExpenseCents, "want_expense", want.ExpenseCents)
	}

	// Stale buckets whose ledger rows are gone must read zero.
	for dk, got := range stored {
		if _, ok := expected[dk]; ok {
			continue
		}
		report.Checked++
		if got.IsZero() {
			continue
		}
		if err := r.storage.ReplaceDayBucket(ctx, dk, core.Delta{}); err != nil {
			return report, fmt.Errorf("zero stale day bucket %v: %w", dk, err)
		}
		report.Repaired++
		slog.WarnContext(ctx, "Zeroed stale day bucket",
			"user_id", dk.UserID, "year", dk.Year, "month", dk.Month, "day", dk.Day)
	}

	report.Checked++
	if storedMonth != expectedMonth {
		if err := r.storage.ReplaceMonthBucket(ctx, key, expectedMonth); err != nil {
			return report, fmt.Errorf("repair month bucket %v: %w", key, err)
		}
		report.Repaired++
		slog.WarnContext(ctx, "Repaired drifted month bucket",
			"user_id", key.UserID, "year", key.Year, "month", key.Month)
	}

	if report.Repaired > 0 {
		metrics.BucketsRepaired.Add(float64(report.Repaired))
	}
	return report, nil
}

// Sweep verifies every month group known to the history tables. Used as a
// periodic backstop in case change messages are lost.
func (r *Reconciler) Sweep(ctx context.Context) (Report, error) {
	keys, err := r.storage.ListMonthGroups(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list month groups: %w", err)
	}

	var total Report
	for _, key := range keys {
		rep, err := r.VerifyMonth(ctx, key)
		total.Checked += rep.Checked
		total.Repaired += rep.Repaired
		if err != nil {
			return total, fmt.Errorf("verify %s %d-%02d: %w", key.UserID, key.Year, key.Month, err)
		}
	}

	if total.Repaired > 0 {
		slog.InfoContext(ctx, "Reconcile sweep repaired buckets",
			"groups", len(keys), "checked", total.Checked, "repaired", total.Repaired)
	}
	return total, nil
}
