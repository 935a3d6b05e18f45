package worker

import (
	"context"
	"path/filepath"
	"testing"

	"budgetbook/internal/amqp"
	"budgetbook/internal/core"
	"budgetbook/internal/storage"
)

func newTestRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seed(t *testing.T, repo *storage.SQLiteRepository) {
	t.Helper()
	ctx := context.Background()
	if err := repo.CreateCategory(ctx, core.Category{UserID: "u1", Name: "Groceries", Icon: "🛒"}); err != nil {
		t.Fatalf("create category: %v", err)
	}
	rows := []core.Transaction{
		{Date: core.NewDate(2024, 3, 5), Amount: core.Money{Cents: 4000}, Type: core.Expense, Category: "Groceries"},
		{Date: core.NewDate(2024, 3, 12), Amount: core.Money{Cents: 6000}, Type: core.Expense, Category: "Groceries"},
	}
	for _, tx := range rows {
		tx.UserID = "u1"
		if _, err := repo.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("create transaction: %v", err)
		}
	}
}

func TestVerifyMonthCleanState(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)

	rec := NewReconciler(repo)
	report, err := rec.VerifyMonth(context.Background(), core.MonthKey{UserID: "u1", Year: 2024, Month: 3})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if report.Repaired != 0 {
		t.Fatalf("clean state should need no repairs, got %d", report.Repaired)
	}
	if report.Checked == 0 {
		t.Fatal("expected buckets to be checked")
	}
}

func TestVerifyMonthRepairsDriftedDayBucket(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()
	key := core.MonthKey{UserID: "u1", Year: 2024, Month: 3}

	// Corrupt one day bucket directly.
	dk := core.DayKey{UserID: "u1", Year: 2024, Month: 3, Day: 5}
	if err := repo.ReplaceDayBucket(ctx, dk, core.Delta{ExpenseCents: 999999}); err != nil {
		t.Fatalf("corrupt bucket: %v", err)
	}

	rec := NewReconciler(repo)
	report, err := rec.VerifyMonth(ctx, key)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if report.Repaired != 1 {
		t.Fatalf("expected 1 repair, got %d", report.Repaired)
	}

	days, _, err := repo.GetStoredMonthBuckets(ctx, key)
	if err != nil {
		t.Fatalf("stored: %v", err)
	}
	if days[dk].ExpenseCents != 4000 {
		t.Fatalf("bucket not repaired: %+v", days[dk])
	}
}

func TestVerifyMonthZeroesStaleBucket(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()
	key := core.MonthKey{UserID: "u1", Year: 2024, Month: 3}

	// A bucket for a day with no ledger rows behind it.
	stale := core.DayKey{UserID: "u1", Year: 2024, Month: 3, Day: 28}
	if err := repo.ReplaceDayBucket(ctx, stale, core.Delta{IncomeCents: 12345}); err != nil {
		t.Fatalf("plant stale bucket: %v", err)
	}

	rec := NewReconciler(repo)
	if _, err := rec.VerifyMonth(ctx, key); err != nil {
		t.Fatalf("verify: %v", err)
	}

	days, _, err := repo.GetStoredMonthBuckets(ctx, key)
	if err != nil {
		t.Fatalf("stored: %v", err)
	}
	if !days[stale].IsZero() {
		t.Fatalf("stale bucket should read zero, got %+v", days[stale])
	}
}

func TestVerifyMonthRepairsMonthBucket(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()
	key := core.MonthKey{UserID: "u1", Year: 2024, Month: 3}

	if err := repo.ReplaceMonthBucket(ctx, key, core.Delta{ExpenseCents: 1}); err != nil {
		t.Fatalf("corrupt month bucket: %v", err)
	}

	rec := NewReconciler(repo)
	report, err := rec.VerifyMonth(ctx, key)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if report.Repaired != 1 {
		t.Fatalf("expected 1 repair, got %d", report.Repaired)
	}

	_, month, err := repo.GetStoredMonthBuckets(ctx, key)
	if err != nil {
		t.Fatalf("stored: %v", err)
	}
	if month.ExpenseCents != 10000 {
		t.Fatalf("month bucket not repaired: %+v", month)
	}
}

func TestHandleChangeMessage(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()

	dk := core.DayKey{UserID: "u1", Year: 2024, Month: 3, Day: 12}
	if err := repo.ReplaceDayBucket(ctx, dk, core.Delta{}); err != nil {
		t.Fatalf("corrupt bucket: %v", err)
	}

	rec := NewReconciler(repo)
	msg := amqp.NewLedgerChangedMessage("u1", 2024, 3, amqp.OpImport)
	if err := rec.HandleChangeMessage(ctx, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	days, _, err := repo.GetStoredMonthBuckets(ctx, core.MonthKey{UserID: "u1", Year: 2024, Month: 3})
	if err != nil {
		t.Fatalf("stored: %v", err)
	}
	if days[dk].ExpenseCents != 6000 {
		t.Fatalf("bucket not repaired via message: %+v", days[dk])
	}
}

func TestSweepCoversAllGroups(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()

	// Second user, second month group.
	if err := repo.CreateCategory(ctx, core.Category{UserID: "u2", Name: "Rent", Icon: "🏠"}); err != nil {
		t.Fatalf("create category: %v", err)
	}
	if _, err := repo.CreateTransaction(ctx, core.Transaction{
		UserID:   "u2",
		Date:     core.NewDate(2024, 6, 1),
		Amount:   core.Money{Cents: 80000},
		Type:     core.Expense,
		Category: "Rent",
	}); err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	if err := repo.ReplaceMonthBucket(ctx, core.MonthKey{UserID: "u2", Year: 2024, Month: 6}, core.Delta{}); err != nil {
		t.Fatalf("corrupt bucket: %v", err)
	}

	rec := NewReconciler(repo)
	report, err := rec.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Repaired != 1 {
		t.Fatalf("expected 1 repair across groups, got %d", report.Repaired)
	}
}
