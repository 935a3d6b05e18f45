package services

import (
	"context"
	"path/filepath"
	"testing"

	"budgetbook/internal/core"
	"budgetbook/internal/spreadsheet"
	"budgetbook/internal/spreadsheet/memory"
	"budgetbook/internal/storage"
)

func newTestStorage(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestImportIngestsRowsAndBuckets(t *testing.T) {
	repo := newTestStorage(t)
	svc := NewImportService(repo, nil)
	ctx := context.Background()

	rows := []spreadsheet.Row{
		{Date: "2024-03-15", Description: "shop", Amount: "45.50", Category: "Groceries", CategoryIcon: "🛒", Type: "expense"},
		{Date: "2024-03-15", Description: "salary", Amount: "2500", Category: "Salary", Type: "income"},
		// Serial day number for 2023-03-15.
		{Date: "45000", Description: "old", Amount: "10,00", Category: "Groceries", Type: "expense"},
	}

	report := svc.Import(ctx, "u1", rows)
	if len(report.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", report.Errors)
	}
	if report.Processed != 3 {
		t.Fatalf("expected 3 processed, got %d", report.Processed)
	}

	days, month, err := repo.GetStoredMonthBuckets(ctx, core.MonthKey{UserID: "u1", Year: 2024, Month: 3})
	if err != nil {
		t.Fatalf("stored buckets: %v", err)
	}
	day := days[core.DayKey{UserID: "u1", Year: 2024, Month: 3, Day: 15}]
	if day.IncomeCents != 250000 || day.ExpenseCents != 4550 {
		t.Fatalf("day bucket: %+v", day)
	}
	if month.IncomeCents != 250000 || month.ExpenseCents != 4550 {
		t.Fatalf("month bucket: %+v", month)
	}

	// The serial-dated row lands in March 2023.
	_, oldMonth, err := repo.GetStoredMonthBuckets(ctx, core.MonthKey{UserID: "u1", Year: 2023, Month: 3})
	if err != nil {
		t.Fatalf("stored buckets: %v", err)
	}
	if oldMonth.ExpenseCents != 1000 {
		t.Fatalf("serial-dated bucket: %+v", oldMonth)
	}

	// Categories were auto-created, with the default icon where none came in.
	cats, err := repo.ListCategories(ctx, "u1")
	if err != nil {
		t.Fatalf("list categories: %v", err)
	}
	if len(cats) != 2 {
		t.Fatalf("expected 2 categories, got %+v", cats)
	}
	for _, c := range cats {
		if c.Name == "Salary" && c.Icon != core.DefaultCategoryIcon {
			t.Fatalf("expected default icon, got %q", c.Icon)
		}
	}
}

func TestImportSkipsInvalidRows(t *testing.T) {
	repo := newTestStorage(t)
	svc := NewImportService(repo, nil)

	rows := []spreadsheet.Row{
		{Date: "2024-03-15", Amount: "10", Category: "Groceries", Type: "expense"},
		{Date: "not a date", Amount: "10", Category: "Groceries", Type: "expense"},
		{Date: "2024-03-16", Amount: "zero", Category: "Groceries", Type: "expense"},
		{Date: "2024-03-17", Amount: "10", Category: "Groceries", Type: "transfer"},
		{Date: "2024-03-18", Amount: "10", Category: "", Type: "expense"},
	}

	report := svc.Import(context.Background(), "u1", rows)
	if report.Processed != 1 {
		t.Fatalf("expected 1 processed, got %d", report.Processed)
	}
	if len(report.Errors) != 4 {
		t.Fatalf("expected 4 row errors, got %v", report.Errors)
	}
}

func TestImportDropsExactDuplicates(t *testing.T) {
	repo := newTestStorage(t)
	svc := NewImportService(repo, nil)
	ctx := context.Background()

	row := spreadsheet.Row{Date: "2024-03-15", Description: "coffee", Amount: "3.50", Category: "Dining", Type: "expense"}
	similar := row
	similar.Description = "another coffee"

	report := svc.Import(ctx, "u1", []spreadsheet.Row{row, row, row, similar})
	if report.Processed != 2 {
		t.Fatalf("expected duplicates dropped, processed %d", report.Processed)
	}

	_, month, err := repo.GetStoredMonthBuckets(ctx, core.MonthKey{UserID: "u1", Year: 2024, Month: 3})
	if err != nil {
		t.Fatalf("stored buckets: %v", err)
	}
	if month.ExpenseCents != 700 {
		t.Fatalf("expected 700 expense cents, got %d", month.ExpenseCents)
	}
}

func TestImportBatchesLargeInputs(t *testing.T) {
	repo := newTestStorage(t)
	svc := NewImportService(repo, nil)
	svc.SetBatchSizes(10, 3)
	ctx := context.Background()

	var rows []spreadsheet.Row
	for i := 0; i < 25; i++ {
		rows = append(rows, spreadsheet.Row{
			Date:        core.NewDate(2024, 3, i%28+1).String(),
			Description: "bulk row",
			Amount:      "1.00",
			Category:    "Groceries",
			Type:        "expense",
		})
	}

	report := svc.Import(ctx, "u1", rows)
	if report.Processed != 25 {
		t.Fatalf("expected 25 processed across batches, got %d (%v)", report.Processed, report.Errors)
	}

	_, month, err := repo.GetStoredMonthBuckets(ctx, core.MonthKey{UserID: "u1", Year: 2024, Month: 3})
	if err != nil {
		t.Fatalf("stored buckets: %v", err)
	}
	if month.ExpenseCents != 2500 {
		t.Fatalf("expected 2500 expense cents, got %d", month.ExpenseCents)
	}
}

func TestImportFromSource(t *testing.T) {
	repo := newTestStorage(t)
	svc := NewImportService(repo, nil)

	src := memory.New([]spreadsheet.Row{
		{Date: "2024-06-01", Amount: "12.00", Category: "Transport", Type: "expense"},
	})

	report, err := svc.ImportFromSource(context.Background(), "u1", src)
	if err != nil {
		t.Fatalf("import from source: %v", err)
	}
	if report.Processed != 1 {
		t.Fatalf("expected 1 processed, got %d", report.Processed)
	}
}
