package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"budgetbook/internal/core"
)

// SQLiteRepository persists the transaction ledger, the categories and both
// aggregate history tables. Every ledger-mutating method applies the ledger
// change and the matching bucket increments in a single database transaction,
// so the aggregates can never observe a half-applied mutation.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// execer covers *sql.DB and *sql.Tx for statements shared between atomic
// operations and pool-level bulk paths.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const upsertMonthHistorySQL = `
INSERT INTO month_history (user_id, year, month, day, income_cents, expense_cents)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, year, month, day) DO UPDATE SET
    income_cents  = income_cents + excluded.income_cents,
    expense_cents = expense_cents + excluded.expense_cents`

const upsertYearHistorySQL = `
INSERT INTO year_history (user_id, year, month, income_cents, expense_cents)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (user_id, year, month) DO UPDATE SET
    income_cents  = income_cents + excluded.income_cents,
    expense_cents = expense_cents + excluded.expense_cents`

func applyDayDelta(ctx context.Context, ex execer, key core.DayKey, d core.Delta) error {
	_, err := ex.ExecContext(ctx, upsertMonthHistorySQL,
		key.UserID, key.Year, key.Month, key.Day, d.IncomeCents, d.ExpenseCents)
	if err != nil {
		return fmt.Errorf("upsert month history: %w", err)
	}
	return nil
}

func applyMonthDelta(ctx context.Context, ex execer, key core.MonthKey, d core.Delta) error {
	_, err := ex.ExecContext(ctx, upsertYearHistorySQL,
		key.UserID, key.Year, key.Month, d.IncomeCents, d.ExpenseCents)
	if err != nil {
		return fmt.Errorf("upsert year history: %w", err)
	}
	return nil
}

// applyBuckets applies the same delta to both bucket levels for a date.
func applyBuckets(ctx context.Context, ex execer, userID string, date core.Date, d core.Delta) error {
	if d.IsZero() {
		return nil
	}
	if err := applyDayDelta(ctx, ex, core.DayKeyOf(userID, date), d); err != nil {
		return err
	}
	return applyMonthDelta(ctx, ex, core.MonthKeyOf(userID, date), d)
}

// ApplyDayDelta upserts a single month-history bucket on the pool. Bulk
// import uses this outside the insert transaction; failures there are
// per-item and tolerated by the caller.
func (r *SQLiteRepository) ApplyDayDelta(ctx context.Context, key core.DayKey, d core.Delta) error {
	return applyDayDelta(ctx, r.db, key, d)
}

// ApplyMonthDelta upserts a single year-history bucket on the pool.
func (r *SQLiteRepository) ApplyMonthDelta(ctx context.Context, key core.MonthKey, d core.Delta) error {
	return applyMonthDelta(ctx, r.db, key, d)
}

// CreateCategory inserts a category. Duplicate names per user return
// core.ErrCategoryExists.
func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) error {
	if c.Icon == "" {
		c.Icon = core.DefaultCategoryIcon
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO categories (user_id, name, icon) VALUES (?, ?, ?)`,
		c.UserID, c.Name, c.Icon)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrCategoryExists
	}
	return nil
}

// GetCategory looks a category up by name for one user.
func (r *SQLiteRepository) GetCategory(ctx context.Context, userID, name string) (core.Category, error) {
	var c core.Category
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, name, icon FROM categories WHERE user_id = ? AND name = ?`,
		userID, name).Scan(&c.UserID, &c.Name, &c.Icon)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.ErrCategoryNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("select category: %w", err)
	}
	return c, nil
}

// ListCategories returns all categories for a user, sorted by name.
func (r *SQLiteRepository) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, name, icon FROM categories WHERE user_id = ? ORDER BY name ASC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	defer rows.Close()

	var cats []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.UserID, &c.Name, &c.Icon); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// DeleteCategory removes a category by name. Transactions keep their
// denormalized copy of the name and icon.
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, userID, name string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM categories WHERE user_id = ? AND name = ?`, userID, name)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrCategoryNotFound
	}
	return nil
}

// CreateTransaction inserts a ledger row and increments the day and month
// buckets for its date, all in one transaction. The category must already
// exist for the owner; its icon is copied onto the row.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var icon string
	err = tx.QueryRowContext(ctx,
		`SELECT icon FROM categories WHERE user_id = ? AND name = ?`,
		t.UserID, t.Category).Scan(&icon)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrCategoryNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("select category: %w", err)
	}

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.CategoryIcon = icon

	_, err = tx.ExecContext(ctx,
		`INSERT INTO transactions (id, user_id, date, description, amount_cents, type, category, category_icon)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Date.String(), t.Description, t.Amount.Cents, string(t.Type), t.Category, t.CategoryIcon)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	if err := applyBuckets(ctx, tx, t.UserID, t.Date, core.Contribution(t.Type, t.Amount, +1)); err != nil {
		return core.Transaction{}, err
	}

	if err := tx.Commit(); err != nil {
		return core.Transaction{}, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", t.ID,
		"user_id", t.UserID,
		"amount_cents", t.Amount.Cents,
		"type", t.Type,
		"date", t.Date.String())

	return t, nil
}

func scanTransaction(row interface{ Scan(...any) error }) (core.Transaction, error) {
	var (
		t       core.Transaction
		dateStr string
		typStr  string
	)
	err := row.Scan(&t.ID, &t.UserID, &dateStr, &t.Description, &t.Amount.Cents, &typStr, &t.Category, &t.CategoryIcon)
	if err != nil {
		return core.Transaction{}, err
	}
	d, err := core.ParseDate(dateStr)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse stored date %q: %w", dateStr, err)
	}
	t.Date = d
	t.Type = core.TransactionType(typStr)
	return t, nil
}

const selectTransactionCols = `SELECT id, user_id, date, description, amount_cents, type, category, category_icon FROM transactions`

// GetTransaction fetches one transaction scoped to its owner.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRowContext(ctx,
		selectTransactionCols+` WHERE user_id = ? AND id = ?`, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrTransactionNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("select transaction: %w", err)
	}
	return t, nil
}

// UpdateTransaction changes a transaction's amount, date and description and
// keeps both bucket levels consistent, atomically. When only the amount
// changes, the delta lands on the existing date's buckets. When the date
// changes, the old contribution is removed from the old date's buckets and
// the new amount is added to the new date's buckets, so buckets always track
// the transaction's current date.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, userID, id string, amount core.Money, date core.Date, description string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	old, err := scanTransaction(tx.QueryRowContext(ctx,
		selectTransactionCols+` WHERE user_id = ? AND id = ?`, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrTransactionNotFound
	}
	if err != nil {
		return fmt.Errorf("select transaction: %w", err)
	}

	sameDay := old.Date.Year() == date.Year() && old.Date.Month() == date.Month() && old.Date.Day() == date.Day()
	if sameDay {
		delta := core.Contribution(old.Type, core.Money{Cents: amount.Cents - old.Amount.Cents}, +1)
		if err := applyBuckets(ctx, tx, userID, old.Date, delta); err != nil {
			return err
		}
	} else {
		if err := applyBuckets(ctx, tx, userID, old.Date, core.Contribution(old.Type, old.Amount, -1)); err != nil {
			return err
		}
		if err := applyBuckets(ctx, tx, userID, date, core.Contribution(old.Type, amount, +1)); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE transactions SET amount_cents = ?, date = ?, description = ?, updated_at = ? WHERE user_id = ? AND id = ?`,
		amount.Cents, date.String(), description, time.Now().UTC(), userID, id)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Transaction updated",
		"id", id,
		"user_id", userID,
		"amount_cents", amount.Cents,
		"date", date.String(),
		"moved", !sameDay)

	return nil
}

// DeleteTransaction removes a ledger row and decrements its buckets by the
// full amount, atomically.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, userID, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	old, err := scanTransaction(tx.QueryRowContext(ctx,
		selectTransactionCols+` WHERE user_id = ? AND id = ?`, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrTransactionNotFound
	}
	if err != nil {
		return fmt.Errorf("select transaction: %w", err)
	}

	if err := applyBuckets(ctx, tx, userID, old.Date, core.Contribution(old.Type, old.Amount, -1)); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM transactions WHERE user_id = ? AND id = ?`, userID, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Transaction deleted", "id", id, "user_id", userID)
	return nil
}

// BulkDeleteTransactions deletes all of the caller's transactions among ids
// and applies the summed per-bucket decrements, all in one transaction. The
// lookup is owner-scoped; ids belonging to other users are ignored. Zero
// matches is a no-op returning 0. The second return value lists the month
// groups whose buckets were touched.
func (r *SQLiteRepository) BulkDeleteTransactions(ctx context.Context, userID string, ids []string) (int, []core.MonthKey, error) {
	if len(ids) == 0 {
		return 0, nil, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := tx.QueryContext(ctx,
		selectTransactionCols+` WHERE user_id = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, nil, fmt.Errorf("select transactions: %w", err)
	}

	deltas := core.NewDeltaSet()
	count := 0
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			rows.Close()
			return 0, nil, fmt.Errorf("scan transaction: %w", err)
		}
		deltas.AddTransaction(t, -1)
		count++
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, nil, fmt.Errorf("iterate transactions: %w", err)
	}
	rows.Close()

	if count == 0 {
		return 0, nil, nil
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM transactions WHERE user_id = ? AND id IN (`+placeholders+`)`, args...); err != nil {
		return 0, nil, fmt.Errorf("delete transactions: %w", err)
	}

	for key, d := range deltas.Days {
		if err := applyDayDelta(ctx, tx, key, d); err != nil {
			return 0, nil, err
		}
	}
	touched := make([]core.MonthKey, 0, len(deltas.Months))
	for key, d := range deltas.Months {
		if err := applyMonthDelta(ctx, tx, key, d); err != nil {
			return 0, nil, err
		}
		touched = append(touched, key)
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Transactions bulk deleted", "user_id", userID, "count", count)
	return count, touched, nil
}

// InsertImportBatch creates any missing categories and inserts the batch's
// transactions in one transaction. Rows whose id collides with an existing
// row are silently skipped. Returns the number of rows actually inserted.
// Bucket updates are applied separately by the import service.
func (r *SQLiteRepository) InsertImportBatch(ctx context.Context, batch []core.Transaction) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Idempotent category creation with the first-seen icon per name.
	seen := make(map[string]bool, len(batch))
	for _, t := range batch {
		if seen[t.Category] {
			continue
		}
		seen[t.Category] = true
		icon := t.CategoryIcon
		if icon == "" {
			icon = core.DefaultCategoryIcon
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO categories (user_id, name, icon) VALUES (?, ?, ?)`,
			t.UserID, t.Category, icon); err != nil {
			return 0, fmt.Errorf("ensure category %q: %w", t.Category, err)
		}
	}

	inserted := 0
	for _, t := range batch {
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		if t.CategoryIcon == "" {
			t.CategoryIcon = core.DefaultCategoryIcon
		}
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO transactions (id, user_id, date, description, amount_cents, type, category, category_icon)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.UserID, t.Date.String(), t.Description, t.Amount.Cents, string(t.Type), t.Category, t.CategoryIcon)
		if err != nil {
			return 0, fmt.Errorf("insert transaction: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}
