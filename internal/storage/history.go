package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"budgetbook/internal/core"
)

// Read projections over the ledger and the history tables. These are pure
// reads; nothing here mutates state except the Replace* helpers used by the
// reconcile worker to repair drifted buckets.

// GetMonthHistory returns per-day totals for one month, ascending by day.
// Days without a bucket are absent.
func (r *SQLiteRepository) GetMonthHistory(ctx context.Context, userID string, year, month int) ([]core.DayBalance, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT day, income_cents, expense_cents FROM month_history
		 WHERE user_id = ? AND year = ? AND month = ? ORDER BY day ASC`,
		userID, year, month)
	if err != nil {
		return nil, fmt.Errorf("select month history: %w", err)
	}
	defer rows.Close()

	var out []core.DayBalance
	for rows.Next() {
		var d core.DayBalance
		if err := rows.Scan(&d.Day, &d.Income.Cents, &d.Expense.Cents); err != nil {
			return nil, fmt.Errorf("scan month history: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetYearHistory returns per-month totals for one year, ascending by month.
func (r *SQLiteRepository) GetYearHistory(ctx context.Context, userID string, year int) ([]core.MonthBalance, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT month, income_cents, expense_cents FROM year_history
		 WHERE user_id = ? AND year = ? ORDER BY month ASC`,
		userID, year)
	if err != nil {
		return nil, fmt.Errorf("select year history: %w", err)
	}
	defer rows.Close()

	var out []core.MonthBalance
	for rows.Next() {
		var m core.MonthBalance
		if err := rows.Scan(&m.Month, &m.Income.Cents, &m.Expense.Cents); err != nil {
			return nil, fmt.Errorf("scan year history: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetHistoryPeriods returns the distinct years the user has history for,
// ascending.
func (r *SQLiteRepository) GetHistoryPeriods(ctx context.Context, userID string) ([]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT year FROM month_history WHERE user_id = ? ORDER BY year ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("select history periods: %w", err)
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, fmt.Errorf("scan year: %w", err)
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

// GetCategoriesStats returns per-category sums for one transaction type
// between two dates inclusive, descending by total.
func (r *SQLiteRepository) GetCategoriesStats(ctx context.Context, userID string, typ core.TransactionType, from, to core.Date) ([]core.CategoryStat, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT category, category_icon, SUM(amount_cents) AS total
		 FROM transactions
		 WHERE user_id = ? AND type = ? AND date >= ? AND date <= ?
		 GROUP BY category, category_icon
		 ORDER BY total DESC`,
		userID, string(typ), from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("select category stats: %w", err)
	}
	defer rows.Close()

	var stats []core.CategoryStat
	for rows.Next() {
		s := core.CategoryStat{Type: typ}
		if err := rows.Scan(&s.Category, &s.Icon, &s.Total.Cents); err != nil {
			return nil, fmt.Errorf("scan category stat: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// GetBalance returns total income and expense cents between two dates inclusive.
func (r *SQLiteRepository) GetBalance(ctx context.Context, userID string, from, to core.Date) (core.Balance, error) {
	var b core.Balance
	err := r.db.QueryRowContext(ctx,
		`SELECT
		   COALESCE(SUM(CASE WHEN type = 'income' THEN amount_cents ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN type = 'expense' THEN amount_cents ELSE 0 END), 0)
		 FROM transactions
		 WHERE user_id = ? AND date >= ? AND date <= ?`,
		userID, from.String(), to.String()).Scan(&b.Income.Cents, &b.Expense.Cents)
	if err != nil {
		return core.Balance{}, fmt.Errorf("select balance: %w", err)
	}
	return b, nil
}

// ListTransactions returns the user's transactions between two dates
// inclusive, ascending by date.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string, from, to core.Date) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		selectTransactionCols+` WHERE user_id = ? AND date >= ? AND date <= ? ORDER BY date ASC, id ASC`,
		userID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListTransactionsByCategory narrows ListTransactions to one category and type.
func (r *SQLiteRepository) ListTransactionsByCategory(ctx context.Context, userID, category string, typ core.TransactionType, from, to core.Date) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		selectTransactionCols+` WHERE user_id = ? AND category = ? AND type = ? AND date >= ? AND date <= ?
		 ORDER BY date ASC, id ASC`,
		userID, category, string(typ), from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("select transactions by category: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListMonthGroups returns every (user, year, month) group present in
// month_history. The reconcile worker sweeps these.
func (r *SQLiteRepository) ListMonthGroups(ctx context.Context) ([]core.MonthKey, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT user_id, year, month FROM month_history ORDER BY user_id, year, month`)
	if err != nil {
		return nil, fmt.Errorf("select month groups: %w", err)
	}
	defer rows.Close()

	var keys []core.MonthKey
	for rows.Next() {
		var k core.MonthKey
		if err := rows.Scan(&k.UserID, &k.Year, &k.Month); err != nil {
			return nil, fmt.Errorf("scan month group: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ComputeLedgerMonth recomputes the expected bucket values for one month
// directly from the ledger, bypassing the history tables.
func (r *SQLiteRepository) ComputeLedgerMonth(ctx context.Context, key core.MonthKey) (map[core.DayKey]core.Delta, core.Delta, error) {
	first := core.NewDate(key.Year, key.Month, 1)
	last := core.Date{Time: first.AddDate(0, 1, -1)}

	rows, err := r.db.QueryContext(ctx,
		`SELECT date, type, SUM(amount_cents) FROM transactions
		 WHERE user_id = ? AND date >= ? AND date <= ?
		 GROUP BY date, type`,
		key.UserID, first.String(), last.String())
	if err != nil {
		return nil, core.Delta{}, fmt.Errorf("sum ledger month: %w", err)
	}
	defer rows.Close()

	days := make(map[core.DayKey]core.Delta)
	var monthTotal core.Delta
	for rows.Next() {
		var (
			dateStr string
			typStr  string
			cents   int64
		)
		if err := rows.Scan(&dateStr, &typStr, &cents); err != nil {
			return nil, core.Delta{}, fmt.Errorf("scan ledger sum: %w", err)
		}
		d, err := core.ParseDate(dateStr)
		if err != nil {
			return nil, core.Delta{}, fmt.Errorf("parse stored date %q: %w", dateStr, err)
		}
		dk := core.DayKeyOf(key.UserID, d)
		delta := days[dk]
		switch core.TransactionType(typStr) {
		case core.Income:
			delta.IncomeCents += cents
			monthTotal.IncomeCents += cents
		case core.Expense:
			delta.ExpenseCents += cents
			monthTotal.ExpenseCents += cents
		}
		days[dk] = delta
	}
	return days, monthTotal, rows.Err()
}

// GetStoredMonthBuckets returns the stored day buckets and the stored year
// bucket for one month group.
func (r *SQLiteRepository) GetStoredMonthBuckets(ctx context.Context, key core.MonthKey) (map[core.DayKey]core.Delta, core.Delta, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT day, income_cents, expense_cents FROM month_history
		 WHERE user_id = ? AND year = ? AND month = ?`,
		key.UserID, key.Year, key.Month)
	if err != nil {
		return nil, core.Delta{}, fmt.Errorf("select month buckets: %w", err)
	}
	defer rows.Close()

	days := make(map[core.DayKey]core.Delta)
	for rows.Next() {
		var (
			day int
			d   core.Delta
		)
		if err := rows.Scan(&day, &d.IncomeCents, &d.ExpenseCents); err != nil {
			return nil, core.Delta{}, fmt.Errorf("scan month bucket: %w", err)
		}
		days[core.DayKey{UserID: key.UserID, Year: key.Year, Month: key.Month, Day: day}] = d
	}
	if err := rows.Err(); err != nil {
		return nil, core.Delta{}, err
	}

	var year core.Delta
	err = r.db.QueryRowContext(ctx,
		`SELECT income_cents, expense_cents FROM year_history
		 WHERE user_id = ? AND year = ? AND month = ?`,
		key.UserID, key.Year, key.Month).Scan(&year.IncomeCents, &year.ExpenseCents)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, core.Delta{}, fmt.Errorf("select year bucket: %w", err)
	}
	return days, year, nil
}

// ReplaceDayBucket overwrites a day bucket with absolute values.
func (r *SQLiteRepository) ReplaceDayBucket(ctx context.Context, key core.DayKey, d core.Delta) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO month_history (user_id, year, month, day, income_cents, expense_cents)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, year, month, day) DO UPDATE SET
		     income_cents = excluded.income_cents,
		     expense_cents = excluded.expense_cents`,
		key.UserID, key.Year, key.Month, key.Day, d.IncomeCents, d.ExpenseCents)
	if err != nil {
		return fmt.Errorf("replace day bucket: %w", err)
	}
	return nil
}

// ReplaceMonthBucket overwrites a year-history bucket with absolute values.
func (r *SQLiteRepository) ReplaceMonthBucket(ctx context.Context, key core.MonthKey, d core.Delta) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO year_history (user_id, year, month, income_cents, expense_cents)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, year, month) DO UPDATE SET
		     income_cents = excluded.income_cents,
		     expense_cents = excluded.expense_cents`,
		key.UserID, key.Year, key.Month, d.IncomeCents, d.ExpenseCents)
	if err != nil {
		return fmt.Errorf("replace month bucket: %w", err)
	}
	return nil
}
