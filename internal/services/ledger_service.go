package services

import (
	"context"
	"fmt"
	"log/slog"

	"budgetbook/internal/amqp"
	"budgetbook/internal/core"
	"budgetbook/internal/metrics"
	"budgetbook/internal/storage"
)

// LedgerService is the mutation coordinator for single-record operations:
// it validates input, delegates the atomic ledger+bucket write to storage,
// and announces the change. Bulk import lives in ImportService.
type LedgerService struct {
	storage *storage.SQLiteRepository
	events  *amqp.Client
}

func NewLedgerService(storage *storage.SQLiteRepository, events *amqp.Client) *LedgerService {
	return &LedgerService{
		storage: storage,
		events:  events,
	}
}

// CreateTransaction records a new transaction. The category must exist for
// the owner; its icon is snapshotted onto the row.
func (s *LedgerService) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	created, err := s.storage.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	metrics.TransactionsCreated.Inc()
	s.publishChange(ctx, created.UserID, created.Date, amqp.OpCreate)
	return created, nil
}

// UpdateTransaction changes amount, date and description of an owned
// transaction. Bucket contributions follow the transaction to its new date.
func (s *LedgerService) UpdateTransaction(ctx context.Context, userID, id string, amount core.Money, date core.Date, description string) error {
	if err := amount.Validate(); err != nil {
		return err
	}
	if err := date.Validate(); err != nil {
		return err
	}

	// Fetch first so a date move can invalidate both affected months.
	old, err := s.storage.GetTransaction(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := s.storage.UpdateTransaction(ctx, userID, id, amount, date, description); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}

	metrics.TransactionsUpdated.Inc()
	s.publishChange(ctx, userID, old.Date, amqp.OpUpdate)
	if old.Date.Year() != date.Year() || old.Date.Month() != date.Month() {
		s.publishChange(ctx, userID, date, amqp.OpUpdate)
	}
	return nil
}

// DeleteTransaction removes an owned transaction and its bucket contribution.
func (s *LedgerService) DeleteTransaction(ctx context.Context, userID, id string) error {
	old, err := s.storage.GetTransaction(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := s.storage.DeleteTransaction(ctx, userID, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	metrics.TransactionsDeleted.Inc()
	s.publishChange(ctx, userID, old.Date, amqp.OpDelete)
	return nil
}

// BulkDelete removes all of the caller's transactions among ids and returns
// how many were deleted. Zero matches is a successful no-op.
func (s *LedgerService) BulkDelete(ctx context.Context, userID string, ids []string) (int, error) {
	count, touched, err := s.storage.BulkDeleteTransactions(ctx, userID, ids)
	if err != nil {
		return 0, fmt.Errorf("bulk delete transactions: %w", err)
	}

	if count > 0 {
		metrics.TransactionsDeleted.Add(float64(count))
		for _, key := range touched {
			s.publishChange(ctx, userID, core.NewDate(key.Year, key.Month, 1), amqp.OpBulkDelete)
		}
	}
	return count, nil
}

// publishChange announces a mutation for one month group, best-effort.
func (s *LedgerService) publishChange(ctx context.Context, userID string, date core.Date, op string) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishLedgerChanged(ctx, userID, date.Year(), date.Month(), op); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger change message",
			"user_id", userID,
			"year", date.Year(),
			"month", date.Month(),
			"op", op,
			"error", err)
		// Don't fail the request - the mutation is committed
	}
}

// Ping reports whether the backing store is reachable.
func (s *LedgerService) Ping(ctx context.Context) error {
	return s.storage.Ping(ctx)
}

// Read projections, delegated to storage.

func (s *LedgerService) CategoriesStats(ctx context.Context, userID string, typ core.TransactionType, from, to core.Date) ([]core.CategoryStat, error) {
	return s.storage.GetCategoriesStats(ctx, userID, typ, from, to)
}

func (s *LedgerService) Balance(ctx context.Context, userID string, from, to core.Date) (core.Balance, error) {
	return s.storage.GetBalance(ctx, userID, from, to)
}

func (s *LedgerService) MonthHistory(ctx context.Context, userID string, year, month int) ([]core.DayBalance, error) {
	return s.storage.GetMonthHistory(ctx, userID, year, month)
}

func (s *LedgerService) YearHistory(ctx context.Context, userID string, year int) ([]core.MonthBalance, error) {
	return s.storage.GetYearHistory(ctx, userID, year)
}

func (s *LedgerService) HistoryPeriods(ctx context.Context, userID string) ([]int, error) {
	return s.storage.GetHistoryPeriods(ctx, userID)
}

func (s *LedgerService) ListTransactions(ctx context.Context, userID string, from, to core.Date) ([]core.Transaction, error) {
	return s.storage.ListTransactions(ctx, userID, from, to)
}

func (s *LedgerService) ListTransactionsByCategory(ctx context.Context, userID, category string, typ core.TransactionType, from, to core.Date) ([]core.Transaction, error) {
	return s.storage.ListTransactionsByCategory(ctx, userID, category, typ, from, to)
}

// Category management.

func (s *LedgerService) CreateCategory(ctx context.Context, c core.Category) error {
	if err := c.Validate(); err != nil {
		return err
	}
	return s.storage.CreateCategory(ctx, c)
}

func (s *LedgerService) DeleteCategory(ctx context.Context, userID, name string) error {
	return s.storage.DeleteCategory(ctx, userID, name)
}

func (s *LedgerService) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	return s.storage.ListCategories(ctx, userID)
}

// Close closes storage and the event connection.
func (s *LedgerService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.events != nil {
		if err := s.events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}

	return nil
}
