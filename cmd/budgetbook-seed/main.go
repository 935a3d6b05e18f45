// Command budgetbook-seed fills a database with generated demo data so the
// dashboard has something to show in local development.
package main

import (
	"context"
	"errors"
	"flag"
	"math/rand"
	"os"
	"time"

	"github.com/bxcodec/faker/v3"
	"github.com/joho/godotenv"

	"budgetbook/internal/config"
	"budgetbook/internal/core"
	"budgetbook/internal/log"
	"budgetbook/internal/services"
	"budgetbook/internal/storage"
)

var seedCategories = []core.Category{
	{Name: "Groceries", Icon: "🛒"},
	{Name: "Rent", Icon: "🏠"},
	{Name: "Transport", Icon: "🚌"},
	{Name: "Dining", Icon: "🍕"},
	{Name: "Health", Icon: "💊"},
	{Name: "Salary", Icon: "💰"},
	{Name: "Freelance", Icon: "🧾"},
}

func main() {
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig()).WithComponent("seed")
	log.SetDefault(logger)

	var (
		userID = flag.String("user", "demo", "owner id to seed")
		months = flag.Int("months", 6, "how many months back to fill")
		perDay = flag.Int("per-day", 2, "average transactions per day")
	)
	flag.Parse()

	cfg := config.Load()
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	ctx := context.Background()
	ledger := services.NewLedgerService(repo, nil)

	for _, c := range seedCategories {
		c.UserID = *userID
		if err := ledger.CreateCategory(ctx, c); err != nil && !errors.Is(err, core.ErrCategoryExists) {
			logger.Error("Failed to create category", log.FieldError, err, log.FieldCategory, c.Name)
			os.Exit(1)
		}
	}

	created := 0
	now := time.Now().UTC()
	for m := 0; m < *months; m++ {
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -m, 0)

		// One salary per month, a stream of expenses through the days.
		_, err := ledger.CreateTransaction(ctx, core.Transaction{
			UserID:      *userID,
			Date:        core.DateOf(monthStart),
			Description: "Monthly salary",
			Amount:      core.Money{Cents: 250_000 + int64(rand.Intn(50_000))},
			Type:        core.Income,
			Category:    "Salary",
		})
		if err != nil {
			logger.Error("Failed to create income", log.FieldError, err)
			os.Exit(1)
		}
		created++

		daysInMonth := monthStart.AddDate(0, 1, -1).Day()
		for day := 1; day <= daysInMonth; day++ {
			for n := 0; n < rand.Intn(*perDay*2+1); n++ {
				cat := seedCategories[rand.Intn(len(seedCategories)-2)] // expense categories only
				_, err := ledger.CreateTransaction(ctx, core.Transaction{
					UserID:      *userID,
					Date:        core.NewDate(monthStart.Year(), int(monthStart.Month()), day),
					Description: faker.Sentence(),
					Amount:      core.Money{Cents: int64(rand.Intn(15_000) + 100)},
					Type:        core.Expense,
					Category:    cat.Name,
				})
				if err != nil {
					logger.Error("Failed to create expense", log.FieldError, err)
					os.Exit(1)
				}
				created++
			}
		}
	}

	logger.Info("Seed complete", log.FieldUserID, *userID, log.FieldCount, created)
}
