// Package metrics exposes Prometheus counters for ledger activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransactionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "budgetbook_transactions_created_total",
		Help: "Number of transactions created.",
	})

	TransactionsUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "budgetbook_transactions_updated_total",
		Help: "Number of transactions updated.",
	})

	TransactionsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "budgetbook_transactions_deleted_total",
		Help: "Number of transactions deleted, bulk deletes included.",
	})

	ImportRows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "budgetbook_import_rows_total",
		Help: "Number of rows inserted by bulk imports.",
	})

	ImportBatchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "budgetbook_import_batch_errors_total",
		Help: "Number of import batches that failed entirely.",
	})

	BucketUpsertErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "budgetbook_bucket_upsert_errors_total",
		Help: "Number of per-bucket upserts skipped during bulk import.",
	})

	BucketsRepaired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "budgetbook_buckets_repaired_total",
		Help: "Number of aggregate buckets repaired by the reconcile worker.",
	})
)
