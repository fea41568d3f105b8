package repository

import (
	"context"
	"time"

	"skyblock-ah-tracker/internal/model"
)

// Store is the persistence layer. The auction log, the aggregate
// table, the run history, the snapshot table and the run lease all
// live behind it.
type Store interface {
	// Atomic runs fn inside one write transaction. Any error from fn
	// rolls the whole transaction back and is returned unchanged.
	Atomic(ctx context.Context, fn func(tx Tx) error) error

	// AcquireLease claims the named lease for holder until ttl
	// elapses. A live lease owned by a different holder returns a
	// conflict error; an expired one is taken over.
	AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) error

	// ReleaseLease frees the named lease if holder still owns it.
	ReleaseLease(ctx context.Context, name, holder string) error

	// GetAggregates returns aggregate rows with at least minCount
	// sales, ordered by item key.
	GetAggregates(ctx context.Context, minCount int64) ([]model.ItemAggregate, error)

	// GetRecentRuns returns up to limit run summaries, newest first.
	GetRecentRuns(ctx context.Context, limit int) ([]model.RunRecord, error)

	// ReplaceCurrentAverages swaps the whole snapshot table for rows
	// in one transaction.
	ReplaceCurrentAverages(ctx context.Context, rows []model.CurrentAverage) error

	// Close releases the underlying database.
	Close() error
}

// Tx is the transactional surface one ingestion run commits through.
// Admission, log appends, aggregate updates and the run summary all
// execute against the same transaction.
type Tx interface {
	// FilterKnown returns the subset of ids that are not yet in the
	// auction log, preserving input order.
	FilterKnown(ctx context.Context, ids []string) ([]string, error)

	// InsertAuction appends one record to the auction log.
	InsertAuction(ctx context.Context, rec model.AuctionRecord) error

	// GetAggregate loads the aggregate row for key, or nil when the
	// identity has never been observed.
	GetAggregate(ctx context.Context, key string) (*model.ItemAggregate, error)

	// PutAggregate writes the full aggregate row, inserting or
	// replacing by item key.
	PutAggregate(ctx context.Context, agg model.ItemAggregate) error

	// InsertRun appends one run summary row.
	InsertRun(ctx context.Context, run model.RunRecord) error
}

// LeaseName is the single advisory lease serializing ingestion runs.
const LeaseName = "ingest"
