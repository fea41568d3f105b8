package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"skyblock-ah-tracker/internal/model"
	"skyblock-ah-tracker/pkg/runerror"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteStore implements Store using a local SQLite file. The default
// engine: one writer, WAL mode, no external services.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createSQLiteTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[SQLiteStore] Initialized with database: %s", path)
	return &SQLiteStore{db: db}, nil
}

func createSQLiteTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS auctions (
		auction_id  TEXT PRIMARY KEY,
		item_key    TEXT NOT NULL,
		skyblock_id TEXT NOT NULL DEFAULT '',
		item_name   TEXT NOT NULL,
		item_tier   TEXT NOT NULL DEFAULT '',
		enchants    TEXT NOT NULL DEFAULT '',
		price       INTEGER NOT NULL,
		quantity    INTEGER NOT NULL DEFAULT 1,
		ended_at    INTEGER NOT NULL,
		ingested_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_auctions_item_key ON auctions(item_key);
	CREATE INDEX IF NOT EXISTS idx_auctions_ingested_at ON auctions(ingested_at);

	CREATE TABLE IF NOT EXISTS item_stats (
		item_key   TEXT PRIMARY KEY,
		item_name  TEXT NOT NULL,
		item_tier  TEXT NOT NULL DEFAULT '',
		sale_count INTEGER NOT NULL,
		price_sum  TEXT NOT NULL,
		price_min  INTEGER NOT NULL,
		price_max  INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		run_id        TEXT PRIMARY KEY,
		started_at    INTEGER NOT NULL,
		finished_at   INTEGER NOT NULL,
		pages         INTEGER NOT NULL,
		fetched       INTEGER NOT NULL,
		admitted      INTEGER NOT NULL,
		duplicates    INTEGER NOT NULL,
		decode_failed INTEGER NOT NULL,
		filtered      INTEGER NOT NULL,
		status        TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	CREATE TABLE IF NOT EXISTS run_lease (
		name       TEXT PRIMARY KEY,
		holder     TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS current_averages (
		item_key   TEXT PRIMARY KEY,
		item_name  TEXT NOT NULL,
		average    REAL NOT NULL,
		volume     INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := db.Exec(query)
	return err
}

// Atomic runs fn inside one write transaction.
func (s *SQLiteStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	if err := fn(&sqliteTx{tx: dbTx}); err != nil {
		return err
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AcquireLease claims the run lease, taking over expired ones.
func (s *SQLiteStore) AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) error {
	now := time.Now()
	query := `
		INSERT INTO run_lease (name, holder, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			holder = excluded.holder,
			expires_at = excluded.expires_at
		WHERE run_lease.holder = excluded.holder OR run_lease.expires_at <= ?`

	res, err := s.db.ExecContext(ctx, query, name, holder, now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to acquire lease: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read lease result: %w", err)
	}
	if affected == 0 {
		return runerror.Conflict(fmt.Sprintf("lease %q is held by another process", name))
	}
	return nil
}

// ReleaseLease frees the lease if holder still owns it.
func (s *SQLiteStore) ReleaseLease(ctx context.Context, name, holder string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM run_lease WHERE name = ? AND holder = ?`, name, holder)
	if err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

// GetAggregates returns aggregate rows with at least minCount sales.
func (s *SQLiteStore) GetAggregates(ctx context.Context, minCount int64) ([]model.ItemAggregate, error) {
	query := `
		SELECT item_key, item_name, item_tier, sale_count, price_sum, price_min, price_max, updated_at
		FROM item_stats
		WHERE sale_count >= ?
		ORDER BY item_key`

	rows, err := s.db.QueryContext(ctx, query, minCount)
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregates: %w", err)
	}
	defer rows.Close()

	var out []model.ItemAggregate
	for rows.Next() {
		agg, err := scanAggregate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	return out, rows.Err()
}

// GetRecentRuns returns up to limit run summaries, newest first.
func (s *SQLiteStore) GetRecentRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	query := `
		SELECT run_id, started_at, finished_at, pages, fetched, admitted, duplicates, decode_failed, filtered, status
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []model.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// ReplaceCurrentAverages swaps the snapshot table wholesale.
func (s *SQLiteStore) ReplaceCurrentAverages(ctx context.Context, avgRows []model.CurrentAverage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM current_averages`); err != nil {
		return fmt.Errorf("failed to clear snapshot table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO current_averages (item_key, item_name, average, volume, updated_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range avgRows {
		_, err := stmt.ExecContext(ctx, row.ItemKey, row.Name, row.Average, row.Volume, row.UpdatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to insert snapshot row %s: %w", row.ItemKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqliteTx implements Tx on one SQLite transaction.
type sqliteTx struct {
	tx *sql.Tx
}

// FilterKnown returns input ids not yet in the auction log.
func (t *sqliteTx) FilterKnown(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	known := make(map[string]struct{}, len(ids))
	for start := 0; start < len(ids); start += filterChunk {
		end := min(start+filterChunk, len(ids))
		chunk := ids[start:end]

		placeholders := strings.Repeat("?,", len(chunk)-1) + "?"
		query := "SELECT auction_id FROM auctions WHERE auction_id IN (" + placeholders + ")"
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		rows, err := t.tx.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query known auctions: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan auction id: %w", err)
			}
			known[id] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to read known auctions: %w", err)
		}
		rows.Close()
	}

	unseen := make([]string, 0, len(ids)-len(known))
	for _, id := range ids {
		if _, ok := known[id]; ok {
			continue
		}
		// Marking admitted ids known also drops repeats within the
		// batch itself.
		known[id] = struct{}{}
		unseen = append(unseen, id)
	}
	return unseen, nil
}

// InsertAuction appends one record to the auction log.
func (t *sqliteTx) InsertAuction(ctx context.Context, rec model.AuctionRecord) error {
	query := `
		INSERT INTO auctions (auction_id, item_key, skyblock_id, item_name, item_tier, enchants, price, quantity, ended_at, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := t.tx.ExecContext(ctx, query,
		rec.AuctionID, rec.ItemKey, rec.Item.SkyblockID, rec.Item.Name, rec.Item.Tier,
		rec.Item.EnchantmentString(), rec.Price, rec.Quantity,
		rec.EndedAt.UnixMilli(), rec.IngestedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert auction %s: %w", rec.AuctionID, err)
	}
	return nil
}

// GetAggregate loads the aggregate row for key, nil when absent.
func (t *sqliteTx) GetAggregate(ctx context.Context, key string) (*model.ItemAggregate, error) {
	query := `
		SELECT item_key, item_name, item_tier, sale_count, price_sum, price_min, price_max, updated_at
		FROM item_stats
		WHERE item_key = ?`

	agg, err := scanAggregate(t.tx.QueryRowContext(ctx, query, key))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

// PutAggregate writes the full aggregate row.
func (t *sqliteTx) PutAggregate(ctx context.Context, agg model.ItemAggregate) error {
	query := `
		INSERT INTO item_stats (item_key, item_name, item_tier, sale_count, price_sum, price_min, price_max, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_key) DO UPDATE SET
			item_name  = excluded.item_name,
			item_tier  = excluded.item_tier,
			sale_count = excluded.sale_count,
			price_sum  = excluded.price_sum,
			price_min  = excluded.price_min,
			price_max  = excluded.price_max,
			updated_at = excluded.updated_at`

	_, err := t.tx.ExecContext(ctx, query,
		agg.ItemKey, agg.Name, agg.Tier, agg.Count, agg.Sum.String(),
		agg.Min, agg.Max, agg.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert aggregate %s: %w", agg.ItemKey, err)
	}
	return nil
}

// InsertRun appends one run summary row.
func (t *sqliteTx) InsertRun(ctx context.Context, run model.RunRecord) error {
	query := `
		INSERT INTO runs (run_id, started_at, finished_at, pages, fetched, admitted, duplicates, decode_failed, filtered, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := t.tx.ExecContext(ctx, query,
		run.RunID, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
		run.Pages, run.Fetched, run.Admitted, run.Duplicates, run.DecodeFailed, run.Filtered, run.Status)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.RunID, err)
	}
	return nil
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Tx    = (*sqliteTx)(nil)
)
