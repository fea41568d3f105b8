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

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

// MySQLStore implements Store using MySQL.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore connects to MySQL and ensures the schema.
// dsn format: "user:password@tcp(host:port)/dbname?parseTime=true"
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	if err := createMySQLTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Println("[MySQLStore] Initialized")
	return &MySQLStore{db: db}, nil
}

func createMySQLTables(db *sql.DB) error {
	// InnoDB caps index keys, so the keyed columns are VARCHAR rather
	// than TEXT. 512 characters covers the longest observed item keys.
	queries := []string{
		`CREATE TABLE IF NOT EXISTS auctions (
			auction_id  VARCHAR(64) PRIMARY KEY,
			item_key    VARCHAR(512) NOT NULL,
			skyblock_id VARCHAR(128) NOT NULL DEFAULT '',
			item_name   TEXT NOT NULL,
			item_tier   VARCHAR(32) NOT NULL DEFAULT '',
			enchants    TEXT NOT NULL,
			price       BIGINT NOT NULL,
			quantity    INT NOT NULL DEFAULT 1,
			ended_at    BIGINT NOT NULL,
			ingested_at BIGINT NOT NULL,
			INDEX idx_auctions_item_key (item_key),
			INDEX idx_auctions_ingested_at (ingested_at)
		)`,
		`CREATE TABLE IF NOT EXISTS item_stats (
			item_key   VARCHAR(512) PRIMARY KEY,
			item_name  TEXT NOT NULL,
			item_tier  VARCHAR(32) NOT NULL DEFAULT '',
			sale_count BIGINT NOT NULL,
			price_sum  VARCHAR(64) NOT NULL,
			price_min  BIGINT NOT NULL,
			price_max  BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id        VARCHAR(36) PRIMARY KEY,
			started_at    BIGINT NOT NULL,
			finished_at   BIGINT NOT NULL,
			pages         INT NOT NULL,
			fetched       INT NOT NULL,
			admitted      INT NOT NULL,
			duplicates    INT NOT NULL,
			decode_failed INT NOT NULL,
			filtered      INT NOT NULL,
			status        VARCHAR(16) NOT NULL,
			INDEX idx_runs_started_at (started_at)
		)`,
		`CREATE TABLE IF NOT EXISTS run_lease (
			name       VARCHAR(64) PRIMARY KEY,
			holder     VARCHAR(64) NOT NULL,
			expires_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS current_averages (
			item_key   VARCHAR(512) PRIMARY KEY,
			item_name  TEXT NOT NULL,
			average    DOUBLE NOT NULL,
			volume     INT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

// Atomic runs fn inside one write transaction.
func (s *MySQLStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	if err := fn(&mysqlTx{tx: dbTx}); err != nil {
		return err
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AcquireLease claims the run lease, taking over expired ones. MySQL
// has no conditional upsert, so the claim runs as a short locking
// transaction.
func (s *MySQLStore) AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) error {
	now := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin lease transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		current   string
		expiresAt int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT holder, expires_at FROM run_lease WHERE name = ? FOR UPDATE`, name).
		Scan(&current, &expiresAt)
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_lease (name, holder, expires_at) VALUES (?, ?, ?)`,
			name, holder, now.Add(ttl).UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to insert lease: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to read lease: %w", err)
	case current != holder && expiresAt > now.UnixMilli():
		return runerror.Conflict(fmt.Sprintf("lease %q is held by another process", name))
	default:
		_, err = tx.ExecContext(ctx,
			`UPDATE run_lease SET holder = ?, expires_at = ? WHERE name = ?`,
			holder, now.Add(ttl).UnixMilli(), name)
		if err != nil {
			return fmt.Errorf("failed to update lease: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit lease: %w", err)
	}
	return nil
}

// ReleaseLease frees the lease if holder still owns it.
func (s *MySQLStore) ReleaseLease(ctx context.Context, name, holder string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM run_lease WHERE name = ? AND holder = ?`, name, holder)
	if err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

// GetAggregates returns aggregate rows with at least minCount sales.
func (s *MySQLStore) GetAggregates(ctx context.Context, minCount int64) ([]model.ItemAggregate, error) {
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
func (s *MySQLStore) GetRecentRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
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
func (s *MySQLStore) ReplaceCurrentAverages(ctx context.Context, avgRows []model.CurrentAverage) error {
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
func (s *MySQLStore) Close() error {
	return s.db.Close()
}

// mysqlTx implements Tx on one MySQL transaction.
type mysqlTx struct {
	tx *sql.Tx
}

// FilterKnown returns input ids not yet in the auction log.
func (t *mysqlTx) FilterKnown(ctx context.Context, ids []string) ([]string, error) {
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
		known[id] = struct{}{}
		unseen = append(unseen, id)
	}
	return unseen, nil
}

// InsertAuction appends one record to the auction log.
func (t *mysqlTx) InsertAuction(ctx context.Context, rec model.AuctionRecord) error {
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
func (t *mysqlTx) GetAggregate(ctx context.Context, key string) (*model.ItemAggregate, error) {
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
func (t *mysqlTx) PutAggregate(ctx context.Context, agg model.ItemAggregate) error {
	query := `
		INSERT INTO item_stats (item_key, item_name, item_tier, sale_count, price_sum, price_min, price_max, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			item_name  = VALUES(item_name),
			item_tier  = VALUES(item_tier),
			sale_count = VALUES(sale_count),
			price_sum  = VALUES(price_sum),
			price_min  = VALUES(price_min),
			price_max  = VALUES(price_max),
			updated_at = VALUES(updated_at)`

	_, err := t.tx.ExecContext(ctx, query,
		agg.ItemKey, agg.Name, agg.Tier, agg.Count, agg.Sum.String(),
		agg.Min, agg.Max, agg.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert aggregate %s: %w", agg.ItemKey, err)
	}
	return nil
}

// InsertRun appends one run summary row.
func (t *mysqlTx) InsertRun(ctx context.Context, run model.RunRecord) error {
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
	_ Store = (*MySQLStore)(nil)
	_ Tx    = (*mysqlTx)(nil)
)
