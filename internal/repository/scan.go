package repository

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"skyblock-ah-tracker/internal/model"
)

// filterChunk bounds the IN (...) placeholder list per dedup query,
// staying under every engine's bind-parameter limit.
const filterChunk = 500

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanAggregate reads one item_stats row. The price sum travels as
// text so it survives values wider than int64.
func scanAggregate(row rowScanner) (model.ItemAggregate, error) {
	var (
		agg       model.ItemAggregate
		sum       string
		updatedAt int64
	)
	err := row.Scan(&agg.ItemKey, &agg.Name, &agg.Tier, &agg.Count, &sum, &agg.Min, &agg.Max, &updatedAt)
	if err != nil {
		return model.ItemAggregate{}, err
	}

	agg.Sum, err = decimal.NewFromString(sum)
	if err != nil {
		return model.ItemAggregate{}, fmt.Errorf("failed to parse price sum for %s: %w", agg.ItemKey, err)
	}
	agg.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return agg, nil
}

// scanRun reads one runs row.
func scanRun(row rowScanner) (model.RunRecord, error) {
	var (
		run        model.RunRecord
		startedAt  int64
		finishedAt int64
	)
	err := row.Scan(&run.RunID, &startedAt, &finishedAt, &run.Pages, &run.Fetched,
		&run.Admitted, &run.Duplicates, &run.DecodeFailed, &run.Filtered, &run.Status)
	if err != nil {
		return model.RunRecord{}, err
	}
	run.StartedAt = time.UnixMilli(startedAt).UTC()
	run.FinishedAt = time.UnixMilli(finishedAt).UTC()
	return run, nil
}
