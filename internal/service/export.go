package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"skyblock-ah-tracker/internal/repository"
)

// ExportRow is one item's statistics in the export document. Average
// is derived from sum and count at export time.
type ExportRow struct {
	ItemKey   string          `json:"key"`
	Name      string          `json:"name"`
	Tier      string          `json:"tier,omitempty"`
	Count     int64           `json:"count"`
	Sum       decimal.Decimal `json:"sum"`
	Min       int64           `json:"min"`
	Max       int64           `json:"max"`
	Average   decimal.Decimal `json:"average"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Export reads the aggregate table and builds the export rows,
// dropping items with fewer than minCount sales.
func Export(ctx context.Context, store repository.Store, minCount int64) ([]ExportRow, error) {
	if minCount < 1 {
		minCount = 1
	}
	aggs, err := store.GetAggregates(ctx, minCount)
	if err != nil {
		return nil, err
	}

	rows := make([]ExportRow, 0, len(aggs))
	for _, agg := range aggs {
		rows = append(rows, ExportRow{
			ItemKey:   agg.ItemKey,
			Name:      agg.Name,
			Tier:      agg.Tier,
			Count:     agg.Count,
			Sum:       agg.Sum,
			Min:       agg.Min,
			Max:       agg.Max,
			Average:   agg.Average().Round(2),
			UpdatedAt: agg.UpdatedAt,
		})
	}
	return rows, nil
}
