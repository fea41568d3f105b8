package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"skyblock-ah-tracker/internal/model"
	"skyblock-ah-tracker/internal/repository"
)

func TestExport(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Atomic(ctx, func(tx repository.Tx) error {
		for _, agg := range []model.ItemAggregate{
			{ItemKey: "a", Name: "Emerald", Tier: "COMMON", Count: 3, Sum: decimal.NewFromInt(100), Min: 20, Max: 45, UpdatedAt: time.Now()},
			{ItemKey: "b", Name: "Rare Pickaxe", Count: 1, Sum: decimal.NewFromInt(7), Min: 7, Max: 7, UpdatedAt: time.Now()},
		} {
			if err := tx.PutAggregate(ctx, agg); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	rows, err := Export(ctx, store, 1)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	// GetAggregates orders by item key.
	if rows[0].ItemKey != "a" || rows[1].ItemKey != "b" {
		t.Errorf("row order = %q, %q", rows[0].ItemKey, rows[1].ItemKey)
	}
	// 100 / 3, derived at export time and rounded to cents.
	want, _ := decimal.NewFromString("33.33")
	if !rows[0].Average.Equal(want) {
		t.Errorf("Average = %s, want %s", rows[0].Average, want)
	}

	// A volume floor drops the single-sale item.
	rows, err = Export(ctx, store, 2)
	if err != nil {
		t.Fatalf("Export with floor: %v", err)
	}
	if len(rows) != 1 || rows[0].ItemKey != "a" {
		t.Errorf("filtered rows = %+v, want only the three-sale item", rows)
	}
}
