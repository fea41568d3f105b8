package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"skyblock-ah-tracker/internal/model"
	"skyblock-ah-tracker/pkg/runerror"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testRecord(id, key string, price int64) model.AuctionRecord {
	return model.AuctionRecord{
		AuctionID: id,
		Item: model.ItemIdentity{
			SkyblockID:   "ASPECT_OF_THE_END",
			Name:         "Aspect of the End",
			Tier:         "RARE",
			Enchantments: map[string]int{"sharpness": 5},
		},
		ItemKey:    key,
		Price:      price,
		Quantity:   1,
		EndedAt:    time.UnixMilli(1700000000000).UTC(),
		IngestedAt: time.UnixMilli(1700000100000).UTC(),
	}
}

func TestFilterKnown(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Atomic(ctx, func(tx Tx) error {
		return tx.InsertAuction(ctx, testRecord("known-1", "k", 100))
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	err = store.Atomic(ctx, func(tx Tx) error {
		unseen, err := tx.FilterKnown(ctx, []string{"known-1", "new-1", "new-2", "new-1"})
		if err != nil {
			return err
		}
		want := []string{"new-1", "new-2"}
		if len(unseen) != len(want) {
			t.Fatalf("unseen = %v, want %v", unseen, want)
		}
		for i := range want {
			if unseen[i] != want[i] {
				t.Errorf("unseen[%d] = %q, want %q", i, unseen[i], want[i])
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Atomic: %v", err)
	}
}

func TestFilterKnownEmpty(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Atomic(ctx, func(tx Tx) error {
		unseen, err := tx.FilterKnown(ctx, nil)
		if err != nil {
			return err
		}
		if len(unseen) != 0 {
			t.Errorf("unseen = %v, want empty", unseen)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Atomic: %v", err)
	}
}

func TestFilterKnownLargeBatch(t *testing.T) {
	// More ids than one IN (...) chunk holds.
	store := newTestStore(t)
	ctx := context.Background()

	n := filterChunk + 50
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("auction-%04d", i)
	}

	err := store.Atomic(ctx, func(tx Tx) error {
		if err := tx.InsertAuction(ctx, testRecord(ids[0], "k", 1)); err != nil {
			return err
		}
		unseen, err := tx.FilterKnown(ctx, ids)
		if err != nil {
			return err
		}
		if len(unseen) != n-1 {
			t.Errorf("len(unseen) = %d, want %d", len(unseen), n-1)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Atomic: %v", err)
	}
}

func TestAtomicRollback(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Atomic(ctx, func(tx Tx) error {
		if err := tx.InsertAuction(ctx, testRecord("rolled-back", "k", 100)); err != nil {
			return err
		}
		if err := tx.PutAggregate(ctx, model.ItemAggregate{
			ItemKey: "k", Name: "x", Count: 1,
			Sum: decimal.NewFromInt(100), Min: 100, Max: 100,
			UpdatedAt: time.Now(),
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Atomic error = %v, want boom", err)
	}

	aggs, err := store.GetAggregates(ctx, 1)
	if err != nil {
		t.Fatalf("GetAggregates: %v", err)
	}
	if len(aggs) != 0 {
		t.Errorf("aggregates after rollback = %v, want none", aggs)
	}

	// The rolled-back id must still be admissible.
	err = store.Atomic(ctx, func(tx Tx) error {
		unseen, err := tx.FilterKnown(ctx, []string{"rolled-back"})
		if err != nil {
			return err
		}
		if len(unseen) != 1 {
			t.Errorf("unseen = %v, want the rolled-back id", unseen)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Atomic: %v", err)
	}
}

func TestAggregateRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// A sum wider than int64 must survive the round trip.
	wide, _ := decimal.NewFromString("92233720368547758080000")
	in := model.ItemAggregate{
		ItemKey:   "k1",
		Name:      "Hyperion",
		Tier:      "LEGENDARY",
		Count:     3,
		Sum:       wide,
		Min:       5,
		Max:       900000000,
		UpdatedAt: time.UnixMilli(1700000200000).UTC(),
	}

	err := store.Atomic(ctx, func(tx Tx) error {
		if err := tx.PutAggregate(ctx, in); err != nil {
			return err
		}
		out, err := tx.GetAggregate(ctx, "k1")
		if err != nil {
			return err
		}
		if out == nil {
			t.Fatal("GetAggregate returned nil for written key")
		}
		if out.ItemKey != in.ItemKey || out.Name != in.Name || out.Tier != in.Tier {
			t.Errorf("identity fields = %+v", out)
		}
		if out.Count != in.Count || !out.Sum.Equal(in.Sum) || out.Min != in.Min || out.Max != in.Max {
			t.Errorf("stats = count=%d sum=%s min=%d max=%d", out.Count, out.Sum, out.Min, out.Max)
		}
		if !out.UpdatedAt.Equal(in.UpdatedAt) {
			t.Errorf("UpdatedAt = %v, want %v", out.UpdatedAt, in.UpdatedAt)
		}

		missing, err := tx.GetAggregate(ctx, "absent")
		if err != nil {
			return err
		}
		if missing != nil {
			t.Errorf("GetAggregate(absent) = %+v, want nil", missing)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Atomic: %v", err)
	}
}

func TestPutAggregateUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	agg := model.ItemAggregate{
		ItemKey: "k", Name: "Emerald", Count: 1,
		Sum: decimal.NewFromInt(10), Min: 10, Max: 10,
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	err := store.Atomic(ctx, func(tx Tx) error {
		if err := tx.PutAggregate(ctx, agg); err != nil {
			return err
		}
		agg.Apply(30, agg.UpdatedAt)
		return tx.PutAggregate(ctx, agg)
	})
	if err != nil {
		t.Fatalf("Atomic: %v", err)
	}

	aggs, err := store.GetAggregates(ctx, 1)
	if err != nil {
		t.Fatalf("GetAggregates: %v", err)
	}
	if len(aggs) != 1 {
		t.Fatalf("len(aggs) = %d, want 1 row after upsert", len(aggs))
	}
	if aggs[0].Count != 2 || !aggs[0].Sum.Equal(decimal.NewFromInt(40)) {
		t.Errorf("row = count=%d sum=%s, want count=2 sum=40", aggs[0].Count, aggs[0].Sum)
	}
}

func TestGetAggregatesMinCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Atomic(ctx, func(tx Tx) error {
		for _, agg := range []model.ItemAggregate{
			{ItemKey: "low", Name: "a", Count: 2, Sum: decimal.NewFromInt(2), Min: 1, Max: 1, UpdatedAt: time.Now()},
			{ItemKey: "high", Name: "b", Count: 25, Sum: decimal.NewFromInt(25), Min: 1, Max: 1, UpdatedAt: time.Now()},
		} {
			if err := tx.PutAggregate(ctx, agg); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Atomic: %v", err)
	}

	aggs, err := store.GetAggregates(ctx, 21)
	if err != nil {
		t.Fatalf("GetAggregates: %v", err)
	}
	if len(aggs) != 1 || aggs[0].ItemKey != "high" {
		t.Errorf("aggs = %+v, want only the high-volume row", aggs)
	}
}

func TestRunHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.UnixMilli(1700000000000).UTC()
	err := store.Atomic(ctx, func(tx Tx) error {
		for i := 0; i < 3; i++ {
			run := model.RunRecord{
				RunID:      string(rune('a' + i)),
				StartedAt:  base.Add(time.Duration(i) * time.Minute),
				FinishedAt: base.Add(time.Duration(i)*time.Minute + 30*time.Second),
				Pages:      2,
				Fetched:    10 * (i + 1),
				Admitted:   5,
				Duplicates: 1,
				Status:     model.RunStatusCompleted,
			}
			if err := tx.InsertRun(ctx, run); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Atomic: %v", err)
	}

	runs, err := store.GetRecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("GetRecentRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	if runs[0].RunID != "c" || runs[1].RunID != "b" {
		t.Errorf("runs = %q, %q, want newest first", runs[0].RunID, runs[1].RunID)
	}
	if runs[0].Fetched != 30 || !runs[0].StartedAt.Equal(base.Add(2*time.Minute)) {
		t.Errorf("run fields = %+v", runs[0])
	}
}

func TestAcquireLease(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.AcquireLease(ctx, LeaseName, "holder-1", time.Minute); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	// Same holder renews.
	if err := store.AcquireLease(ctx, LeaseName, "holder-1", time.Minute); err != nil {
		t.Fatalf("renew: %v", err)
	}

	// Other holder conflicts while the lease is live.
	err := store.AcquireLease(ctx, LeaseName, "holder-2", time.Minute)
	if runerror.KindOf(err) != runerror.KindConflict {
		t.Fatalf("second holder error = %v, want conflict", err)
	}

	// After release anyone may claim.
	if err := store.ReleaseLease(ctx, LeaseName, "holder-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := store.AcquireLease(ctx, LeaseName, "holder-2", time.Minute); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestAcquireLeaseStealsExpired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.AcquireLease(ctx, LeaseName, "stale", -time.Second); err != nil {
		t.Fatalf("seed expired lease: %v", err)
	}
	if err := store.AcquireLease(ctx, LeaseName, "fresh", time.Minute); err != nil {
		t.Fatalf("steal expired: %v", err)
	}
}

func TestReleaseLeaseWrongHolder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.AcquireLease(ctx, LeaseName, "owner", time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := store.ReleaseLease(ctx, LeaseName, "intruder"); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}

	// The lease must still be held by the owner.
	err := store.AcquireLease(ctx, LeaseName, "intruder", time.Minute)
	if runerror.KindOf(err) != runerror.KindConflict {
		t.Errorf("acquire after foreign release = %v, want conflict", err)
	}
}

func TestReplaceCurrentAverages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.UnixMilli(1700000300000).UTC()

	first := []model.CurrentAverage{
		{ItemKey: "a", Name: "A", Average: 10.5, Volume: 4, UpdatedAt: now},
		{ItemKey: "b", Name: "B", Average: 20, Volume: 2, UpdatedAt: now},
	}
	if err := store.ReplaceCurrentAverages(ctx, first); err != nil {
		t.Fatalf("first replace: %v", err)
	}

	second := []model.CurrentAverage{
		{ItemKey: "c", Name: "C", Average: 30, Volume: 1, UpdatedAt: now},
	}
	if err := store.ReplaceCurrentAverages(ctx, second); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	var (
		key     string
		name    string
		average float64
		volume  int
		updated int64
	)
	row := store.db.QueryRowContext(ctx, `SELECT item_key, item_name, average, volume, updated_at FROM current_averages`)
	if err := row.Scan(&key, &name, &average, &volume, &updated); err != nil {
		t.Fatalf("scan snapshot row: %v", err)
	}
	if key != "c" || average != 30 || volume != 1 {
		t.Errorf("snapshot row = %s %f %d, want the replacement row only", key, average, volume)
	}
}
