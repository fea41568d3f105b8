package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"skyblock-ah-tracker/internal/codec"
	"skyblock-ah-tracker/internal/codec/codectest"
	"skyblock-ah-tracker/internal/hypixel"
	"skyblock-ah-tracker/internal/model"
	"skyblock-ah-tracker/internal/repository"
)

// fakeActive serves a canned live-auctions window.
type fakeActive struct {
	result *hypixel.ActiveResult
	err    error
}

func (f *fakeActive) FetchActiveAuctions(context.Context) (*hypixel.ActiveResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// captureStore records the snapshot rows handed to the store. Methods
// the snapshot never uses stay on the nil embedded interface.
type captureStore struct {
	repository.Store
	rows []model.CurrentAverage
}

func (s *captureStore) ReplaceCurrentAverages(_ context.Context, rows []model.CurrentAverage) error {
	s.rows = rows
	return nil
}

func TestTrimOutliers(t *testing.T) {
	tests := []struct {
		name   string
		prices []int64
		want   int
	}{
		{"below min samples kept whole", []int64{1, 1000000}, 2},
		{"outlier dropped", []int64{10, 11, 12, 13, 14, 15, 16, 17, 1000000}, 8},
		{"uniform prices all kept", []int64{50, 50, 50, 50, 50}, 5},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept := trimOutliers(tt.prices, 4)
			if len(kept) != tt.want {
				t.Errorf("len(kept) = %d, want %d (kept %v)", len(kept), tt.want, kept)
			}
		})
	}
}

func TestSnapshotGroupsAndAverages(t *testing.T) {
	payload := codectest.Payload(t, codectest.Item{Name: "§aEmerald", Count: 1})

	source := &fakeActive{result: &hypixel.ActiveResult{
		Listings: []model.ActiveListing{
			{UUID: "1", ItemBytes: payload, StartingBid: 100, BIN: true},
			{UUID: "2", ItemBytes: payload, StartingBid: 200, BIN: true},
			{UUID: "3", ItemBytes: payload, StartingBid: 999, BIN: false}, // bid auction, skipped
			{UUID: "4", ItemName: "§cMystery Item", ItemBytes: codectest.Corrupt(), StartingBid: 50, BIN: true},
		},
		Pages: 1,
	}}

	store := &captureStore{}
	snap := NewSnapshotService(source, codec.NewDecoder(nil, 0), store, 4, "")

	items, err := snap.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if items != 2 {
		t.Fatalf("items = %d, want 2 groups", items)
	}

	byName := make(map[string]model.CurrentAverage)
	for _, row := range store.rows {
		byName[row.Name] = row
	}

	emerald, ok := byName["Emerald"]
	if !ok {
		t.Fatalf("no Emerald row in %+v", store.rows)
	}
	if emerald.Average != 150 || emerald.Volume != 2 {
		t.Errorf("Emerald = avg=%f vol=%d, want 150/2", emerald.Average, emerald.Volume)
	}

	// The undecodable listing groups by its plain display name.
	mystery, ok := byName["Mystery Item"]
	if !ok {
		t.Fatalf("no fallback row in %+v", store.rows)
	}
	if mystery.ItemKey != "Mystery Item" || mystery.Average != 50 || mystery.Volume != 1 {
		t.Errorf("fallback row = %+v", mystery)
	}
}

func TestSnapshotMirrorFile(t *testing.T) {
	payload := codectest.Payload(t, codectest.Item{Name: "Ruby", Count: 1})
	source := &fakeActive{result: &hypixel.ActiveResult{
		Listings: []model.ActiveListing{
			{UUID: "1", ItemBytes: payload, StartingBid: 30, BIN: true},
		},
		Pages: 1,
	}}

	path := filepath.Join(t.TempDir(), "current.json")
	snap := NewSnapshotService(source, codec.NewDecoder(nil, 0), &captureStore{}, 4, path)

	if _, err := snap.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read mirror: %v", err)
	}
	var doc map[string]struct {
		PlainItem string  `json:"plain_item"`
		Average   float64 `json:"average"`
		Volume    int     `json:"volume"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal mirror: %v", err)
	}
	if len(doc) != 1 {
		t.Fatalf("mirror has %d entries, want 1", len(doc))
	}
	for _, entry := range doc {
		if entry.PlainItem != "Ruby" || entry.Average != 30 || entry.Volume != 1 {
			t.Errorf("mirror entry = %+v", entry)
		}
	}
}

func TestSnapshotReplacesPreviousTable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := []model.CurrentAverage{{ItemKey: "stale", Name: "Stale", Average: 1, Volume: 1}}
	if err := store.ReplaceCurrentAverages(ctx, old); err != nil {
		t.Fatalf("seed: %v", err)
	}

	payload := codectest.Payload(t, codectest.Item{Name: "Sapphire", Count: 1})
	source := &fakeActive{result: &hypixel.ActiveResult{
		Listings: []model.ActiveListing{
			{UUID: "1", ItemBytes: payload, StartingBid: 10, BIN: true},
		},
		Pages: 1,
	}}
	snap := NewSnapshotService(source, codec.NewDecoder(nil, 0), store, 4, "")

	items, err := snap.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if items != 1 {
		t.Errorf("items = %d, want 1", items)
	}
}
