package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"skyblock-ah-tracker/internal/codec"
	"skyblock-ah-tracker/internal/hypixel"
	"skyblock-ah-tracker/internal/model"
	"skyblock-ah-tracker/internal/repository"
	"skyblock-ah-tracker/pkg/runerror"
)

// ActiveSource fetches the live-auction window. Satisfied by
// *hypixel.Client.
type ActiveSource interface {
	FetchActiveAuctions(ctx context.Context) (*hypixel.ActiveResult, error)
}

// SnapshotService rebuilds the current_averages table from the live
// fixed-price listings: a point-in-time view of asking prices, fully
// replaced on every snapshot.
type SnapshotService struct {
	source     ActiveSource
	decoder    *codec.Decoder
	store      repository.Store
	minSamples int
	// file optionally mirrors the snapshot as a JSON document.
	file string
}

// NewSnapshotService creates the snapshot builder. minSamples is the
// smallest group that gets outlier trimming; file may be empty.
func NewSnapshotService(source ActiveSource, dec *codec.Decoder, store repository.Store, minSamples int, file string) *SnapshotService {
	if minSamples <= 0 {
		minSamples = 4
	}
	return &SnapshotService{source: source, decoder: dec, store: store, minSamples: minSamples, file: file}
}

// priceGroup collects the asking prices observed for one item key.
type priceGroup struct {
	name   string
	prices []int64
}

// Run fetches the live window and replaces the snapshot table.
// Returns the number of item rows written.
func (s *SnapshotService) Run(ctx context.Context) (int, error) {
	result, err := s.source.FetchActiveAuctions(ctx)
	if err != nil {
		return 0, err
	}
	log.Printf("[snapshot] fetched %d listings over %d pages", len(result.Listings), result.Pages)

	groups := make(map[string]*priceGroup)
	for _, listing := range result.Listings {
		if !listing.BIN {
			continue
		}

		key, name := s.listingKey(ctx, listing)
		if key == "" {
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &priceGroup{name: name}
			groups[key] = g
		}
		g.prices = append(g.prices, listing.StartingBid)
	}

	now := time.Now().UTC()
	rows := make([]model.CurrentAverage, 0, len(groups))
	for key, g := range groups {
		kept := trimOutliers(g.prices, s.minSamples)
		if len(kept) == 0 {
			continue
		}
		var sum int64
		for _, p := range kept {
			sum += p
		}
		rows = append(rows, model.CurrentAverage{
			ItemKey:   key,
			Name:      g.name,
			Average:   float64(sum) / float64(len(kept)),
			Volume:    len(kept),
			UpdatedAt: now,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ItemKey < rows[j].ItemKey })

	if err := s.store.ReplaceCurrentAverages(ctx, rows); err != nil {
		return 0, runerror.Storage("failed to replace snapshot table", err)
	}

	if s.file != "" {
		if err := writeSnapshotFile(s.file, rows); err != nil {
			// The table is the source of truth; the mirror is best effort.
			log.Printf("[snapshot] failed to write mirror file: %v", err)
		}
	}

	return len(rows), nil
}

// listingKey derives the grouping key for one listing. Listings whose
// payload does not decode fall back to the plain display name, so they
// still group, just more coarsely.
func (s *SnapshotService) listingKey(ctx context.Context, listing model.ActiveListing) (key, name string) {
	if listing.ItemBytes != "" {
		if item, err := s.decoder.Decode(ctx, listing.ItemBytes); err == nil {
			return item.Identity.Key(), item.Identity.Name
		}
	}
	name = codec.StripColor(listing.ItemName)
	return name, name
}

// trimOutliers drops prices outside 1.5 IQR of the quartiles. Groups
// below minSamples are kept as-is; quartiles are plain index picks on
// the sorted slice.
func trimOutliers(prices []int64, minSamples int) []int64 {
	if len(prices) < minSamples {
		out := make([]int64, len(prices))
		copy(out, prices)
		return out
	}

	sorted := make([]int64, len(prices))
	copy(sorted, prices)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	q1 := float64(sorted[len(sorted)/4])
	q3 := float64(sorted[(3*len(sorted))/4])
	iqr := q3 - q1
	lower := q1 - 1.5*iqr
	upper := q3 + 1.5*iqr

	kept := make([]int64, 0, len(sorted))
	for _, p := range sorted {
		if float64(p) >= lower && float64(p) <= upper {
			kept = append(kept, p)
		}
	}
	return kept
}

// snapshotEntry is the per-item shape of the JSON mirror file.
type snapshotEntry struct {
	PlainItem string  `json:"plain_item"`
	Average   float64 `json:"average"`
	Volume    int     `json:"volume"`
}

// writeSnapshotFile mirrors the snapshot rows as a key-indexed JSON
// document, written atomically via a temp file.
func writeSnapshotFile(path string, rows []model.CurrentAverage) error {
	doc := make(map[string]snapshotEntry, len(rows))
	for _, row := range rows {
		doc[row.ItemKey] = snapshotEntry{PlainItem: row.Name, Average: row.Average, Volume: row.Volume}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}
	return nil
}
