// Package normalize converts raw upstream auction entries into
// canonical records, applying the sale filters.
package normalize

import (
	"context"
	"log"
	"time"

	"skyblock-ah-tracker/internal/codec"
	"skyblock-ah-tracker/internal/model"
)

// Stats counts what one normalization pass dropped.
type Stats struct {
	NoBuyer      int
	NotBIN       int
	DecodeFailed int
}

// Filtered is the number of entries dropped by the sale filters,
// excluding decode failures, which are reported on their own.
func (s Stats) Filtered() int {
	return s.NoBuyer + s.NotBIN
}

// Normalizer filters entries and builds records from them.
type Normalizer struct {
	dec *codec.Decoder
}

// New creates a Normalizer decoding payloads through dec.
func New(dec *codec.Decoder) *Normalizer {
	return &Normalizer{dec: dec}
}

// NormalizeBatch converts one fetched batch. Unsold entries and
// non-fixed-price sales are dropped. Only fixed-price sales are
// tracked; this is a deliberate policy choice, kept in one place so it
// stays easy to revisit. Entries whose payload fails decoding are
// logged, counted and skipped. Every produced record carries
// ingestedAt, the run's wall-clock start.
func (n *Normalizer) NormalizeBatch(ctx context.Context, entries []model.AuctionEntry, ingestedAt time.Time) ([]model.AuctionRecord, Stats) {
	records := make([]model.AuctionRecord, 0, len(entries))
	var stats Stats

	for _, e := range entries {
		if !e.Sold() {
			stats.NoBuyer++
			continue
		}
		if !e.BIN {
			stats.NotBIN++
			continue
		}

		item, err := n.dec.Decode(ctx, e.ItemBytes)
		if err != nil {
			stats.DecodeFailed++
			log.Printf("[normalize] skipping auction %s: %v", e.AuctionID, err)
			continue
		}

		records = append(records, model.AuctionRecord{
			AuctionID:  e.AuctionID,
			Item:       item.Identity,
			ItemKey:    item.Identity.Key(),
			Price:      e.Price,
			Quantity:   item.Quantity,
			EndedAt:    e.EndedAt(),
			IngestedAt: ingestedAt,
		})
	}

	return records, stats
}
