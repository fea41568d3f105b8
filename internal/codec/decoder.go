package codec

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync/atomic"
	"time"

	"skyblock-ah-tracker/internal/cache"
	"skyblock-ah-tracker/internal/model"
)

// Decoder decodes payloads through an optional result cache. A nil
// cache means every call decodes from scratch.
type Decoder struct {
	cache cache.Cache
	ttl   time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// NewDecoder wraps the cache backend; c may be nil.
func NewDecoder(c cache.Cache, ttl time.Duration) *Decoder {
	return &Decoder{cache: c, ttl: ttl}
}

// Decode resolves one payload, consulting the cache first. Cache
// backend failures fall through to a fresh decode; they never fail the
// payload.
func (d *Decoder) Decode(ctx context.Context, itemBytes string) (model.DecodedItem, error) {
	if d.cache == nil {
		return Decode(itemBytes)
	}

	key := payloadKey(itemBytes)
	if data, err := d.cache.Get(ctx, key); err == nil {
		var item model.DecodedItem
		if err := json.Unmarshal(data, &item); err == nil {
			d.hits.Add(1)
			return item, nil
		}
	}
	d.misses.Add(1)

	item, err := Decode(itemBytes)
	if err != nil {
		return model.DecodedItem{}, err
	}
	if data, err := json.Marshal(item); err == nil {
		_ = d.cache.Set(ctx, key, data, d.ttl)
	}
	return item, nil
}

// Stats reports cache hits and misses since construction.
func (d *Decoder) Stats() (hits, misses int64) {
	return d.hits.Load(), d.misses.Load()
}

// payloadKey derives the cache key from the payload bytes themselves,
// so equal payloads share an entry regardless of auction.
func payloadKey(itemBytes string) string {
	sum := sha256.Sum256([]byte(itemBytes))
	return "decode:" + hex.EncodeToString(sum[:])
}
