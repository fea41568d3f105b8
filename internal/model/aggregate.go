package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ItemAggregate is the running price statistics row for one item key.
// Created on the first observed sale of an identity, then mutated in
// place inside the ingestion transaction on every later sale.
type ItemAggregate struct {
	ItemKey   string          `json:"key"`
	Name      string          `json:"name"`
	Tier      string          `json:"tier,omitempty"`
	Count     int64           `json:"count"`
	Sum       decimal.Decimal `json:"sum"`
	Min       int64           `json:"min"`
	Max       int64           `json:"max"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewItemAggregate seeds the statistics from the first observed sale.
func NewItemAggregate(rec AuctionRecord, now time.Time) ItemAggregate {
	return ItemAggregate{
		ItemKey:   rec.ItemKey,
		Name:      rec.Item.Name,
		Tier:      rec.Item.Tier,
		Count:     1,
		Sum:       decimal.NewFromInt(rec.Price),
		Min:       rec.Price,
		Max:       rec.Price,
		UpdatedAt: now,
	}
}

// Apply folds one more sale into the statistics.
func (a *ItemAggregate) Apply(price int64, now time.Time) {
	a.Count++
	a.Sum = a.Sum.Add(decimal.NewFromInt(price))
	if price < a.Min {
		a.Min = price
	}
	if price > a.Max {
		a.Max = price
	}
	a.UpdatedAt = now
}

// Average derives the mean sale price from sum and count. It is never
// stored.
func (a ItemAggregate) Average() decimal.Decimal {
	if a.Count == 0 {
		return decimal.Zero
	}
	return a.Sum.Div(decimal.NewFromInt(a.Count))
}

// CurrentAverage is one row of the live-auction snapshot table. The
// whole table is replaced on every snapshot.
type CurrentAverage struct {
	ItemKey   string    `json:"key"`
	Name      string    `json:"name"`
	Average   float64   `json:"average"`
	Volume    int       `json:"volume"`
	UpdatedAt time.Time `json:"updated_at"`
}
