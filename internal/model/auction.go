package model

import "time"

// AuctionPage represents one page of the ended-auctions endpoint.
// Single-page responses may omit page metadata entirely.
type AuctionPage struct {
	Success     bool           `json:"success"`
	Page        int            `json:"page"`
	TotalPages  int            `json:"totalPages"`
	LastUpdated int64          `json:"lastUpdated"`
	Auctions    []AuctionEntry `json:"auctions"`
}

// AuctionEntry is the upstream shape of a single ended auction.
// Timestamp is epoch milliseconds, as served by the API.
type AuctionEntry struct {
	AuctionID string  `json:"auction_id"`
	ItemBytes string  `json:"item_bytes"`
	Price     int64   `json:"price"`
	Buyer     *string `json:"buyer"`
	BIN       bool    `json:"bin"`
	Timestamp int64   `json:"timestamp"`
}

// Sold reports whether the auction concluded with a buyer.
func (e AuctionEntry) Sold() bool {
	return e.Buyer != nil && *e.Buyer != ""
}

// EndedAt converts the upstream millisecond timestamp to UTC.
func (e AuctionEntry) EndedAt() time.Time {
	return time.UnixMilli(e.Timestamp).UTC()
}

// AuctionRecord is the persisted form of a qualifying sale. Rows are
// append-only: written once by an ingestion run, never mutated.
type AuctionRecord struct {
	AuctionID  string       `json:"auction_id"`
	Item       ItemIdentity `json:"item"`
	ItemKey    string       `json:"item_key"`
	Price      int64        `json:"price"`
	Quantity   int32        `json:"quantity"`
	EndedAt    time.Time    `json:"ended_at"`
	IngestedAt time.Time    `json:"ingested_at"`
}

// ActivePage represents one page of the live-auctions endpoint.
type ActivePage struct {
	Success     bool            `json:"success"`
	Page        int             `json:"page"`
	TotalPages  int             `json:"totalPages"`
	LastUpdated int64           `json:"lastUpdated"`
	Auctions    []ActiveListing `json:"auctions"`
}

// ActiveListing is the upstream shape of a live auction. Only BIN
// listings carry a meaningful asking price for snapshot purposes.
type ActiveListing struct {
	UUID        string `json:"uuid"`
	ItemName    string `json:"item_name"`
	ItemBytes   string `json:"item_bytes"`
	StartingBid int64  `json:"starting_bid"`
	BIN         bool   `json:"bin"`
}
