package model

import "time"

// Tick is a single reference-price update from the feed engine.
// Price is stored as int64 cents to avoid float drift.
type Tick struct {
	Symbol string    `json:"symbol"`
	Price  int64     `json:"price"` // cents
	TS     time.Time `json:"ts"`    // UTC timestamp
}
