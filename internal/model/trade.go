package model

import "time"

// Trade is the immutable record of a committed order. Corrections require a
// new offsetting trade, never a mutation.
type Trade struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Qty         int64     `json:"qty"`
	Price       int64     `json:"price"`        // fill price in cents, spread applied
	Commission  int64     `json:"commission"`   // cents
	RealizedPnL int64     `json:"realized_pnl"` // cents, 0 for buys
	ExecutedAt  time.Time `json:"executed_at"`
}
