package model

import "fmt"

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide accepts "buy"/"BUY"/"sell"/"SELL".
func ParseSide(s string) (Side, error) {
	switch s {
	case "buy", "BUY":
		return SideBuy, nil
	case "sell", "SELL":
		return SideSell, nil
	}
	return "", fmt.Errorf("unknown order side %q", s)
}

// Order is a trade request. It is ephemeral: it either becomes a Trade or
// is rejected, and is never persisted on its own.
type Order struct {
	Symbol     string `json:"symbol"`
	Side       Side   `json:"side"`
	Qty        int64  `json:"qty"`
	Commission int64  `json:"commission"` // cents
	SpreadBps  int64  `json:"spread_bps"` // synthetic bid/ask spread in basis points
}
