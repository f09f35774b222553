package model

// Position represents an account's holding in one instrument.
type Position struct {
	AccountID string `json:"account_id"`
	Symbol    string `json:"symbol"`
	Qty       int64  `json:"qty"`
	AvgCost   int64  `json:"avg_cost"` // volume-weighted buy price in cents; 0 when flat
}

// UnrealizedPnL computes the open profit/loss in cents at the given price.
func (p *Position) UnrealizedPnL(currentPrice int64) int64 {
	return (currentPrice - p.AvgCost) * p.Qty
}

// CurrentValue returns the market value of the position in cents.
func (p *Position) CurrentValue(currentPrice int64) int64 {
	return currentPrice * p.Qty
}

// Key returns a unique key for this position: "account:symbol".
func (p *Position) Key() string {
	return p.AccountID + ":" + p.Symbol
}
