package model

// Instrument represents a tradeable stock/symbol.
// CurrentPrice is the reference price refreshed by the feed engine; the
// ledger never mutates it.
type Instrument struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Sector        string  `json:"sector"`
	CurrentPrice  int64   `json:"current_price"`  // cents
	PreviousClose int64   `json:"previous_close"` // cents
	Volume        int64   `json:"volume"`
	MarketCap     int64   `json:"market_cap"` // cents
	PERatio       float64 `json:"pe_ratio"`
	DividendYield float64 `json:"dividend_yield"`
}
