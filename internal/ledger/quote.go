package ledger

import (
	"fmt"
	"math"
)

// Quote holds the executable buy/sell prices derived from a reference
// price and a synthetic spread. All values are cents.
type Quote struct {
	Buy  int64 `json:"buy_price"`
	Sell int64 `json:"sell_price"`
}

// ComputeQuote derives executable prices around a reference price.
// spreadBps is the half-spread in basis points: buy = ref + ref*bps/10000,
// sell = ref - ref*bps/10000, so sell <= ref <= buy always holds, with
// equality iff spreadBps is 0. spreadBps past 10000 (the full reference
// price) would push the sell side to zero or below and is rejected.
//
// Pure function; safe to call unsynchronized.
func ComputeQuote(refPrice, spreadBps int64) (Quote, error) {
	if refPrice <= 0 {
		return Quote{}, fmt.Errorf("%w: reference price must be positive, got %d", ErrInvalidInput, refPrice)
	}
	if spreadBps < 0 {
		return Quote{}, fmt.Errorf("%w: spread must not be negative, got %d bps", ErrInvalidInput, spreadBps)
	}
	if spreadBps > 10000 {
		return Quote{}, fmt.Errorf("%w: spread %d bps exceeds the full reference price", ErrInvalidInput, spreadBps)
	}
	spread := refPrice * spreadBps / 10000
	return Quote{
		Buy:  refPrice + spread,
		Sell: refPrice - spread,
	}, nil
}

// Notional returns qty*price in cents. Quantities arrive as raw int64
// from clients, so the product is checked: a value that does not fit in
// 64 bits is rejected instead of wrapping.
func Notional(qty, price int64) (int64, error) {
	if qty <= 0 || price <= 0 {
		return 0, fmt.Errorf("%w: notional requires positive qty and price, got %d x %d", ErrInvalidInput, qty, price)
	}
	if qty > math.MaxInt64/price {
		return 0, fmt.Errorf("%w: notional %d x %d does not fit in 64 bits", ErrInvalidInput, qty, price)
	}
	return qty * price, nil
}
