// Package pricefeed owns the tradeable instrument universe and the
// synthetic price process that drives it.
package pricefeed

import (
	"sort"
	"sync"

	"papertrade/internal/model"
)

// Catalog is the in-memory instrument universe. Reads come from API
// handlers and the valuator; writes come from the price feed only.
type Catalog struct {
	mu          sync.RWMutex
	instruments map[string]*model.Instrument
	symbols     []string // sorted, fixed at construction
}

// NewCatalog builds a catalog from the loaded instrument universe.
func NewCatalog(instruments []model.Instrument) *Catalog {
	c := &Catalog{
		instruments: make(map[string]*model.Instrument, len(instruments)),
		symbols:     make([]string, 0, len(instruments)),
	}
	for _, in := range instruments {
		cp := in
		c.instruments[in.Symbol] = &cp
		c.symbols = append(c.symbols, in.Symbol)
	}
	sort.Strings(c.symbols)
	return c
}

// Symbols returns the universe in sorted order.
func (c *Catalog) Symbols() []string {
	out := make([]string, len(c.symbols))
	copy(out, c.symbols)
	return out
}

// List returns a snapshot of all instruments sorted by symbol.
func (c *Catalog) List() []model.Instrument {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Instrument, 0, len(c.symbols))
	for _, sym := range c.symbols {
		out = append(out, *c.instruments[sym])
	}
	return out
}

// Get returns one instrument by symbol.
func (c *Catalog) Get(symbol string) (model.Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	in, ok := c.instruments[symbol]
	if !ok {
		return model.Instrument{}, false
	}
	return *in, true
}

// Price returns the current reference price for a symbol, in cents.
func (c *Catalog) Price(symbol string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	in, ok := c.instruments[symbol]
	if !ok {
		return 0, false
	}
	return in.CurrentPrice, true
}

// Prices returns a symbol -> current price snapshot for valuation.
func (c *Catalog) Prices() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]int64, len(c.instruments))
	for sym, in := range c.instruments {
		out[sym] = in.CurrentPrice
	}
	return out
}

// SetPrice updates the reference price for a symbol. Unknown symbols and
// non-positive prices are ignored.
func (c *Catalog) SetPrice(symbol string, price int64) bool {
	if price <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	in, ok := c.instruments[symbol]
	if !ok {
		return false
	}
	in.CurrentPrice = price
	return true
}
