package ledger

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"papertrade/internal/model"
)

// PositionLedger tracks per-(account, instrument) holdings with
// volume-weighted average cost accounting. It owns quantities and cost
// basis only; realized P&L is reported back to the caller and settled by
// the AccountLedger.
type PositionLedger struct {
	mu        sync.RWMutex
	positions map[string]*model.Position // key = "account:symbol"
}

// NewPositionLedger creates an empty position ledger.
func NewPositionLedger() *PositionLedger {
	return &PositionLedger{
		positions: make(map[string]*model.Position),
	}
}

// ApplyFill applies an executed fill to the account's position.
//
// Buy: quantity is added and the average cost becomes the volume-weighted
// average of the prior basis and this fill (integer division, cent
// precision).
//
// Sell: fails with ErrInsufficientPosition if qty exceeds the held amount.
// Otherwise quantity is reduced, the average cost is left unchanged, and
// the realized delta (price - avgCost) * qty is returned. A position that
// reaches zero clears its average cost so a later buy starts a fresh lot.
//
// Returns the updated position and, for sells, the realized P&L delta.
func (l *PositionLedger) ApplyFill(accountID, symbol string, side model.Side, qty, price int64) (model.Position, int64, error) {
	if qty <= 0 {
		return model.Position{}, 0, fmt.Errorf("%w: fill qty must be positive, got %d", ErrInvalidInput, qty)
	}
	if price <= 0 {
		return model.Position{}, 0, fmt.Errorf("%w: fill price must be positive, got %d", ErrInvalidInput, price)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := accountID + ":" + symbol
	pos, ok := l.positions[key]
	if !ok {
		pos = &model.Position{AccountID: accountID, Symbol: symbol}
		l.positions[key] = pos
	}

	switch side {
	case model.SideBuy:
		newQty := pos.Qty + qty
		if newQty < pos.Qty {
			return model.Position{}, 0, fmt.Errorf("%w: fill of %d overflows held qty %d", ErrInvalidInput, qty, pos.Qty)
		}
		fillCost, err := Notional(qty, price)
		if err != nil {
			return model.Position{}, 0, err
		}
		if pos.AvgCost > 0 && pos.Qty > math.MaxInt64/pos.AvgCost {
			return model.Position{}, 0, fmt.Errorf("%w: cost basis of %d at avg %d does not fit in 64 bits", ErrInvalidInput, pos.Qty, pos.AvgCost)
		}
		basis := pos.Qty * pos.AvgCost
		if fillCost > math.MaxInt64-basis {
			return model.Position{}, 0, fmt.Errorf("%w: cost basis overflows adding fill worth %d", ErrInvalidInput, fillCost)
		}
		// Weighted average of the existing basis and this fill.
		pos.AvgCost = (basis + fillCost) / newQty
		pos.Qty = newQty
		return *pos, 0, nil

	case model.SideSell:
		if qty > pos.Qty {
			return model.Position{}, 0, fmt.Errorf("%w: sell %d exceeds held %d %s", ErrInsufficientPosition, qty, pos.Qty, symbol)
		}
		realized := (price - pos.AvgCost) * qty
		pos.Qty -= qty
		if pos.Qty == 0 {
			// Closed. Clearing the basis prevents a stale average cost
			// from leaking into a reopened position.
			pos.AvgCost = 0
		}
		return *pos, realized, nil

	default:
		return model.Position{}, 0, fmt.Errorf("%w: unknown side %q", ErrInvalidInput, side)
	}
}

// Get returns a copy of the position, reporting whether it exists with a
// non-zero quantity.
func (l *PositionLedger) Get(accountID, symbol string) (model.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[accountID+":"+symbol]
	if !ok || pos.Qty == 0 {
		return model.Position{}, false
	}
	return *pos, true
}

// Positions returns the account's open positions sorted by symbol.
// Zero-quantity records are filtered out.
func (l *PositionLedger) Positions(accountID string) []model.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]model.Position, 0, 8)
	for _, pos := range l.positions {
		if pos.AccountID == accountID && pos.Qty > 0 {
			result = append(result, *pos)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result
}

// Restore loads a persisted position at startup. Zero-quantity rows are
// ignored.
func (l *PositionLedger) Restore(pos model.Position) {
	if pos.Qty == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := pos
	l.positions[pos.Key()] = &cp
}
