package ledger

// PositionValue is one open position marked against the latest price.
// Stale positions had no price available; their market fields are zero
// and they are excluded from the valuation totals.
type PositionValue struct {
	Symbol        string  `json:"symbol"`
	Qty           int64   `json:"qty"`
	AvgCost       int64   `json:"avgCost"`
	MarkPrice     int64   `json:"markPrice"`
	CurrentValue  int64   `json:"currentValue"`
	UnrealizedPnL int64   `json:"unrealizedPnl"`
	PnLPercent    float64 `json:"pnlPercent"`
	Stale         bool    `json:"stale,omitempty"`
}

// Valuation is a point-in-time snapshot of an account: cash, every open
// position marked to market, and the aggregate P&L split into realized
// and unrealized.
type Valuation struct {
	AccountID      string          `json:"accountId"`
	CashBalance    int64           `json:"cashBalance"`
	Positions      []PositionValue `json:"positions"`
	RealizedPnL    int64           `json:"realizedPnl"`
	UnrealizedPnL  int64           `json:"unrealizedPnl"`
	TotalPnL       int64           `json:"totalPnl"`
	PositionsValue int64           `json:"positionsValue"`
	AccountValue   int64           `json:"accountValue"`
	StalePositions int             `json:"stalePositions,omitempty"`
}

// Valuator marks accounts to market. It only reads the two ledgers, so a
// valuation never blocks the executor beyond the ledgers' own read locks.
type Valuator struct {
	positions *PositionLedger
	accounts  *AccountLedger
}

func NewValuator(positions *PositionLedger, accounts *AccountLedger) *Valuator {
	return &Valuator{positions: positions, accounts: accounts}
}

// Valuate snapshots the account against the given latest prices, keyed by
// symbol in cents. Positions with no price are reported stale and left out
// of the totals rather than valued at a bogus zero.
func (v *Valuator) Valuate(accountID string, prices map[string]int64) (Valuation, error) {
	acct, err := v.accounts.Get(accountID)
	if err != nil {
		return Valuation{}, err
	}

	val := Valuation{
		AccountID:   accountID,
		CashBalance: acct.CashBalance,
		RealizedPnL: acct.RealizedPnL,
		Positions:   []PositionValue{},
	}

	for _, pos := range v.positions.Positions(accountID) {
		pv := PositionValue{
			Symbol:  pos.Symbol,
			Qty:     pos.Qty,
			AvgCost: pos.AvgCost,
		}
		price, ok := prices[pos.Symbol]
		if !ok || price <= 0 {
			pv.Stale = true
			val.StalePositions++
			val.Positions = append(val.Positions, pv)
			continue
		}
		pv.MarkPrice = price
		pv.CurrentValue = pos.CurrentValue(price)
		pv.UnrealizedPnL = pos.UnrealizedPnL(price)
		if cost := pos.Qty * pos.AvgCost; cost != 0 {
			pv.PnLPercent = float64(pv.UnrealizedPnL) / float64(cost) * 100
		}
		val.PositionsValue += pv.CurrentValue
		val.UnrealizedPnL += pv.UnrealizedPnL
		val.Positions = append(val.Positions, pv)
	}

	val.TotalPnL = val.RealizedPnL + val.UnrealizedPnL
	val.AccountValue = val.CashBalance + val.PositionsValue
	return val, nil
}
