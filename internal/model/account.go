package model

// Account holds the cash side of one trading account. Mutated only through
// trade settlement; reads elsewhere receive copies.
type Account struct {
	ID          string `json:"id"`
	CashBalance int64  `json:"cash_balance"` // cents
	RealizedPnL int64  `json:"realized_pnl"` // cents, accumulated over closed trades
}
