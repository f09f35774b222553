package gateway

import (
	"errors"
	"net/http"
	"time"

	"papertrade/internal/auth"
	"papertrade/internal/ledger"
	"papertrade/internal/model"
)

// Wire DTOs. Money crosses the API as float dollars; everything behind
// the handlers is integer cents.

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code,omitempty"`
}

type authResponse struct {
	Token string  `json:"token"`
	User  userOut `json:"user"`
}

type userOut struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type tradeRequest struct {
	Symbol        string  `json:"symbol"`
	Type          string  `json:"type"` // "buy" or "sell"
	Quantity      int64   `json:"quantity"`
	Commission    float64 `json:"commission"`               // dollars
	SpreadPercent float64 `json:"spread_percent,omitempty"` // overrides server default
}

type tradeOut struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Type        string    `json:"type"`
	Quantity    int64     `json:"quantity"`
	Price       float64   `json:"price"`
	Commission  float64   `json:"commission"`
	RealizedPnL float64   `json:"realized_pnl"`
	ExecutedAt  time.Time `json:"executed_at"`
}

type stockOut struct {
	ID            string  `json:"id"`
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Sector        string  `json:"sector"`
	CurrentPrice  float64 `json:"current_price"`
	PreviousClose float64 `json:"previous_close"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Volume        int64   `json:"volume"`
	MarketCap     float64 `json:"market_cap"`
	PERatio       float64 `json:"pe_ratio"`
	DividendYield float64 `json:"dividend_yield"`
}

type positionOut struct {
	Symbol       string  `json:"stock_symbol"`
	Quantity     int64   `json:"quantity"`
	AveragePrice float64 `json:"average_price"`
}

type positionValueOut struct {
	Symbol        string  `json:"symbol"`
	Quantity      int64   `json:"quantity"`
	AveragePrice  float64 `json:"average_price"`
	MarkPrice     float64 `json:"mark_price"`
	CurrentValue  float64 `json:"current_value"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	PnLPercent    float64 `json:"pnl_percent"`
	Stale         bool    `json:"stale,omitempty"`
}

type valuationOut struct {
	CashBalance    float64            `json:"cash_balance"`
	RealizedPnL    float64            `json:"realized_pnl"`
	UnrealizedPnL  float64            `json:"unrealized_pnl"`
	TotalPnL       float64            `json:"total_pnl"`
	PositionsValue float64            `json:"positions_value"`
	AccountValue   float64            `json:"account_value"`
	Positions      []positionValueOut `json:"positions"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func newTradeOut(t model.Trade) tradeOut {
	return tradeOut{
		ID:          t.ID,
		Symbol:      t.Symbol,
		Type:        sideToType(t.Side),
		Quantity:    t.Qty,
		Price:       model.Dollars(t.Price),
		Commission:  model.Dollars(t.Commission),
		RealizedPnL: model.Dollars(t.RealizedPnL),
		ExecutedAt:  t.ExecutedAt,
	}
}

func newStockOut(in model.Instrument) stockOut {
	out := stockOut{
		ID:            in.Symbol,
		Symbol:        in.Symbol,
		Name:          in.Name,
		Sector:        in.Sector,
		CurrentPrice:  model.Dollars(in.CurrentPrice),
		PreviousClose: model.Dollars(in.PreviousClose),
		Change:        model.Dollars(in.CurrentPrice - in.PreviousClose),
		Volume:        in.Volume,
		MarketCap:     model.Dollars(in.MarketCap),
		PERatio:       in.PERatio,
		DividendYield: in.DividendYield,
	}
	if in.PreviousClose > 0 {
		out.ChangePercent = float64(in.CurrentPrice-in.PreviousClose) / float64(in.PreviousClose) * 100
	}
	return out
}

func newValuationOut(v ledger.Valuation) valuationOut {
	out := valuationOut{
		CashBalance:    model.Dollars(v.CashBalance),
		RealizedPnL:    model.Dollars(v.RealizedPnL),
		UnrealizedPnL:  model.Dollars(v.UnrealizedPnL),
		TotalPnL:       model.Dollars(v.TotalPnL),
		PositionsValue: model.Dollars(v.PositionsValue),
		AccountValue:   model.Dollars(v.AccountValue),
		Positions:      make([]positionValueOut, 0, len(v.Positions)),
	}
	for _, p := range v.Positions {
		out.Positions = append(out.Positions, positionValueOut{
			Symbol:        p.Symbol,
			Quantity:      p.Qty,
			AveragePrice:  model.Dollars(p.AvgCost),
			MarkPrice:     model.Dollars(p.MarkPrice),
			CurrentValue:  model.Dollars(p.CurrentValue),
			UnrealizedPnL: model.Dollars(p.UnrealizedPnL),
			PnLPercent:    p.PnLPercent,
			Stale:         p.Stale,
		})
	}
	return out
}

func sideToType(s model.Side) string {
	if s == model.SideSell {
		return "sell"
	}
	return "buy"
}

// statusForError maps domain errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInsufficientPosition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrUnknownAccount):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrTOTPRequired),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrUserExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
