package ledger

import (
	"context"
	"errors"
	"testing"

	"papertrade/internal/model"
)

func TestValuate(t *testing.T) {
	exec, _, positions, accounts := newTestExecutor(10_000_000)
	v := NewValuator(positions, accounts)
	ctx := context.Background()

	exec.Execute(ctx, "acc1", model.Order{Symbol: "AAPL", Side: model.SideBuy, Qty: 100}, 15000)
	exec.Execute(ctx, "acc1", model.Order{Symbol: "AAPL", Side: model.SideBuy, Qty: 50}, 16000)
	exec.Execute(ctx, "acc1", model.Order{Symbol: "AAPL", Side: model.SideSell, Qty: 120}, 17000)
	exec.Execute(ctx, "acc1", model.Order{Symbol: "TSLA", Side: model.SideBuy, Qty: 10}, 20000)

	val, err := v.Valuate("acc1", map[string]int64{"AAPL": 17500, "TSLA": 19000})
	if err != nil {
		t.Fatalf("Valuate: %v", err)
	}

	if val.CashBalance != 9_740_000-200_000 {
		t.Errorf("cash=%d, want %d", val.CashBalance, 9_740_000-200_000)
	}
	if val.RealizedPnL != 200_040 {
		t.Errorf("realized=%d, want 200_040", val.RealizedPnL)
	}
	if len(val.Positions) != 2 {
		t.Fatalf("got %d positions, want 2", len(val.Positions))
	}

	aapl, tsla := val.Positions[0], val.Positions[1]
	if aapl.Symbol != "AAPL" || tsla.Symbol != "TSLA" {
		t.Fatalf("positions not sorted: %s, %s", aapl.Symbol, tsla.Symbol)
	}
	if want := int64(17500-15333) * 30; aapl.UnrealizedPnL != want {
		t.Errorf("AAPL unrealized=%d, want %d", aapl.UnrealizedPnL, want)
	}
	if want := int64(19000-20000) * 10; tsla.UnrealizedPnL != want {
		t.Errorf("TSLA unrealized=%d, want %d", tsla.UnrealizedPnL, want)
	}
	if aapl.CurrentValue != 17500*30 || tsla.CurrentValue != 19000*10 {
		t.Errorf("current values: %d/%d", aapl.CurrentValue, tsla.CurrentValue)
	}
	if tsla.PnLPercent != -5.0 {
		t.Errorf("TSLA pnl%%=%v, want -5", tsla.PnLPercent)
	}

	wantUnrealized := int64(17500-15333)*30 + int64(19000-20000)*10
	if val.UnrealizedPnL != wantUnrealized {
		t.Errorf("total unrealized=%d, want %d", val.UnrealizedPnL, wantUnrealized)
	}
	if val.TotalPnL != val.RealizedPnL+val.UnrealizedPnL {
		t.Errorf("total=%d, want realized+unrealized=%d", val.TotalPnL, val.RealizedPnL+val.UnrealizedPnL)
	}
	if val.AccountValue != val.CashBalance+val.PositionsValue {
		t.Errorf("account value=%d, want cash+positions=%d", val.AccountValue, val.CashBalance+val.PositionsValue)
	}
}

func TestValuateStaleSymbolExcludedFromTotals(t *testing.T) {
	exec, _, positions, accounts := newTestExecutor(10_000_000)
	v := NewValuator(positions, accounts)
	ctx := context.Background()

	exec.Execute(ctx, "acc1", model.Order{Symbol: "AAPL", Side: model.SideBuy, Qty: 10}, 15000)
	exec.Execute(ctx, "acc1", model.Order{Symbol: "TSLA", Side: model.SideBuy, Qty: 5}, 20000)

	val, err := v.Valuate("acc1", map[string]int64{"AAPL": 16000})
	if err != nil {
		t.Fatalf("Valuate: %v", err)
	}
	if val.StalePositions != 1 {
		t.Errorf("stale count=%d, want 1", val.StalePositions)
	}
	if len(val.Positions) != 2 {
		t.Fatalf("stale position dropped from listing")
	}
	tsla := val.Positions[1]
	if !tsla.Stale || tsla.MarkPrice != 0 || tsla.CurrentValue != 0 {
		t.Errorf("stale position valued: %+v", tsla)
	}
	if val.UnrealizedPnL != (16000-15000)*10 {
		t.Errorf("unrealized=%d, want AAPL only", val.UnrealizedPnL)
	}
	if val.PositionsValue != 16000*10 {
		t.Errorf("positions value=%d, want AAPL only", val.PositionsValue)
	}
}

// After closing everything out, the valuation collapses to cash plus
// realized P&L with nothing unrealized.
func TestValuateFlatAccount(t *testing.T) {
	exec, _, positions, accounts := newTestExecutor(10_000_000)
	v := NewValuator(positions, accounts)
	ctx := context.Background()

	exec.Execute(ctx, "acc1", model.Order{Symbol: "AAPL", Side: model.SideBuy, Qty: 10}, 15000)
	exec.Execute(ctx, "acc1", model.Order{Symbol: "AAPL", Side: model.SideSell, Qty: 10}, 16000)

	val, err := v.Valuate("acc1", map[string]int64{"AAPL": 17000})
	if err != nil {
		t.Fatalf("Valuate: %v", err)
	}
	if len(val.Positions) != 0 {
		t.Errorf("flat account lists positions: %+v", val.Positions)
	}
	if val.UnrealizedPnL != 0 || val.TotalPnL != val.RealizedPnL {
		t.Errorf("flat account P&L: unrealized=%d total=%d realized=%d", val.UnrealizedPnL, val.TotalPnL, val.RealizedPnL)
	}
	if val.RealizedPnL != 10_000 {
		t.Errorf("realized=%d, want 10_000", val.RealizedPnL)
	}
	if val.AccountValue != 10_010_000 {
		t.Errorf("account value=%d, want 10_010_000", val.AccountValue)
	}
}

func TestValuateUnknownAccount(t *testing.T) {
	v := NewValuator(NewPositionLedger(), NewAccountLedger())
	if _, err := v.Valuate("ghost", nil); !errors.Is(err, ErrUnknownAccount) {
		t.Errorf("got %v, want ErrUnknownAccount", err)
	}
}
