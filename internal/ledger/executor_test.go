package ledger

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"papertrade/internal/model"
)

type captureJournal struct {
	mu      sync.Mutex
	commits []Commit
}

func (j *captureJournal) Record(c Commit) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.commits = append(j.commits, c)
}

func newTestExecutor(startingCash int64) (*Executor, *captureJournal, *PositionLedger, *AccountLedger) {
	positions := NewPositionLedger()
	accounts := NewAccountLedger()
	accounts.Open("acc1", startingCash)
	journal := &captureJournal{}
	return NewExecutor(positions, accounts, journal, nil, nil, nil), journal, positions, accounts
}

// Walks an account through buy, average-down, and partial sell, checking
// cash, basis, and realized P&L at every step.
func TestExecuteRoundTrip(t *testing.T) {
	exec, journal, positions, accounts := newTestExecutor(10_000_000)
	ctx := context.Background()

	buy := func(qty, ref int64) model.Trade {
		t.Helper()
		trade, err := exec.Execute(ctx, "acc1", model.Order{Symbol: "AAPL", Side: model.SideBuy, Qty: qty}, ref)
		if err != nil {
			t.Fatalf("buy %d @ %d: %v", qty, ref, err)
		}
		return trade
	}

	buy(100, 15000)
	if acct, _ := accounts.Get("acc1"); acct.CashBalance != 8_500_000 {
		t.Fatalf("cash after first buy: %d, want 8_500_000", acct.CashBalance)
	}

	buy(50, 16000)
	if acct, _ := accounts.Get("acc1"); acct.CashBalance != 7_700_000 {
		t.Fatalf("cash after second buy: %d, want 7_700_000", acct.CashBalance)
	}
	if pos, _ := positions.Get("acc1", "AAPL"); pos.Qty != 150 || pos.AvgCost != 15333 {
		t.Fatalf("position after buys: qty=%d avg=%d, want 150/15333", pos.Qty, pos.AvgCost)
	}

	trade, err := exec.Execute(ctx, "acc1", model.Order{Symbol: "AAPL", Side: model.SideSell, Qty: 120}, 17000)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if trade.RealizedPnL != 200_040 {
		t.Errorf("trade realized=%d, want 200_040", trade.RealizedPnL)
	}

	acct, _ := accounts.Get("acc1")
	if acct.CashBalance != 9_740_000 {
		t.Errorf("cash after sell: %d, want 9_740_000", acct.CashBalance)
	}
	if acct.RealizedPnL != 200_040 {
		t.Errorf("account realized: %d, want 200_040", acct.RealizedPnL)
	}
	if pos, _ := positions.Get("acc1", "AAPL"); pos.Qty != 30 || pos.AvgCost != 15333 {
		t.Errorf("remainder: qty=%d avg=%d, want 30/15333", pos.Qty, pos.AvgCost)
	}

	journal.mu.Lock()
	defer journal.mu.Unlock()
	if len(journal.commits) != 3 {
		t.Fatalf("journal got %d commits, want 3", len(journal.commits))
	}
	last := journal.commits[2]
	if last.Trade.ID == "" {
		t.Error("committed trade has no ID")
	}
	if last.Account.CashBalance != 9_740_000 || last.Position.Qty != 30 {
		t.Errorf("journal snapshot out of sync: acct=%+v pos=%+v", last.Account, last.Position)
	}
}

func TestExecuteAppliesSpread(t *testing.T) {
	exec, _, positions, accounts := newTestExecutor(10_000_000)
	ctx := context.Background()

	trade, err := exec.Execute(ctx, "acc1", model.Order{Symbol: "AAPL", Side: model.SideBuy, Qty: 10, SpreadBps: 5}, 15000)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if trade.Price != 15007 {
		t.Errorf("buy fill price=%d, want 15007 (ref + 5 bps)", trade.Price)
	}
	if pos, _ := positions.Get("acc1", "AAPL"); pos.AvgCost != 15007 {
		t.Errorf("basis=%d, want 15007", pos.AvgCost)
	}

	trade, err = exec.Execute(ctx, "acc1", model.Order{Symbol: "AAPL", Side: model.SideSell, Qty: 10, SpreadBps: 5}, 15000)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if trade.Price != 14993 {
		t.Errorf("sell fill price=%d, want 14993 (ref - 5 bps)", trade.Price)
	}
	// Round trip at a flat reference price loses exactly the full spread.
	if acct, _ := accounts.Get("acc1"); acct.RealizedPnL != -140 {
		t.Errorf("round-trip realized=%d, want -140", acct.RealizedPnL)
	}
}

func TestExecuteCommissionChargedOnce(t *testing.T) {
	exec, _, _, accounts := newTestExecutor(10_000_000)
	ctx := context.Background()

	if _, err := exec.Execute(ctx, "acc1", model.Order{Symbol: "AAPL", Side: model.SideBuy, Qty: 10, Commission: 500}, 15000); err != nil {
		t.Fatalf("buy: %v", err)
	}
	acct, _ := accounts.Get("acc1")
	if acct.CashBalance != 10_000_000-150_000-500 {
		t.Fatalf("cash after buy: %d, want %d", acct.CashBalance, 10_000_000-150_000-500)
	}

	trade, err := exec.Execute(ctx, "acc1", model.Order{Symbol: "AAPL", Side: model.SideSell, Qty: 10, Commission: 500}, 16000)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	acct, _ = accounts.Get("acc1")
	if acct.CashBalance != 10_000_000-150_000-500+160_000-500 {
		t.Errorf("cash after sell: %d", acct.CashBalance)
	}
	// Realized P&L is basis vs fill price; commission hits cash only.
	if trade.RealizedPnL != (16000-15000)*10 {
		t.Errorf("realized=%d, want %d", trade.RealizedPnL, (16000-15000)*10)
	}
}

func TestExecuteRejectionsLeaveStateUntouched(t *testing.T) {
	exec, journal, positions, accounts := newTestExecutor(1_000_000)
	ctx := context.Background()

	if _, err := exec.Execute(ctx, "acc1", model.Order{Symbol: "AAPL", Side: model.SideBuy, Qty: 10}, 15000); err != nil {
		t.Fatalf("setup buy: %v", err)
	}
	before, _ := accounts.Get("acc1")
	posBefore, _ := positions.Get("acc1", "AAPL")

	cases := []struct {
		name  string
		order model.Order
		ref   int64
		want  error
	}{
		{"insufficient funds", model.Order{Symbol: "AAPL", Side: model.SideBuy, Qty: 1000}, 15000, ErrInsufficientFunds},
		{"insufficient position", model.Order{Symbol: "AAPL", Side: model.SideSell, Qty: 11}, 15000, ErrInsufficientPosition},
		{"unheld symbol", model.Order{Symbol: "TSLA", Side: model.SideSell, Qty: 1}, 20000, ErrInsufficientPosition},
		{"zero qty", model.Order{Symbol: "AAPL", Side: model.SideBuy, Qty: 0}, 15000, ErrInvalidInput},
		{"bad side", model.Order{Symbol: "AAPL", Side: model.Side("HOLD"), Qty: 1}, 15000, ErrInvalidInput},
		{"empty symbol", model.Order{Side: model.SideBuy, Qty: 1}, 15000, ErrInvalidInput},
		{"bad ref price", model.Order{Symbol: "AAPL", Side: model.SideBuy, Qty: 1}, 0, ErrInvalidInput},
		{"negative commission", model.Order{Symbol: "AAPL", Side: model.SideBuy, Qty: 1, Commission: -1}, 15000, ErrInvalidInput},
		{"commission eats proceeds", model.Order{Symbol: "AAPL", Side: model.SideSell, Qty: 1, Commission: 15000}, 15000, ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := exec.Execute(ctx, "acc1", tc.order, tc.ref); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
			acct, _ := accounts.Get("acc1")
			if acct != before {
				t.Errorf("account changed: %+v -> %+v", before, acct)
			}
			pos, _ := positions.Get("acc1", "AAPL")
			if pos != posBefore {
				t.Errorf("position changed: %+v -> %+v", posBefore, pos)
			}
		})
	}

	if _, err := exec.Execute(ctx, "ghost", model.Order{Symbol: "AAPL", Side: model.SideBuy, Qty: 1}, 15000); !errors.Is(err, ErrUnknownAccount) {
		t.Errorf("unknown account: got %v, want ErrUnknownAccount", err)
	}

	journal.mu.Lock()
	defer journal.mu.Unlock()
	if len(journal.commits) != 1 {
		t.Errorf("rejected orders reached the journal: %d commits, want 1", len(journal.commits))
	}
}

// A quantity large enough that qty*price wraps int64 would otherwise slip
// past the funds check as a tiny positive cost and mint a huge position
// for pennies. Such orders must be rejected with both ledgers untouched.
func TestExecuteRejectsOverflowingQty(t *testing.T) {
	exec, journal, positions, accounts := newTestExecutor(10_000_000)
	ctx := context.Background()

	// 1_229_782_938_247_310 * 15000 wraps to a small positive value.
	orders := []model.Order{
		{Symbol: "AAPL", Side: model.SideBuy, Qty: 1_229_782_938_247_310},
		{Symbol: "AAPL", Side: model.SideBuy, Qty: math.MaxInt64},
		{Symbol: "AAPL", Side: model.SideSell, Qty: 1_229_782_938_247_310},
		{Symbol: "AAPL", Side: model.SideBuy, Qty: math.MaxInt64 / 15000, Commission: math.MaxInt64},
	}
	for _, order := range orders {
		if _, err := exec.Execute(ctx, "acc1", order, 15000); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s qty=%d commission=%d: got %v, want ErrInvalidInput", order.Side, order.Qty, order.Commission, err)
		}
	}

	if acct, _ := accounts.Get("acc1"); acct.CashBalance != 10_000_000 {
		t.Errorf("cash=%d, want 10_000_000 untouched", acct.CashBalance)
	}
	if _, ok := positions.Get("acc1", "AAPL"); ok {
		t.Error("position opened by a rejected order")
	}
	journal.mu.Lock()
	defer journal.mu.Unlock()
	if len(journal.commits) != 0 {
		t.Errorf("rejected orders reached the journal: %d commits", len(journal.commits))
	}
}

// Concurrent buys race for the same cash; the per-account lock must admit
// exactly as many as the balance can fund.
func TestExecuteConcurrentOrdersSerialize(t *testing.T) {
	const price, affordable = 15000, 10
	exec, _, positions, accounts := newTestExecutor(price * affordable)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 2*affordable)
	for i := 0; i < 2*affordable; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := exec.Execute(ctx, "acc1", model.Order{Symbol: "AAPL", Side: model.SideBuy, Qty: 1}, price)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, rejected int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientFunds):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != affordable || rejected != affordable {
		t.Errorf("ok=%d rejected=%d, want %d/%d", ok, rejected, affordable, affordable)
	}
	if acct, _ := accounts.Get("acc1"); acct.CashBalance != 0 {
		t.Errorf("final cash=%d, want 0", acct.CashBalance)
	}
	if pos, _ := positions.Get("acc1", "AAPL"); pos.Qty != affordable {
		t.Errorf("final qty=%d, want %d", pos.Qty, affordable)
	}
}
