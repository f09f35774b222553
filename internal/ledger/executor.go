package ledger

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"sync"
	"time"

	"papertrade/internal/id"
	"papertrade/internal/logger"
	"papertrade/internal/metrics"
	"papertrade/internal/model"
	"papertrade/internal/notification"
)

// accountLockShards bounds the lock table; accounts hashing to the same
// shard share a mutex, which only coarsens (never weakens) exclusion.
const accountLockShards = 64

// Commit is the unit handed to the journal after a successful trade: the
// immutable trade record plus the post-trade account and position
// snapshots, so the store can persist all three in one transaction.
type Commit struct {
	Trade    model.Trade
	Account  model.Account
	Position model.Position
}

// Journal receives committed trades for durable storage. Record must not
// block the executor; implementations buffer and report drops themselves.
type Journal interface {
	Record(Commit)
}

// Executor orchestrates one order end to end: validate, price via the
// quote math, apply the fill to the position ledger, settle cash in the
// account ledger, and emit an immutable trade record. Any failure leaves
// both ledgers exactly as they were.
type Executor struct {
	positions *PositionLedger
	accounts  *AccountLedger
	journal   Journal               // optional
	notifier  notification.Notifier // optional
	metrics   *metrics.Metrics      // optional
	log       *slog.Logger

	locks [accountLockShards]sync.Mutex
}

// NewExecutor wires an executor over the two ledgers. journal, notifier
// and m may be nil.
func NewExecutor(positions *PositionLedger, accounts *AccountLedger, journal Journal, notifier notification.Notifier, m *metrics.Metrics, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		positions: positions,
		accounts:  accounts,
		journal:   journal,
		notifier:  notifier,
		metrics:   m,
		log:       log,
	}
}

// Execute runs one order against the account at the given reference price.
// It returns the committed trade, or a typed error (ErrInvalidInput,
// ErrInsufficientFunds, ErrInsufficientPosition, ErrUnknownAccount) with
// no state change.
//
// The per-account lock is held across validate and mutate, so two
// concurrent orders on one account apply in a single total order; orders
// on unrelated accounts run in parallel.
func (e *Executor) Execute(ctx context.Context, accountID string, order model.Order, refPrice int64) (model.Trade, error) {
	start := time.Now()

	trade, err := e.execute(ctx, accountID, order, refPrice)

	if e.metrics != nil {
		e.metrics.ExecuteDur.Observe(time.Since(start).Seconds())
		if err != nil {
			e.metrics.TradeRejects.WithLabelValues(ErrorKind(err)).Inc()
		} else {
			e.metrics.TradesTotal.WithLabelValues(string(trade.Side)).Inc()
			e.metrics.TradeNotional.Add(float64(trade.Qty * trade.Price))
		}
	}

	if err != nil {
		e.log.Warn("order rejected",
			append(logger.LogWithTrace(ctx),
				slog.String("account", accountID),
				slog.String("symbol", order.Symbol),
				slog.String("side", string(order.Side)),
				slog.Int64("qty", order.Qty),
				slog.String("reason", ErrorKind(err)),
			)...)
		return model.Trade{}, err
	}

	e.log.Info("trade committed",
		append(logger.LogWithTrace(ctx),
			slog.String("trade_id", trade.ID),
			slog.String("account", accountID),
			slog.String("symbol", trade.Symbol),
			slog.String("side", string(trade.Side)),
			slog.Int64("qty", trade.Qty),
			slog.Int64("price", trade.Price),
		)...)

	if e.notifier != nil {
		if nerr := e.notifier.Send(ctx, notification.TradeAlert(trade)); nerr != nil {
			e.log.Warn("trade alert delivery failed", slog.String("err", nerr.Error()))
		}
	}

	return trade, nil
}

func (e *Executor) execute(ctx context.Context, accountID string, order model.Order, refPrice int64) (model.Trade, error) {
	if err := validateOrder(order); err != nil {
		return model.Trade{}, err
	}

	quote, err := ComputeQuote(refPrice, order.SpreadBps)
	if err != nil {
		return model.Trade{}, err
	}

	lock := &e.locks[shardFor(accountID)]
	lock.Lock()
	defer lock.Unlock()

	// Account must exist before anything mutates.
	if _, err := e.accounts.Get(accountID); err != nil {
		return model.Trade{}, err
	}

	var (
		price    int64
		realized int64
		acct     model.Account
		pos      model.Position
	)

	switch order.Side {
	case model.SideBuy:
		price = quote.Buy
		notional, nerr := Notional(order.Qty, price)
		if nerr != nil {
			return model.Trade{}, nerr
		}
		if notional > math.MaxInt64-order.Commission {
			return model.Trade{}, fmt.Errorf("%w: cost %d plus commission %d does not fit in 64 bits", ErrInvalidInput, notional, order.Commission)
		}
		totalCost := notional + order.Commission
		// The fallible step runs first: a funds rejection leaves the
		// position ledger untouched, and once cash is debited the buy
		// fill cannot fail.
		acct, err = e.accounts.SettleBuy(accountID, totalCost)
		if err != nil {
			return model.Trade{}, err
		}
		pos, _, err = e.positions.ApplyFill(accountID, order.Symbol, model.SideBuy, order.Qty, price)
		if err != nil {
			return model.Trade{}, fmt.Errorf("buy fill after settle: %w", err)
		}

	case model.SideSell:
		price = quote.Sell
		notional, nerr := Notional(order.Qty, price)
		if nerr != nil {
			return model.Trade{}, nerr
		}
		proceeds := notional - order.Commission
		if proceeds <= 0 {
			return model.Trade{}, fmt.Errorf("%w: commission %d consumes sale proceeds %d", ErrInvalidInput, order.Commission, notional)
		}
		// Here the position check is the fallible step; settlement of a
		// positive proceeds amount cannot fail afterwards.
		pos, realized, err = e.positions.ApplyFill(accountID, order.Symbol, model.SideSell, order.Qty, price)
		if err != nil {
			return model.Trade{}, err
		}
		acct, err = e.accounts.SettleSell(accountID, proceeds, realized)
		if err != nil {
			return model.Trade{}, fmt.Errorf("sell settle after fill: %w", err)
		}
	}

	trade := model.Trade{
		ID:          id.New(),
		AccountID:   accountID,
		Symbol:      order.Symbol,
		Side:        order.Side,
		Qty:         order.Qty,
		Price:       price,
		Commission:  order.Commission,
		RealizedPnL: realized,
		ExecutedAt:  time.Now().UTC(),
	}

	if e.journal != nil {
		e.journal.Record(Commit{Trade: trade, Account: acct, Position: pos})
	}

	return trade, nil
}

func validateOrder(order model.Order) error {
	if order.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidInput)
	}
	if order.Side != model.SideBuy && order.Side != model.SideSell {
		return fmt.Errorf("%w: unknown side %q", ErrInvalidInput, order.Side)
	}
	if order.Qty <= 0 {
		return fmt.Errorf("%w: qty must be positive, got %d", ErrInvalidInput, order.Qty)
	}
	if order.Commission < 0 {
		return fmt.Errorf("%w: commission must not be negative, got %d", ErrInvalidInput, order.Commission)
	}
	if order.SpreadBps < 0 {
		return fmt.Errorf("%w: spread must not be negative, got %d bps", ErrInvalidInput, order.SpreadBps)
	}
	return nil
}

func shardFor(accountID string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(accountID))
	return h.Sum32() % accountLockShards
}
