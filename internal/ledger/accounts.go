package ledger

import (
	"fmt"
	"sync"

	"papertrade/internal/model"
)

// AccountLedger owns cash balances and realized P&L. Balance mutations for
// one account are serialized by the executor's per-account lock; the
// ledger's own mutex protects the map against concurrent readers.
type AccountLedger struct {
	mu       sync.RWMutex
	accounts map[string]*model.Account
}

// NewAccountLedger creates an empty account ledger.
func NewAccountLedger() *AccountLedger {
	return &AccountLedger{
		accounts: make(map[string]*model.Account),
	}
}

// Open creates the account with the given starting cash if it does not
// already exist, and returns its current state.
func (l *AccountLedger) Open(accountID string, startingCash int64) model.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acct, ok := l.accounts[accountID]; ok {
		return *acct
	}
	acct := &model.Account{ID: accountID, CashBalance: startingCash}
	l.accounts[accountID] = acct
	return *acct
}

// SettleBuy debits totalCost (qty*price + commission) from the account.
// Fails with ErrInsufficientFunds without touching the balance.
func (l *AccountLedger) SettleBuy(accountID string, totalCost int64) (model.Account, error) {
	if totalCost <= 0 {
		return model.Account{}, fmt.Errorf("%w: total cost must be positive, got %d", ErrInvalidInput, totalCost)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[accountID]
	if !ok {
		return model.Account{}, fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
	}
	if acct.CashBalance < totalCost {
		return model.Account{}, fmt.Errorf("%w: need %d, have %d", ErrInsufficientFunds, totalCost, acct.CashBalance)
	}
	acct.CashBalance -= totalCost
	return *acct, nil
}

// SettleSell credits proceeds (qty*price - commission) and accumulates the
// realized delta computed by the position ledger. Commission is charged
// once, through proceeds; realizedDelta must not net it out again.
func (l *AccountLedger) SettleSell(accountID string, proceeds, realizedDelta int64) (model.Account, error) {
	if proceeds <= 0 {
		return model.Account{}, fmt.Errorf("%w: proceeds must be positive, got %d", ErrInvalidInput, proceeds)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[accountID]
	if !ok {
		return model.Account{}, fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
	}
	acct.CashBalance += proceeds
	acct.RealizedPnL += realizedDelta
	return *acct, nil
}

// Get returns a copy of the account state.
func (l *AccountLedger) Get(accountID string) (model.Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acct, ok := l.accounts[accountID]
	if !ok {
		return model.Account{}, fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
	}
	return *acct, nil
}

// Restore loads a persisted account at startup, overwriting any open state.
func (l *AccountLedger) Restore(acct model.Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := acct
	l.accounts[acct.ID] = &cp
}
