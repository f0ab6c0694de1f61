package domain

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Ledger holds a user's cash balance in USD. The balance never goes
// negative: every withdrawal checks and debits under one mutex hold, so
// no interleaved withdrawal can observe a stale balance.
type Ledger struct {
	mu      sync.Mutex
	balance decimal.Decimal
}

// NewLedger creates a ledger with a zero balance.
func NewLedger() *Ledger {
	return &Ledger{}
}

// RestoreLedger rebuilds a ledger from a stored balance. It performs no
// deposit-side validation beyond rejecting negative balances, which a
// well-formed snapshot can never contain.
func RestoreLedger(balance decimal.Decimal) (*Ledger, error) {
	if balance.IsNegative() {
		return nil, ErrInvalidAmount
	}
	return &Ledger{balance: balance}, nil
}

// Balance returns the current balance.
func (l *Ledger) Balance() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// Deposit adds amount to the balance. A zero deposit is accepted; this
// is what lets a fully liquidated position settle with a zero credit.
func (l *Ledger) Deposit(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance = l.balance.Add(amount)
	return nil
}

// Withdraw removes amount from the balance. Returns ErrInvalidAmount
// for non-positive amounts and ErrInsufficientFunds when the balance is
// short; on failure the balance is untouched.
func (l *Ledger) Withdraw(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	l.balance = l.balance.Sub(amount)
	return nil
}

// HasEnoughBalance reports whether the balance covers amount.
func (l *Ledger) HasEnoughBalance(amount decimal.Decimal) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance.GreaterThanOrEqual(amount)
}
