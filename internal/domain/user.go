package domain

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// User owns one ledger and the positions opened against it. Positions
// are kept in creation order and never removed: closed positions are
// the trade history.
type User struct {
	ID string

	ledger *Ledger

	mu        sync.Mutex
	positions []*Position
}

// NewUser creates a user with an empty ledger.
func NewUser(id string) *User {
	return &User{ID: id, ledger: NewLedger()}
}

// RestoreUser rebuilds a user and their positions from a snapshot,
// with no ledger side effects.
func RestoreUser(snap UserSnapshot) (*User, error) {
	ledger, err := RestoreLedger(snap.Balance)
	if err != nil {
		return nil, fmt.Errorf("restore user %s: %w", snap.ID, err)
	}
	u := &User{ID: snap.ID, ledger: ledger}
	for _, ps := range snap.Positions {
		pos, err := RestorePosition(ps, ledger)
		if err != nil {
			return nil, fmt.Errorf("restore user %s: %w", snap.ID, err)
		}
		u.positions = append(u.positions, pos)
	}
	return u, nil
}

// Ledger returns the user's ledger.
func (u *User) Ledger() *Ledger {
	return u.ledger
}

// Balance returns the current ledger balance.
func (u *User) Balance() decimal.Decimal {
	return u.ledger.Balance()
}

// OpenPosition opens a new position against the user's ledger at the
// given entry price and records it. Two positions of the same user
// opening or closing concurrently serialize on the one ledger, so the
// margin debit here can never double-count against a settlement credit.
func (u *User) OpenPosition(params OpenParams, entryPrice decimal.Decimal) (*Position, error) {
	pos, err := OpenPosition(u.ID, params, entryPrice, u.ledger)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	u.positions = append(u.positions, pos)
	u.mu.Unlock()
	return pos, nil
}

// Positions returns all positions in creation order.
func (u *User) Positions() []*Position {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]*Position, len(u.positions))
	copy(out, u.positions)
	return out
}

// OpenPositions returns the currently open positions in creation order.
func (u *User) OpenPositions() []*Position {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]*Position, 0, len(u.positions))
	for _, pos := range u.positions {
		if pos.IsOpen() {
			out = append(out, pos)
		}
	}
	return out
}

// Position resolves a position by its ID.
func (u *User) Position(id string) (*Position, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, pos := range u.positions {
		if pos.ID == id {
			return pos, nil
		}
	}
	return nil, fmt.Errorf("position %s: %w", id, ErrPositionNotFound)
}

// Snapshot exports the user's full persisted state.
func (u *User) Snapshot() UserSnapshot {
	u.mu.Lock()
	defer u.mu.Unlock()
	snap := UserSnapshot{
		ID:        u.ID,
		Balance:   u.ledger.Balance(),
		Positions: make([]PositionSnapshot, 0, len(u.positions)),
	}
	for _, pos := range u.positions {
		snap.Positions = append(snap.Positions, pos.Snapshot())
	}
	return snap
}
