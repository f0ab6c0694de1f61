package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is the full serializable state of the system: every user
// with their ledger balance and positions, closed ones included. It is
// what the persistence gateway loads and saves; rebuilding live state
// from it goes through RestoreLedger/RestoreUser/RestorePosition, never
// through the open-validation path.
type Snapshot struct {
	Users []UserSnapshot
}

// UserSnapshot captures one user's ledger balance and positions in
// creation order.
type UserSnapshot struct {
	ID        string
	Balance   decimal.Decimal
	Positions []PositionSnapshot
}

// PositionSnapshot captures every persisted field of a position.
// Profit, ROI, ClosedAt and CloseReason are meaningful only when
// Status is closed.
type PositionSnapshot struct {
	ID          string
	UserID      string
	Symbol      string
	Margin      decimal.Decimal
	EntryPrice  decimal.Decimal
	Quantity    decimal.Decimal
	Leverage    int
	Direction   Direction
	TakeProfit  decimal.Decimal
	StopLoss    decimal.Decimal
	Status      PositionStatus
	OpenedAt    time.Time
	ClosedAt    time.Time
	Profit      decimal.Decimal
	ROI         decimal.Decimal
	CloseReason CloseReason
}
