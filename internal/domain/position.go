package domain

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OpenParams carries the user-supplied parameters of a new position.
// TakeProfit and StopLoss are trigger prices; zero means not set.
type OpenParams struct {
	Symbol     string
	Margin     decimal.Decimal
	TakeProfit decimal.Decimal
	StopLoss   decimal.Decimal
	Leverage   int
	Direction  Direction
}

// Position is a leveraged position. Everything above the mutex is fixed
// at open and safe to read concurrently; lifecycle state below it is
// guarded and transitions open->closed exactly once, via Settle.
type Position struct {
	ID         string
	UserID     string
	Symbol     string
	Margin     decimal.Decimal // USD debited from the ledger at open
	EntryPrice decimal.Decimal
	Quantity   decimal.Decimal // Margin / EntryPrice, never recomputed
	Leverage   int
	Direction  Direction
	TakeProfit decimal.Decimal // zero = not set
	StopLoss   decimal.Decimal // zero = not set
	OpenedAt   time.Time

	ledger *Ledger // owner's ledger, credited once at settlement

	mu          sync.Mutex
	status      PositionStatus
	closedAt    time.Time
	profit      decimal.Decimal
	roi         decimal.Decimal
	closeReason CloseReason
}

// OpenPosition validates params, debits the margin from the owner's
// ledger and constructs an open position. The ledger debit is the
// atomic check-then-act step: on any failure no state has changed.
func OpenPosition(userID string, params OpenParams, entryPrice decimal.Decimal, ledger *Ledger) (*Position, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger is required to open a position")
	}
	if params.Symbol == "" {
		return nil, fmt.Errorf("symbol is required to open a position")
	}
	if !params.Margin.IsPositive() {
		return nil, fmt.Errorf("margin %s: %w", params.Margin, ErrInvalidAmount)
	}
	if !entryPrice.IsPositive() {
		return nil, fmt.Errorf("entry price %s: %w", entryPrice, ErrInvalidPrice)
	}
	if params.Leverage < 1 {
		return nil, fmt.Errorf("leverage %d: %w", params.Leverage, ErrInvalidLeverage)
	}
	if !params.Direction.IsValid() {
		return nil, fmt.Errorf("direction %q: %w", params.Direction, ErrInvalidDirection)
	}
	if params.TakeProfit.IsNegative() || params.StopLoss.IsNegative() {
		return nil, fmt.Errorf("take-profit/stop-loss: %w", ErrInvalidPrice)
	}

	if err := ledger.Withdraw(params.Margin); err != nil {
		return nil, err
	}

	return &Position{
		ID:         uuid.NewString(),
		UserID:     userID,
		Symbol:     params.Symbol,
		Margin:     params.Margin,
		EntryPrice: entryPrice,
		Quantity:   params.Margin.Div(entryPrice),
		Leverage:   params.Leverage,
		Direction:  params.Direction,
		TakeProfit: params.TakeProfit,
		StopLoss:   params.StopLoss,
		OpenedAt:   time.Now().UTC(),
		ledger:     ledger,
		status:     StatusOpen,
	}, nil
}

// ProfitAndROI computes the unrealized profit (USD) and leverage-scaled
// ROI (percent) at currentPrice. Pure: identical inputs always yield
// identical outputs, for both the monitor and on-demand status queries.
func (p *Position) ProfitAndROI(currentPrice decimal.Decimal) (profit, roi decimal.Decimal) {
	lev := decimal.NewFromInt(int64(p.Leverage))
	one := decimal.NewFromInt(1)
	hundred := decimal.NewFromInt(100)
	if p.Direction == Short {
		profit = p.EntryPrice.Sub(currentPrice).Mul(p.Quantity).Mul(lev)
		roi = one.Sub(currentPrice.Div(p.EntryPrice)).Mul(lev).Mul(hundred)
		return profit, roi
	}
	profit = currentPrice.Sub(p.EntryPrice).Mul(p.Quantity).Mul(lev)
	roi = currentPrice.Div(p.EntryPrice).Sub(one).Mul(lev).Mul(hundred)
	return profit, roi
}

// Settle performs the open->closed transition exactly once. The winner
// credits the owner's ledger with margin+profit and records the
// realized results; every later caller gets settled=false and no state
// change. Profit is clamped at -margin so the credit is never negative,
// regardless of which caller wins the race.
func (p *Position) Settle(profit, roi decimal.Decimal, reason CloseReason) (settled bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == StatusClosed {
		return false, nil
	}
	if profit.LessThan(p.Margin.Neg()) {
		profit = p.Margin.Neg()
	}
	if err := p.ledger.Deposit(p.Margin.Add(profit)); err != nil {
		return false, fmt.Errorf("settlement credit failed: %w", err)
	}
	p.status = StatusClosed
	p.closedAt = time.Now().UTC()
	p.profit = profit
	p.roi = roi
	p.closeReason = reason
	return true, nil
}

// Status returns the current lifecycle status.
func (p *Position) Status() PositionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// IsOpen checks if the position status is open.
func (p *Position) IsOpen() bool {
	return p.Status() == StatusOpen
}

// ClosedAt returns the settlement time; ok is false while open.
func (p *Position) ClosedAt() (t time.Time, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closedAt, p.status == StatusClosed
}

// Realized returns the recorded profit and ROI; ok is false while open.
func (p *Position) Realized() (profit, roi decimal.Decimal, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.profit, p.roi, p.status == StatusClosed
}

// Reason returns why the position was closed, empty while open.
func (p *Position) Reason() CloseReason {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeReason
}

// Snapshot exports all persisted fields for the snapshot gateway.
func (p *Position) Snapshot() PositionSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PositionSnapshot{
		ID:          p.ID,
		UserID:      p.UserID,
		Symbol:      p.Symbol,
		Margin:      p.Margin,
		EntryPrice:  p.EntryPrice,
		Quantity:    p.Quantity,
		Leverage:    p.Leverage,
		Direction:   p.Direction,
		TakeProfit:  p.TakeProfit,
		StopLoss:    p.StopLoss,
		Status:      p.status,
		OpenedAt:    p.OpenedAt,
		ClosedAt:    p.closedAt,
		Profit:      p.profit,
		ROI:         p.roi,
		CloseReason: p.closeReason,
	}
}

// RestorePosition rebuilds a position from already-validated stored
// fields. It performs no ledger side effects: the margin was debited in
// the run that originally opened the position.
func RestorePosition(snap PositionSnapshot, ledger *Ledger) (*Position, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger is required to restore a position")
	}
	if snap.ID == "" || snap.Symbol == "" {
		return nil, fmt.Errorf("position snapshot is missing id or symbol")
	}
	if !snap.Margin.IsPositive() || !snap.EntryPrice.IsPositive() || !snap.Quantity.IsPositive() {
		return nil, fmt.Errorf("position snapshot %s: %w", snap.ID, ErrInvalidAmount)
	}
	if snap.Leverage < 1 {
		return nil, fmt.Errorf("position snapshot %s: %w", snap.ID, ErrInvalidLeverage)
	}
	if !snap.Direction.IsValid() {
		return nil, fmt.Errorf("position snapshot %s: %w", snap.ID, ErrInvalidDirection)
	}
	if snap.Status != StatusOpen && snap.Status != StatusClosed {
		return nil, fmt.Errorf("position snapshot %s has unknown status %q", snap.ID, snap.Status)
	}
	return &Position{
		ID:          snap.ID,
		UserID:      snap.UserID,
		Symbol:      snap.Symbol,
		Margin:      snap.Margin,
		EntryPrice:  snap.EntryPrice,
		Quantity:    snap.Quantity,
		Leverage:    snap.Leverage,
		Direction:   snap.Direction,
		TakeProfit:  snap.TakeProfit,
		StopLoss:    snap.StopLoss,
		OpenedAt:    snap.OpenedAt,
		ledger:      ledger,
		status:      snap.Status,
		closedAt:    snap.ClosedAt,
		profit:      snap.Profit,
		roi:         snap.ROI,
		closeReason: snap.CloseReason,
	}, nil
}
