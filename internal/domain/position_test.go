package domain

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fundedLedger(t *testing.T, balance int64) *Ledger {
	t.Helper()
	l := NewLedger()
	require.NoError(t, l.Deposit(decimal.NewFromInt(balance)))
	return l
}

func TestOpenPosition_Validation(t *testing.T) {
	valid := OpenParams{
		Symbol:    "BTC",
		Margin:    decimal.NewFromInt(1000),
		Leverage:  10,
		Direction: Long,
	}

	tests := []struct {
		name    string
		mutate  func(p *OpenParams)
		entry   decimal.Decimal
		wantErr error
	}{
		{
			name:    "zero margin",
			mutate:  func(p *OpenParams) { p.Margin = decimal.Zero },
			entry:   decimal.NewFromInt(100),
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "negative margin",
			mutate:  func(p *OpenParams) { p.Margin = decimal.NewFromInt(-10) },
			entry:   decimal.NewFromInt(100),
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "zero leverage",
			mutate:  func(p *OpenParams) { p.Leverage = 0 },
			entry:   decimal.NewFromInt(100),
			wantErr: ErrInvalidLeverage,
		},
		{
			name:    "unknown direction",
			mutate:  func(p *OpenParams) { p.Direction = "sideways" },
			entry:   decimal.NewFromInt(100),
			wantErr: ErrInvalidDirection,
		},
		{
			name:    "zero entry price",
			mutate:  func(p *OpenParams) {},
			entry:   decimal.Zero,
			wantErr: ErrInvalidPrice,
		},
		{
			name:    "negative stop loss",
			mutate:  func(p *OpenParams) { p.StopLoss = decimal.NewFromInt(-1) },
			entry:   decimal.NewFromInt(100),
			wantErr: ErrInvalidPrice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := fundedLedger(t, 5000)
			params := valid
			tt.mutate(&params)

			_, err := OpenPosition("user-1", params, tt.entry, ledger)
			assert.ErrorIs(t, err, tt.wantErr)
			// No partial debit on any validation failure.
			assert.True(t, ledger.Balance().Equal(decimal.NewFromInt(5000)))
		})
	}
}

func TestOpenPosition_DebitsMarginAtomically(t *testing.T) {
	ledger := fundedLedger(t, 5000)

	pos, err := OpenPosition("user-1", OpenParams{
		Symbol:    "ETH",
		Margin:    decimal.NewFromInt(1000),
		Leverage:  10,
		Direction: Long,
	}, decimal.NewFromInt(100), ledger)
	require.NoError(t, err)

	assert.NotEmpty(t, pos.ID)
	assert.Equal(t, StatusOpen, pos.Status())
	assert.True(t, pos.IsOpen())
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(10)), "quantity = %s", pos.Quantity)
	assert.True(t, ledger.Balance().Equal(decimal.NewFromInt(4000)), "balance = %s", ledger.Balance())
	assert.False(t, pos.OpenedAt.IsZero())
	_, _, closed := pos.Realized()
	assert.False(t, closed)
}

func TestOpenPosition_InsufficientFunds(t *testing.T) {
	ledger := fundedLedger(t, 100)

	_, err := OpenPosition("user-1", OpenParams{
		Symbol:    "BTC",
		Margin:    decimal.NewFromInt(200),
		Leverage:  1,
		Direction: Long,
	}, decimal.NewFromInt(100), ledger)

	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.True(t, ledger.Balance().Equal(decimal.NewFromInt(100)))
}

func TestPosition_ProfitAndROI(t *testing.T) {
	tests := []struct {
		name       string
		direction  Direction
		margin     int64
		entry      int64
		leverage   int
		price      int64
		wantProfit decimal.Decimal
		wantROI    decimal.Decimal
	}{
		{
			name:      "long zero move",
			direction: Long, margin: 1000, entry: 100, leverage: 10, price: 100,
			wantProfit: decimal.Zero,
			wantROI:    decimal.Zero,
		},
		{
			name:      "long 10 percent up",
			direction: Long, margin: 1000, entry: 100, leverage: 10, price: 110,
			wantProfit: decimal.NewFromInt(1000),
			wantROI:    decimal.NewFromInt(100),
		},
		{
			name:      "long down",
			direction: Long, margin: 1000, entry: 100, leverage: 10, price: 95,
			wantProfit: decimal.NewFromInt(-500),
			wantROI:    decimal.NewFromInt(-50),
		},
		{
			name:      "short 10 percent down",
			direction: Short, margin: 1000, entry: 100, leverage: 10, price: 90,
			wantProfit: decimal.NewFromInt(1000),
			wantROI:    decimal.NewFromInt(100),
		},
		{
			name:      "short against the trade",
			direction: Short, margin: 500, entry: 50, leverage: 5, price: 55,
			wantProfit: decimal.NewFromInt(-250),
			wantROI:    decimal.NewFromInt(-50),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := fundedLedger(t, tt.margin)
			pos, err := OpenPosition("user-1", OpenParams{
				Symbol:    "BTC",
				Margin:    decimal.NewFromInt(tt.margin),
				Leverage:  tt.leverage,
				Direction: tt.direction,
			}, decimal.NewFromInt(tt.entry), ledger)
			require.NoError(t, err)

			profit, roi := pos.ProfitAndROI(decimal.NewFromInt(tt.price))
			assert.True(t, profit.Equal(tt.wantProfit), "profit = %s, want %s", profit, tt.wantProfit)
			assert.True(t, roi.Equal(tt.wantROI), "roi = %s, want %s", roi, tt.wantROI)

			// Determinism: identical inputs, identical outputs.
			profit2, roi2 := pos.ProfitAndROI(decimal.NewFromInt(tt.price))
			assert.True(t, profit.Equal(profit2))
			assert.True(t, roi.Equal(roi2))
		})
	}
}

func TestPosition_SettleCreditsOnce(t *testing.T) {
	ledger := fundedLedger(t, 1000)
	pos, err := OpenPosition("user-1", OpenParams{
		Symbol:    "BTC",
		Margin:    decimal.NewFromInt(1000),
		Leverage:  10,
		Direction: Long,
	}, decimal.NewFromInt(100), ledger)
	require.NoError(t, err)
	require.True(t, ledger.Balance().IsZero())

	settled, err := pos.Settle(decimal.NewFromInt(1000), decimal.NewFromInt(100), CloseReasonTakeProfit)
	require.NoError(t, err)
	assert.True(t, settled)
	assert.Equal(t, StatusClosed, pos.Status())
	assert.True(t, ledger.Balance().Equal(decimal.NewFromInt(2000)), "balance = %s", ledger.Balance())

	profit, roi, ok := pos.Realized()
	require.True(t, ok)
	assert.True(t, profit.Equal(decimal.NewFromInt(1000)))
	assert.True(t, roi.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, CloseReasonTakeProfit, pos.Reason())
	_, ok = pos.ClosedAt()
	assert.True(t, ok)

	// Second settle is a no-op, whatever the arguments: no second
	// credit, no overwrite of the realized results.
	settled, err = pos.Settle(decimal.NewFromInt(9999), decimal.NewFromInt(1), CloseReasonManual)
	require.NoError(t, err)
	assert.False(t, settled)
	assert.True(t, ledger.Balance().Equal(decimal.NewFromInt(2000)))
	profit, _, _ = pos.Realized()
	assert.True(t, profit.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, CloseReasonTakeProfit, pos.Reason())
}

// Open and immediately close at the unchanged price: the full margin
// comes back and the balance is exactly what it was before the open.
func TestPosition_ZeroMoveRoundTrip(t *testing.T) {
	ledger := fundedLedger(t, 1000)
	pos, err := OpenPosition("user-1", OpenParams{
		Symbol:    "BTC",
		Margin:    decimal.NewFromInt(1000),
		Leverage:  10,
		Direction: Long,
	}, decimal.NewFromInt(100), ledger)
	require.NoError(t, err)

	profit, roi := pos.ProfitAndROI(decimal.NewFromInt(100))
	settled, err := pos.Settle(profit, roi, CloseReasonManual)
	require.NoError(t, err)
	require.True(t, settled)

	gotProfit, gotROI, ok := pos.Realized()
	require.True(t, ok)
	assert.True(t, gotProfit.IsZero())
	assert.True(t, gotROI.IsZero())
	assert.True(t, ledger.Balance().Equal(decimal.NewFromInt(1000)), "balance = %s", ledger.Balance())
}

func TestPosition_SettleClampsLossAtMargin(t *testing.T) {
	ledger := fundedLedger(t, 500)
	pos, err := OpenPosition("user-1", OpenParams{
		Symbol:    "BTC",
		Margin:    decimal.NewFromInt(500),
		Leverage:  5,
		Direction: Long,
	}, decimal.NewFromInt(50), ledger)
	require.NoError(t, err)

	// Computed loss past the margin: the trader never owes more than
	// what was deducted at open.
	settled, err := pos.Settle(decimal.NewFromInt(-750), decimal.NewFromInt(-150), CloseReasonLiquidation)
	require.NoError(t, err)
	assert.True(t, settled)

	profit, _, ok := pos.Realized()
	require.True(t, ok)
	assert.True(t, profit.Equal(decimal.NewFromInt(-500)), "profit = %s, want -500", profit)
	assert.True(t, ledger.Balance().IsZero(), "balance = %s, want 0", ledger.Balance())
}

func TestPosition_ConcurrentSettleSingleWinner(t *testing.T) {
	ledger := fundedLedger(t, 1000)
	pos, err := OpenPosition("user-1", OpenParams{
		Symbol:    "BTC",
		Margin:    decimal.NewFromInt(1000),
		Leverage:  10,
		Direction: Long,
	}, decimal.NewFromInt(100), ledger)
	require.NoError(t, err)

	const callers = 20
	var wg sync.WaitGroup
	wins := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			settled, err := pos.Settle(decimal.NewFromInt(100), decimal.NewFromInt(10), CloseReasonManual)
			assert.NoError(t, err)
			wins <- settled
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for settled := range wins {
		if settled {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
	// Exactly one credit of margin+profit.
	assert.True(t, ledger.Balance().Equal(decimal.NewFromInt(1100)), "balance = %s", ledger.Balance())
}

func TestRestorePosition_RoundTrip(t *testing.T) {
	ledger := fundedLedger(t, 2000)
	pos, err := OpenPosition("user-1", OpenParams{
		Symbol:     "ETH",
		Margin:     decimal.NewFromInt(1000),
		TakeProfit: decimal.NewFromInt(120),
		Leverage:   4,
		Direction:  Short,
	}, decimal.NewFromInt(100), ledger)
	require.NoError(t, err)
	_, err = pos.Settle(decimal.NewFromInt(-200), decimal.NewFromInt(-20), CloseReasonStopLoss)
	require.NoError(t, err)

	snap := pos.Snapshot()
	restored, err := RestorePosition(snap, ledger)
	require.NoError(t, err)

	assert.Equal(t, pos.ID, restored.ID)
	assert.Equal(t, pos.Symbol, restored.Symbol)
	assert.True(t, restored.Quantity.Equal(pos.Quantity))
	assert.Equal(t, StatusClosed, restored.Status())
	profit, roi, ok := restored.Realized()
	require.True(t, ok)
	assert.True(t, profit.Equal(decimal.NewFromInt(-200)))
	assert.True(t, roi.Equal(decimal.NewFromInt(-20)))
	assert.Equal(t, CloseReasonStopLoss, restored.Reason())

	// Restoring performs no ledger side effects.
	balanceBefore := ledger.Balance()
	_, err = RestorePosition(snap, ledger)
	require.NoError(t, err)
	assert.True(t, ledger.Balance().Equal(balanceBefore))
}
