package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marginbot/internal/domain"
	"marginbot/internal/ports"
)

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func setupTestGateway(t *testing.T) *Gateway {
	t.Helper()
	g, err := NewGateway(Config{
		DBPath: filepath.Join(t.TempDir(), "snapshots.db"),
		Logger: nopLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return g
}

func TestNewGateway_RequiresLogger(t *testing.T) {
	_, err := NewGateway(Config{DBPath: filepath.Join(t.TempDir(), "x.db")})
	assert.Error(t, err)
}

func TestGateway_LoadEmptyStore(t *testing.T) {
	g := setupTestGateway(t)

	snap, err := g.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Users)
}

func TestGateway_SaveNilSnapshot(t *testing.T) {
	g := setupTestGateway(t)

	err := g.Save(context.Background(), nil)
	assert.ErrorIs(t, err, ports.ErrQueryFailed)
}

func TestGateway_SaveLoadRoundTrip(t *testing.T) {
	g := setupTestGateway(t)
	ctx := context.Background()

	openedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	closedAt := openedAt.Add(45 * time.Minute)

	saved := &domain.Snapshot{Users: []domain.UserSnapshot{
		{
			ID:      "alice",
			Balance: decimal.RequireFromString("1234.56"),
			Positions: []domain.PositionSnapshot{
				{
					ID:         "pos-open",
					UserID:     "alice",
					Symbol:     "BTC",
					Margin:     decimal.NewFromInt(1000),
					EntryPrice: decimal.RequireFromString("65000.5"),
					Quantity:   decimal.RequireFromString("0.0153845"),
					Leverage:   10,
					Direction:  domain.Long,
					TakeProfit: decimal.NewFromInt(70000),
					StopLoss:   decimal.Zero,
					Status:     domain.StatusOpen,
					OpenedAt:   openedAt,
				},
				{
					ID:          "pos-closed",
					UserID:      "alice",
					Symbol:      "ETH",
					Margin:      decimal.NewFromInt(500),
					EntryPrice:  decimal.NewFromInt(4000),
					Quantity:    decimal.RequireFromString("0.125"),
					Leverage:    5,
					Direction:   domain.Short,
					TakeProfit:  decimal.Zero,
					StopLoss:    decimal.NewFromInt(4200),
					Status:      domain.StatusClosed,
					OpenedAt:    openedAt,
					ClosedAt:    closedAt,
					Profit:      decimal.RequireFromString("-125"),
					ROI:         decimal.RequireFromString("-25"),
					CloseReason: domain.CloseReasonStopLoss,
				},
			},
		},
		{
			ID:      "bob",
			Balance: decimal.Zero,
		},
	}}

	require.NoError(t, g.Save(ctx, saved))
	loaded, err := g.Load(ctx)
	require.NoError(t, err)

	require.Len(t, loaded.Users, 2)
	assert.Equal(t, "alice", loaded.Users[0].ID)
	assert.True(t, loaded.Users[0].Balance.Equal(decimal.RequireFromString("1234.56")))
	assert.Equal(t, "bob", loaded.Users[1].ID)
	assert.True(t, loaded.Users[1].Balance.IsZero())
	assert.Empty(t, loaded.Users[1].Positions)

	require.Len(t, loaded.Users[0].Positions, 2)

	open := loaded.Users[0].Positions[0]
	assert.Equal(t, "pos-open", open.ID)
	assert.Equal(t, domain.StatusOpen, open.Status)
	assert.Equal(t, domain.Long, open.Direction)
	assert.Equal(t, 10, open.Leverage)
	assert.True(t, open.EntryPrice.Equal(decimal.RequireFromString("65000.5")))
	assert.True(t, open.Quantity.Equal(decimal.RequireFromString("0.0153845")))
	assert.True(t, open.StopLoss.IsZero())
	assert.True(t, open.OpenedAt.Equal(openedAt))
	assert.True(t, open.ClosedAt.IsZero())
	assert.True(t, open.Profit.IsZero())
	assert.Empty(t, open.CloseReason)

	closed := loaded.Users[0].Positions[1]
	assert.Equal(t, "pos-closed", closed.ID)
	assert.Equal(t, domain.StatusClosed, closed.Status)
	assert.Equal(t, domain.Short, closed.Direction)
	assert.True(t, closed.ClosedAt.Equal(closedAt))
	assert.True(t, closed.Profit.Equal(decimal.RequireFromString("-125")))
	assert.True(t, closed.ROI.Equal(decimal.RequireFromString("-25")))
	assert.Equal(t, domain.CloseReasonStopLoss, closed.CloseReason)
}

func TestGateway_SaveReplacesPreviousSnapshot(t *testing.T) {
	g := setupTestGateway(t)
	ctx := context.Background()

	first := &domain.Snapshot{Users: []domain.UserSnapshot{
		{ID: "alice", Balance: decimal.NewFromInt(100)},
		{ID: "bob", Balance: decimal.NewFromInt(200)},
	}}
	require.NoError(t, g.Save(ctx, first))

	second := &domain.Snapshot{Users: []domain.UserSnapshot{
		{ID: "alice", Balance: decimal.NewFromInt(300)},
	}}
	require.NoError(t, g.Save(ctx, second))

	loaded, err := g.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Users, 1)
	assert.Equal(t, "alice", loaded.Users[0].ID)
	assert.True(t, loaded.Users[0].Balance.Equal(decimal.NewFromInt(300)))
}

// Round trip through the live domain types, not hand-built snapshots:
// what the service persists is exactly what a restart rebuilds.
func TestGateway_DomainRoundTrip(t *testing.T) {
	g := setupTestGateway(t)
	ctx := context.Background()

	u := domain.NewUser("alice")
	require.NoError(t, u.Ledger().Deposit(decimal.NewFromInt(5000)))
	pos, err := u.OpenPosition(domain.OpenParams{
		Symbol:     "BTC",
		Margin:     decimal.NewFromInt(1000),
		TakeProfit: decimal.NewFromInt(110),
		Leverage:   10,
		Direction:  domain.Long,
	}, decimal.NewFromInt(100))
	require.NoError(t, err)

	require.NoError(t, g.Save(ctx, &domain.Snapshot{Users: []domain.UserSnapshot{u.Snapshot()}}))
	loaded, err := g.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Users, 1)

	restored, err := domain.RestoreUser(loaded.Users[0])
	require.NoError(t, err)
	assert.True(t, restored.Balance().Equal(decimal.NewFromInt(4000)))

	got, err := restored.Position(pos.ID)
	require.NoError(t, err)
	assert.True(t, got.IsOpen())
	assert.True(t, got.Quantity.Equal(pos.Quantity))
	assert.True(t, got.TakeProfit.Equal(decimal.NewFromInt(110)))

	// The restored position still settles against the restored ledger.
	settled, err := got.Settle(decimal.NewFromInt(1000), decimal.NewFromInt(100), domain.CloseReasonTakeProfit)
	require.NoError(t, err)
	assert.True(t, settled)
	assert.True(t, restored.Balance().Equal(decimal.NewFromInt(6000)))
}
