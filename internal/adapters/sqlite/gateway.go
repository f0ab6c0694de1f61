package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"marginbot/internal/domain"
	"marginbot/internal/ports"
)

// Gateway implements the ports.SnapshotGateway interface using SQLite.
// A snapshot save replaces the stored state inside one transaction;
// load returns positions in creation order (rowid order).
type Gateway struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite gateway.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewGateway opens (and if needed creates) the snapshot database.
func NewGateway(cfg Config) (*Gateway, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite gateway")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/marginbot.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite gateway initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite gateway initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite gateway initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits
	// from a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	g := &Gateway{db: db, logger: cfg.Logger}
	if err := g.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite gateway initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite snapshot store ready", map[string]interface{}{"path": dbPath})

	return g, nil
}

// initializeSchema creates tables if they don't exist.
// Money columns are TEXT: decimals round-trip exactly as strings.
func (g *Gateway) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		balance TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		margin TEXT NOT NULL,
		entry_price TEXT NOT NULL,
		quantity TEXT NOT NULL,
		leverage INTEGER NOT NULL,
		direction TEXT NOT NULL,
		take_profit TEXT NOT NULL,
		stop_loss TEXT NOT NULL,
		status TEXT NOT NULL,
		opened_at TIMESTAMP NOT NULL,
		closed_at TIMESTAMP DEFAULT NULL,
		profit TEXT DEFAULT NULL,
		roi TEXT DEFAULT NULL,
		close_reason TEXT DEFAULT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_positions_user_status ON positions (user_id, status);
	`
	if _, err := g.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w: %w", ports.ErrQueryFailed, err)
	}
	return nil
}

// Close closes the database connection.
func (g *Gateway) Close() error {
	if g.db != nil {
		g.logger.Info(context.Background(), "Closing SQLite snapshot store")
		return g.db.Close()
	}
	return nil
}

// Save atomically replaces the stored snapshot.
func (g *Gateway) Save(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot: %w", ports.ErrQueryFailed)
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w: %w", ports.ErrQueryFailed, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("failed to clear positions: %w: %w", ports.ErrQueryFailed, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM users`); err != nil {
		return fmt.Errorf("failed to clear users: %w: %w", ports.ErrQueryFailed, err)
	}

	const insertUser = `INSERT INTO users (id, balance) VALUES (?, ?)`
	const insertPosition = `
	INSERT INTO positions (id, user_id, symbol, margin, entry_price, quantity, leverage,
	                       direction, take_profit, stop_loss, status, opened_at, closed_at,
	                       profit, roi, close_reason)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	for _, user := range snap.Users {
		if _, err := tx.ExecContext(ctx, insertUser, user.ID, user.Balance.String()); err != nil {
			return fmt.Errorf("failed to insert user %s: %w: %w", user.ID, ports.ErrQueryFailed, err)
		}
		for _, pos := range user.Positions {
			var closedAt sql.NullTime
			var profit, roi, reason sql.NullString
			if pos.Status == domain.StatusClosed {
				closedAt = sql.NullTime{Time: pos.ClosedAt, Valid: true}
				profit = sql.NullString{String: pos.Profit.String(), Valid: true}
				roi = sql.NullString{String: pos.ROI.String(), Valid: true}
				reason = sql.NullString{String: string(pos.CloseReason), Valid: true}
			}
			if _, err := tx.ExecContext(ctx, insertPosition,
				pos.ID, pos.UserID, pos.Symbol, pos.Margin.String(), pos.EntryPrice.String(),
				pos.Quantity.String(), pos.Leverage, string(pos.Direction),
				pos.TakeProfit.String(), pos.StopLoss.String(), string(pos.Status),
				pos.OpenedAt, closedAt, profit, roi, reason); err != nil {
				return fmt.Errorf("failed to insert position %s: %w: %w", pos.ID, ports.ErrQueryFailed, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w: %w", ports.ErrQueryFailed, err)
	}
	g.logger.Debug(ctx, "Snapshot saved", map[string]interface{}{"users": len(snap.Users)})
	return nil
}

// Load reads the last saved snapshot. An empty store yields an empty
// snapshot.
func (g *Gateway) Load(ctx context.Context) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{}
	byUser := make(map[string]int)

	userRows, err := g.db.QueryContext(ctx, `SELECT id, balance FROM users ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w: %w", ports.ErrQueryFailed, err)
	}
	defer userRows.Close()
	for userRows.Next() {
		var id, balanceStr string
		if err := userRows.Scan(&id, &balanceStr); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w: %w", ports.ErrQueryFailed, err)
		}
		balance, err := decimal.NewFromString(balanceStr)
		if err != nil {
			return nil, fmt.Errorf("corrupt balance %q for user %s: %w", balanceStr, id, err)
		}
		byUser[id] = len(snap.Users)
		snap.Users = append(snap.Users, domain.UserSnapshot{ID: id, Balance: balance})
	}
	if err := userRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w: %w", ports.ErrQueryFailed, err)
	}

	const posQuery = `
	SELECT id, user_id, symbol, margin, entry_price, quantity, leverage, direction,
	       take_profit, stop_loss, status, opened_at, closed_at, profit, roi, close_reason
	FROM positions ORDER BY rowid`

	posRows, err := g.db.QueryContext(ctx, posQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w: %w", ports.ErrQueryFailed, err)
	}
	defer posRows.Close()
	for posRows.Next() {
		pos, err := scanPosition(posRows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position row: %w: %w", ports.ErrQueryFailed, err)
		}
		idx, ok := byUser[pos.UserID]
		if !ok {
			return nil, fmt.Errorf("position %s references unknown user %s: %w", pos.ID, pos.UserID, ports.ErrNotFound)
		}
		snap.Users[idx].Positions = append(snap.Users[idx].Positions, pos)
	}
	if err := posRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w: %w", ports.ErrQueryFailed, err)
	}

	g.logger.Debug(ctx, "Snapshot loaded", map[string]interface{}{"users": len(snap.Users)})
	return snap, nil
}

// scanPosition scans a positions row into a domain.PositionSnapshot.
func scanPosition(rows *sql.Rows) (domain.PositionSnapshot, error) {
	var (
		pos                                           domain.PositionSnapshot
		margin, entry, quantity, takeProfit, stopLoss string
		direction, status                             string
		closedAt                                      sql.NullTime
		profit, roi, reason                           sql.NullString
	)
	err := rows.Scan(&pos.ID, &pos.UserID, &pos.Symbol, &margin, &entry, &quantity,
		&pos.Leverage, &direction, &takeProfit, &stopLoss, &status,
		&pos.OpenedAt, &closedAt, &profit, &roi, &reason)
	if err != nil {
		return pos, err
	}

	for _, f := range []struct {
		raw string
		dst *decimal.Decimal
	}{
		{margin, &pos.Margin},
		{entry, &pos.EntryPrice},
		{quantity, &pos.Quantity},
		{takeProfit, &pos.TakeProfit},
		{stopLoss, &pos.StopLoss},
	} {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return pos, fmt.Errorf("corrupt decimal %q in position %s: %w", f.raw, pos.ID, err)
		}
		*f.dst = d
	}

	pos.Direction = domain.Direction(direction)
	pos.Status = domain.PositionStatus(status)
	if closedAt.Valid {
		pos.ClosedAt = closedAt.Time
	}
	if profit.Valid {
		if pos.Profit, err = decimal.NewFromString(profit.String); err != nil {
			return pos, fmt.Errorf("corrupt profit %q in position %s: %w", profit.String, pos.ID, err)
		}
	}
	if roi.Valid {
		if pos.ROI, err = decimal.NewFromString(roi.String); err != nil {
			return pos, fmt.Errorf("corrupt roi %q in position %s: %w", roi.String, pos.ID, err)
		}
	}
	if reason.Valid {
		pos.CloseReason = domain.CloseReason(reason.String)
	}
	return pos, nil
}
