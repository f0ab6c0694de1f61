package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"marginbot/config"
	"marginbot/internal/domain"
	"marginbot/internal/monitor"
	"marginbot/internal/ports"
)

const shutdownTimeout = 5 * time.Second

// TradingService is the registry and orchestration layer: it owns the
// users (each a ledger plus positions), supervises one monitor per
// open position, and exposes the front-end-facing surface — deposit,
// withdraw, open, manual close, listings and live status.
type TradingService struct {
	cfg     *config.Config
	logger  ports.Logger
	oracle  ports.PriceOracle
	gateway ports.SnapshotGateway

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu        sync.RWMutex
	users     map[string]*domain.User
	userOrder []string // creation order, for deterministic snapshots
	monitors  map[string]*monitor.Monitor
}

// NewTradingService creates a new application service instance.
func NewTradingService(
	cfg *config.Config,
	logger ports.Logger,
	oracle ports.PriceOracle,
	gateway ports.SnapshotGateway,
) (*TradingService, error) {
	if cfg == nil || logger == nil || oracle == nil || gateway == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}
	rootCtx, rootCancel := context.WithCancel(context.Background())
	return &TradingService{
		cfg:        cfg,
		logger:     logger,
		oracle:     oracle,
		gateway:    gateway,
		rootCtx:    rootCtx,
		rootCancel: rootCancel,
		users:      make(map[string]*domain.User),
		monitors:   make(map[string]*monitor.Monitor),
	}, nil
}

// userOrCreate returns the user, creating an empty one on first use.
func (s *TradingService) userOrCreate(userID string) *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[userID]; ok {
		return user
	}
	user := domain.NewUser(userID)
	s.users[userID] = user
	s.userOrder = append(s.userOrder, userID)
	return user
}

// user resolves an existing user.
func (s *TradingService) user(userID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrUserNotFound)
	}
	return user, nil
}

// Deposit adds funds to a user's ledger, creating the user on first
// deposit.
func (s *TradingService) Deposit(ctx context.Context, userID string, amount decimal.Decimal) error {
	user := s.userOrCreate(userID)
	if err := user.Ledger().Deposit(amount); err != nil {
		return err
	}
	s.logger.Info(ctx, "Deposit applied", map[string]interface{}{"userID": userID, "amount": amount})
	s.persist(ctx)
	return nil
}

// Withdraw removes free funds from a user's ledger.
func (s *TradingService) Withdraw(ctx context.Context, userID string, amount decimal.Decimal) error {
	user, err := s.user(userID)
	if err != nil {
		return err
	}
	if err := user.Ledger().Withdraw(amount); err != nil {
		return err
	}
	s.logger.Info(ctx, "Withdrawal applied", map[string]interface{}{"userID": userID, "amount": amount})
	s.persist(ctx)
	return nil
}

// Balance returns the user's current ledger balance.
func (s *TradingService) Balance(userID string) (decimal.Decimal, error) {
	user, err := s.user(userID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return user.Balance(), nil
}

// OpenPosition fetches the entry price from the oracle, atomically
// debits the margin, records the new position and starts its monitor.
// Any failure leaves the ledger and position set untouched.
func (s *TradingService) OpenPosition(ctx context.Context, userID string, params domain.OpenParams) (*domain.Position, error) {
	user, err := s.user(userID)
	if err != nil {
		return nil, err
	}

	entryPrice, err := s.oracle.GetPrice(ctx, params.Symbol)
	if err != nil {
		return nil, fmt.Errorf("cannot open position: %w", err)
	}

	pos, err := user.OpenPosition(params, entryPrice)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "Position opened", map[string]interface{}{
		"userID":     userID,
		"positionID": pos.ID,
		"symbol":     pos.Symbol,
		"direction":  pos.Direction,
		"margin":     pos.Margin,
		"entryPrice": pos.EntryPrice,
		"leverage":   pos.Leverage,
	})

	if err := s.startMonitor(pos); err != nil {
		// The position is open and funded either way; monitoring can
		// be re-attached by a restart.
		s.logger.Error(ctx, err, "Failed to start monitor", map[string]interface{}{"positionID": pos.ID})
	}
	s.persist(ctx)
	return pos, nil
}

// ClosePosition settles a position manually at the current price. A
// position that is already closed (for example the monitor won a
// concurrent trigger) is a no-op success: no second credit happens.
func (s *TradingService) ClosePosition(ctx context.Context, userID, positionID string) (*domain.Position, error) {
	user, err := s.user(userID)
	if err != nil {
		return nil, err
	}
	pos, err := user.Position(positionID)
	if err != nil {
		return nil, err
	}
	if !pos.IsOpen() {
		return pos, nil
	}

	price, err := s.oracle.GetPrice(ctx, pos.Symbol)
	if err != nil {
		return nil, fmt.Errorf("cannot close position %s: %w", positionID, err)
	}
	profit, roi := pos.ProfitAndROI(price)
	settled, err := pos.Settle(profit, roi, domain.CloseReasonManual)
	if err != nil {
		return nil, err
	}
	if settled {
		s.logger.Info(ctx, "Position closed manually", map[string]interface{}{
			"userID":     userID,
			"positionID": positionID,
			"price":      price,
			"profit":     profit,
			"roi":        roi,
		})
		s.persist(ctx)
	}
	return pos, nil
}

// ListPositions returns all of a user's positions in creation order,
// closed ones included.
func (s *TradingService) ListPositions(userID string) ([]*domain.Position, error) {
	user, err := s.user(userID)
	if err != nil {
		return nil, err
	}
	return user.Positions(), nil
}

// ListOpenPositions returns a user's open positions in creation order.
func (s *TradingService) ListOpenPositions(userID string) ([]*domain.Position, error) {
	user, err := s.user(userID)
	if err != nil {
		return nil, err
	}
	return user.OpenPositions(), nil
}

// PositionStatus returns a live snapshot for one position. When the
// oracle is unavailable the snapshot carries the error so a UI can
// still render the position status and last message.
func (s *TradingService) PositionStatus(ctx context.Context, userID, positionID string) (monitor.StatusSnapshot, error) {
	user, err := s.user(userID)
	if err != nil {
		return monitor.StatusSnapshot{}, err
	}
	pos, err := user.Position(positionID)
	if err != nil {
		return monitor.StatusSnapshot{}, err
	}

	s.mu.RLock()
	mon := s.monitors[positionID]
	s.mu.RUnlock()
	if mon != nil {
		return mon.Status(ctx), nil
	}

	snap := monitor.StatusSnapshot{
		PositionID:     pos.ID,
		PositionStatus: pos.Status(),
	}
	price, err := s.oracle.GetPrice(ctx, pos.Symbol)
	if err != nil {
		snap.Err = err
		return snap, nil
	}
	snap.CurrentPrice = price
	snap.Profit, snap.ROI = pos.ProfitAndROI(price)
	return snap, nil
}

// MonitorState reports the lifecycle state of a position's monitor.
func (s *TradingService) MonitorState(positionID string) (monitor.State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mon, ok := s.monitors[positionID]
	if !ok {
		return "", false
	}
	return mon.State(), true
}

// startMonitor attaches and starts a fresh monitor for an open
// position.
func (s *TradingService) startMonitor(pos *domain.Position) error {
	mon, err := monitor.New(monitor.Config{
		Position:      pos,
		Oracle:        s.oracle,
		Logger:        s.logger,
		PollInterval:  s.cfg.PollInterval,
		MaxRetries:    s.cfg.PriceMaxRetries,
		RetryMinDelay: s.cfg.PriceRetryMinDelay,
		RetryMaxDelay: s.cfg.PriceRetryMaxDelay,
		AfterSettle:   s.persist,
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.monitors[pos.ID] = mon
	s.mu.Unlock()
	mon.Start(s.rootCtx)
	return nil
}

// persist saves a full snapshot through the gateway. Saves are best
// effort: in-memory state stays authoritative and failures are logged.
func (s *TradingService) persist(ctx context.Context) {
	snap := s.snapshot()
	if err := s.gateway.Save(ctx, snap); err != nil {
		s.logger.Warn(ctx, "Snapshot save failed", map[string]interface{}{"error": err.Error()})
	}
}

// snapshot exports the full state in user creation order.
func (s *TradingService) snapshot() *domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := &domain.Snapshot{Users: make([]domain.UserSnapshot, 0, len(s.userOrder))}
	for _, id := range s.userOrder {
		snap.Users = append(snap.Users, s.users[id].Snapshot())
	}
	return snap
}

// Restore loads the last snapshot and rebuilds live state. Monitors
// are re-attached to every position still open; they are fresh
// instances, the terminated ones from the previous run are gone.
func (s *TradingService) Restore(ctx context.Context) error {
	snap, err := s.gateway.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	users := make(map[string]*domain.User, len(snap.Users))
	order := make([]string, 0, len(snap.Users))
	for _, us := range snap.Users {
		user, err := domain.RestoreUser(us)
		if err != nil {
			return fmt.Errorf("failed to restore snapshot: %w", err)
		}
		users[user.ID] = user
		order = append(order, user.ID)
	}

	s.mu.Lock()
	s.users = users
	s.userOrder = order
	s.mu.Unlock()

	var resumed int
	for _, user := range users {
		for _, pos := range user.OpenPositions() {
			if err := s.startMonitor(pos); err != nil {
				s.logger.Error(ctx, err, "Failed to resume monitor", map[string]interface{}{"positionID": pos.ID})
				continue
			}
			resumed++
		}
	}
	s.logger.Info(ctx, "State restored", map[string]interface{}{"users": len(users), "monitorsResumed": resumed})
	return nil
}

// Shutdown stops every monitor, waits for them to terminate and saves
// a final snapshot.
func (s *TradingService) Shutdown(ctx context.Context) {
	s.rootCancel()

	s.mu.RLock()
	monitors := make([]*monitor.Monitor, 0, len(s.monitors))
	for _, mon := range s.monitors {
		monitors = append(monitors, mon)
	}
	s.mu.RUnlock()

	deadline := time.After(shutdownTimeout)
	for _, mon := range monitors {
		select {
		case <-mon.Done():
		case <-deadline:
			s.logger.Warn(ctx, "Timeout waiting for monitors to stop")
			s.persist(ctx)
			return
		}
	}
	s.persist(ctx)
	s.logger.Info(ctx, "Trading service stopped", map[string]interface{}{"monitors": len(monitors)})
}

// Run restores state, resumes monitoring and blocks until the context
// is cancelled or a shutdown signal arrives.
func (s *TradingService) Run(ctx context.Context) error {
	s.logger.Info(ctx, "Starting trading service...")
	if err := s.Restore(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		s.logger.Info(ctx, "Context cancelled, shutting down...")
	case sig := <-sigCh:
		s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
	}

	s.Shutdown(ctx)
	return nil
}
