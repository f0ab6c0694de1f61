package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"

	"marginbot/internal/domain"
	"marginbot/internal/ports"
)

// State describes where a monitor is in its lifecycle.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	// StateSettled: this monitor won the close (TP, SL or liquidation).
	StateSettled State = "settled"
	// StateClosedExternally: another caller closed the position first.
	StateClosedExternally State = "closed_externally"
	// StateStopped: cancelled via Stop or context, position left open.
	StateStopped State = "stopped"
	// StateErrored: oracle failed past the retry budget, position left
	// open and unmonitored.
	StateErrored State = "errored"
)

// Terminal reports whether the monitor has finished. A terminated
// monitor is not revivable; attach a fresh one to resume oversight.
func (s State) Terminal() bool {
	return s != StateIdle && s != StateRunning
}

// StatusSnapshot is a point-in-time view of a monitored position for
// UI-style callers. Err is set instead of failing the call when the
// oracle lookup did not succeed, so a caller can always render the
// position status and last message.
type StatusSnapshot struct {
	PositionID     string
	CurrentPrice   decimal.Decimal
	Profit         decimal.Decimal
	ROI            decimal.Decimal
	PositionStatus domain.PositionStatus
	LastMessage    string
	Err            error
}

// Config holds the dependencies and tuning of a Monitor.
type Config struct {
	Position     *domain.Position
	Oracle       ports.PriceOracle
	Logger       ports.Logger
	PollInterval time.Duration
	// Oracle retry budget per poll. After MaxRetries additional
	// attempts with backoff the monitor gives up and terminates.
	MaxRetries    int
	RetryMinDelay time.Duration
	RetryMaxDelay time.Duration
	// AfterSettle, if set, runs after this monitor wins a settlement.
	// The service uses it to persist the snapshot.
	AfterSettle func(ctx context.Context)
}

// Monitor watches one open position: it polls the price oracle on an
// interval, evaluates take-profit, stop-loss and liquidation in that
// order, and triggers settlement exactly once. The position outlives
// the monitor.
type Monitor struct {
	pos           *domain.Position
	oracle        ports.PriceOracle
	logger        ports.Logger
	interval      time.Duration
	maxRetries    int
	retryMinDelay time.Duration
	retryMaxDelay time.Duration
	afterSettle   func(ctx context.Context)

	mu          sync.Mutex
	state       State
	lastMessage string
	cancel      context.CancelFunc
	done        chan struct{}
}

// New validates dependencies and creates an idle monitor.
func New(cfg Config) (*Monitor, error) {
	if cfg.Position == nil || cfg.Oracle == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Monitor")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryMinDelay <= 0 {
		cfg.RetryMinDelay = 100 * time.Millisecond
	}
	if cfg.RetryMaxDelay < cfg.RetryMinDelay {
		cfg.RetryMaxDelay = 10 * cfg.RetryMinDelay
	}
	return &Monitor{
		pos:           cfg.Position,
		oracle:        cfg.Oracle,
		logger:        cfg.Logger,
		interval:      cfg.PollInterval,
		maxRetries:    cfg.MaxRetries,
		retryMinDelay: cfg.RetryMinDelay,
		retryMaxDelay: cfg.RetryMaxDelay,
		afterSettle:   cfg.AfterSettle,
		state:         StateIdle,
		done:          make(chan struct{}),
	}, nil
}

// Start launches the watch loop in its own goroutine. Starting a
// monitor that already ran is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.state = StateRunning
	m.mu.Unlock()

	go m.run(runCtx)
}

// Stop requests cooperative cancellation. The loop observes it at the
// next suspension point; a close already decided in the current
// iteration completes first. Stop never closes the position.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed when the monitor has terminated.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastMessage returns the last observed status message.
func (m *Monitor) LastMessage() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastMessage
}

// Status fetches the current price and returns a live snapshot. Oracle
// failures are reported inside the snapshot, never as a call failure.
func (m *Monitor) Status(ctx context.Context) StatusSnapshot {
	snap := StatusSnapshot{
		PositionID:     m.pos.ID,
		PositionStatus: m.pos.Status(),
		LastMessage:    m.LastMessage(),
	}
	price, err := m.oracle.GetPrice(ctx, m.pos.Symbol)
	if err != nil {
		snap.Err = err
		return snap
	}
	snap.CurrentPrice = price
	snap.Profit, snap.ROI = m.pos.ProfitAndROI(price)
	return snap
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	for {
		// The poll sleep and the oracle call are the only suspension
		// points; cancellation takes effect here.
		select {
		case <-ctx.Done():
			m.finish(StateStopped, "monitoring stopped")
			return
		case <-time.After(m.interval):
		}

		if !m.pos.IsOpen() {
			m.finish(StateClosedExternally, "position closed externally, monitoring ended")
			return
		}

		price, err := m.fetchPrice(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				m.finish(StateStopped, "monitoring stopped")
				return
			}
			// Retry budget exhausted: record and abandon. The position
			// stays open; a fresh monitor or a manual close must take
			// over.
			m.logger.Error(ctx, err, "Price polling failed, abandoning monitor", map[string]interface{}{
				"positionID": m.pos.ID,
				"symbol":     m.pos.Symbol,
			})
			m.finish(StateErrored, fmt.Sprintf("error in price monitoring: %v", err))
			return
		}

		profit, roi := m.pos.ProfitAndROI(price)
		m.setMessage(fmt.Sprintf("current price: %s | roi: %s%% | profit: %s$",
			price, roi.StringFixed(2), profit.StringFixed(2)))

		reason, triggered := m.decideClose(price, profit)
		if !triggered {
			continue
		}

		if reason == domain.CloseReasonLiquidation {
			// Loss is capped at the posted margin.
			profit = m.pos.Margin.Neg()
		}
		settled, err := m.pos.Settle(profit, roi, reason)
		if err != nil {
			m.logger.Error(ctx, err, "Settlement failed", map[string]interface{}{"positionID": m.pos.ID})
			m.finish(StateErrored, fmt.Sprintf("settlement failed: %v", err))
			return
		}
		if !settled {
			// A manual close won the race; nothing was credited here.
			m.finish(StateClosedExternally, "position closed externally, monitoring ended")
			return
		}

		m.logger.Info(ctx, "Position settled", map[string]interface{}{
			"positionID": m.pos.ID,
			"reason":     reason,
			"price":      price,
			"profit":     profit,
			"roi":        roi,
		})
		m.finish(StateSettled, settleMessage(reason, price))
		if m.afterSettle != nil {
			m.afterSettle(ctx)
		}
		return
	}
}

// decideClose evaluates the close conditions at price, in order:
// take-profit, stop-loss, then liquidation (only when no stop-loss is
// set).
func (m *Monitor) decideClose(price, profit decimal.Decimal) (domain.CloseReason, bool) {
	pos := m.pos
	switch pos.Direction {
	case domain.Long:
		if !pos.TakeProfit.IsZero() && price.GreaterThanOrEqual(pos.TakeProfit) {
			return domain.CloseReasonTakeProfit, true
		}
		if !pos.StopLoss.IsZero() && price.LessThanOrEqual(pos.StopLoss) {
			return domain.CloseReasonStopLoss, true
		}
	case domain.Short:
		if !pos.TakeProfit.IsZero() && price.LessThanOrEqual(pos.TakeProfit) {
			return domain.CloseReasonTakeProfit, true
		}
		if !pos.StopLoss.IsZero() && price.GreaterThanOrEqual(pos.StopLoss) {
			return domain.CloseReasonStopLoss, true
		}
	}
	if pos.StopLoss.IsZero() && profit.LessThanOrEqual(pos.Margin.Neg()) {
		return domain.CloseReasonLiquidation, true
	}
	return "", false
}

// fetchPrice polls the oracle, retrying transient failures with
// exponential backoff and jitter up to the configured budget.
func (m *Monitor) fetchPrice(ctx context.Context) (decimal.Decimal, error) {
	b := &backoff.Backoff{
		Min:    m.retryMinDelay,
		Max:    m.retryMaxDelay,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		price, err := m.oracle.GetPrice(ctx, m.pos.Symbol)
		if err == nil {
			return price, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return decimal.Decimal{}, ctx.Err()
		}
		if attempt == m.maxRetries {
			break
		}
		delay := b.Duration()
		m.logger.Warn(ctx, "Price fetch failed, retrying", map[string]interface{}{
			"positionID": m.pos.ID,
			"symbol":     m.pos.Symbol,
			"attempt":    attempt + 1,
			"delay":      delay.String(),
		})
		select {
		case <-ctx.Done():
			return decimal.Decimal{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	return decimal.Decimal{}, lastErr
}

func (m *Monitor) setMessage(msg string) {
	m.mu.Lock()
	m.lastMessage = msg
	m.mu.Unlock()
}

func (m *Monitor) finish(state State, msg string) {
	m.mu.Lock()
	m.state = state
	m.lastMessage = msg
	m.mu.Unlock()
}

func settleMessage(reason domain.CloseReason, price decimal.Decimal) string {
	switch reason {
	case domain.CloseReasonTakeProfit:
		return fmt.Sprintf("take profit hit at %s, position closed", price)
	case domain.CloseReasonStopLoss:
		return fmt.Sprintf("stop loss hit at %s, position closed", price)
	case domain.CloseReasonLiquidation:
		return fmt.Sprintf("liquidation: loss reached margin at %s, position closed", price)
	default:
		return fmt.Sprintf("position closed at %s", price)
	}
}
