// Package engine holds the trading core: CPMM order matching, the balance
// ledger, the market lifecycle state machine, and settlement. All writes for
// one operation happen inside a single store transaction, under a per-market
// lock, so the synchronous API path and the queued worker path share one
// serialized code path.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/calebhwang/predictd/internal/domain"
)

// Bus channels the engine publishes on.
const (
	ChannelTrades  = "signals:trades"
	ChannelPrices  = "signals:prices"
	ChannelMarkets = "signals:markets"
)

// SeedLiquidity is the phantom collateral each pool starts with. It anchors
// the opening price at 0.50 and bounds early-trade slippage; it is not owed
// to anyone and is never paid out.
var SeedLiquidity = "100"

type Engine struct {
	store   domain.Store
	bus     domain.SignalBus
	log     *slog.Logger
	locks   *marketLocks
	lockman domain.LockManager
	now     func() time.Time
}

type Option func(*Engine)

// WithLockWait overrides how long operations wait for a market's lock.
func WithLockWait(d time.Duration) Option {
	return func(e *Engine) { e.locks = newMarketLocks(d) }
}

// WithLockManager layers a cross-process lease on top of the per-market
// lock, so replicas sharing one database cannot mutate the same market
// concurrently.
func WithLockManager(lm domain.LockManager) Option {
	return func(e *Engine) { e.lockman = lm }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(store domain.Store, bus domain.SignalBus, log *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		bus:   bus,
		log:   log,
		locks: newMarketLocks(defaultLockWait),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func newID() string { return uuid.NewString() }

// publish is fire-and-forget: a bus outage must not fail a committed trade.
func (e *Engine) publish(ctx context.Context, channel string, payload any) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(ctx, channel, payload); err != nil {
		e.log.Warn("signal publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()))
	}
}
