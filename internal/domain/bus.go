package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Signal is a single fan-out message received from a bus subscription.
type Signal struct {
	Channel string
	Payload []byte
}

// StreamMessage is one entry read from a durable stream.
type StreamMessage struct {
	ID     string
	Fields map[string]string
}

// SignalBus provides fire-and-forget pub/sub fan-out plus durable,
// replayable streams for work that must survive a consumer restart.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload any) error
	Subscribe(ctx context.Context, pattern string) (<-chan Signal, func(), error)
	StreamAppend(ctx context.Context, stream string, fields map[string]any) (string, error)
	StreamRead(ctx context.Context, stream, lastID string, count int64, block time.Duration) ([]StreamMessage, error)
}

// TradeAction distinguishes queued buy and sell requests.
type TradeAction string

const (
	TradeActionBuy  TradeAction = "BUY"
	TradeActionSell TradeAction = "SELL"
)

// TradeRequest is one unit of asynchronous trading work. Amount carries the
// collateral to spend for buys and the share count to liquidate for sells.
type TradeRequest struct {
	ID       string          `json:"id"`
	UserID   string          `json:"user_id"`
	MarketID string          `json:"market_id"`
	Side     Side            `json:"side"`
	Action   TradeAction     `json:"action"`
	Amount   decimal.Decimal `json:"amount"`
}

// TradeQueue hands trade requests to a background worker for execution.
type TradeQueue interface {
	Enqueue(ctx context.Context, req TradeRequest) (string, error)
}

// LockManager hands out coarse cross-process leases, used to keep a single
// agent instance active when several replicas run against the same backend.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}
