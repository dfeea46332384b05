package domain

import "time"

// Market event types persisted in the event store.
const (
	EventMarketCreated  = "MarketCreated"
	EventLiquidityAdded = "MarketLiquidityAdded"
	EventMarketPaused   = "MarketPaused"
	EventMarketResumed  = "MarketResumed"
	EventMarketResolved = "MarketResolved"
	EventTradeExecuted  = "TradeExecuted"
)

// MarketEvent is one append-only row in a market's event stream.
type MarketEvent struct {
	ID        string         `json:"id"`
	MarketID  string         `json:"market_id"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ResolutionSignal is the inbound message that triggers settlement. Signals
// may be delivered more than once; the settlement engine is idempotent.
type ResolutionSignal struct {
	MarketID string `json:"market_id"`
	Outcome  Side   `json:"outcome"`
}
