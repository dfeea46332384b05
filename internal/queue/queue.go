// Package queue provides the asynchronous trading path: requests are
// appended to a durable stream and executed by a background worker through
// the same engine methods the synchronous API uses.
package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/calebhwang/predictd/internal/domain"
)

// TradeStream is the stream trade requests are appended to.
const TradeStream = "streams:trades"

// StreamQueue implements domain.TradeQueue on top of the signal bus's
// durable streams.
type StreamQueue struct {
	bus domain.SignalBus
}

func NewStreamQueue(bus domain.SignalBus) *StreamQueue {
	return &StreamQueue{bus: bus}
}

// Enqueue appends a trade request and returns its request id.
func (q *StreamQueue) Enqueue(ctx context.Context, req domain.TradeRequest) (string, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if !req.Side.Valid() {
		return "", fmt.Errorf("queue: side %q: %w", req.Side, domain.ErrInvalidInput)
	}
	if req.Action != domain.TradeActionBuy && req.Action != domain.TradeActionSell {
		return "", fmt.Errorf("queue: action %q: %w", req.Action, domain.ErrInvalidInput)
	}
	if !req.Amount.IsPositive() {
		return "", fmt.Errorf("queue: amount must be positive: %w", domain.ErrInvalidInput)
	}

	_, err := q.bus.StreamAppend(ctx, TradeStream, map[string]any{
		"id":        req.ID,
		"user_id":   req.UserID,
		"market_id": req.MarketID,
		"side":      string(req.Side),
		"action":    string(req.Action),
		"amount":    req.Amount.String(),
	})
	if err != nil {
		return "", fmt.Errorf("queue: enqueue trade: %w", err)
	}
	return req.ID, nil
}

var _ domain.TradeQueue = (*StreamQueue)(nil)
