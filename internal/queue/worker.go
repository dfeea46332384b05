package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/calebhwang/predictd/internal/domain"
)

// Trader executes trades. Satisfied by the engine, so queued requests run
// through exactly the same code path as synchronous API calls.
type Trader interface {
	Buy(ctx context.Context, userID, marketID string, side domain.Side, amount decimal.Decimal) (domain.TradeReceipt, error)
	Sell(ctx context.Context, userID, marketID string, side domain.Side, shares decimal.Decimal) (domain.SellReceipt, error)
}

// Worker drains the trade stream and executes each request. A request that
// fails is logged and skipped; execution errors are business outcomes, not
// reasons to stall the stream.
type Worker struct {
	bus    domain.SignalBus
	trader Trader
	log    *slog.Logger

	lastID string
	block  time.Duration
	batch  int64
}

func NewWorker(bus domain.SignalBus, trader Trader, log *slog.Logger) *Worker {
	return &Worker{
		bus:    bus,
		trader: trader,
		log:    log,
		lastID: "0",
		block:  2 * time.Second,
		batch:  16,
	}
}

// Run consumes the trade stream until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("trade worker started", slog.String("stream", TradeStream))
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		msgs, err := w.bus.StreamRead(ctx, TradeStream, w.lastID, w.batch, w.block)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			w.log.Warn("trade stream read failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, msg := range msgs {
			w.lastID = msg.ID
			w.process(ctx, msg)
		}
	}
}

func (w *Worker) process(ctx context.Context, msg domain.StreamMessage) {
	req, err := parseRequest(msg)
	if err != nil {
		w.log.Warn("dropping malformed trade request",
			slog.String("stream_id", msg.ID),
			slog.String("error", err.Error()))
		return
	}

	switch req.Action {
	case domain.TradeActionBuy:
		_, err = w.trader.Buy(ctx, req.UserID, req.MarketID, req.Side, req.Amount)
	case domain.TradeActionSell:
		_, err = w.trader.Sell(ctx, req.UserID, req.MarketID, req.Side, req.Amount)
	default:
		err = fmt.Errorf("action %q: %w", req.Action, domain.ErrInvalidInput)
	}
	if err != nil {
		w.log.Warn("queued trade rejected",
			slog.String("request_id", req.ID),
			slog.String("user_id", req.UserID),
			slog.String("market_id", req.MarketID),
			slog.String("error", err.Error()))
		return
	}

	w.log.Info("queued trade executed",
		slog.String("request_id", req.ID),
		slog.String("market_id", req.MarketID),
		slog.String("action", string(req.Action)))
}

func parseRequest(msg domain.StreamMessage) (domain.TradeRequest, error) {
	amount, err := decimal.NewFromString(msg.Fields["amount"])
	if err != nil {
		return domain.TradeRequest{}, fmt.Errorf("parse amount: %w", err)
	}
	req := domain.TradeRequest{
		ID:       msg.Fields["id"],
		UserID:   msg.Fields["user_id"],
		MarketID: msg.Fields["market_id"],
		Side:     domain.Side(msg.Fields["side"]),
		Action:   domain.TradeAction(msg.Fields["action"]),
		Amount:   amount,
	}
	if req.UserID == "" || req.MarketID == "" {
		return domain.TradeRequest{}, fmt.Errorf("missing user or market id: %w", domain.ErrInvalidInput)
	}
	if !req.Side.Valid() {
		return domain.TradeRequest{}, fmt.Errorf("side %q: %w", req.Side, domain.ErrInvalidInput)
	}
	return req, nil
}
