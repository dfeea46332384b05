package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/calebhwang/predictd/internal/domain"
)

type marketSignal struct {
	MarketID string              `json:"market_id"`
	Ticker   string              `json:"ticker"`
	Status   domain.MarketStatus `json:"status"`
	Outcome  domain.Side         `json:"outcome,omitempty"`
	At       time.Time           `json:"at"`
}

// CreateMarket registers a new market in the pending state with seeded
// pools. Creation is idempotent on ticker: if a market with the same ticker
// already exists it is returned unchanged.
func (e *Engine) CreateMarket(ctx context.Context, def domain.MarketDefinition) (domain.Market, error) {
	if def.Ticker == "" || def.Question == "" {
		return domain.Market{}, fmt.Errorf("engine: ticker and question are required: %w", domain.ErrInvalidInput)
	}

	existing, err := e.store.Markets().GetByTicker(ctx, def.Ticker)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Market{}, fmt.Errorf("engine: lookup ticker: %w", err)
	}

	seed := decimal.RequireFromString(SeedLiquidity)
	now := e.now()
	market := domain.Market{
		ID:                 newID(),
		Ticker:             def.Ticker,
		Question:           def.Question,
		ResolutionCriteria: def.ResolutionCriteria,
		CollateralType:     def.CollateralType,
		ExpiryAt:           def.ExpiryAt,
		Status:             domain.MarketStatusPending,
		PoolYes:            seed,
		PoolNo:             seed,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err = e.store.WithinTx(ctx, func(ctx context.Context) error {
		if err := e.store.Markets().Create(ctx, market); err != nil {
			return fmt.Errorf("create market: %w", err)
		}
		return e.store.Events().Append(ctx, domain.MarketEvent{
			ID:        newID(),
			MarketID:  market.ID,
			EventType: domain.EventMarketCreated,
			Payload: map[string]any{
				"ticker":   market.Ticker,
				"question": market.Question,
				"expiry":   market.ExpiryAt,
			},
			CreatedAt: now,
		})
	})
	if err != nil {
		// lost a creation race on the same ticker, return the winner
		if errors.Is(err, domain.ErrAlreadyExists) {
			return e.store.Markets().GetByTicker(ctx, def.Ticker)
		}
		return domain.Market{}, fmt.Errorf("engine: create market: %w", err)
	}

	e.log.Info("market created",
		slog.String("market_id", market.ID),
		slog.String("ticker", market.Ticker))
	e.publish(ctx, ChannelMarkets, marketSignal{
		MarketID: market.ID, Ticker: market.Ticker, Status: market.Status, At: now,
	})
	return market, nil
}

// AddLiquidity deepens a market's pools with house collateral. The first add
// activates a pending market; adding zero on both sides is a pure
// activation that leaves the seeded 0.50 price in place.
func (e *Engine) AddLiquidity(ctx context.Context, marketID string, amountYes, amountNo decimal.Decimal) (domain.Market, error) {
	if amountYes.IsNegative() || amountNo.IsNegative() {
		return domain.Market{}, fmt.Errorf("engine: liquidity amounts must be non-negative: %w", domain.ErrInvalidInput)
	}

	release, err := e.acquireMarket(ctx, marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("engine: acquire market lock: %w", err)
	}
	defer release()

	var market domain.Market
	err = e.store.WithinTx(ctx, func(ctx context.Context) error {
		market, err = e.store.Markets().GetByID(ctx, marketID)
		if err != nil {
			return fmt.Errorf("load market: %w", err)
		}
		if market.Status != domain.MarketStatusPending && market.Status != domain.MarketStatusActive {
			return fmt.Errorf("market %s is %s: %w", market.Ticker, market.Status, domain.ErrInvalidTransition)
		}

		now := e.now()
		activated := market.Status == domain.MarketStatusPending
		market.PoolYes = market.PoolYes.Add(amountYes)
		market.PoolNo = market.PoolNo.Add(amountNo)
		market.Status = domain.MarketStatusActive
		market.UpdatedAt = now
		if err := e.store.Markets().Update(ctx, market); err != nil {
			return fmt.Errorf("update market: %w", err)
		}

		payload := map[string]any{
			"amount_yes": amountYes.String(),
			"amount_no":  amountNo.String(),
			"activated":  activated,
		}
		return e.store.Events().Append(ctx, domain.MarketEvent{
			ID:        newID(),
			MarketID:  marketID,
			EventType: domain.EventLiquidityAdded,
			Payload:   payload,
			CreatedAt: now,
		})
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("engine: add liquidity: %w", err)
	}

	e.log.Info("liquidity added",
		slog.String("market_id", marketID),
		slog.String("amount_yes", amountYes.String()),
		slog.String("amount_no", amountNo.String()),
		slog.String("status", string(market.Status)))
	e.publish(ctx, ChannelMarkets, marketSignal{
		MarketID: market.ID, Ticker: market.Ticker, Status: market.Status, At: market.UpdatedAt,
	})
	return market, nil
}

// Pause halts trading on an active market.
func (e *Engine) Pause(ctx context.Context, marketID string) (domain.Market, error) {
	return e.transition(ctx, marketID, domain.MarketStatusActive, domain.MarketStatusPaused, domain.EventMarketPaused)
}

// Resume reopens trading on a paused market.
func (e *Engine) Resume(ctx context.Context, marketID string) (domain.Market, error) {
	return e.transition(ctx, marketID, domain.MarketStatusPaused, domain.MarketStatusActive, domain.EventMarketResumed)
}

func (e *Engine) transition(ctx context.Context, marketID string, from, to domain.MarketStatus, eventType string) (domain.Market, error) {
	release, err := e.acquireMarket(ctx, marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("engine: acquire market lock: %w", err)
	}
	defer release()

	var market domain.Market
	err = e.store.WithinTx(ctx, func(ctx context.Context) error {
		market, err = e.store.Markets().GetByID(ctx, marketID)
		if err != nil {
			return fmt.Errorf("load market: %w", err)
		}
		if market.Status != from {
			return fmt.Errorf("market %s is %s, want %s: %w",
				market.Ticker, market.Status, from, domain.ErrInvalidTransition)
		}

		now := e.now()
		market.Status = to
		market.UpdatedAt = now
		if err := e.store.Markets().Update(ctx, market); err != nil {
			return fmt.Errorf("update market: %w", err)
		}
		return e.store.Events().Append(ctx, domain.MarketEvent{
			ID:        newID(),
			MarketID:  marketID,
			EventType: eventType,
			Payload:   map[string]any{"from": from, "to": to},
			CreatedAt: now,
		})
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("engine: transition: %w", err)
	}

	e.log.Info("market transitioned",
		slog.String("market_id", marketID),
		slog.String("from", string(from)),
		slog.String("to", string(to)))
	e.publish(ctx, ChannelMarkets, marketSignal{
		MarketID: market.ID, Ticker: market.Ticker, Status: market.Status, At: market.UpdatedAt,
	})
	return market, nil
}
