package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/calebhwang/predictd/internal/domain"
)

// Market returns a market by id.
func (e *Engine) Market(ctx context.Context, id string) (domain.Market, error) {
	market, err := e.store.Markets().GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("engine: load market: %w", err)
	}
	return market, nil
}

// MarketByTicker returns a market by its unique ticker.
func (e *Engine) MarketByTicker(ctx context.Context, ticker string) (domain.Market, error) {
	market, err := e.store.Markets().GetByTicker(ctx, ticker)
	if err != nil {
		return domain.Market{}, fmt.Errorf("engine: load market: %w", err)
	}
	return market, nil
}

// Markets lists markets, newest first.
func (e *Engine) Markets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := e.store.Markets().List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("engine: list markets: %w", err)
	}
	return markets, nil
}

// MarketTrades lists executed trades in a market, newest first.
func (e *Engine) MarketTrades(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := e.store.Trades().ListByMarket(ctx, marketID, opts)
	if err != nil {
		return nil, fmt.Errorf("engine: list trades: %w", err)
	}
	return trades, nil
}

// MarketEvents returns a market's full event stream in append order.
func (e *Engine) MarketEvents(ctx context.Context, marketID string) ([]domain.MarketEvent, error) {
	events, err := e.store.Events().Stream(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("engine: event stream: %w", err)
	}
	return events, nil
}

// PriceHistory reconstructs a market's execution-price series from its
// trades, oldest first, prefixed with a genesis point at the 0.50 opening
// price.
func (e *Engine) PriceHistory(ctx context.Context, marketID string) ([]domain.PricePoint, error) {
	market, err := e.store.Markets().GetByID(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("engine: load market: %w", err)
	}
	trades, err := e.store.Trades().ListByMarket(ctx, marketID, domain.ListOpts{})
	if err != nil {
		return nil, fmt.Errorf("engine: list trades: %w", err)
	}

	points := make([]domain.PricePoint, 0, len(trades)+1)
	points = append(points, domain.PricePoint{
		Time:  market.CreatedAt,
		Price: decimal.RequireFromString("0.5"),
		Side:  "GENESIS",
	})
	// trades arrive newest first
	for i := len(trades) - 1; i >= 0; i-- {
		t := trades[i]
		points = append(points, domain.PricePoint{
			Time:  t.CreatedAt,
			Price: t.Price,
			Side:  string(t.Side),
		})
	}
	return points, nil
}

// Stats summarizes platform activity for the admin surface.
type Stats struct {
	Markets     int64           `json:"markets"`
	Trades      int64           `json:"trades"`
	TotalVolume decimal.Decimal `json:"total_volume"`
	GeneratedAt time.Time       `json:"generated_at"`
}

func (e *Engine) PlatformStats(ctx context.Context) (Stats, error) {
	markets, err := e.store.Markets().Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("engine: count markets: %w", err)
	}
	trades, err := e.store.Trades().Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("engine: count trades: %w", err)
	}
	volume, err := e.store.Trades().SumAmount(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("engine: sum volume: %w", err)
	}
	return Stats{
		Markets:     markets,
		Trades:      trades,
		TotalVolume: volume,
		GeneratedAt: e.now(),
	}, nil
}
