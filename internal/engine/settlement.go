package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/calebhwang/predictd/internal/domain"
)

// Resolve settles a market to the given outcome. Each share on the winning
// side pays out one unit of collateral; losing shares pay nothing. Resolving
// an already settled market is a no-op, so redelivered resolution signals
// never pay twice.
func (e *Engine) Resolve(ctx context.Context, marketID string, outcome domain.Side) error {
	if !outcome.Valid() {
		return fmt.Errorf("engine: outcome %q: %w", outcome, domain.ErrInvalidInput)
	}

	release, err := e.acquireMarket(ctx, marketID)
	if err != nil {
		return fmt.Errorf("engine: acquire market lock: %w", err)
	}
	defer release()

	var (
		settled  bool
		paidOut  int
		marketTk string
	)
	err = e.store.WithinTx(ctx, func(ctx context.Context) error {
		market, err := e.store.Markets().GetByID(ctx, marketID)
		if err != nil {
			return fmt.Errorf("load market: %w", err)
		}
		marketTk = market.Ticker
		if market.Status == domain.MarketStatusSettled {
			settled = true
			return nil
		}
		if market.Status != domain.MarketStatusActive && market.Status != domain.MarketStatusPaused {
			return fmt.Errorf("market %s is %s: %w", market.Ticker, market.Status, domain.ErrInvalidTransition)
		}

		positions, err := e.store.Positions().ListByMarket(ctx, marketID)
		if err != nil {
			return fmt.Errorf("list positions: %w", err)
		}

		now := e.now()
		for _, pos := range positions {
			payout := pos.Shares(outcome)
			if !payout.IsPositive() {
				continue
			}
			if _, err := e.store.Users().AdjustBalance(ctx, pos.UserID, payout); err != nil {
				return fmt.Errorf("credit payout to %s: %w", pos.UserID, err)
			}
			if err := e.appendEntries(ctx, now, domain.LedgerEntry{
				ID:     newID(),
				UserID: pos.UserID,
				Kind:   domain.EntryWinPayout,
				Amount: payout,
				Metadata: map[string]any{
					"market_id": marketID,
					"outcome":   outcome,
				},
			}); err != nil {
				return err
			}
			paidOut++
		}

		market.Status = domain.MarketStatusSettled
		market.UpdatedAt = now
		if err := e.store.Markets().Update(ctx, market); err != nil {
			return fmt.Errorf("settle market: %w", err)
		}
		return e.store.Events().Append(ctx, domain.MarketEvent{
			ID:        newID(),
			MarketID:  marketID,
			EventType: domain.EventMarketResolved,
			Payload:   map[string]any{"outcome": outcome, "positions_paid": paidOut},
			CreatedAt: now,
		})
	})
	if err != nil {
		return fmt.Errorf("engine: resolve: %w", err)
	}
	if settled {
		e.log.Debug("resolve skipped, market already settled",
			slog.String("market_id", marketID))
		return nil
	}

	e.log.Info("market resolved",
		slog.String("market_id", marketID),
		slog.String("ticker", marketTk),
		slog.String("outcome", string(outcome)),
		slog.Int("positions_paid", paidOut))
	e.publish(ctx, ChannelMarkets, marketSignal{
		MarketID: marketID, Ticker: marketTk,
		Status: domain.MarketStatusSettled, Outcome: outcome, At: e.now(),
	})
	return nil
}
