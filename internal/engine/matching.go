package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/calebhwang/predictd/internal/cpmm"
	"github.com/calebhwang/predictd/internal/domain"
)

type tradeSignal struct {
	TradeID  string          `json:"trade_id"`
	MarketID string          `json:"market_id"`
	UserID   string          `json:"user_id"`
	Side     domain.Side     `json:"side"`
	Action   string          `json:"action"`
	Amount   decimal.Decimal `json:"amount"`
	Shares   decimal.Decimal `json:"shares"`
	Price    decimal.Decimal `json:"price"`
	At       time.Time       `json:"at"`
}

type priceSignal struct {
	MarketID string          `json:"market_id"`
	PriceYes decimal.Decimal `json:"price_yes"`
	PriceNo  decimal.Decimal `json:"price_no"`
	At       time.Time       `json:"at"`
}

// Buy spends amount of the user's collateral on one side of a market. The
// balance debit, pool mutation, position credit, trade record, and ledger
// entries all commit in one transaction.
func (e *Engine) Buy(ctx context.Context, userID, marketID string, side domain.Side, amount decimal.Decimal) (domain.TradeReceipt, error) {
	if !side.Valid() {
		return domain.TradeReceipt{}, fmt.Errorf("engine: side %q: %w", side, domain.ErrInvalidInput)
	}
	if !amount.IsPositive() {
		return domain.TradeReceipt{}, fmt.Errorf("engine: buy amount must be positive: %w", domain.ErrInvalidInput)
	}

	release, err := e.acquireMarket(ctx, marketID)
	if err != nil {
		return domain.TradeReceipt{}, fmt.Errorf("engine: acquire market lock: %w", err)
	}
	defer release()

	var (
		receipt domain.TradeReceipt
		sig     tradeSignal
		prices  priceSignal
	)
	err = e.store.WithinTx(ctx, func(ctx context.Context) error {
		market, err := e.store.Markets().GetByID(ctx, marketID)
		if err != nil {
			return fmt.Errorf("load market: %w", err)
		}
		if !market.Tradable() {
			return fmt.Errorf("market %s is %s: %w", market.Ticker, market.Status, domain.ErrMarketNotTradable)
		}

		quote, err := cpmm.Buy(market.PoolYes, market.PoolNo, side, amount)
		if err != nil {
			return fmt.Errorf("quote: %w", err)
		}

		now := e.now()
		newBalance, err := e.store.Users().AdjustBalance(ctx, userID, amount.Neg())
		if err != nil {
			if errors.Is(err, domain.ErrInsufficientBalance) {
				return fmt.Errorf("need %s: %w", amount, domain.ErrInsufficientBalance)
			}
			return fmt.Errorf("debit balance: %w", err)
		}

		pos, err := e.position(ctx, userID, marketID, now)
		if err != nil {
			return err
		}
		pos.SetShares(side, pos.Shares(side).Add(quote.Shares))
		pos.UpdatedAt = now
		if err := e.store.Positions().Upsert(ctx, pos); err != nil {
			return fmt.Errorf("update position: %w", err)
		}

		market.PoolYes = quote.PoolYes
		market.PoolNo = quote.PoolNo
		market.UpdatedAt = now
		if err := e.store.Markets().Update(ctx, market); err != nil {
			return fmt.Errorf("update pools: %w", err)
		}

		trade := domain.Trade{
			ID:             newID(),
			MarketID:       marketID,
			UserID:         userID,
			Side:           side,
			Amount:         amount,
			SharesReceived: quote.Shares,
			Price:          quote.Price,
			CreatedAt:      now,
		}
		if err := e.store.Trades().Create(ctx, trade); err != nil {
			return fmt.Errorf("record trade: %w", err)
		}

		meta := map[string]any{"market_id": marketID, "trade_id": trade.ID}
		if err := e.appendEntries(ctx, now,
			domain.LedgerEntry{ID: newID(), UserID: userID, Kind: domain.EntryTradeBuy, Amount: quote.Net.Neg(), Metadata: meta},
			domain.LedgerEntry{ID: newID(), UserID: userID, Kind: domain.EntryProtocolFee, Amount: quote.Fee.Neg(), Metadata: meta},
		); err != nil {
			return err
		}

		if err := e.store.Events().Append(ctx, domain.MarketEvent{
			ID:        newID(),
			MarketID:  marketID,
			EventType: domain.EventTradeExecuted,
			Payload: map[string]any{
				"trade_id": trade.ID,
				"user_id":  userID,
				"side":     side,
				"action":   "BUY",
				"amount":   amount.String(),
				"shares":   quote.Shares.String(),
				"price":    quote.Price.String(),
			},
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("append event: %w", err)
		}

		receipt = domain.TradeReceipt{
			TradeID:    trade.ID,
			Shares:     quote.Shares,
			Price:      quote.Price,
			NewBalance: newBalance,
		}
		sig = tradeSignal{
			TradeID: trade.ID, MarketID: marketID, UserID: userID,
			Side: side, Action: "BUY",
			Amount: amount, Shares: quote.Shares, Price: quote.Price, At: now,
		}
		prices = e.priceSignal(marketID, quote.PoolYes, quote.PoolNo, now)
		return nil
	})
	if err != nil {
		return domain.TradeReceipt{}, fmt.Errorf("engine: buy: %w", err)
	}

	e.log.Info("buy executed",
		slog.String("market_id", marketID),
		slog.String("user_id", userID),
		slog.String("side", string(side)),
		slog.String("amount", amount.String()),
		slog.String("shares", receipt.Shares.String()),
		slog.String("price", receipt.Price.String()))

	e.publish(ctx, ChannelTrades, sig)
	e.publish(ctx, ChannelPrices, prices)
	return receipt, nil
}

// Sell liquidates shares on one side at the pre-trade spot price. The gross
// payout is credited and the exit fee debited as separate ledger entries.
func (e *Engine) Sell(ctx context.Context, userID, marketID string, side domain.Side, shares decimal.Decimal) (domain.SellReceipt, error) {
	if !side.Valid() {
		return domain.SellReceipt{}, fmt.Errorf("engine: side %q: %w", side, domain.ErrInvalidInput)
	}
	if !shares.IsPositive() {
		return domain.SellReceipt{}, fmt.Errorf("engine: sell shares must be positive: %w", domain.ErrInvalidInput)
	}

	release, err := e.acquireMarket(ctx, marketID)
	if err != nil {
		return domain.SellReceipt{}, fmt.Errorf("engine: acquire market lock: %w", err)
	}
	defer release()

	var (
		receipt domain.SellReceipt
		sig     tradeSignal
		prices  priceSignal
	)
	err = e.store.WithinTx(ctx, func(ctx context.Context) error {
		market, err := e.store.Markets().GetByID(ctx, marketID)
		if err != nil {
			return fmt.Errorf("load market: %w", err)
		}
		if !market.Tradable() {
			return fmt.Errorf("market %s is %s: %w", market.Ticker, market.Status, domain.ErrMarketNotTradable)
		}

		pos, err := e.store.Positions().Get(ctx, userID, marketID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("no position: %w", domain.ErrInsufficientShares)
			}
			return fmt.Errorf("load position: %w", err)
		}
		held := pos.Shares(side)
		if held.LessThan(shares) {
			return fmt.Errorf("hold %s, selling %s: %w", held, shares, domain.ErrInsufficientShares)
		}

		quote, err := cpmm.Sell(market.PoolYes, market.PoolNo, side, shares)
		if err != nil {
			return fmt.Errorf("quote: %w", err)
		}

		now := e.now()
		pos.SetShares(side, held.Sub(shares))
		pos.UpdatedAt = now
		if err := e.store.Positions().Upsert(ctx, pos); err != nil {
			return fmt.Errorf("update position: %w", err)
		}

		market.PoolYes = quote.PoolYes
		market.PoolNo = quote.PoolNo
		market.UpdatedAt = now
		if err := e.store.Markets().Update(ctx, market); err != nil {
			return fmt.Errorf("update pools: %w", err)
		}

		newBalance, err := e.store.Users().AdjustBalance(ctx, userID, quote.Net)
		if err != nil {
			return fmt.Errorf("credit balance: %w", err)
		}

		trade := domain.Trade{
			ID:             newID(),
			MarketID:       marketID,
			UserID:         userID,
			Side:           side,
			Amount:         quote.Net,
			SharesReceived: shares.Neg(),
			Price:          quote.Price,
			CreatedAt:      now,
		}
		if err := e.store.Trades().Create(ctx, trade); err != nil {
			return fmt.Errorf("record trade: %w", err)
		}

		meta := map[string]any{"market_id": marketID, "trade_id": trade.ID}
		if err := e.appendEntries(ctx, now,
			domain.LedgerEntry{ID: newID(), UserID: userID, Kind: domain.EntryTradeSell, Amount: quote.Payout, Metadata: meta},
			domain.LedgerEntry{ID: newID(), UserID: userID, Kind: domain.EntryProtocolFee, Amount: quote.Fee.Neg(), Metadata: meta},
		); err != nil {
			return err
		}

		if err := e.store.Events().Append(ctx, domain.MarketEvent{
			ID:        newID(),
			MarketID:  marketID,
			EventType: domain.EventTradeExecuted,
			Payload: map[string]any{
				"trade_id": trade.ID,
				"user_id":  userID,
				"side":     side,
				"action":   "SELL",
				"shares":   shares.String(),
				"payout":   quote.Net.String(),
				"price":    quote.Price.String(),
			},
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("append event: %w", err)
		}

		receipt = domain.SellReceipt{
			Payout:     quote.Net,
			Price:      quote.Price,
			NewBalance: newBalance,
		}
		sig = tradeSignal{
			TradeID: trade.ID, MarketID: marketID, UserID: userID,
			Side: side, Action: "SELL",
			Amount: quote.Net, Shares: shares, Price: quote.Price, At: now,
		}
		prices = e.priceSignal(marketID, quote.PoolYes, quote.PoolNo, now)
		return nil
	})
	if err != nil {
		return domain.SellReceipt{}, fmt.Errorf("engine: sell: %w", err)
	}

	e.log.Info("sell executed",
		slog.String("market_id", marketID),
		slog.String("user_id", userID),
		slog.String("side", string(side)),
		slog.String("shares", shares.String()),
		slog.String("payout", receipt.Payout.String()),
		slog.String("price", receipt.Price.String()))

	e.publish(ctx, ChannelTrades, sig)
	e.publish(ctx, ChannelPrices, prices)
	return receipt, nil
}

// position loads the user's position in a market, creating an empty one on
// first touch.
func (e *Engine) position(ctx context.Context, userID, marketID string, now time.Time) (domain.Position, error) {
	pos, err := e.store.Positions().Get(ctx, userID, marketID)
	if err == nil {
		return pos, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Position{}, fmt.Errorf("load position: %w", err)
	}
	return domain.Position{
		ID:        newID(),
		UserID:    userID,
		MarketID:  marketID,
		YesShares: decimal.Zero,
		NoShares:  decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (e *Engine) priceSignal(marketID string, poolYes, poolNo decimal.Decimal, at time.Time) priceSignal {
	total := poolYes.Add(poolNo)
	return priceSignal{
		MarketID: marketID,
		PriceYes: poolYes.Div(total),
		PriceNo:  poolNo.Div(total),
		At:       at,
	}
}
