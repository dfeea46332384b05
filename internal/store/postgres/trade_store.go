package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/calebhwang/predictd/internal/domain"
)

const tradeCols = `id, market_id, user_id, side, amount, shares_received, price, created_at`

type tradeStore struct {
	c *Client
}

func (s *tradeStore) Create(ctx context.Context, t domain.Trade) error {
	_, err := s.c.q(ctx).Exec(ctx, `
		INSERT INTO trades (`+tradeCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.MarketID, t.UserID, string(t.Side), t.Amount, t.SharesReceived, t.Price, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade: %w", err)
	}
	return nil
}

func (s *tradeStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeCols + ` FROM trades WHERE market_id = $1 ORDER BY created_at DESC` + limitClause(opts)
	rows, err := s.c.q(ctx).Query(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		var (
			t    domain.Trade
			side string
		)
		if err := rows.Scan(&t.ID, &t.MarketID, &t.UserID, &side,
			&t.Amount, &t.SharesReceived, &t.Price, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		t.Side = domain.Side(side)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate trades: %w", err)
	}
	return out, nil
}

func (s *tradeStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.c.q(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM trades`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count trades: %w", err)
	}
	return n, nil
}

func (s *tradeStore) SumAmount(ctx context.Context) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.c.q(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM trades`).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: sum trade amounts: %w", err)
	}
	return sum, nil
}
