package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/calebhwang/predictd/internal/domain"
)

const positionCols = `id, user_id, market_id, yes_shares, no_shares, created_at, updated_at`

type positionStore struct {
	c *Client
}

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	err := row.Scan(&p.ID, &p.UserID, &p.MarketID, &p.YesShares, &p.NoShares, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: scan position: %w", err)
	}
	return p, nil
}

func (s *positionStore) Get(ctx context.Context, userID, marketID string) (domain.Position, error) {
	row := s.c.q(ctx).QueryRow(ctx,
		`SELECT `+positionCols+` FROM positions WHERE user_id = $1 AND market_id = $2`,
		userID, marketID)
	return scanPosition(row)
}

func (s *positionStore) Upsert(ctx context.Context, p domain.Position) error {
	_, err := s.c.q(ctx).Exec(ctx, `
		INSERT INTO positions (`+positionCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, market_id) DO UPDATE
		SET yes_shares = EXCLUDED.yes_shares,
			no_shares = EXCLUDED.no_shares,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.UserID, p.MarketID, p.YesShares, p.NoShares, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position: %w", err)
	}
	return nil
}

func (s *positionStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Position, error) {
	rows, err := s.c.q(ctx).Query(ctx,
		`SELECT `+positionCols+` FROM positions WHERE market_id = $1 ORDER BY created_at`,
		marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions by market: %w", err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

func (s *positionStore) ListByUser(ctx context.Context, userID string) ([]domain.Position, error) {
	rows, err := s.c.q(ctx).Query(ctx,
		`SELECT `+positionCols+` FROM positions WHERE user_id = $1 ORDER BY created_at`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions by user: %w", err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

func collectPositions(rows pgx.Rows) ([]domain.Position, error) {
	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate positions: %w", err)
	}
	return out, nil
}
