package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/calebhwang/predictd/internal/domain"
)

const marketCols = `id, ticker, question, resolution_criteria, collateral_type,
	expiry_at, status, pool_yes, pool_no, created_at, updated_at`

type marketStore struct {
	c *Client
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m      domain.Market
		status string
	)
	err := row.Scan(
		&m.ID, &m.Ticker, &m.Question, &m.ResolutionCriteria, &m.CollateralType,
		&m.ExpiryAt, &status, &m.PoolYes, &m.PoolNo, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: scan market: %w", err)
	}
	m.Status = domain.MarketStatus(status)
	return m, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *marketStore) Create(ctx context.Context, m domain.Market) error {
	_, err := s.c.q(ctx).Exec(ctx, `
		INSERT INTO markets (`+marketCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		m.ID, m.Ticker, m.Question, m.ResolutionCriteria, m.CollateralType,
		m.ExpiryAt, string(m.Status), m.PoolYes, m.PoolNo, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert market: %w", err)
	}
	return nil
}

func (s *marketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.c.q(ctx).QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	return scanMarket(row)
}

func (s *marketStore) GetByTicker(ctx context.Context, ticker string) (domain.Market, error) {
	row := s.c.q(ctx).QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE ticker = $1`, ticker)
	return scanMarket(row)
}

func (s *marketStore) Update(ctx context.Context, m domain.Market) error {
	tag, err := s.c.q(ctx).Exec(ctx, `
		UPDATE markets
		SET question = $2, resolution_criteria = $3, collateral_type = $4,
			expiry_at = $5, status = $6, pool_yes = $7, pool_no = $8, updated_at = $9
		WHERE id = $1`,
		m.ID, m.Question, m.ResolutionCriteria, m.CollateralType,
		m.ExpiryAt, string(m.Status), m.PoolYes, m.PoolNo, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update market: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *marketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets ORDER BY created_at DESC` + limitClause(opts)
	rows, err := s.c.q(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()
	return collectMarkets(rows)
}

func (s *marketStore) ListByStatus(ctx context.Context, status domain.MarketStatus) ([]domain.Market, error) {
	rows, err := s.c.q(ctx).Query(ctx,
		`SELECT `+marketCols+` FROM markets WHERE status = $1 ORDER BY created_at DESC`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets by status: %w", err)
	}
	defer rows.Close()
	return collectMarkets(rows)
}

func (s *marketStore) ListExpired(ctx context.Context, status domain.MarketStatus, before time.Time) ([]domain.Market, error) {
	rows, err := s.c.q(ctx).Query(ctx,
		`SELECT `+marketCols+` FROM markets WHERE status = $1 AND expiry_at < $2`,
		string(status), before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list expired markets: %w", err)
	}
	defer rows.Close()
	return collectMarkets(rows)
}

func (s *marketStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.c.q(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return n, nil
}

func collectMarkets(rows pgx.Rows) ([]domain.Market, error) {
	var out []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate markets: %w", err)
	}
	return out, nil
}

func limitClause(opts domain.ListOpts) string {
	clause := ""
	if opts.Limit > 0 {
		clause += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	if opts.Offset > 0 {
		clause += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}
	return clause
}
