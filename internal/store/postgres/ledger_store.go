package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/calebhwang/predictd/internal/domain"
)

const ledgerCols = `id, user_id, kind, amount, metadata, created_at`

type ledgerStore struct {
	c *Client
}

func (s *ledgerStore) Append(ctx context.Context, e domain.LedgerEntry) error {
	meta := e.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("postgres: marshal ledger metadata: %w", err)
	}

	_, err = s.c.q(ctx).Exec(ctx, `
		INSERT INTO ledger_entries (`+ledgerCols+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.UserID, string(e.Kind), e.Amount, metaJSON, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert ledger entry: %w", err)
	}
	return nil
}

func (s *ledgerStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerCols + ` FROM ledger_entries WHERE user_id = $1 ORDER BY created_at DESC, id DESC` + limitClause(opts)
	rows, err := s.c.q(ctx).Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ledger entries: %w", err)
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		var (
			e        domain.LedgerEntry
			kind     string
			metaJSON []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &kind, &e.Amount, &metaJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan ledger entry: %w", err)
		}
		e.Kind = domain.EntryKind(kind)
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &e.Metadata); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal ledger metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate ledger entries: %w", err)
	}
	return out, nil
}

func (s *ledgerStore) SumByUser(ctx context.Context, userID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.c.q(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE user_id = $1`,
		userID).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: sum ledger entries: %w", err)
	}
	return sum, nil
}
