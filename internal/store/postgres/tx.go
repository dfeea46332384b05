package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/calebhwang/predictd/internal/domain"
)

type txKey struct{}

// querier is satisfied by both the pool and an open transaction, so the
// per-entity stores run against whichever the context carries.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (c *Client) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return c.pool
}

// WithinTx runs fn inside one database transaction. Store calls made with
// the context passed to fn are routed through that transaction; nested calls
// reuse the transaction already in flight.
func (c *Client) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

// Store exposes the per-entity stores behind the domain.Store aggregate.
type Store struct {
	*Client
}

func NewStore(c *Client) *Store { return &Store{Client: c} }

func (s *Store) Markets() domain.MarketStore     { return &marketStore{c: s.Client} }
func (s *Store) Users() domain.UserStore         { return &userStore{c: s.Client} }
func (s *Store) Positions() domain.PositionStore { return &positionStore{c: s.Client} }
func (s *Store) Trades() domain.TradeStore       { return &tradeStore{c: s.Client} }
func (s *Store) Ledger() domain.LedgerStore      { return &ledgerStore{c: s.Client} }
func (s *Store) Events() domain.EventStore       { return &eventStore{c: s.Client} }
