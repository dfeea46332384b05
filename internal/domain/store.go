package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// TxRunner executes fn inside one atomic storage transaction. Every write
// issued through a store within fn commits or rolls back as a unit; no
// intermediate state is observable outside the transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// MarketStore persists the market read model.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	GetByTicker(ctx context.Context, ticker string) (Market, error)
	Update(ctx context.Context, m Market) error
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	ListByStatus(ctx context.Context, status MarketStatus) ([]Market, error)
	ListExpired(ctx context.Context, status MarketStatus, before time.Time) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// UserStore persists user accounts and their spendable balances.
type UserStore interface {
	Create(ctx context.Context, u User) error
	GetByID(ctx context.Context, id string) (User, error)
	GetByWallet(ctx context.Context, wallet string) (User, error)

	// AdjustBalance applies a signed delta to the user's balance and
	// returns the resulting value. The write is relative so concurrent
	// adjustments on one user compose instead of overwriting each other;
	// a debit past zero fails with ErrInsufficientBalance and writes
	// nothing.
	AdjustBalance(ctx context.Context, id string, delta decimal.Decimal) (decimal.Decimal, error)
}

// PositionStore persists per-(user,market) share holdings.
type PositionStore interface {
	Get(ctx context.Context, userID, marketID string) (Position, error)
	Upsert(ctx context.Context, p Position) error
	ListByMarket(ctx context.Context, marketID string) ([]Position, error)
	ListByUser(ctx context.Context, userID string) ([]Position, error)
}

// TradeStore persists executed fills, append-only.
type TradeStore interface {
	Create(ctx context.Context, t Trade) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Trade, error)
	Count(ctx context.Context) (int64, error)
	SumAmount(ctx context.Context) (decimal.Decimal, error)
}

// LedgerStore persists the append-only audit log of balance movements.
type LedgerStore interface {
	Append(ctx context.Context, e LedgerEntry) error
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]LedgerEntry, error)
	SumByUser(ctx context.Context, userID string) (decimal.Decimal, error)
}

// EventStore persists the append-only per-market event stream.
type EventStore interface {
	Append(ctx context.Context, e MarketEvent) error
	Stream(ctx context.Context, marketID string) ([]MarketEvent, error)
}

// Store aggregates every persistence interface the engine needs, together
// with the transaction runner that makes multi-store writes atomic.
type Store interface {
	TxRunner
	Markets() MarketStore
	Users() UserStore
	Positions() PositionStore
	Trades() TradeStore
	Ledger() LedgerStore
	Events() EventStore
}
