// Package memory provides an in-process implementation of the persistence
// interfaces, used by tests and by the standalone run mode.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/calebhwang/predictd/internal/domain"
)

type txKey struct{}

// Store keeps all state in maps guarded by one mutex. WithinTx holds the
// mutex for the whole callback and restores a snapshot on error, which gives
// the same all-or-nothing visibility as a database transaction.
type Store struct {
	mu sync.Mutex

	users     map[string]domain.User
	markets   map[string]domain.Market
	tickers   map[string]string // ticker -> market id
	positions map[string]domain.Position
	trades    []domain.Trade
	ledger    []domain.LedgerEntry
	events    []domain.MarketEvent
}

func New() *Store {
	return &Store{
		users:     make(map[string]domain.User),
		markets:   make(map[string]domain.Market),
		tickers:   make(map[string]string),
		positions: make(map[string]domain.Position),
	}
}

func posKey(userID, marketID string) string { return userID + "/" + marketID }

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// lock is a no-op inside a transaction, where WithinTx already holds mu.
func (s *Store) lock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type snapshot struct {
	users     map[string]domain.User
	markets   map[string]domain.Market
	tickers   map[string]string
	positions map[string]domain.Position
	trades    int
	ledger    int
	events    int
}

func (s *Store) snap() snapshot {
	sn := snapshot{
		users:     make(map[string]domain.User, len(s.users)),
		markets:   make(map[string]domain.Market, len(s.markets)),
		tickers:   make(map[string]string, len(s.tickers)),
		positions: make(map[string]domain.Position, len(s.positions)),
		trades:    len(s.trades),
		ledger:    len(s.ledger),
		events:    len(s.events),
	}
	for k, v := range s.users {
		sn.users[k] = v
	}
	for k, v := range s.markets {
		sn.markets[k] = v
	}
	for k, v := range s.tickers {
		sn.tickers[k] = v
	}
	for k, v := range s.positions {
		sn.positions[k] = v
	}
	return sn
}

func (s *Store) restore(sn snapshot) {
	s.users = sn.users
	s.markets = sn.markets
	s.tickers = sn.tickers
	s.positions = sn.positions
	s.trades = s.trades[:sn.trades]
	s.ledger = s.ledger[:sn.ledger]
	s.events = s.events[:sn.events]
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sn := s.snap()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(sn)
		return err
	}
	return nil
}

func (s *Store) Markets() domain.MarketStore     { return (*marketStore)(s) }
func (s *Store) Users() domain.UserStore         { return (*userStore)(s) }
func (s *Store) Positions() domain.PositionStore { return (*positionStore)(s) }
func (s *Store) Trades() domain.TradeStore       { return (*tradeStore)(s) }
func (s *Store) Ledger() domain.LedgerStore      { return (*ledgerStore)(s) }
func (s *Store) Events() domain.EventStore       { return (*eventStore)(s) }

type marketStore Store

func (s *marketStore) Create(ctx context.Context, m domain.Market) error {
	defer (*Store)(s).lock(ctx)()
	if _, ok := s.markets[m.ID]; ok {
		return domain.ErrAlreadyExists
	}
	if _, ok := s.tickers[m.Ticker]; ok {
		return domain.ErrAlreadyExists
	}
	s.markets[m.ID] = m
	s.tickers[m.Ticker] = m.ID
	return nil
}

func (s *marketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	defer (*Store)(s).lock(ctx)()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *marketStore) GetByTicker(ctx context.Context, ticker string) (domain.Market, error) {
	defer (*Store)(s).lock(ctx)()
	id, ok := s.tickers[ticker]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return s.markets[id], nil
}

func (s *marketStore) Update(ctx context.Context, m domain.Market) error {
	defer (*Store)(s).lock(ctx)()
	if _, ok := s.markets[m.ID]; !ok {
		return domain.ErrNotFound
	}
	s.markets[m.ID] = m
	return nil
}

func (s *marketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	defer (*Store)(s).lock(ctx)()
	out := make([]domain.Market, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, opts), nil
}

func (s *marketStore) ListByStatus(ctx context.Context, status domain.MarketStatus) ([]domain.Market, error) {
	defer (*Store)(s).lock(ctx)()
	var out []domain.Market
	for _, m := range s.markets {
		if m.Status == status {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *marketStore) ListExpired(ctx context.Context, status domain.MarketStatus, before time.Time) ([]domain.Market, error) {
	defer (*Store)(s).lock(ctx)()
	var out []domain.Market
	for _, m := range s.markets {
		if m.Status == status && m.ExpiryAt.Before(before) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *marketStore) Count(ctx context.Context) (int64, error) {
	defer (*Store)(s).lock(ctx)()
	return int64(len(s.markets)), nil
}

type userStore Store

func (s *userStore) Create(ctx context.Context, u domain.User) error {
	defer (*Store)(s).lock(ctx)()
	if _, ok := s.users[u.ID]; ok {
		return domain.ErrAlreadyExists
	}
	for _, existing := range s.users {
		if strings.EqualFold(existing.WalletAddress, u.WalletAddress) {
			return domain.ErrAlreadyExists
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *userStore) GetByID(ctx context.Context, id string) (domain.User, error) {
	defer (*Store)(s).lock(ctx)()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (s *userStore) GetByWallet(ctx context.Context, wallet string) (domain.User, error) {
	defer (*Store)(s).lock(ctx)()
	for _, u := range s.users {
		if strings.EqualFold(u.WalletAddress, wallet) {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (s *userStore) AdjustBalance(ctx context.Context, id string, delta decimal.Decimal) (decimal.Decimal, error) {
	defer (*Store)(s).lock(ctx)()
	u, ok := s.users[id]
	if !ok {
		return decimal.Zero, domain.ErrNotFound
	}
	next := u.AvailableBalance.Add(delta)
	if next.IsNegative() {
		return decimal.Zero, domain.ErrInsufficientBalance
	}
	u.AvailableBalance = next
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return next, nil
}

type positionStore Store

func (s *positionStore) Get(ctx context.Context, userID, marketID string) (domain.Position, error) {
	defer (*Store)(s).lock(ctx)()
	p, ok := s.positions[posKey(userID, marketID)]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *positionStore) Upsert(ctx context.Context, p domain.Position) error {
	defer (*Store)(s).lock(ctx)()
	s.positions[posKey(p.UserID, p.MarketID)] = p
	return nil
}

func (s *positionStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Position, error) {
	defer (*Store)(s).lock(ctx)()
	var out []domain.Position
	for _, p := range s.positions {
		if p.MarketID == marketID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *positionStore) ListByUser(ctx context.Context, userID string) ([]domain.Position, error) {
	defer (*Store)(s).lock(ctx)()
	var out []domain.Position
	for _, p := range s.positions {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out, nil
}

type tradeStore Store

func (s *tradeStore) Create(ctx context.Context, t domain.Trade) error {
	defer (*Store)(s).lock(ctx)()
	s.trades = append(s.trades, t)
	return nil
}

func (s *tradeStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	defer (*Store)(s).lock(ctx)()
	var out []domain.Trade
	for i := len(s.trades) - 1; i >= 0; i-- {
		if s.trades[i].MarketID == marketID {
			out = append(out, s.trades[i])
		}
	}
	return page(out, opts), nil
}

func (s *tradeStore) Count(ctx context.Context) (int64, error) {
	defer (*Store)(s).lock(ctx)()
	return int64(len(s.trades)), nil
}

func (s *tradeStore) SumAmount(ctx context.Context) (decimal.Decimal, error) {
	defer (*Store)(s).lock(ctx)()
	sum := decimal.Zero
	for _, t := range s.trades {
		sum = sum.Add(t.Amount)
	}
	return sum, nil
}

type ledgerStore Store

func (s *ledgerStore) Append(ctx context.Context, e domain.LedgerEntry) error {
	defer (*Store)(s).lock(ctx)()
	s.ledger = append(s.ledger, e)
	return nil
}

func (s *ledgerStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	defer (*Store)(s).lock(ctx)()
	var out []domain.LedgerEntry
	for i := len(s.ledger) - 1; i >= 0; i-- {
		if s.ledger[i].UserID == userID {
			out = append(out, s.ledger[i])
		}
	}
	return page(out, opts), nil
}

func (s *ledgerStore) SumByUser(ctx context.Context, userID string) (decimal.Decimal, error) {
	defer (*Store)(s).lock(ctx)()
	sum := decimal.Zero
	for _, e := range s.ledger {
		if e.UserID == userID {
			sum = sum.Add(e.Amount)
		}
	}
	return sum, nil
}

type eventStore Store

func (s *eventStore) Append(ctx context.Context, e domain.MarketEvent) error {
	defer (*Store)(s).lock(ctx)()
	s.events = append(s.events, e)
	return nil
}

func (s *eventStore) Stream(ctx context.Context, marketID string) ([]domain.MarketEvent, error) {
	defer (*Store)(s).lock(ctx)()
	var out []domain.MarketEvent
	for _, e := range s.events {
		if e.MarketID == marketID {
			out = append(out, e)
		}
	}
	return out, nil
}

func page[T any](in []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(in) {
			return nil
		}
		in = in[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(in) {
		in = in[:opts.Limit]
	}
	return in
}
