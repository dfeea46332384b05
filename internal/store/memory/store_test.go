package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/calebhwang/predictd/internal/domain"
)

func TestWithinTxRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Users().Create(ctx, domain.User{
		ID:               "u1",
		WalletAddress:    "0xabc",
		AvailableBalance: decimal.NewFromInt(100),
	}))

	sentinel := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.Users().AdjustBalance(ctx, "u1", decimal.NewFromInt(-99)); err != nil {
			return err
		}
		if err := s.Ledger().Append(ctx, domain.LedgerEntry{
			ID: "l1", UserID: "u1", Kind: domain.EntryDeposit, Amount: decimal.NewFromInt(1),
		}); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	u, err := s.Users().GetByID(ctx, "u1")
	require.NoError(t, err)
	require.True(t, u.AvailableBalance.Equal(decimal.NewFromInt(100)))

	entries, err := s.Ledger().ListByUser(ctx, "u1", domain.ListOpts{})
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestWithinTxCommits(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.WithinTx(ctx, func(ctx context.Context) error {
		return s.Markets().Create(ctx, domain.Market{
			ID:     "m1",
			Ticker: "BTC-100K",
			Status: domain.MarketStatusPending,
		})
	})
	require.NoError(t, err)

	m, err := s.Markets().GetByTicker(ctx, "BTC-100K")
	require.NoError(t, err)
	require.Equal(t, "m1", m.ID)
}

func TestAdjustBalanceIsRelativeAndFloorsAtZero(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Users().Create(ctx, domain.User{
		ID:               "u1",
		WalletAddress:    "0xabc",
		AvailableBalance: decimal.NewFromInt(100),
	}))

	balance, err := s.Users().AdjustBalance(ctx, "u1", decimal.NewFromInt(-40))
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(60)))

	balance, err = s.Users().AdjustBalance(ctx, "u1", decimal.NewFromInt(15))
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(75)))

	// a debit past zero writes nothing
	_, err = s.Users().AdjustBalance(ctx, "u1", decimal.NewFromInt(-76))
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	u, err := s.Users().GetByID(ctx, "u1")
	require.NoError(t, err)
	require.True(t, u.AvailableBalance.Equal(decimal.NewFromInt(75)))

	_, err = s.Users().AdjustBalance(ctx, "nobody", decimal.NewFromInt(1))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDuplicateTickerRejected(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Markets().Create(ctx, domain.Market{ID: "m1", Ticker: "ETH-5K"}))
	err := s.Markets().Create(ctx, domain.Market{ID: "m2", Ticker: "ETH-5K"})
	require.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestBusStreamReadAfterID(t *testing.T) {
	b := NewBus()
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := b.StreamAppend(ctx, "s", map[string]any{"n": i})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	msgs, err := b.StreamRead(ctx, "s", "0", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	msgs, err = b.StreamRead(ctx, "s", ids[1], 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, ids[2], msgs[0].ID)
}

func TestBusPublishReachesPatternSubscribers(t *testing.T) {
	b := NewBus()
	ctx := context.Background()

	signals, cancel, err := b.Subscribe(ctx, "signals:*")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, b.Publish(ctx, "signals:trades", map[string]string{"k": "v"}))

	select {
	case sig := <-signals:
		require.Equal(t, "signals:trades", sig.Channel)
	case <-time.After(time.Second):
		t.Fatal("no signal received")
	}
}
