package queue

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/calebhwang/predictd/internal/domain"
	"github.com/calebhwang/predictd/internal/engine"
	"github.com/calebhwang/predictd/internal/store/memory"
)

func testSetup(t *testing.T) (*engine.Engine, *memory.Bus, domain.User, domain.Market) {
	t.Helper()
	ctx := context.Background()
	bus := memory.NewBus()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(memory.New(), bus, log)

	user, err := eng.EnsureUser(ctx, "0xqueue")
	require.NoError(t, err)
	_, err = eng.Deposit(ctx, user.ID, decimal.RequireFromString("500"), "test")
	require.NoError(t, err)

	m, err := eng.CreateMarket(ctx, domain.MarketDefinition{
		Ticker: "BTC-QUEUE", Question: "q", ExpiryAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	m, err = eng.AddLiquidity(ctx, m.ID, decimal.Zero, decimal.Zero)
	require.NoError(t, err)
	return eng, bus, user, m
}

func TestEnqueueValidates(t *testing.T) {
	_, bus, _, _ := testSetup(t)
	q := NewStreamQueue(bus)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, domain.TradeRequest{
		UserID: "u", MarketID: "m", Side: "MAYBE",
		Action: domain.TradeActionBuy, Amount: decimal.RequireFromString("10"),
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = q.Enqueue(ctx, domain.TradeRequest{
		UserID: "u", MarketID: "m", Side: domain.SideYes,
		Action: "HOLD", Amount: decimal.RequireFromString("10"),
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	id, err := q.Enqueue(ctx, domain.TradeRequest{
		UserID: "u", MarketID: "m", Side: domain.SideYes,
		Action: domain.TradeActionBuy, Amount: decimal.RequireFromString("10"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)
}

func TestWorkerExecutesQueuedTrades(t *testing.T) {
	eng, bus, user, m := testSetup(t)
	q := NewStreamQueue(bus)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := q.Enqueue(ctx, domain.TradeRequest{
		UserID: user.ID, MarketID: m.ID, Side: domain.SideYes,
		Action: domain.TradeActionBuy, Amount: decimal.RequireFromString("50"),
	})
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	worker := NewWorker(bus, eng, log)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		got, err := eng.User(ctx, user.ID)
		require.NoError(t, err)
		return got.AvailableBalance.Equal(decimal.RequireFromString("450"))
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop on cancel")
	}
}

func TestWorkerSkipsRejectedTrades(t *testing.T) {
	eng, bus, user, m := testSetup(t)
	q := NewStreamQueue(bus)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// more than the user's balance, then a valid request behind it
	_, err := q.Enqueue(ctx, domain.TradeRequest{
		UserID: user.ID, MarketID: m.ID, Side: domain.SideYes,
		Action: domain.TradeActionBuy, Amount: decimal.RequireFromString("10000"),
	})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, domain.TradeRequest{
		UserID: user.ID, MarketID: m.ID, Side: domain.SideNo,
		Action: domain.TradeActionBuy, Amount: decimal.RequireFromString("20"),
	})
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	worker := NewWorker(bus, eng, log)
	go func() { _ = worker.Run(ctx) }()

	require.Eventually(t, func() bool {
		got, err := eng.User(ctx, user.ID)
		require.NoError(t, err)
		return got.AvailableBalance.Equal(decimal.RequireFromString("480"))
	}, 3*time.Second, 20*time.Millisecond)
}
