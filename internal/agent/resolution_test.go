package agent

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

type fixedOracle map[string]string

func (f fixedOracle) Price(_ context.Context, assetID string) (decimal.Decimal, error) {
	v, ok := f[assetID]
	if !ok {
		return decimal.Zero, domain.ErrOracleUnavailable
	}
	return decimal.RequireFromString(v), nil
}

func expiredActiveMarket(t *testing.T, eng *engine.Engine, ticker, criteria string) domain.Market {
	t.Helper()
	ctx := context.Background()
	m, err := eng.CreateMarket(ctx, domain.MarketDefinition{
		Ticker:             ticker,
		Question:           "q",
		ResolutionCriteria: criteria,
		ExpiryAt:           time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)
	m, err = eng.AddLiquidity(ctx, m.ID, decimal.Zero, decimal.Zero)
	require.NoError(t, err)
	return m
}

func newAgentFixture(t *testing.T, prices fixedOracle) (*ResolutionAgent, *engine.Engine, *memory.Store) {
	t.Helper()
	store := memory.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(store, memory.NewBus(), log)
	agent := NewResolutionAgent(store, eng, prices, memory.NewLockManager(), log, time.Second)
	return agent, eng, store
}

func TestScanResolvesExpiredMarkets(t *testing.T) {
	agent, eng, _ := newAgentFixture(t, fixedOracle{"bitcoin": "105000", "ethereum": "2500"})
	ctx := context.Background()

	over := expiredActiveMarket(t, eng, "BTC-100K", "bitcoin > 100000")
	under := expiredActiveMarket(t, eng, "ETH-3K", "ethereum > 3000")

	require.NoError(t, agent.Scan(ctx))

	m, err := eng.Market(ctx, over.ID)
	require.NoError(t, err)
	require.Equal(t, domain.MarketStatusSettled, m.Status)

	m, err = eng.Market(ctx, under.ID)
	require.NoError(t, err)
	require.Equal(t, domain.MarketStatusSettled, m.Status)

	events, err := eng.MarketEvents(ctx, over.ID)
	require.NoError(t, err)
	last := events[len(events)-1]
	require.Equal(t, domain.EventMarketResolved, last.EventType)
	require.EqualValues(t, domain.SideYes, last.Payload["outcome"])

	events, err = eng.MarketEvents(ctx, under.ID)
	require.NoError(t, err)
	require.EqualValues(t, domain.SideNo, events[len(events)-1].Payload["outcome"])
}

func TestScanSkipsUnreadyMarkets(t *testing.T) {
	agent, eng, _ := newAgentFixture(t, fixedOracle{"bitcoin": "105000"})
	ctx := context.Background()

	unexpired, err := eng.CreateMarket(ctx, domain.MarketDefinition{
		Ticker: "BTC-LATER", Question: "q",
		ResolutionCriteria: "bitcoin > 100000",
		ExpiryAt:           time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = eng.AddLiquidity(ctx, unexpired.ID, decimal.Zero, decimal.Zero)
	require.NoError(t, err)

	badCriteria := expiredActiveMarket(t, eng, "BTC-BAD", "whenever it feels right")
	noQuote := expiredActiveMarket(t, eng, "SOL-150", "solana > 150")

	require.NoError(t, agent.Scan(ctx))

	for _, id := range []string{unexpired.ID, badCriteria.ID, noQuote.ID} {
		m, err := eng.Market(ctx, id)
		require.NoError(t, err)
		require.NotEqual(t, domain.MarketStatusSettled, m.Status)
	}
}

func TestParseCriteria(t *testing.T) {
	c, err := ParseCriteria("Bitcoin > 100000")
	require.NoError(t, err)
	require.Equal(t, "bitcoin", c.Asset)
	require.Equal(t, ">", c.Op)
	require.True(t, c.Target.Equal(decimal.NewFromInt(100000)))

	c, err = ParseCriteria("ethereum < 3000.50")
	require.NoError(t, err)
	require.Equal(t, "<", c.Op)

	for _, bad := range []string{"", "bitcoin >", "bitcoin >= 10", "bitcoin > ten"} {
		_, err := ParseCriteria(bad)
		require.Error(t, err, bad)
	}
}

func TestTickHonorsLock(t *testing.T) {
	agent, eng, _ := newAgentFixture(t, fixedOracle{"bitcoin": "105000"})
	m := expiredActiveMarket(t, eng, "BTC-LOCKED", "bitcoin > 100000")
	ctx := context.Background()

	locks := memory.NewLockManager()
	agent.locks = locks
	release, err := locks.Acquire(ctx, resolutionLockKey, time.Minute)
	require.NoError(t, err)

	agent.tick(ctx)
	got, err := eng.Market(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, domain.MarketStatusActive, got.Status)

	release()
	agent.tick(ctx)
	got, err = eng.Market(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, domain.MarketStatusSettled, got.Status)

	_, err = locks.Acquire(ctx, resolutionLockKey, time.Minute)
	require.NoError(t, err)
	err = locks.WithLock(ctx, resolutionLockKey, time.Minute, agent.Scan)
	require.ErrorIs(t, err, domain.ErrLockHeld)
}
