package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/calebhwang/predictd/internal/domain"
	"github.com/calebhwang/predictd/internal/store/memory"
)

func TestMarketLockIsExclusive(t *testing.T) {
	locks := newMarketLocks(30 * time.Millisecond)
	ctx := context.Background()

	release, err := locks.acquire(ctx, "m1")
	require.NoError(t, err)

	_, err = locks.acquire(ctx, "m1")
	require.ErrorIs(t, err, domain.ErrMarketBusy)

	// a different market is unaffected
	releaseOther, err := locks.acquire(ctx, "m2")
	require.NoError(t, err)
	releaseOther()

	release()
	release, err = locks.acquire(ctx, "m1")
	require.NoError(t, err)
	release()
}

func TestMarketLockHonorsContext(t *testing.T) {
	locks := newMarketLocks(time.Minute)

	release, err := locks.acquire(context.Background(), "m1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.acquire(ctx, "m1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMarketLeaseBlocksOtherReplicas(t *testing.T) {
	lm := memory.NewLockManager()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(memory.New(), memory.NewBus(), log,
		WithLockWait(100*time.Millisecond),
		WithLockManager(lm),
	)

	user := fundedUser(t, e, "0xleaseholder", "100")
	m := activeMarket(t, e, "BTC-LEASE")
	ctx := context.Background()

	// another replica holds this market's lease
	releaseLease, err := lm.Acquire(ctx, "locks:market:"+m.ID, time.Minute)
	require.NoError(t, err)

	_, err = e.Buy(ctx, user.ID, m.ID, domain.SideYes, d("10"))
	require.ErrorIs(t, err, domain.ErrMarketBusy)

	releaseLease()
	receipt, err := e.Buy(ctx, user.ID, m.ID, domain.SideYes, d("10"))
	require.NoError(t, err)
	require.True(t, receipt.Shares.IsPositive())
}
