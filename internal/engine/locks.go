package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/calebhwang/predictd/internal/domain"
)

// defaultLockWait bounds how long a caller blocks waiting for a market's
// serialization slot before giving up with ErrMarketBusy.
const defaultLockWait = 5 * time.Second

// marketLeaseTTL caps how long a crashed replica keeps a market lease; a
// healthy caller releases it well before expiry.
const marketLeaseTTL = 30 * time.Second

const leaseRetryInterval = 50 * time.Millisecond

// marketLocks serializes all mutating operations per market within this
// process. Each market gets a one-slot channel acting as a mutex that can be
// waited on with a context.
type marketLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
	wait  time.Duration
}

func newMarketLocks(wait time.Duration) *marketLocks {
	if wait <= 0 {
		wait = defaultLockWait
	}
	return &marketLocks{slots: make(map[string]chan struct{}), wait: wait}
}

func (l *marketLocks) slot(marketID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[marketID]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[marketID] = s
	}
	return s
}

// acquire blocks until the market's slot is free, the context is done, or
// the wait budget elapses. The returned release must be called exactly once.
func (l *marketLocks) acquire(ctx context.Context, marketID string) (func(), error) {
	s := l.slot(marketID)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case s <- struct{}{}:
		return func() { <-s }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, domain.ErrMarketBusy
	}
}

// acquireMarket serializes a mutating market operation. The in-process slot
// orders callers within one replica; when a lock manager is configured, a
// lease keyed by market extends that ordering across every replica sharing
// the backend. Lease contention is retried until the same wait budget the
// local slot uses runs out.
func (e *Engine) acquireMarket(ctx context.Context, marketID string) (func(), error) {
	deadline := time.Now().Add(e.locks.wait)

	release, err := e.locks.acquire(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if e.lockman == nil {
		return release, nil
	}

	key := "locks:market:" + marketID
	for {
		releaseLease, err := e.lockman.Acquire(ctx, key, marketLeaseTTL)
		if err == nil {
			return func() {
				releaseLease()
				release()
			}, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			release()
			return nil, err
		}
		if !time.Now().Before(deadline) {
			release()
			return nil, domain.ErrMarketBusy
		}
		select {
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		case <-time.After(leaseRetryInterval):
		}
	}
}
