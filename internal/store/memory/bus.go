package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/calebhwang/predictd/internal/domain"
)

// Bus is an in-process signal bus. Pattern subscriptions use path.Match
// semantics, and streams are plain slices with monotonically increasing ids.
type Bus struct {
	mu      sync.Mutex
	nextSub int
	subs    map[int]busSub
	streams map[string][]domain.StreamMessage
	seq     int64
}

type busSub struct {
	pattern string
	ch      chan domain.Signal
}

func NewBus() *Bus {
	return &Bus{
		subs:    make(map[int]busSub),
		streams: make(map[string][]domain.StreamMessage),
	}
}

func (b *Bus) Publish(ctx context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("memory bus: marshal payload: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if ok, _ := path.Match(sub.pattern, channel); !ok {
			continue
		}
		select {
		case sub.ch <- domain.Signal{Channel: channel, Payload: data}:
		default:
			// slow subscriber, drop rather than block the publisher
		}
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, pattern string) (<-chan domain.Signal, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSub
	b.nextSub++
	ch := make(chan domain.Signal, 64)
	b.subs[id] = busSub{pattern: pattern, ch: ch}

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub.ch)
		}
	}
	return ch, cancel, nil
}

func (b *Bus) StreamAppend(ctx context.Context, stream string, fields map[string]any) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	id := strconv.FormatInt(b.seq, 10)
	msg := domain.StreamMessage{ID: id, Fields: make(map[string]string, len(fields))}
	for k, v := range fields {
		msg.Fields[k] = fmt.Sprint(v)
	}
	b.streams[stream] = append(b.streams[stream], msg)
	return id, nil
}

func (b *Bus) StreamRead(ctx context.Context, stream, lastID string, count int64, block time.Duration) ([]domain.StreamMessage, error) {
	deadline := time.Now().Add(block)
	last, _ := strconv.ParseInt(lastID, 10, 64)
	for {
		b.mu.Lock()
		var out []domain.StreamMessage
		for _, msg := range b.streams[stream] {
			id, _ := strconv.ParseInt(msg.ID, 10, 64)
			if id <= last {
				continue
			}
			out = append(out, msg)
			if count > 0 && int64(len(out)) == count {
				break
			}
		}
		b.mu.Unlock()

		if len(out) > 0 || block <= 0 || time.Now().After(deadline) {
			return out, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// LockManager implements coarse leases with plain mutex bookkeeping. It is
// only meaningful within a single process.
type LockManager struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]bool)}
}

func (l *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

func (l *LockManager) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	release, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}
