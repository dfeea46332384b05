package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/calebhwang/predictd/internal/domain"
)

// streamMaxLen is the approximate maximum length for streams, enforced via
// XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// SignalBus implements domain.SignalBus using Redis Pub/Sub for ephemeral
// fan-out and Redis Streams for durable, ordered delivery.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// Publish JSON-encodes payload and sends it to a Pub/Sub channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("redis: marshal signal for %s: %w", channel, err)
	}
	if err := sb.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a Pub/Sub subscription on a channel or glob pattern. The
// returned cancel function closes the subscription and the channel.
func (sb *SignalBus) Subscribe(ctx context.Context, pattern string) (<-chan domain.Signal, func(), error) {
	var pubsub *redis.PubSub
	if hasPattern(pattern) {
		pubsub = sb.rdb.PSubscribe(ctx, pattern)
	} else {
		pubsub = sb.rdb.Subscribe(ctx, pattern)
	}

	// Receive the confirmation so a broken subscription fails fast.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("redis: subscribe %s: %w", pattern, err)
	}

	out := make(chan domain.Signal, 128)
	done := make(chan struct{})
	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- domain.Signal{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
				case <-ctx.Done():
					return
				case <-done:
					return
				}
			}
		}
	}()

	var once bool
	cancel := func() {
		if once {
			return
		}
		once = true
		close(done)
		_ = pubsub.Close()
	}
	return out, cancel, nil
}

// hasPattern reports whether the channel uses glob-style wildcards, which
// require PSubscribe.
func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

// StreamAppend appends fields to a stream with XADD, trimming it to an
// approximate maximum length. It returns the assigned entry id.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, fields map[string]any) (string, error) {
	id, err := sb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: fields,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return id, nil
}

// StreamRead reads up to count entries after lastID, blocking up to block
// when the stream is empty. Use "0" as lastID to read from the beginning or
// "$" for new entries only. An empty result is not an error.
func (sb *SignalBus) StreamRead(ctx context.Context, stream, lastID string, count int64, block time.Duration) ([]domain.StreamMessage, error) {
	if lastID == "" {
		lastID = "0"
	}
	results, err := sb.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   count,
		Block:   block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}

	var messages []domain.StreamMessage
	for _, res := range results {
		for _, msg := range res.Messages {
			fields := make(map[string]string, len(msg.Values))
			for k, v := range msg.Values {
				switch val := v.(type) {
				case string:
					fields[k] = val
				case []byte:
					fields[k] = string(val)
				default:
					fields[k] = fmt.Sprint(val)
				}
			}
			messages = append(messages, domain.StreamMessage{ID: msg.ID, Fields: fields})
		}
	}
	return messages, nil
}

var _ domain.SignalBus = (*SignalBus)(nil)
