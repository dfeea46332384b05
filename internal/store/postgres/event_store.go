package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/calebhwang/predictd/internal/domain"
)

const eventCols = `id, market_id, event_type, payload, created_at`

type eventStore struct {
	c *Client
}

func (s *eventStore) Append(ctx context.Context, e domain.MarketEvent) error {
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("postgres: marshal event payload: %w", err)
	}

	_, err = s.c.q(ctx).Exec(ctx, `
		INSERT INTO market_events (`+eventCols+`)
		VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.MarketID, e.EventType, payloadJSON, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert market event: %w", err)
	}
	return nil
}

func (s *eventStore) Stream(ctx context.Context, marketID string) ([]domain.MarketEvent, error) {
	rows, err := s.c.q(ctx).Query(ctx,
		`SELECT `+eventCols+` FROM market_events WHERE market_id = $1 ORDER BY created_at, id`,
		marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: read event stream: %w", err)
	}
	defer rows.Close()

	var out []domain.MarketEvent
	for rows.Next() {
		var (
			e           domain.MarketEvent
			payloadJSON []byte
		)
		if err := rows.Scan(&e.ID, &e.MarketID, &e.EventType, &payloadJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan market event: %w", err)
		}
		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &e.Payload); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal event payload: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate market events: %w", err)
	}
	return out, nil
}
