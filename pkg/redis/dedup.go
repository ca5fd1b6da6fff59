package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const gatewayEventScope = "gateway:evt"

// DedupGuard tracks processed gateway event ids with SETNX and a bounded
// TTL. The retention window only needs to outlive the gateway's own retry
// window; older identifiers may be forgotten.
type DedupGuard struct {
	store IdempotencyStore
	ttl   time.Duration
}

// NewDedupGuard builds the gateway-event dedup guard.
func NewDedupGuard(store IdempotencyStore, ttl time.Duration) (*DedupGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &DedupGuard{store: store, ttl: ttl}, nil
}

// CheckAndMark atomically marks the event id as seen. It returns true when
// the id was already marked, meaning this delivery is a duplicate.
func (g *DedupGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	key, err := g.key(eventID)
	if err != nil {
		return false, err
	}
	set, err := g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), g.ttl)
	if err != nil {
		return false, fmt.Errorf("mark event processed: %w", err)
	}
	return !set, nil
}

// Delete unmarks an event id so the gateway's redelivery can be processed
// after a handler failure.
func (g *DedupGuard) Delete(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	if err := g.store.Del(ctx, key); err != nil {
		return fmt.Errorf("unmark event: %w", err)
	}
	return nil
}

func (g *DedupGuard) key(eventID string) (string, error) {
	id := strings.TrimSpace(eventID)
	if id == "" {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey(gatewayEventScope, id), nil
}
