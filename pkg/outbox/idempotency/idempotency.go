// Package idempotency keeps event consumers from applying the same envelope
// twice when the broker redelivers it.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MarkerStore is the Redis surface the guard needs.
type MarkerStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
	IdempotencyKey(scope, id string) string
}

// Manager records processed event ids per consumer. A marker lives at
// inv:idempotency:evt:processed:<consumer>:<event_id> for ttl and holds the
// token of the delivery that claimed it.
type Manager struct {
	store MarkerStore
	ttl   time.Duration
	mint  func() string
}

func NewManager(store MarkerStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl, mint: uuid.NewString}, nil
}

// Run calls fn unless another delivery of eventID already claimed it, in
// which case skipped is true. A failed fn drops this delivery's claim so the
// broker's next redelivery runs it again.
func (m *Manager) Run(ctx context.Context, consumer, eventID string, fn func(context.Context) error) (skipped bool, err error) {
	key, err := m.markerKey(consumer, eventID)
	if err != nil {
		return false, err
	}
	token := m.mint()
	claimed, err := m.store.SetNX(ctx, key, token, m.ttl)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	if !claimed {
		return true, nil
	}

	if err := fn(ctx); err != nil {
		if _, relErr := m.store.CompareAndDelete(context.WithoutCancel(ctx), key, token); relErr != nil {
			return false, errors.Join(err, fmt.Errorf("release %s: %w", key, relErr))
		}
		return false, err
	}
	return false, nil
}

func (m *Manager) markerKey(consumer, eventID string) (string, error) {
	consumer, eventID = strings.TrimSpace(consumer), strings.TrimSpace(eventID)
	switch {
	case consumer == "":
		return "", errors.New("consumer name is required")
	case eventID == "":
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:processed:"+consumer, eventID), nil
}
