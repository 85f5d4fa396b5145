package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeStore struct {
	values   map[string]string
	ttls     map[string]time.Duration
	setErr   error
	releases int
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.setErr != nil {
		return false, f.setErr
	}
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	f.releases++
	if f.values[key] != expected {
		return false, nil
	}
	delete(f.values, key)
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "inv:idempotency:" + scope + ":" + id
}

func newTestManager(t *testing.T, store *fakeStore, ttl time.Duration) *Manager {
	t.Helper()
	manager, err := NewManager(store, ttl)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return manager
}

func TestRunMarksFirstDelivery(t *testing.T) {
	store := newFakeStore()
	manager := newTestManager(t, store, 24*time.Hour)
	eventID := uuid.NewString()

	calls := 0
	skipped, err := manager.Run(context.Background(), "orders-consumer", eventID, func(context.Context) error {
		calls++
		return nil
	})
	if err != nil || skipped || calls != 1 {
		t.Fatalf("first delivery: skipped=%v err=%v calls=%d", skipped, err, calls)
	}

	key := "inv:idempotency:evt:processed:orders-consumer:" + eventID
	if _, ok := store.values[key]; !ok {
		t.Fatalf("marker %q not written: %v", key, store.values)
	}
	if store.ttls[key] != 24*time.Hour {
		t.Fatalf("unexpected ttl %v", store.ttls[key])
	}

	skipped, err = manager.Run(context.Background(), "orders-consumer", eventID, func(context.Context) error {
		calls++
		return nil
	})
	if err != nil || !skipped || calls != 1 {
		t.Fatalf("redelivery: skipped=%v err=%v calls=%d", skipped, err, calls)
	}
}

func TestRunReleasesClaimOnFailure(t *testing.T) {
	store := newFakeStore()
	manager := newTestManager(t, store, time.Hour)
	eventID := uuid.NewString()

	handlerErr := errors.New("ledger down")
	skipped, err := manager.Run(context.Background(), "orders-consumer", eventID, func(context.Context) error {
		return handlerErr
	})
	if skipped || !errors.Is(err, handlerErr) {
		t.Fatalf("expected handler error, got skipped=%v err=%v", skipped, err)
	}
	if len(store.values) != 0 {
		t.Fatalf("claim not released: %v", store.values)
	}

	skipped, err = manager.Run(context.Background(), "orders-consumer", eventID, func(context.Context) error { return nil })
	if err != nil || skipped {
		t.Fatalf("retry after failure should run: skipped=%v err=%v", skipped, err)
	}
}

func TestRunFailureKeepsSuccessorClaim(t *testing.T) {
	store := newFakeStore()
	manager := newTestManager(t, store, time.Hour)
	eventID := uuid.NewString()
	key := "inv:idempotency:evt:processed:orders-consumer:" + eventID

	_, err := manager.Run(context.Background(), "orders-consumer", eventID, func(context.Context) error {
		// The claim lapsed mid-handler and another delivery took it.
		store.values[key] = "successor"
		return errors.New("slow handler")
	})
	if err == nil {
		t.Fatal("expected handler error")
	}
	if store.values[key] != "successor" {
		t.Fatalf("released a claim owned by another delivery: %v", store.values)
	}
}

func TestRunValidation(t *testing.T) {
	manager := newTestManager(t, newFakeStore(), time.Hour)
	noop := func(context.Context) error { return nil }

	if _, err := manager.Run(context.Background(), "", uuid.NewString(), noop); err == nil {
		t.Fatal("expected consumer error")
	}
	if _, err := manager.Run(context.Background(), "orders-consumer", " ", noop); err == nil {
		t.Fatal("expected event id error")
	}

	failing := newFakeStore()
	failing.setErr = errors.New("conn refused")
	manager = newTestManager(t, failing, time.Hour)
	if _, err := manager.Run(context.Background(), "orders-consumer", uuid.NewString(), noop); err == nil {
		t.Fatal("expected store error")
	}

	if _, err := NewManager(nil, time.Hour); err == nil {
		t.Fatal("expected nil store error")
	}
	if _, err := NewManager(newFakeStore(), -time.Second); err == nil {
		t.Fatal("expected negative ttl error")
	}
}
