package core

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStateStore_ConsumeIsSingleUse(t *testing.T) {
	store := NewMemoryStateStore(time.Minute)

	state, err := store.GenerateAndStore(context.Background(), "acme", time.Minute)
	if err != nil {
		t.Fatalf("generate state: %v", err)
	}
	if state == "" {
		t.Fatalf("expected a non-empty state token")
	}

	ok, err := store.ValidateAndConsume(context.Background(), "acme", state)
	if err != nil {
		t.Fatalf("consume state: %v", err)
	}
	if !ok {
		t.Fatalf("expected first consume to succeed")
	}

	ok, err = store.ValidateAndConsume(context.Background(), "acme", state)
	if err != nil {
		t.Fatalf("second consume: %v", err)
	}
	if ok {
		t.Fatalf("expected second consume of the same state to fail")
	}
}

func TestMemoryStateStore_RejectsWrongPlugin(t *testing.T) {
	store := NewMemoryStateStore(time.Minute)

	state, err := store.GenerateAndStore(context.Background(), "acme", time.Minute)
	if err != nil {
		t.Fatalf("generate state: %v", err)
	}

	ok, err := store.ValidateAndConsume(context.Background(), "other", state)
	if err != nil {
		t.Fatalf("consume state: %v", err)
	}
	if ok {
		t.Fatalf("expected state bound to acme to be rejected for other")
	}

	// The mismatched consume already burned the token.
	ok, _ = store.ValidateAndConsume(context.Background(), "acme", state)
	if ok {
		t.Fatalf("expected state to be consumed even on plugin mismatch")
	}
}

func TestMemoryStateStore_ExpiredStateIsAbsent(t *testing.T) {
	store := NewMemoryStateStore(time.Minute)
	current := time.Now().UTC()
	store.now = func() time.Time { return current }

	state, err := store.GenerateAndStore(context.Background(), "acme", time.Minute)
	if err != nil {
		t.Fatalf("generate state: %v", err)
	}

	current = current.Add(2 * time.Minute)
	ok, err := store.ValidateAndConsume(context.Background(), "acme", state)
	if err != nil {
		t.Fatalf("consume state: %v", err)
	}
	if ok {
		t.Fatalf("expected expired state to be treated as absent")
	}
}

func TestMemoryStateStore_SweepAndMaxEntries(t *testing.T) {
	store := NewMemoryStateStoreWithLimits(time.Minute, 2)
	current := time.Now().UTC()
	store.now = func() time.Time { return current }

	if _, err := store.GenerateAndStore(context.Background(), "acme", time.Minute); err != nil {
		t.Fatalf("first state: %v", err)
	}
	if _, err := store.GenerateAndStore(context.Background(), "acme", time.Minute); err != nil {
		t.Fatalf("second state: %v", err)
	}
	if _, err := store.GenerateAndStore(context.Background(), "acme", time.Minute); err == nil {
		t.Fatalf("expected store full error at capacity")
	}

	// Advancing past the TTL lets the write-time sweep reclaim capacity.
	current = current.Add(2 * time.Minute)
	if _, err := store.GenerateAndStore(context.Background(), "acme", time.Minute); err != nil {
		t.Fatalf("expected sweep to reclaim expired entries, got %v", err)
	}
}

func TestMemoryPKCEStore_ConsumeIsSingleUse(t *testing.T) {
	store := NewMemoryPKCEStore(time.Minute)

	if err := store.Store(context.Background(), "state_a", "verifier_a", time.Minute); err != nil {
		t.Fatalf("store verifier: %v", err)
	}

	verifier, ok, err := store.Consume(context.Background(), "state_a")
	if err != nil {
		t.Fatalf("consume verifier: %v", err)
	}
	if !ok || verifier != "verifier_a" {
		t.Fatalf("expected verifier_a, got %q ok=%v", verifier, ok)
	}

	if _, ok, _ := store.Consume(context.Background(), "state_a"); ok {
		t.Fatalf("expected second consume to miss")
	}
}

func TestMemoryPKCEStore_ExpiredVerifierIsAbsent(t *testing.T) {
	store := NewMemoryPKCEStore(time.Minute)
	current := time.Now().UTC()
	store.now = func() time.Time { return current }

	if err := store.Store(context.Background(), "state_a", "verifier_a", time.Minute); err != nil {
		t.Fatalf("store verifier: %v", err)
	}

	current = current.Add(2 * time.Minute)
	if _, ok, _ := store.Consume(context.Background(), "state_a"); ok {
		t.Fatalf("expected expired verifier to be treated as absent")
	}
}

func TestMemoryPKCEStore_RequiresStateAndVerifier(t *testing.T) {
	store := NewMemoryPKCEStore(time.Minute)

	if err := store.Store(context.Background(), "", "verifier", time.Minute); err == nil {
		t.Fatalf("expected error for empty state")
	}
	if err := store.Store(context.Background(), "state", "", time.Minute); err == nil {
		t.Fatalf("expected error for empty verifier")
	}
}
