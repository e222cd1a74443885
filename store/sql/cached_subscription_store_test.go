package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-gateway/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type stubSubscriptionBackend struct {
	mu            sync.Mutex
	subscriptions []core.Subscription
	listCalls     int
	upsertCalls   int
	deleteCalls   int
	listErr       error
	upsertErr     error
}

func (s *stubSubscriptionBackend) ListByPlugin(_ context.Context, pluginID string) ([]core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]core.Subscription, 0, len(s.subscriptions))
	for _, subscription := range s.subscriptions {
		if subscription.PluginID == pluginID {
			out = append(out, subscription)
		}
	}
	return out, nil
}

func (s *stubSubscriptionBackend) Upsert(_ context.Context, in core.Subscription) (core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	if s.upsertErr != nil {
		return core.Subscription{}, s.upsertErr
	}
	for i, existing := range s.subscriptions {
		if existing.ID == in.ID {
			s.subscriptions[i] = in
			return in, nil
		}
	}
	s.subscriptions = append(s.subscriptions, in)
	return in, nil
}

func (s *stubSubscriptionBackend) Get(_ context.Context, id string) (core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, subscription := range s.subscriptions {
		if subscription.ID == id {
			return subscription, nil
		}
	}
	return core.Subscription{}, errors.New("subscription not found")
}

func (s *stubSubscriptionBackend) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls++
	kept := s.subscriptions[:0]
	for _, subscription := range s.subscriptions {
		if subscription.ID != id {
			kept = append(kept, subscription)
		}
	}
	s.subscriptions = kept
	return nil
}

func TestCachedSubscriptionStore_FindMatching_MissFetchThenHit(t *testing.T) {
	cacheService := newTestSubscriptionCacheService(t)
	base := &stubSubscriptionBackend{
		subscriptions: []core.Subscription{
			{ID: "sub_1", PluginID: "acme", EventType: "ticket.created", TargetType: core.TargetTypeHTTP, TargetURL: "https://sink.example/a", Enabled: true},
			{ID: "sub_2", PluginID: "acme", TargetType: core.TargetTypeHTTP, TargetURL: "https://sink.example/b", Enabled: true},
			{ID: "sub_3", PluginID: "acme", EventType: "ticket.closed", TargetType: core.TargetTypeHTTP, TargetURL: "https://sink.example/c", Enabled: true},
		},
	}

	store, err := NewCachedSubscriptionStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached subscription store: %v", err)
	}

	matched, err := store.FindMatching(context.Background(), "acme", "ticket.created", "conn_1")
	if err != nil {
		t.Fatalf("first find: %v", err)
	}
	if len(matched) != 2 {
		t.Fatalf("expected wildcard and typed subscriptions to match, got %d", len(matched))
	}
	if base.listCalls != 1 {
		t.Fatalf("expected first find to fetch base store once, got %d", base.listCalls)
	}

	if _, err := store.FindMatching(context.Background(), "acme", "ticket.closed", "conn_1"); err != nil {
		t.Fatalf("second find: %v", err)
	}
	if base.listCalls != 1 {
		t.Fatalf("expected second find to be cache hit, base list calls=%d", base.listCalls)
	}
}

func TestCachedSubscriptionStore_FindMatching_ExcludesDisabled(t *testing.T) {
	cacheService := newTestSubscriptionCacheService(t)
	base := &stubSubscriptionBackend{
		subscriptions: []core.Subscription{
			{ID: "sub_on", PluginID: "acme", TargetType: core.TargetTypeHTTP, TargetURL: "https://sink.example/on", Enabled: true},
			{ID: "sub_off", PluginID: "acme", TargetType: core.TargetTypeHTTP, TargetURL: "https://sink.example/off", Enabled: false},
		},
	}

	store, err := NewCachedSubscriptionStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached subscription store: %v", err)
	}

	matched, err := store.FindMatching(context.Background(), "acme", "ticket.created", "")
	if err != nil {
		t.Fatalf("find matching: %v", err)
	}
	if len(matched) != 1 || matched[0].ID != "sub_on" {
		t.Fatalf("expected only enabled subscription, got %+v", matched)
	}
}

func TestCachedSubscriptionStore_Upsert_InvalidatesPluginEntry(t *testing.T) {
	cacheService := newTestSubscriptionCacheService(t)
	base := &stubSubscriptionBackend{
		subscriptions: []core.Subscription{
			{ID: "sub_1", PluginID: "acme", TargetType: core.TargetTypeHTTP, TargetURL: "https://sink.example/a", Enabled: true},
		},
	}

	store, err := NewCachedSubscriptionStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached subscription store: %v", err)
	}

	if _, err := store.FindMatching(context.Background(), "acme", "ticket.created", ""); err != nil {
		t.Fatalf("prime cache with find: %v", err)
	}
	if base.listCalls != 1 {
		t.Fatalf("expected one base read after cache prime, got %d", base.listCalls)
	}

	if _, err := store.Upsert(context.Background(), core.Subscription{
		ID:         "sub_2",
		PluginID:   "acme",
		TargetType: core.TargetTypeHTTP,
		TargetURL:  "https://sink.example/b",
		Enabled:    true,
	}); err != nil {
		t.Fatalf("upsert through cached store: %v", err)
	}
	if base.upsertCalls != 1 {
		t.Fatalf("expected base upsert call count=1, got %d", base.upsertCalls)
	}

	matched, err := store.FindMatching(context.Background(), "acme", "ticket.created", "")
	if err != nil {
		t.Fatalf("find after upsert invalidation: %v", err)
	}
	if base.listCalls != 2 {
		t.Fatalf("expected invalidated plugin entry to force second base read, got %d", base.listCalls)
	}
	if len(matched) != 2 {
		t.Fatalf("expected refreshed set with both subscriptions, got %d", len(matched))
	}
}

func TestCachedSubscriptionStore_Delete_InvalidatesPluginEntry(t *testing.T) {
	cacheService := newTestSubscriptionCacheService(t)
	base := &stubSubscriptionBackend{
		subscriptions: []core.Subscription{
			{ID: "sub_1", PluginID: "acme", TargetType: core.TargetTypeHTTP, TargetURL: "https://sink.example/a", Enabled: true},
		},
	}

	store, err := NewCachedSubscriptionStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached subscription store: %v", err)
	}

	if _, err := store.FindMatching(context.Background(), "acme", "ticket.created", ""); err != nil {
		t.Fatalf("prime cache with find: %v", err)
	}

	if err := store.Delete(context.Background(), "sub_1"); err != nil {
		t.Fatalf("delete through cached store: %v", err)
	}
	if base.deleteCalls != 1 {
		t.Fatalf("expected base delete call count=1, got %d", base.deleteCalls)
	}

	matched, err := store.FindMatching(context.Background(), "acme", "ticket.created", "")
	if err != nil {
		t.Fatalf("find after delete invalidation: %v", err)
	}
	if base.listCalls != 2 {
		t.Fatalf("expected invalidated plugin entry to force second base read, got %d", base.listCalls)
	}
	if len(matched) != 0 {
		t.Fatalf("expected empty set after delete, got %d", len(matched))
	}
}

func TestSubscriptionCacheKey_Contract(t *testing.T) {
	key, err := SubscriptionCacheKey(" Org/Alpha Plugin ")
	if err != nil {
		t.Fatalf("build cache key: %v", err)
	}

	const expected = "go-gateway::subscriptions::v1::Org%2FAlpha%20Plugin"
	if key != expected {
		t.Fatalf("unexpected cache key contract: got %q want %q", key, expected)
	}

	if _, err := SubscriptionCacheKey("  "); err == nil {
		t.Fatalf("expected empty plugin id to be rejected")
	}
}

func TestCachedSubscriptionStore_PropagatesBaseErrors(t *testing.T) {
	cacheService := newTestSubscriptionCacheService(t)
	baseErr := errors.New("backing store offline")
	base := &stubSubscriptionBackend{listErr: baseErr}
	store, err := NewCachedSubscriptionStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached subscription store: %v", err)
	}

	_, err = store.FindMatching(context.Background(), "acme", "ticket.created", "")
	if !errors.Is(err, baseErr) {
		t.Fatalf("expected base error propagation, got %v", err)
	}
}

func newTestSubscriptionCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
