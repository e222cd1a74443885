package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-gateway/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const subscriptionCacheKeyPrefix = "go-gateway::subscriptions::v1"

// SubscriptionBackend is the store surface the cached front wraps: the
// per-plugin listing that feeds the cache plus the writes that invalidate it.
type SubscriptionBackend interface {
	ListByPlugin(ctx context.Context, pluginID string) ([]core.Subscription, error)
	Upsert(ctx context.Context, in core.Subscription) (core.Subscription, error)
	Get(ctx context.Context, id string) (core.Subscription, error)
	Delete(ctx context.Context, id string) error
}

// CachedSubscriptionStore fronts the SQL subscription store with a read
// cache keyed per plugin. The dispatcher hits FindMatching on every webhook,
// so the full enabled set for a plugin is cached and filtered in memory;
// writes drop the plugin's entry.
type CachedSubscriptionStore struct {
	base  SubscriptionBackend
	cache repositorycache.CacheService
}

func NewCachedSubscriptionStore(
	base SubscriptionBackend,
	cacheService repositorycache.CacheService,
) (*CachedSubscriptionStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base subscription store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: subscription cache service is required")
	}
	return &CachedSubscriptionStore{base: base, cache: cacheService}, nil
}

// SubscriptionCacheKey returns the deterministic cache key contract for
// subscription reads: go-gateway::subscriptions::v1::<plugin_id> with the
// plugin segment URL-path escaped.
func SubscriptionCacheKey(pluginID string) (string, error) {
	pluginID = strings.TrimSpace(pluginID)
	if pluginID == "" {
		return "", fmt.Errorf("sqlstore: plugin id is required")
	}
	return subscriptionCacheKeyPrefix + "::" + url.PathEscape(pluginID), nil
}

func (s *CachedSubscriptionStore) FindMatching(ctx context.Context, pluginID, eventType, connectionID string) ([]core.Subscription, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	pluginID = strings.TrimSpace(pluginID)
	cacheKey, err := SubscriptionCacheKey(pluginID)
	if err != nil {
		return nil, err
	}

	enabled, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) ([]core.Subscription, error) {
		all, fetchErr := s.base.ListByPlugin(ctx, pluginID)
		if fetchErr != nil {
			return nil, fetchErr
		}
		kept := make([]core.Subscription, 0, len(all))
		for _, subscription := range all {
			if subscription.Enabled {
				kept = append(kept, subscription)
			}
		}
		return kept, nil
	})
	if err != nil {
		return nil, err
	}

	matched := make([]core.Subscription, 0, len(enabled))
	for _, subscription := range enabled {
		if !subscription.Matches(eventType, connectionID) {
			continue
		}
		matched = append(matched, subscription)
	}
	return matched, nil
}

func (s *CachedSubscriptionStore) Upsert(ctx context.Context, in core.Subscription) (core.Subscription, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	out, err := s.base.Upsert(ctx, in)
	if err != nil {
		return core.Subscription{}, err
	}
	if err := s.invalidate(ctx, out.PluginID); err != nil {
		return core.Subscription{}, err
	}
	return out, nil
}

func (s *CachedSubscriptionStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	subscription, err := s.base.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.base.Delete(ctx, id); err != nil {
		return err
	}
	return s.invalidate(ctx, subscription.PluginID)
}

func (s *CachedSubscriptionStore) invalidate(ctx context.Context, pluginID string) error {
	cacheKey, err := SubscriptionCacheKey(pluginID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

var _ core.SubscriptionSource = (*CachedSubscriptionStore)(nil)
