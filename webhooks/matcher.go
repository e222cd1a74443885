package webhooks

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-gateway/core"
)

// Matcher finds the subscriptions an event fans out to.
type Matcher struct {
	subscriptions core.SubscriptionSource
}

func NewMatcher(subscriptions core.SubscriptionSource) (*Matcher, error) {
	if subscriptions == nil {
		return nil, fmt.Errorf("webhooks: subscription source is required")
	}
	return &Matcher{subscriptions: subscriptions}, nil
}

// FindMatching returns enabled subscriptions whose plugin id equals exactly
// and whose event type and connection id are each unset or equal. The
// double check guards against sources that return broader sets than asked.
func (m *Matcher) FindMatching(ctx context.Context, pluginID, eventType, connectionID string) ([]core.Subscription, error) {
	if m == nil || m.subscriptions == nil {
		return nil, fmt.Errorf("webhooks: matcher is not configured")
	}
	pluginID = strings.TrimSpace(pluginID)
	if pluginID == "" {
		return nil, fmt.Errorf("webhooks: plugin id is required")
	}

	candidates, err := m.subscriptions.FindMatching(ctx, pluginID, strings.TrimSpace(eventType), strings.TrimSpace(connectionID))
	if err != nil {
		return nil, err
	}

	matched := make([]core.Subscription, 0, len(candidates))
	for _, subscription := range candidates {
		if strings.TrimSpace(subscription.PluginID) != pluginID {
			continue
		}
		if !subscription.Matches(eventType, connectionID) {
			continue
		}
		matched = append(matched, subscription)
	}
	return matched, nil
}
