package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-gateway/core"
)

const (
	defaultDispatchWorkers = 8
	defaultDispatchTimeout = 10 * time.Second
	maxDispatchTimeout     = 10 * time.Second
)

// HTTPDoer is the outbound HTTP client surface the dispatcher needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DispatchStats summarizes one fan-out. Failed counts per-subscription
// delivery failures, which never propagate to the caller.
type DispatchStats struct {
	Matched   int
	Delivered int
	Failed    int
	Filtered  int
}

// Dispatcher fans a parsed event out to every matching subscription through
// a bounded worker pool. A slow or failing target delays or breaks only its
// own delivery.
type Dispatcher struct {
	matcher  *Matcher
	filter   FilterEvaluator
	client   HTTPDoer
	handlers *HandlerRegistry
	workers  int
	timeout  time.Duration
	obs      core.Observer
}

type DispatcherOption func(*Dispatcher)

func WithHTTPClient(client HTTPDoer) DispatcherOption {
	return func(d *Dispatcher) {
		if client != nil {
			d.client = client
		}
	}
}

func WithFilterEvaluator(filter FilterEvaluator) DispatcherOption {
	return func(d *Dispatcher) {
		if filter != nil {
			d.filter = filter
		}
	}
}

func WithWorkers(workers int) DispatcherOption {
	return func(d *Dispatcher) {
		if workers > 0 {
			d.workers = workers
		}
	}
}

func WithDispatchTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 && timeout <= maxDispatchTimeout {
			d.timeout = timeout
		}
	}
}

func WithDispatcherObserver(obs core.Observer) DispatcherOption {
	return func(d *Dispatcher) {
		d.obs = obs
	}
}

func NewDispatcher(matcher *Matcher, handlers *HandlerRegistry, opts ...DispatcherOption) (*Dispatcher, error) {
	if matcher == nil {
		return nil, fmt.Errorf("webhooks: matcher is required")
	}
	if handlers == nil {
		handlers = NewHandlerRegistry()
	}
	dispatcher := &Dispatcher{
		matcher:  matcher,
		filter:   PassThroughFilter{},
		client:   &http.Client{Timeout: defaultDispatchTimeout},
		handlers: handlers,
		workers:  defaultDispatchWorkers,
		timeout:  defaultDispatchTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(dispatcher)
		}
	}
	return dispatcher, nil
}

// Dispatch delivers the event to every matching subscription and blocks
// until all deliveries settle. The returned error covers only the
// subscription lookup; delivery failures land in the stats and the log.
func (d *Dispatcher) Dispatch(ctx context.Context, event core.Event) (DispatchStats, error) {
	if d == nil {
		return DispatchStats{}, fmt.Errorf("webhooks: dispatcher is not configured")
	}

	subscriptions, err := d.matcher.FindMatching(ctx, event.PluginID, event.EventType, event.ConnectionID)
	if err != nil {
		return DispatchStats{}, err
	}

	stats := DispatchStats{Matched: len(subscriptions)}
	if len(subscriptions) == 0 {
		return stats, nil
	}

	var (
		mu        sync.Mutex
		waitGroup sync.WaitGroup
		slots     = make(chan struct{}, d.workers)
	)
	for _, subscription := range subscriptions {
		admitted, filterErr := d.filter.Matches(ctx, subscription.FilterExpr, event)
		if filterErr != nil {
			d.obs.LogWarn(ctx, "filter evaluation failed, delivering anyway", map[string]any{
				"subscription_id": subscription.ID,
				"plugin_id":       event.PluginID,
				"error":           filterErr.Error(),
			})
			admitted = true
		}
		if !admitted {
			stats.Filtered++
			continue
		}

		waitGroup.Add(1)
		slots <- struct{}{}
		go func(subscription core.Subscription) {
			defer waitGroup.Done()
			defer func() { <-slots }()

			deliverErr := d.deliver(ctx, subscription, event)

			mu.Lock()
			if deliverErr != nil {
				stats.Failed++
			} else {
				stats.Delivered++
			}
			mu.Unlock()

			if deliverErr != nil {
				d.obs.LogError(ctx, "webhook delivery failed", map[string]any{
					"subscription_id": subscription.ID,
					"plugin_id":       event.PluginID,
					"event_type_name": event.EventType,
					"target_type":     string(subscription.TargetType),
					"error":           deliverErr.Error(),
				})
			}
		}(subscription)
	}
	waitGroup.Wait()

	d.obs.LogInfo(ctx, "webhook dispatch settled", map[string]any{
		"plugin_id":       event.PluginID,
		"event_type_name": event.EventType,
		"matched":         stats.Matched,
		"delivered":       stats.Delivered,
		"failed":          stats.Failed,
		"filtered":        stats.Filtered,
	})
	return stats, nil
}

func (d *Dispatcher) deliver(ctx context.Context, subscription core.Subscription, event core.Event) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("webhooks: delivery panicked: %v", recovered)
		}
	}()

	deliveryCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	switch subscription.TargetType {
	case core.TargetTypeHTTP:
		return d.deliverHTTP(deliveryCtx, subscription, event)
	case core.TargetTypeInternal:
		return d.handlers.Invoke(deliveryCtx, subscription.HandlerName, event)
	default:
		return fmt.Errorf("webhooks: unknown target type %q", subscription.TargetType)
	}
}

func (d *Dispatcher) deliverHTTP(ctx context.Context, subscription core.Subscription, event core.Event) error {
	targetURL := strings.TrimSpace(subscription.TargetURL)
	if targetURL == "" {
		return fmt.Errorf("webhooks: subscription %s has no target url", subscription.ID)
	}
	method := strings.ToUpper(strings.TrimSpace(subscription.TargetMethod))
	if method == "" {
		method = http.MethodPost
	}

	body, err := json.Marshal(dispatchPayload(event))
	if err != nil {
		return fmt.Errorf("webhooks: encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, targetURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhooks: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhooks: deliver to %s: %w", targetURL, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhooks: target %s answered %d", targetURL, resp.StatusCode)
	}
	return nil
}

func dispatchPayload(event core.Event) map[string]any {
	payload := map[string]any{
		"plugin_id":  event.PluginID,
		"event_type": event.EventType,
	}
	if !event.Timestamp.IsZero() {
		payload["timestamp"] = event.Timestamp.UTC()
	}
	if event.ExternalID != "" {
		payload["external_id"] = event.ExternalID
	}
	if event.ExternalUserID != "" {
		payload["external_user_id"] = event.ExternalUserID
	}
	if event.ConnectionID != "" {
		payload["connection_id"] = event.ConnectionID
	}
	if event.CompanyID != "" {
		payload["company_id"] = event.CompanyID
	}
	if len(event.Data) > 0 {
		payload["data"] = event.Data
	}
	return payload
}
