package webhooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-gateway/core"
)

type fakeWebhookCapability struct {
	supportsVerification bool
	verifyErr            error

	externalID    string
	extractErr    error
	parsedEvent   core.Event
	parseErr      error
	immediate     *core.WebhookResponse
	immediateOnly func(event core.Event) (*core.WebhookResponse, bool)
}

func (c *fakeWebhookCapability) SupportsSignatureVerification() bool {
	return c.supportsVerification
}

func (c *fakeWebhookCapability) VerifySignature(context.Context, core.PluginConfig, []byte, map[string]string) error {
	return c.verifyErr
}

func (c *fakeWebhookCapability) ExtractExternalID([]byte, map[string]string) (string, error) {
	return c.externalID, c.extractErr
}

func (c *fakeWebhookCapability) ParseEvent([]byte, map[string]string) (core.Event, error) {
	if c.parseErr != nil {
		return core.Event{}, c.parseErr
	}
	return c.parsedEvent, nil
}

func (c *fakeWebhookCapability) ImmediateResponse(event core.Event, _ []byte) (core.WebhookResponse, bool) {
	if c.immediateOnly != nil {
		response, ok := c.immediateOnly(event)
		if !ok || response == nil {
			return core.WebhookResponse{}, false
		}
		return *response, true
	}
	if c.immediate == nil {
		return core.WebhookResponse{}, false
	}
	return *c.immediate, true
}

type fakeRegistry struct {
	capabilities map[string]core.WebhookCapability
}

func (r *fakeRegistry) Webhook(pluginID string) (core.WebhookCapability, bool) {
	capability, ok := r.capabilities[pluginID]
	return capability, ok
}

type fakeConfigSource struct {
	configs map[string]core.PluginConfig
	err     error
}

func (s *fakeConfigSource) PluginConfig(_ context.Context, pluginID string) (core.PluginConfig, bool, error) {
	if s.err != nil {
		return core.PluginConfig{}, false, s.err
	}
	cfg, ok := s.configs[pluginID]
	return cfg, ok, nil
}

type fakeConnectionStore struct {
	connections map[string]core.Connection
}

func (s *fakeConnectionStore) Create(context.Context, core.CreateConnectionInput) (core.Connection, error) {
	return core.Connection{}, fmt.Errorf("not implemented")
}

func (s *fakeConnectionStore) Get(_ context.Context, id string) (core.Connection, error) {
	conn, ok := s.connections[id]
	if !ok {
		return core.Connection{}, fmt.Errorf("webhooks: connection %s not found", id)
	}
	return conn, nil
}

func (s *fakeConnectionStore) FindByExternalID(_ context.Context, pluginID, externalID string) (core.Connection, bool, error) {
	for _, conn := range s.connections {
		if conn.PluginID == pluginID && conn.ExternalID == externalID {
			return conn, true, nil
		}
	}
	return core.Connection{}, false, nil
}

func (s *fakeConnectionStore) Update(context.Context, core.UpdateConnectionInput) (core.Connection, error) {
	return core.Connection{}, fmt.Errorf("not implemented")
}

func (s *fakeConnectionStore) ListActive(context.Context, string) ([]core.Connection, error) {
	return nil, nil
}

type fakeEventLogStore struct {
	mu      sync.Mutex
	seq     int
	created []core.EventLog
	updated []core.EventLog

	createErr error
	updateErr error
}

func (s *fakeEventLogStore) Create(_ context.Context, log core.EventLog) (core.EventLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return core.EventLog{}, s.createErr
	}
	s.seq++
	log.ID = fmt.Sprintf("log_%d", s.seq)
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	s.created = append(s.created, log)
	return log, nil
}

func (s *fakeEventLogStore) Update(_ context.Context, log core.EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updated = append(s.updated, log)
	return nil
}

func (s *fakeEventLogStore) lastUpdated() (core.EventLog, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.updated) == 0 {
		return core.EventLog{}, false
	}
	return s.updated[len(s.updated)-1], true
}

type fakeSubscriptionSource struct {
	subscriptions []core.Subscription
	err           error
	returnAll     bool
}

func (s *fakeSubscriptionSource) FindMatching(_ context.Context, pluginID, eventType, connectionID string) ([]core.Subscription, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.returnAll {
		return append([]core.Subscription(nil), s.subscriptions...), nil
	}
	var out []core.Subscription
	for _, subscription := range s.subscriptions {
		if subscription.PluginID != pluginID {
			continue
		}
		if !subscription.Matches(eventType, connectionID) {
			continue
		}
		out = append(out, subscription)
	}
	return out, nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []core.Event
	stats  DispatchStats
	err    error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, event core.Event) (DispatchStats, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return DispatchStats{}, d.err
	}
	d.events = append(d.events, event)
	return d.stats, nil
}

func (d *recordingDispatcher) dispatched() []core.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]core.Event(nil), d.events...)
}
