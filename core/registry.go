package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Capabilities groups the optional capability implementations a plugin
// registers. Every field may be nil; at least one must be set.
type Capabilities struct {
	OAuth    OAuthCapability
	Webhook  WebhookCapability
	Executor ExecutorCapability
}

func (c Capabilities) empty() bool {
	return c.OAuth == nil && c.Webhook == nil && c.Executor == nil
}

// CapabilityRegistry is a concurrency-safe plugin capability table.
type CapabilityRegistry struct {
	mu      sync.RWMutex
	entries map[string]Capabilities
}

func NewCapabilityRegistry() *CapabilityRegistry {
	return &CapabilityRegistry{
		entries: make(map[string]Capabilities),
	}
}

func (r *CapabilityRegistry) Register(pluginID string, caps Capabilities) error {
	if r == nil {
		return fmt.Errorf("core: capability registry is required")
	}
	pluginID = strings.TrimSpace(pluginID)
	if pluginID == "" {
		return fmt.Errorf("core: plugin id is required")
	}
	if caps.empty() {
		return fmt.Errorf("core: plugin %s requires at least one capability", pluginID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[pluginID]; exists {
		return fmt.Errorf("core: plugin %s already registered", pluginID)
	}
	r.entries[pluginID] = caps
	return nil
}

func (r *CapabilityRegistry) OAuth(pluginID string) (OAuthCapability, bool) {
	caps, ok := r.lookup(pluginID)
	if !ok || caps.OAuth == nil {
		return nil, false
	}
	return caps.OAuth, true
}

func (r *CapabilityRegistry) Webhook(pluginID string) (WebhookCapability, bool) {
	caps, ok := r.lookup(pluginID)
	if !ok || caps.Webhook == nil {
		return nil, false
	}
	return caps.Webhook, true
}

func (r *CapabilityRegistry) Executor(pluginID string) (ExecutorCapability, bool) {
	caps, ok := r.lookup(pluginID)
	if !ok || caps.Executor == nil {
		return nil, false
	}
	return caps.Executor, true
}

func (r *CapabilityRegistry) List() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *CapabilityRegistry) lookup(pluginID string) (Capabilities, bool) {
	if r == nil {
		return Capabilities{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	caps, ok := r.entries[strings.TrimSpace(pluginID)]
	return caps, ok
}
