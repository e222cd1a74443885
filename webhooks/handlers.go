package webhooks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-gateway/core"
)

// HandlerFunc processes one dispatched event for an internal target.
type HandlerFunc func(ctx context.Context, event core.Event) error

// HandlerRegistry maps internal target names to registered handlers.
// Subscriptions reference handlers by the "component.method" convention;
// nothing is ever resolved by reflection.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string]HandlerFunc),
	}
}

func (r *HandlerRegistry) Register(name string, handler HandlerFunc) error {
	if r == nil {
		return fmt.Errorf("webhooks: handler registry is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("webhooks: handler name is required")
	}
	if handler == nil {
		return fmt.Errorf("webhooks: handler %s requires a function", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("webhooks: handler %s already registered", name)
	}
	r.handlers[name] = handler
	return nil
}

func (r *HandlerRegistry) Invoke(ctx context.Context, name string, event core.Event) error {
	if r == nil {
		return fmt.Errorf("webhooks: handler registry is required")
	}
	name = strings.TrimSpace(name)

	r.mu.RLock()
	handler, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("webhooks: handler %s is not registered", name)
	}
	return handler(ctx, event)
}

func (r *HandlerRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
