// Package gocommand bridges internal webhook targets onto the go-command
// dispatcher, so application commands can subscribe to gateway events without
// importing the webhooks machinery.
package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	"github.com/goliatone/go-gateway/core"
	"github.com/goliatone/go-gateway/webhooks"
)

// EventMessageType is the command bus message type carrying gateway events.
const EventMessageType = "gateway.webhook.event"

// EventMessage wraps a dispatched webhook event for the command bus.
type EventMessage struct {
	Event core.Event
}

func (EventMessage) Type() string {
	return EventMessageType
}

func (m EventMessage) Validate() error {
	if strings.TrimSpace(m.Event.PluginID) == "" {
		return fmt.Errorf("gocommand: event plugin id is required")
	}
	return nil
}

// RegisterDispatchHandler registers an internal webhook handler under name
// that forwards every matched event onto the command dispatcher. Subscriptions
// with that handler name become command bus publications.
func RegisterDispatchHandler(registry *webhooks.HandlerRegistry, name string) error {
	if registry == nil {
		return fmt.Errorf("gocommand: handler registry is required")
	}
	return registry.Register(name, func(ctx context.Context, event core.Event) error {
		return commanddispatcher.Dispatch(ctx, EventMessage{Event: event})
	})
}

// SubscribeEvents attaches a command handler for gateway event messages.
func SubscribeEvents(handler command.CommandFunc[EventMessage], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(handler, runnerOpts...)
}

// SubscribeEventCommand attaches a Commander implementation for gateway
// event messages.
func SubscribeEventCommand(cmd command.Commander[EventMessage], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

// Dispatch publishes one event message directly, bypassing the webhook
// handler registry.
func Dispatch(ctx context.Context, event core.Event) error {
	return commanddispatcher.Dispatch(ctx, EventMessage{Event: event})
}
