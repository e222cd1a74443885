// Package webhooks implements the inbound webhook pipeline: signature
// verification, connection resolution, event logging, and fan-out to
// subscribed targets.
package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-gateway/core"
)

// WebhookRegistry narrows core.Registry to what the pipeline consumes.
type WebhookRegistry interface {
	Webhook(pluginID string) (core.WebhookCapability, bool)
}

// EventDispatcher narrows the dispatcher surface for the pipeline.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event core.Event) (DispatchStats, error)
}

// HandleRequest carries one raw inbound webhook.
type HandleRequest struct {
	PluginID     string
	ConnectionID string
	Payload      []byte
	Headers      map[string]string
}

// Pipeline processes inbound webhooks. Every request that reaches step two
// leaves exactly one event log row behind, finalized as success or failed.
type Pipeline struct {
	registry    WebhookRegistry
	configs     core.ConfigSource
	connections core.ConnectionStore
	eventLogs   core.EventLogStore
	dispatcher  EventDispatcher
	obs         core.Observer
	now         func() time.Time
}

type PipelineOption func(*Pipeline)

func WithPipelineObserver(obs core.Observer) PipelineOption {
	return func(p *Pipeline) {
		p.obs = obs
	}
}

func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPipeline(
	registry WebhookRegistry,
	configs core.ConfigSource,
	connections core.ConnectionStore,
	eventLogs core.EventLogStore,
	dispatcher EventDispatcher,
	opts ...PipelineOption,
) (*Pipeline, error) {
	if registry == nil {
		return nil, fmt.Errorf("webhooks: capability registry is required")
	}
	if configs == nil {
		return nil, fmt.Errorf("webhooks: config source is required")
	}
	if connections == nil {
		return nil, fmt.Errorf("webhooks: connection store is required")
	}
	if eventLogs == nil {
		return nil, fmt.Errorf("webhooks: event log store is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("webhooks: dispatcher is required")
	}
	pipeline := &Pipeline{
		registry:    registry,
		configs:     configs,
		connections: connections,
		eventLogs:   eventLogs,
		dispatcher:  dispatcher,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(pipeline)
		}
	}
	return pipeline, nil
}

// Handle runs the full ingestion flow and returns the HTTP answer for the
// provider. Signature failures are the only processing failures answered
// with a non-2xx status; everything else after acknowledgment favors 200 so
// providers do not retry-storm the endpoint.
func (p *Pipeline) Handle(ctx context.Context, req HandleRequest) (response core.WebhookResponse, err error) {
	if p == nil {
		return core.WebhookResponse{}, fmt.Errorf("webhooks: pipeline is not configured")
	}
	startedAt := time.Now()
	req.PluginID = strings.TrimSpace(req.PluginID)
	req.ConnectionID = strings.TrimSpace(req.ConnectionID)
	defer func() {
		p.obs.ObserveOperation(ctx, startedAt, "webhook_ingest", err, map[string]any{
			"plugin_id":     req.PluginID,
			"connection_id": req.ConnectionID,
			"status_code":   response.StatusCode,
		})
	}()

	capability, ok := p.registry.Webhook(req.PluginID)
	if !ok {
		err = goerrors.New(
			fmt.Sprintf("webhooks: plugin %s is not registered", req.PluginID),
			goerrors.CategoryNotFound,
		).WithTextCode(core.GatewayErrorPluginUnknown)
		return plainTextResponse(http.StatusNotFound, "unknown plugin"), err
	}

	// The received row is the durability anchor: it exists before any
	// verification or parsing can fail.
	log, err := p.eventLogs.Create(ctx, core.EventLog{
		PluginID:     req.PluginID,
		ConnectionID: req.ConnectionID,
		Payload:      req.Payload,
		Status:       core.EventLogStatusReceived,
		CreatedAt:    p.now(),
	})
	if err != nil {
		return plainTextResponse(http.StatusInternalServerError, "event log write failed"), err
	}

	cfg, configured, err := p.configs.PluginConfig(ctx, req.PluginID)
	if err != nil || !configured {
		if err == nil {
			err = fmt.Errorf("webhooks: plugin %s is not configured", req.PluginID)
		}
		p.finalizeFailed(ctx, &log, err.Error())
		return plainTextResponse(http.StatusInternalServerError, "plugin configuration unavailable"), err
	}

	if capability.SupportsSignatureVerification() {
		if verifyErr := capability.VerifySignature(ctx, cfg, req.Payload, req.Headers); verifyErr != nil {
			p.finalizeFailed(ctx, &log, "signature verification failed")
			err = goerrors.New(
				fmt.Sprintf("webhooks: signature verification failed: %v", verifyErr),
				goerrors.CategoryAuthz,
			).WithTextCode(core.GatewayErrorSignatureInvalid)
			return plainTextResponse(http.StatusForbidden, "signature verification failed"), err
		}
	}

	connection, connected := p.resolveConnection(ctx, capability, req)

	event, parseErr := capability.ParseEvent(req.Payload, req.Headers)
	if parseErr != nil {
		p.finalizeFailed(ctx, &log, fmt.Sprintf("event parse failed: %v", parseErr))
		// Acknowledge anyway: a malformed payload will not improve on retry.
		return plainTextResponse(http.StatusOK, "ignored"), parseErr
	}
	event.PluginID = req.PluginID
	if connected {
		event = event.WithConnection(connection)
	}

	log.EventType = event.EventType
	log.ExternalID = event.ExternalID
	if connected {
		log.ConnectionID = connection.ID
	}

	response, hasImmediate := immediateResponse(capability, event, req.Payload)

	var dispatchErr error
	if event.IsProcessable() && connected {
		_, dispatchErr = p.dispatcher.Dispatch(ctx, event)
	}
	if dispatchErr != nil {
		p.finalizeFailed(ctx, &log, fmt.Sprintf("dispatch failed: %v", dispatchErr))
		if hasImmediate {
			return response, dispatchErr
		}
		return plainTextResponse(http.StatusOK, "accepted"), dispatchErr
	}

	p.finalizeSuccess(ctx, &log)
	if hasImmediate {
		return response, nil
	}
	return plainTextResponse(http.StatusOK, "ok"), nil
}

func (p *Pipeline) resolveConnection(ctx context.Context, capability core.WebhookCapability, req HandleRequest) (core.Connection, bool) {
	if req.ConnectionID != "" {
		connection, err := p.connections.Get(ctx, req.ConnectionID)
		if err != nil {
			p.obs.LogWarn(ctx, "webhook connection lookup failed", map[string]any{
				"plugin_id":     req.PluginID,
				"connection_id": req.ConnectionID,
				"error":         err.Error(),
			})
			return core.Connection{}, false
		}
		return connection, true
	}

	externalID, err := capability.ExtractExternalID(req.Payload, req.Headers)
	if err != nil || strings.TrimSpace(externalID) == "" {
		return core.Connection{}, false
	}
	connection, found, err := p.connections.FindByExternalID(ctx, req.PluginID, strings.TrimSpace(externalID))
	if err != nil {
		p.obs.LogWarn(ctx, "webhook connection lookup failed", map[string]any{
			"plugin_id":   req.PluginID,
			"external_id": externalID,
			"error":       err.Error(),
		})
		return core.Connection{}, false
	}
	if !found {
		return core.Connection{}, false
	}
	return connection, true
}

func (p *Pipeline) finalizeSuccess(ctx context.Context, log *core.EventLog) {
	if err := log.MarkSuccess(p.now()); err != nil {
		p.obs.LogError(ctx, "event log transition rejected", map[string]any{
			"event_log_id": log.ID,
			"error":        err.Error(),
		})
		return
	}
	p.persistLog(ctx, log)
}

func (p *Pipeline) finalizeFailed(ctx context.Context, log *core.EventLog, reason string) {
	if err := log.MarkFailed(reason, p.now()); err != nil {
		p.obs.LogError(ctx, "event log transition rejected", map[string]any{
			"event_log_id": log.ID,
			"error":        err.Error(),
		})
		return
	}
	p.persistLog(ctx, log)
}

func (p *Pipeline) persistLog(ctx context.Context, log *core.EventLog) {
	if err := p.eventLogs.Update(ctx, *log); err != nil {
		p.obs.LogError(ctx, "event log update failed", map[string]any{
			"event_log_id": log.ID,
			"plugin_id":    log.PluginID,
			"error":        err.Error(),
		})
	}
}

func immediateResponse(capability core.WebhookCapability, event core.Event, payload []byte) (core.WebhookResponse, bool) {
	response, ok := capability.ImmediateResponse(event, payload)
	if !ok {
		return core.WebhookResponse{}, false
	}
	if response.StatusCode == 0 {
		response.StatusCode = http.StatusOK
	}
	if strings.TrimSpace(response.ContentType) == "" {
		response.ContentType = "text/plain; charset=utf-8"
	}
	return response, true
}

func plainTextResponse(status int, body string) core.WebhookResponse {
	return core.WebhookResponse{
		StatusCode:  status,
		ContentType: "text/plain; charset=utf-8",
		Body:        []byte(body),
	}
}
