// Package httpapi exposes the gateway over HTTP: the OAuth install and
// callback endpoints plus the inbound webhook receiver.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-gateway/core"
	"github.com/goliatone/go-gateway/webhooks"
	"github.com/julienschmidt/httprouter"
)

const defaultMaxBodyBytes = 5 << 20

// Installer is the OAuth install surface the handler drives.
type Installer interface {
	StartInstall(ctx context.Context, pluginID, redirectURI string) (string, error)
	HandleCallback(ctx context.Context, in core.CallbackInput) (core.InstallResult, error)
}

// WebhookPipeline is the ingestion surface the handler forwards raw webhooks
// to. The pipeline owns the response even when processing fails.
type WebhookPipeline interface {
	Handle(ctx context.Context, req webhooks.HandleRequest) (core.WebhookResponse, error)
}

type Handler struct {
	installer Installer
	pipeline  WebhookPipeline
	obs       core.Observer
	baseURL   string
	maxBody   int64
}

type Option func(*Handler)

// WithBaseURL pins the public origin used to build callback redirect URIs.
// Without it the origin is derived from each request.
func WithBaseURL(baseURL string) Option {
	return func(h *Handler) {
		h.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

func WithObserver(obs core.Observer) Option {
	return func(h *Handler) {
		h.obs = obs
	}
}

func WithMaxBodyBytes(limit int64) Option {
	return func(h *Handler) {
		if limit > 0 {
			h.maxBody = limit
		}
	}
}

func NewHandler(installer Installer, pipeline WebhookPipeline, opts ...Option) (*Handler, error) {
	if installer == nil {
		return nil, fmt.Errorf("httpapi: installer is required")
	}
	if pipeline == nil {
		return nil, fmt.Errorf("httpapi: webhook pipeline is required")
	}
	handler := &Handler{
		installer: installer,
		pipeline:  pipeline,
		maxBody:   defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}
	return handler, nil
}

// Router wires the gateway routes onto a fresh httprouter instance.
func (h *Handler) Router() *httprouter.Router {
	router := httprouter.New()
	router.GET("/oauth/:plugin/install", h.Install)
	router.GET("/oauth/:plugin/callback", h.Callback)
	router.POST("/webhook/:plugin", h.Webhook)
	router.POST("/webhook/:plugin/:connection", h.Webhook)
	return router
}

// Install starts the OAuth flow and redirects the browser to the provider's
// consent page.
func (h *Handler) Install(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	pluginID := strings.TrimSpace(ps.ByName("plugin"))
	redirectURI := h.callbackURL(r, pluginID)

	authorizationURL, err := h.installer.StartInstall(r.Context(), pluginID, redirectURI)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, authorizationURL, http.StatusFound)
}

// Callback completes the OAuth flow after the provider redirects back.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	pluginID := strings.TrimSpace(ps.ByName("plugin"))
	query := r.URL.Query()

	result, err := h.installer.HandleCallback(r.Context(), core.CallbackInput{
		PluginID:         pluginID,
		Code:             query.Get("code"),
		State:            query.Get("state"),
		RedirectURI:      h.callbackURL(r, pluginID),
		ErrorParam:       query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	name := strings.TrimSpace(result.ExternalName)
	if name == "" {
		name = result.ExternalID
	}
	writePlainText(w, http.StatusOK, fmt.Sprintf("connected %s (%s)", name, result.ConnectionID))
}

// Webhook forwards the raw request to the ingestion pipeline and relays
// whatever response the pipeline chose, handshake bodies included.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	startedAt := time.Now()
	pluginID := strings.TrimSpace(ps.ByName("plugin"))
	connectionID := strings.TrimSpace(ps.ByName("connection"))

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		h.obs.LogWarn(r.Context(), "webhook body read failed", map[string]any{
			"plugin_id": pluginID,
			"error":     err.Error(),
		})
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writePlainText(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writePlainText(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	response, handleErr := h.pipeline.Handle(r.Context(), webhooks.HandleRequest{
		PluginID:     pluginID,
		ConnectionID: connectionID,
		Payload:      payload,
		Headers:      flattenHeaders(r.Header),
	})
	if handleErr != nil {
		h.obs.LogWarn(r.Context(), "webhook processing failed", map[string]any{
			"plugin_id":     pluginID,
			"connection_id": connectionID,
			"status_code":   response.StatusCode,
			"duration_ms":   time.Since(startedAt).Milliseconds(),
			"error":         handleErr.Error(),
		})
	}
	writeWebhookResponse(w, response)
}

func (h *Handler) callbackURL(r *http.Request, pluginID string) string {
	origin := h.baseURL
	if origin == "" {
		origin = requestOrigin(r)
	}
	return origin + "/oauth/" + pluginID + "/callback"
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	mapped := core.GatewayErrorMapper(err)
	h.obs.LogWarn(r.Context(), "request failed", map[string]any{
		"path":      r.URL.Path,
		"status":    mapped.Code,
		"text_code": mapped.TextCode,
		"error":     mapped.Message,
	})
	writePlainText(w, mapped.Code, mapped.Message)
}

func requestOrigin(r *http.Request) string {
	scheme := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto"))
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	return scheme + "://" + r.Host
}

func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			continue
		}
		flat[key] = values[0]
	}
	return flat
}

func writeWebhookResponse(w http.ResponseWriter, response core.WebhookResponse) {
	contentType := strings.TrimSpace(response.ContentType)
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	status := response.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(response.Body)
}

func writePlainText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
