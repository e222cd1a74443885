package core

import (
	"fmt"
	"strings"
	"time"
)

type ConnectionStatus string

const (
	ConnectionStatusActive  ConnectionStatus = "active"
	ConnectionStatusRevoked ConnectionStatus = "revoked"
)

var connectionTransitions = map[ConnectionStatus][]ConnectionStatus{
	ConnectionStatusActive:  {ConnectionStatusRevoked},
	ConnectionStatusRevoked: {ConnectionStatusActive},
}

func (s ConnectionStatus) CanTransitionTo(next ConnectionStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range connectionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type ConnectionScope string

const (
	ScopeWorkspace ConnectionScope = "workspace"
	ScopeUser      ConnectionScope = "user"
)

// Connection binds an installed plugin to the external account it was
// authorized against. (PluginID, ExternalID) is the natural key used by
// webhook routing and token upserts.
type Connection struct {
	ID           string
	PluginID     string
	Scope        ConnectionScope
	CompanyID    string
	UserID       string
	ExternalID   string
	ExternalName string
	Status       ConnectionStatus
	Metadata     map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (c Connection) IsActive() bool {
	return c.Status == ConnectionStatusActive
}

type CredentialKind string

const (
	CredentialKindOAuth  CredentialKind = "oauth"
	CredentialKindAPIKey CredentialKind = "api_key"
)

// TokenInfo is the normalized result of an authorization code exchange or a
// refresh call, before it is encrypted and persisted.
type TokenInfo struct {
	PluginID     string
	ExternalID   string
	ExternalName string
	AccessToken  string
	RefreshToken string
	Scope        string
	ExpiresAt    *time.Time
	Metadata     map[string]any
}

// CredentialInfo is a decrypted credential as handed to plugin executors.
// It never leaves process memory in this form.
type CredentialInfo struct {
	ConnectionID string
	PluginID     string
	ExternalID   string
	Kind         CredentialKind
	AccessToken  string
	RefreshToken string
	APIKey       string
	APISecret    string
	Scope        string
	ExpiresAt    *time.Time
	Metadata     map[string]any
}

// IsExpired treats a credential with a refresh token but no recorded expiry
// as already expired, so the first use forces a refresh against the provider.
func (c CredentialInfo) IsExpired(now time.Time) bool {
	if c.ExpiresAt != nil {
		return now.After(*c.ExpiresAt)
	}
	return strings.TrimSpace(c.RefreshToken) != ""
}

func (c CredentialInfo) Refreshable() bool {
	return strings.TrimSpace(c.RefreshToken) != ""
}

type EventLogStatus string

const (
	EventLogStatusReceived EventLogStatus = "received"
	EventLogStatusSuccess  EventLogStatus = "success"
	EventLogStatusFailed   EventLogStatus = "failed"
)

// EventLog records one inbound webhook request. A row is appended as
// received before any processing and moved to exactly one terminal status.
type EventLog struct {
	ID           string
	PluginID     string
	ConnectionID string
	EventType    string
	ExternalID   string
	Payload      []byte
	Status       EventLogStatus
	ErrorMessage string
	ProcessedAt  *time.Time
	CreatedAt    time.Time
}

func (l *EventLog) MarkSuccess(now time.Time) error {
	return l.finalize(EventLogStatusSuccess, "", now)
}

func (l *EventLog) MarkFailed(reason string, now time.Time) error {
	return l.finalize(EventLogStatusFailed, reason, now)
}

func (l *EventLog) finalize(status EventLogStatus, reason string, now time.Time) error {
	if l == nil {
		return fmt.Errorf("core: event log is required")
	}
	if l.Status != EventLogStatusReceived {
		return fmt.Errorf("core: event log %s already finalized as %s", l.ID, l.Status)
	}
	l.Status = status
	l.ErrorMessage = strings.TrimSpace(reason)
	processed := now.UTC()
	l.ProcessedAt = &processed
	return nil
}

// Event is a webhook payload after plugin-specific parsing.
type Event struct {
	PluginID       string
	EventType      string
	ExternalID     string
	ExternalUserID string
	Timestamp      time.Time
	Data           map[string]any

	// Set during enrichment once the owning connection is resolved.
	ConnectionID string
	CompanyID    string
}

// Infrastructure handshakes providers send on endpoint registration. They
// get an immediate response and never reach dispatch.
var handshakeEventTypes = map[string]struct{}{
	"url_verification":        {},
	"ping":                    {},
	"endpoint.url_validation": {},
}

func (e Event) IsProcessable() bool {
	_, handshake := handshakeEventTypes[strings.TrimSpace(e.EventType)]
	return !handshake
}

func (e Event) WithConnection(conn Connection) Event {
	e.ConnectionID = conn.ID
	e.CompanyID = conn.CompanyID
	if strings.TrimSpace(e.ExternalID) == "" {
		e.ExternalID = conn.ExternalID
	}
	return e
}

type TargetType string

const (
	TargetTypeHTTP     TargetType = "http"
	TargetTypeInternal TargetType = "internal"
)

// Subscription routes matched events to a delivery target. FilterExpr and
// RetryPolicy are persisted verbatim; evaluation hooks exist but the stock
// evaluator passes everything and no retry scheduler consumes the policy.
type Subscription struct {
	ID           string
	PluginID     string
	EventType    string
	ConnectionID string
	TargetType   TargetType
	TargetURL    string
	TargetMethod string
	HandlerName  string
	FilterExpr   string
	RetryPolicy  string
	Enabled      bool
	Metadata     map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Matches applies null-or-equal semantics: an empty EventType or
// ConnectionID on the subscription matches every event.
func (s Subscription) Matches(eventType, connectionID string) bool {
	if !s.Enabled {
		return false
	}
	if st := strings.TrimSpace(s.EventType); st != "" && st != strings.TrimSpace(eventType) {
		return false
	}
	if sc := strings.TrimSpace(s.ConnectionID); sc != "" && sc != strings.TrimSpace(connectionID) {
		return false
	}
	return true
}

// PluginConfig carries the operator-supplied settings for one plugin:
// OAuth client material plus plugin-specific secrets such as webhook
// signing keys.
type PluginConfig struct {
	PluginID     string
	DisplayName  string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	Secrets      map[string]string
	Metadata     map[string]any
}

func (c PluginConfig) Secret(key string) string {
	if len(c.Secrets) == 0 {
		return ""
	}
	return strings.TrimSpace(c.Secrets[strings.TrimSpace(key)])
}

// HasOAuthClient reports whether the config carries enough material to run
// an authorization code flow.
func (c PluginConfig) HasOAuthClient() bool {
	return strings.TrimSpace(c.ClientID) != ""
}

func copyAnyMap(source map[string]any) map[string]any {
	if len(source) == 0 {
		return map[string]any{}
	}
	target := make(map[string]any, len(source))
	for key, value := range source {
		target[key] = value
	}
	return target
}

func copyStringMap(source map[string]string) map[string]string {
	if len(source) == 0 {
		return map[string]string{}
	}
	target := make(map[string]string, len(source))
	for key, value := range source {
		target[key] = value
	}
	return target
}
