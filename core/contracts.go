package core

import (
	"context"
	"time"

	"github.com/goliatone/go-logger/glog"
)

// Logger is the structured logging contract used across the module.
type Logger = glog.Logger

// FieldsLogger is implemented by loggers that can attach structured fields.
type FieldsLogger = glog.FieldsLogger

// OAuthCapability is implemented by plugins that install through an
// authorization code flow.
type OAuthCapability interface {
	// AuthorizationURL builds the provider consent URL. extra carries
	// per-request parameters such as a PKCE code challenge.
	AuthorizationURL(cfg PluginConfig, state, redirectURI string, extra map[string]string) (string, error)
	// ExchangeCode redeems an authorization code for tokens. extra carries
	// per-request parameters such as a PKCE code verifier.
	ExchangeCode(ctx context.Context, cfg PluginConfig, code, redirectURI string, extra map[string]string) (TokenInfo, error)
	RefreshToken(ctx context.Context, cfg PluginConfig, credential CredentialInfo) (TokenInfo, error)
	SupportsRefresh() bool
	RequiresPKCE() bool
}

// WebhookCapability is implemented by plugins that receive provider webhooks.
type WebhookCapability interface {
	SupportsSignatureVerification() bool
	// VerifySignature returns a non-nil error when the payload cannot be
	// authenticated. Plugins without signatures return nil unconditionally.
	VerifySignature(ctx context.Context, cfg PluginConfig, payload []byte, headers map[string]string) error
	// ExtractExternalID recovers the external account id from the payload
	// when the route carries no connection id. Empty means unresolvable.
	ExtractExternalID(payload []byte, headers map[string]string) (string, error)
	ParseEvent(payload []byte, headers map[string]string) (Event, error)
	// ImmediateResponse answers provider handshakes such as Slack's
	// url_verification. ok=false means no special response is needed.
	ImmediateResponse(event Event, payload []byte) (WebhookResponse, bool)
}

// ExecutorCapability is implemented by plugins that expose outbound actions.
type ExecutorCapability interface {
	SupportedActions() []string
	Execute(ctx context.Context, req ExecuteRequest) (ExecuteResponse, error)
}

// WebhookResponse is the HTTP answer the gateway returns to the provider.
type WebhookResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// ExecuteRequest describes one outbound plugin action. Credential is nil
// until a resolver enriches the request.
type ExecuteRequest struct {
	PluginID     string
	Action       string
	ConnectionID string
	ExternalID   string
	Params       map[string]any
	Credential   *CredentialInfo
}

type ExecuteResponse struct {
	Data     map[string]any
	Metadata map[string]any
}

// Registry resolves plugin capabilities by plugin id.
type Registry interface {
	OAuth(pluginID string) (OAuthCapability, bool)
	Webhook(pluginID string) (WebhookCapability, bool)
	Executor(pluginID string) (ExecutorCapability, bool)
	List() []string
}

// ConfigSource resolves operator-supplied plugin configuration. ok=false
// means the plugin is known to the registry but not configured for this
// deployment.
type ConfigSource interface {
	PluginConfig(ctx context.Context, pluginID string) (PluginConfig, bool, error)
}

// StateStore issues and consumes single-use OAuth state tokens.
type StateStore interface {
	// GenerateAndStore returns a fresh unguessable state bound to pluginID.
	GenerateAndStore(ctx context.Context, pluginID string, ttl time.Duration) (string, error)
	// ValidateAndConsume removes the state regardless of outcome and
	// reports whether it was present, unexpired, and bound to pluginID.
	ValidateAndConsume(ctx context.Context, pluginID, state string) (bool, error)
}

// PKCEStore keeps code verifiers between the install redirect and the
// provider callback. Consume removes the verifier whether or not the
// exchange that follows succeeds.
type PKCEStore interface {
	Store(ctx context.Context, state, codeVerifier string, ttl time.Duration) error
	Consume(ctx context.Context, state string) (string, bool, error)
}

type CreateConnectionInput struct {
	PluginID     string
	Scope        ConnectionScope
	CompanyID    string
	UserID       string
	ExternalID   string
	ExternalName string
	Metadata     map[string]any
}

type UpdateConnectionInput struct {
	ID           string
	ExternalName string
	Status       ConnectionStatus
	Metadata     map[string]any
}

// ConnectionStore persists connections.
type ConnectionStore interface {
	Create(ctx context.Context, in CreateConnectionInput) (Connection, error)
	Get(ctx context.Context, id string) (Connection, error)
	// FindByExternalID resolves the connection owning (pluginID,
	// externalID). ok=false is not an error.
	FindByExternalID(ctx context.Context, pluginID, externalID string) (Connection, bool, error)
	Update(ctx context.Context, in UpdateConnectionInput) (Connection, error)
	ListActive(ctx context.Context, pluginID string) ([]Connection, error)
}

// StoredCredential is the persisted shape of a credential: an opaque
// encrypted payload plus the cleartext fields queries need.
type StoredCredential struct {
	ConnectionID string
	Kind         CredentialKind
	Payload      string
	ExpiresAt    *time.Time
	Refreshable  bool
	UpdatedAt    time.Time
}

type SaveCredentialInput struct {
	ConnectionID string
	Kind         CredentialKind
	Payload      string
	ExpiresAt    *time.Time
	Refreshable  bool
}

// CredentialStore persists encrypted credentials, one row per connection.
type CredentialStore interface {
	Upsert(ctx context.Context, in SaveCredentialInput) (StoredCredential, error)
	GetByConnection(ctx context.Context, connectionID string) (StoredCredential, bool, error)
	DeleteByConnection(ctx context.Context, connectionID string) error
}

// EventLogStore records webhook deliveries.
type EventLogStore interface {
	Create(ctx context.Context, log EventLog) (EventLog, error)
	Update(ctx context.Context, log EventLog) error
}

// SubscriptionSource serves the read side of webhook routing.
type SubscriptionSource interface {
	// FindMatching returns enabled subscriptions for pluginID whose
	// event type and connection id are each unset or equal.
	FindMatching(ctx context.Context, pluginID, eventType, connectionID string) ([]Subscription, error)
}

// SecretProvider encrypts and decrypts credential payloads at rest.
type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// MetricsRecorder receives operation counters and durations. Implementations
// must be safe for concurrent use.
type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}
