package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type connectionRecord struct {
	bun.BaseModel `bun:"table:gateway_connections,alias:gc"`

	ID           string         `bun:"id,pk"`
	PluginID     string         `bun:"plugin_id,notnull"`
	Scope        string         `bun:"scope,notnull"`
	CompanyID    string         `bun:"company_id"`
	UserID       string         `bun:"user_id"`
	ExternalID   string         `bun:"external_id,notnull"`
	ExternalName string         `bun:"external_name"`
	Status       string         `bun:"status,notnull"`
	Metadata     map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt    time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt    *time.Time     `bun:"deleted_at,soft_delete"`
}

type credentialRecord struct {
	bun.BaseModel `bun:"table:gateway_credentials,alias:gcr"`

	ID           string     `bun:"id,pk"`
	ConnectionID string     `bun:"connection_id,notnull"`
	Kind         string     `bun:"kind,notnull"`
	Payload      string     `bun:"payload,notnull"`
	ExpiresAt    *time.Time `bun:"expires_at,nullzero"`
	Refreshable  bool       `bun:"refreshable,notnull"`
	CreatedAt    time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type eventLogRecord struct {
	bun.BaseModel `bun:"table:gateway_webhook_event_logs,alias:gel"`

	ID           string     `bun:"id,pk"`
	PluginID     string     `bun:"plugin_id,notnull"`
	ConnectionID string     `bun:"connection_id"`
	EventType    string     `bun:"event_type"`
	ExternalID   string     `bun:"external_id"`
	Payload      []byte     `bun:"payload"`
	Status       string     `bun:"status,notnull"`
	ErrorMessage string     `bun:"error_message"`
	ProcessedAt  *time.Time `bun:"processed_at,nullzero"`
	CreatedAt    time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type subscriptionRecord struct {
	bun.BaseModel `bun:"table:gateway_webhook_subscriptions,alias:gws"`

	ID           string         `bun:"id,pk"`
	PluginID     string         `bun:"plugin_id,notnull"`
	EventType    string         `bun:"event_type"`
	ConnectionID string         `bun:"connection_id"`
	TargetType   string         `bun:"target_type,notnull"`
	TargetURL    string         `bun:"target_url"`
	TargetMethod string         `bun:"target_method"`
	HandlerName  string         `bun:"handler_name"`
	FilterExpr   string         `bun:"filter_expr"`
	RetryPolicy  string         `bun:"retry_policy"`
	Enabled      bool           `bun:"enabled,notnull"`
	Metadata     map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt    time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt    *time.Time     `bun:"deleted_at,soft_delete"`
}

type oauthStateRecord struct {
	bun.BaseModel `bun:"table:gateway_oauth_states,alias:gos"`

	State     string    `bun:"state,pk"`
	PluginID  string    `bun:"plugin_id,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type pkceRecord struct {
	bun.BaseModel `bun:"table:gateway_oauth_pkce,alias:gop"`

	State        string    `bun:"state,pk"`
	CodeVerifier string    `bun:"code_verifier,notnull"`
	ExpiresAt    time.Time `bun:"expires_at,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
