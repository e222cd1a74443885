package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CredentialVault owns the credential lifecycle: it upserts connections on
// token saves, keeps at most one encrypted credential per connection, and
// refreshes OAuth tokens on demand.
type CredentialVault struct {
	connections ConnectionStore
	credentials CredentialStore
	registry    Registry
	configs     ConfigSource
	secrets     SecretProvider
	codec       CredentialCodec
	obs         Observer
	now         func() time.Time
}

type VaultOption func(*CredentialVault)

func WithVaultObserver(obs Observer) VaultOption {
	return func(v *CredentialVault) {
		v.obs = obs
	}
}

func WithVaultCodec(codec CredentialCodec) VaultOption {
	return func(v *CredentialVault) {
		if codec != nil {
			v.codec = codec
		}
	}
}

func WithVaultClock(now func() time.Time) VaultOption {
	return func(v *CredentialVault) {
		if now != nil {
			v.now = now
		}
	}
}

func NewCredentialVault(
	connections ConnectionStore,
	credentials CredentialStore,
	registry Registry,
	configs ConfigSource,
	secrets SecretProvider,
	opts ...VaultOption,
) (*CredentialVault, error) {
	if connections == nil {
		return nil, fmt.Errorf("core: connection store is required")
	}
	if credentials == nil {
		return nil, fmt.Errorf("core: credential store is required")
	}
	if secrets == nil {
		return nil, fmt.Errorf("core: secret provider is required")
	}
	vault := &CredentialVault{
		connections: connections,
		credentials: credentials,
		registry:    registry,
		configs:     configs,
		secrets:     secrets,
		codec:       JSONCredentialCodec{},
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(vault)
		}
	}
	return vault, nil
}

type saveConnectionSettings struct {
	scope     ConnectionScope
	companyID string
	userID    string
}

// SaveConnectionOption sets connection attributes on a token save. They only
// apply when the save creates the connection; a re-install keeps the scope
// and ownership the connection was created with.
type SaveConnectionOption func(*saveConnectionSettings)

// WithConnectionScope installs at user rather than workspace scope.
func WithConnectionScope(scope ConnectionScope) SaveConnectionOption {
	return func(s *saveConnectionSettings) {
		if scope != "" {
			s.scope = scope
		}
	}
}

func WithCompanyID(companyID string) SaveConnectionOption {
	return func(s *saveConnectionSettings) {
		s.companyID = strings.TrimSpace(companyID)
	}
}

func WithUserID(userID string) SaveConnectionOption {
	return func(s *saveConnectionSettings) {
		s.userID = strings.TrimSpace(userID)
	}
}

func resolveSaveSettings(opts []SaveConnectionOption) (saveConnectionSettings, error) {
	settings := saveConnectionSettings{scope: ScopeWorkspace}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}
	if settings.scope != ScopeWorkspace && settings.scope != ScopeUser {
		return settings, fmt.Errorf("core: unknown connection scope %q", settings.scope)
	}
	return settings, nil
}

// SaveOAuthToken upserts the connection keyed by (PluginID, ExternalID) and
// replaces its credential with the newly exchanged token. A revoked
// connection reactivates on a successful re-install.
func (v *CredentialVault) SaveOAuthToken(ctx context.Context, token TokenInfo, opts ...SaveConnectionOption) (Connection, error) {
	if v == nil {
		return Connection{}, fmt.Errorf("core: credential vault is not configured")
	}
	token.PluginID = strings.TrimSpace(token.PluginID)
	token.ExternalID = strings.TrimSpace(token.ExternalID)
	token.ExternalName = strings.TrimSpace(token.ExternalName)
	if token.PluginID == "" {
		return Connection{}, fmt.Errorf("core: plugin id is required")
	}
	if token.ExternalID == "" {
		return Connection{}, fmt.Errorf("core: external id is required")
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return Connection{}, fmt.Errorf("core: access token is required")
	}
	settings, err := resolveSaveSettings(opts)
	if err != nil {
		return Connection{}, err
	}

	conn, err := v.upsertConnection(ctx, token, settings)
	if err != nil {
		return Connection{}, err
	}

	credential := CredentialInfo{
		ConnectionID: conn.ID,
		PluginID:     token.PluginID,
		ExternalID:   token.ExternalID,
		Kind:         CredentialKindOAuth,
		AccessToken:  strings.TrimSpace(token.AccessToken),
		RefreshToken: strings.TrimSpace(token.RefreshToken),
		Scope:        strings.TrimSpace(token.Scope),
		ExpiresAt:    cloneTimePointer(token.ExpiresAt),
		Metadata:     copyAnyMap(token.Metadata),
	}
	if err := v.saveCredential(ctx, credential); err != nil {
		return Connection{}, err
	}

	v.obs.LogInfo(ctx, "oauth token saved", map[string]any{
		"plugin_id":     token.PluginID,
		"connection_id": conn.ID,
		"external_id":   token.ExternalID,
		"refreshable":   credential.Refreshable(),
	})
	return conn, nil
}

type SaveAPIKeyInput struct {
	PluginID     string
	ExternalID   string
	ExternalName string
	APIKey       string
	APISecret    string
	Metadata     map[string]any
}

// SaveAPIKey stores operator-entered credentials for plugins that do not
// install through OAuth. Same upsert semantics as SaveOAuthToken.
func (v *CredentialVault) SaveAPIKey(ctx context.Context, in SaveAPIKeyInput, opts ...SaveConnectionOption) (Connection, error) {
	if v == nil {
		return Connection{}, fmt.Errorf("core: credential vault is not configured")
	}
	in.PluginID = strings.TrimSpace(in.PluginID)
	in.ExternalID = strings.TrimSpace(in.ExternalID)
	if in.PluginID == "" {
		return Connection{}, fmt.Errorf("core: plugin id is required")
	}
	if in.ExternalID == "" {
		return Connection{}, fmt.Errorf("core: external id is required")
	}
	if strings.TrimSpace(in.APIKey) == "" {
		return Connection{}, fmt.Errorf("core: api key is required")
	}
	settings, err := resolveSaveSettings(opts)
	if err != nil {
		return Connection{}, err
	}

	conn, err := v.upsertConnection(ctx, TokenInfo{
		PluginID:     in.PluginID,
		ExternalID:   in.ExternalID,
		ExternalName: strings.TrimSpace(in.ExternalName),
		Metadata:     in.Metadata,
	}, settings)
	if err != nil {
		return Connection{}, err
	}

	credential := CredentialInfo{
		ConnectionID: conn.ID,
		PluginID:     in.PluginID,
		ExternalID:   in.ExternalID,
		Kind:         CredentialKindAPIKey,
		APIKey:       strings.TrimSpace(in.APIKey),
		APISecret:    strings.TrimSpace(in.APISecret),
		Metadata:     copyAnyMap(in.Metadata),
	}
	if err := v.saveCredential(ctx, credential); err != nil {
		return Connection{}, err
	}
	return conn, nil
}

// GetCredentialInfo returns the decrypted credential for a connection.
func (v *CredentialVault) GetCredentialInfo(ctx context.Context, connectionID string) (CredentialInfo, error) {
	if v == nil {
		return CredentialInfo{}, fmt.Errorf("core: credential vault is not configured")
	}
	connectionID = strings.TrimSpace(connectionID)
	if connectionID == "" {
		return CredentialInfo{}, fmt.Errorf("core: connection id is required")
	}

	conn, err := v.connections.Get(ctx, connectionID)
	if err != nil {
		return CredentialInfo{}, err
	}

	stored, ok, err := v.credentials.GetByConnection(ctx, connectionID)
	if err != nil {
		return CredentialInfo{}, err
	}
	if !ok {
		return CredentialInfo{}, fmt.Errorf("core: credential not found for connection %s", connectionID)
	}

	plaintext, err := v.secrets.Decrypt(ctx, stored.Payload)
	if err != nil {
		return CredentialInfo{}, fmt.Errorf("core: decrypt credential: %w", err)
	}
	credential, err := v.codec.Decode([]byte(plaintext))
	if err != nil {
		return CredentialInfo{}, err
	}
	credential.ConnectionID = conn.ID
	credential.PluginID = conn.PluginID
	credential.ExternalID = conn.ExternalID
	return credential, nil
}

// GetFreshCredential returns the connection's credential, refreshing it
// first when the expiry policy says it is stale. Refresh is best effort: a
// provider failure is logged and the stale credential is returned so the
// caller can decide whether to attempt the request anyway.
func (v *CredentialVault) GetFreshCredential(ctx context.Context, connectionID string) (CredentialInfo, error) {
	credential, err := v.GetCredentialInfo(ctx, connectionID)
	if err != nil {
		return CredentialInfo{}, err
	}
	if !credential.IsExpired(v.now()) {
		return credential, nil
	}

	refreshed, err := v.RefreshAndSave(ctx, connectionID, credential)
	if err != nil {
		v.obs.LogWarn(ctx, "credential refresh failed, returning stale credential", map[string]any{
			"connection_id": connectionID,
			"plugin_id":     credential.PluginID,
			"error":         err.Error(),
		})
		return credential, nil
	}
	return refreshed, nil
}

// RefreshAndSave exchanges the refresh token with the provider and persists
// the result. A refresh response without a new refresh token keeps the
// previous one.
func (v *CredentialVault) RefreshAndSave(ctx context.Context, connectionID string, credential CredentialInfo) (CredentialInfo, error) {
	if v == nil {
		return CredentialInfo{}, fmt.Errorf("core: credential vault is not configured")
	}
	if !credential.Refreshable() {
		return CredentialInfo{}, fmt.Errorf("core: credential for connection %s is not refreshable", connectionID)
	}
	if v.registry == nil || v.configs == nil {
		return CredentialInfo{}, fmt.Errorf("core: credential refresh requires a registry and config source")
	}

	capability, ok := v.registry.OAuth(credential.PluginID)
	if !ok {
		return CredentialInfo{}, fmt.Errorf("core: plugin %s is not registered for oauth", credential.PluginID)
	}
	if !capability.SupportsRefresh() {
		return CredentialInfo{}, fmt.Errorf("core: plugin %s does not support token refresh", credential.PluginID)
	}
	cfg, configured, err := v.configs.PluginConfig(ctx, credential.PluginID)
	if err != nil {
		return CredentialInfo{}, err
	}
	if !configured {
		return CredentialInfo{}, fmt.Errorf("core: plugin %s is not configured", credential.PluginID)
	}

	token, err := capability.RefreshToken(ctx, cfg, credential)
	if err != nil {
		return CredentialInfo{}, fmt.Errorf("core: token refresh: %w", err)
	}
	if strings.TrimSpace(token.RefreshToken) == "" {
		token.RefreshToken = credential.RefreshToken
	}

	next := credential
	next.AccessToken = strings.TrimSpace(token.AccessToken)
	next.RefreshToken = strings.TrimSpace(token.RefreshToken)
	next.ExpiresAt = cloneTimePointer(token.ExpiresAt)
	if scope := strings.TrimSpace(token.Scope); scope != "" {
		next.Scope = scope
	}
	if err := v.saveCredential(ctx, next); err != nil {
		return CredentialInfo{}, err
	}

	v.obs.LogInfo(ctx, "credential refreshed", map[string]any{
		"connection_id": connectionID,
		"plugin_id":     credential.PluginID,
	})
	return next, nil
}

// Revoke marks the connection revoked and removes its stored credential.
func (v *CredentialVault) Revoke(ctx context.Context, connectionID string) error {
	if v == nil {
		return fmt.Errorf("core: credential vault is not configured")
	}
	connectionID = strings.TrimSpace(connectionID)
	if connectionID == "" {
		return fmt.Errorf("core: connection id is required")
	}
	conn, err := v.connections.Get(ctx, connectionID)
	if err != nil {
		return err
	}
	if !conn.Status.CanTransitionTo(ConnectionStatusRevoked) {
		return fmt.Errorf("core: connection %s cannot transition from %s to revoked", conn.ID, conn.Status)
	}
	if _, err := v.connections.Update(ctx, UpdateConnectionInput{
		ID:     conn.ID,
		Status: ConnectionStatusRevoked,
	}); err != nil {
		return err
	}
	if err := v.credentials.DeleteByConnection(ctx, conn.ID); err != nil {
		return err
	}
	v.obs.LogInfo(ctx, "connection revoked", map[string]any{
		"connection_id": conn.ID,
		"plugin_id":     conn.PluginID,
	})
	return nil
}

// ListActiveConnections returns active connections for a plugin.
func (v *CredentialVault) ListActiveConnections(ctx context.Context, pluginID string) ([]Connection, error) {
	if v == nil {
		return nil, fmt.Errorf("core: credential vault is not configured")
	}
	pluginID = strings.TrimSpace(pluginID)
	if pluginID == "" {
		return nil, fmt.Errorf("core: plugin id is required")
	}
	return v.connections.ListActive(ctx, pluginID)
}

// FindConnection resolves the connection owning (pluginID, externalID).
func (v *CredentialVault) FindConnection(ctx context.Context, pluginID, externalID string) (Connection, bool, error) {
	if v == nil {
		return Connection{}, false, fmt.Errorf("core: credential vault is not configured")
	}
	return v.connections.FindByExternalID(ctx, strings.TrimSpace(pluginID), strings.TrimSpace(externalID))
}

func (v *CredentialVault) upsertConnection(ctx context.Context, token TokenInfo, settings saveConnectionSettings) (Connection, error) {
	existing, ok, err := v.connections.FindByExternalID(ctx, token.PluginID, token.ExternalID)
	if err != nil {
		return Connection{}, err
	}
	if !ok {
		return v.connections.Create(ctx, CreateConnectionInput{
			PluginID:     token.PluginID,
			Scope:        settings.scope,
			CompanyID:    settings.companyID,
			UserID:       settings.userID,
			ExternalID:   token.ExternalID,
			ExternalName: token.ExternalName,
			Metadata:     token.Metadata,
		})
	}

	update := UpdateConnectionInput{
		ID:           existing.ID,
		ExternalName: token.ExternalName,
		Status:       ConnectionStatusActive,
		Metadata:     token.Metadata,
	}
	return v.connections.Update(ctx, update)
}

func (v *CredentialVault) saveCredential(ctx context.Context, credential CredentialInfo) error {
	encoded, err := v.codec.Encode(credential)
	if err != nil {
		return err
	}
	sealed, err := v.secrets.Encrypt(ctx, string(encoded))
	if err != nil {
		return fmt.Errorf("core: encrypt credential: %w", err)
	}
	_, err = v.credentials.Upsert(ctx, SaveCredentialInput{
		ConnectionID: credential.ConnectionID,
		Kind:         credential.Kind,
		Payload:      sealed,
		ExpiresAt:    cloneTimePointer(credential.ExpiresAt),
		Refreshable:  credential.Refreshable(),
	})
	return err
}
