package core

import (
	"context"
	"fmt"
	"strings"
)

// CredentialResolver attaches credentials to outbound execute requests. A
// request without a resolvable credential passes through untouched so the
// executor can decide whether the action works unauthenticated.
type CredentialResolver struct {
	vault *CredentialVault
	obs   Observer
}

func NewCredentialResolver(vault *CredentialVault, obs Observer) (*CredentialResolver, error) {
	if vault == nil {
		return nil, fmt.Errorf("core: credential vault is required")
	}
	return &CredentialResolver{vault: vault, obs: obs}, nil
}

// Enrich resolves the request's connection, refreshing the credential when
// the expiry policy demands it. A request that already carries a credential
// passes through unchanged. Lookup misses are logged and skipped.
func (r *CredentialResolver) Enrich(ctx context.Context, req ExecuteRequest) (ExecuteRequest, error) {
	if r == nil || r.vault == nil {
		return req, fmt.Errorf("core: credential resolver is not configured")
	}
	if req.Credential != nil {
		return req, nil
	}

	connectionID := strings.TrimSpace(req.ConnectionID)
	if connectionID == "" && strings.TrimSpace(req.ExternalID) != "" {
		conn, ok, err := r.vault.FindConnection(ctx, req.PluginID, req.ExternalID)
		if err != nil {
			r.obs.LogWarn(ctx, "connection lookup failed during enrichment", map[string]any{
				"plugin_id":   req.PluginID,
				"external_id": req.ExternalID,
				"error":       err.Error(),
			})
			return req, nil
		}
		if ok {
			connectionID = conn.ID
			req.ConnectionID = conn.ID
		}
	}
	if connectionID == "" {
		r.obs.LogInfo(ctx, "execute request has no connection, skipping credential enrichment", map[string]any{
			"plugin_id": req.PluginID,
			"action":    req.Action,
		})
		return req, nil
	}

	credential, err := r.vault.GetFreshCredential(ctx, connectionID)
	if err != nil {
		r.obs.LogWarn(ctx, "credential unavailable, passing request through", map[string]any{
			"plugin_id":     req.PluginID,
			"connection_id": connectionID,
			"error":         err.Error(),
		})
		return req, nil
	}
	req.Credential = &credential
	return req, nil
}
