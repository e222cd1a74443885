package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const DefaultInstallStateTTL = 10 * time.Minute

// InstallOrchestrator drives the OAuth install flow: it issues CSRF states
// and PKCE verifiers on install, and consumes both on the provider callback
// before any token exchange happens.
type InstallOrchestrator struct {
	registry Registry
	configs  ConfigSource
	states   StateStore
	pkce     PKCEStore
	vault    *CredentialVault
	stateTTL time.Duration
	obs      Observer
}

type OrchestratorOption func(*InstallOrchestrator)

func WithStateTTL(ttl time.Duration) OrchestratorOption {
	return func(o *InstallOrchestrator) {
		if ttl > 0 {
			o.stateTTL = ttl
		}
	}
}

func WithOrchestratorObserver(obs Observer) OrchestratorOption {
	return func(o *InstallOrchestrator) {
		o.obs = obs
	}
}

func NewInstallOrchestrator(
	registry Registry,
	configs ConfigSource,
	states StateStore,
	pkce PKCEStore,
	vault *CredentialVault,
	opts ...OrchestratorOption,
) (*InstallOrchestrator, error) {
	if registry == nil {
		return nil, fmt.Errorf("core: capability registry is required")
	}
	if configs == nil {
		return nil, fmt.Errorf("core: config source is required")
	}
	if states == nil {
		return nil, fmt.Errorf("core: oauth state store is required")
	}
	if pkce == nil {
		return nil, fmt.Errorf("core: pkce store is required")
	}
	if vault == nil {
		return nil, fmt.Errorf("core: credential vault is required")
	}
	orchestrator := &InstallOrchestrator{
		registry: registry,
		configs:  configs,
		states:   states,
		pkce:     pkce,
		vault:    vault,
		stateTTL: DefaultInstallStateTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(orchestrator)
		}
	}
	return orchestrator, nil
}

// StartInstall returns the provider authorization URL the caller should
// redirect to.
func (o *InstallOrchestrator) StartInstall(ctx context.Context, pluginID, redirectURI string) (authorizationURL string, err error) {
	if o == nil {
		return "", fmt.Errorf("core: install orchestrator is not configured")
	}
	startedAt := time.Now()
	pluginID = strings.TrimSpace(pluginID)
	defer func() {
		o.obs.ObserveOperation(ctx, startedAt, "oauth_install_start", err, map[string]any{
			"plugin_id": pluginID,
		})
	}()

	capability, cfg, err := o.resolveOAuthPlugin(ctx, pluginID)
	if err != nil {
		return "", err
	}

	state, err := o.states.GenerateAndStore(ctx, pluginID, o.stateTTL)
	if err != nil {
		return "", err
	}

	extra := map[string]string{}
	if capability.RequiresPKCE() {
		codeVerifier, verifierErr := GenerateCodeVerifier()
		if verifierErr != nil {
			return "", verifierErr
		}
		if storeErr := o.pkce.Store(ctx, state, codeVerifier, o.stateTTL); storeErr != nil {
			return "", storeErr
		}
		extra[PKCEParamCodeChallenge] = CodeChallengeS256(codeVerifier)
		extra[PKCEParamCodeChallengeMethod] = PKCEMethodS256
	}

	authorizationURL, err = capability.AuthorizationURL(cfg, state, strings.TrimSpace(redirectURI), extra)
	if err != nil {
		return "", newGatewayError(
			fmt.Sprintf("core: build authorization url for plugin %s: %v", pluginID, err),
			goerrors.CategoryInternal,
			GatewayErrorInstallFailed,
		)
	}
	if strings.TrimSpace(authorizationURL) == "" {
		return "", newGatewayError(
			fmt.Sprintf("core: plugin %s returned an empty authorization url", pluginID),
			goerrors.CategoryInternal,
			GatewayErrorInstallFailed,
		)
	}
	return authorizationURL, nil
}

type CallbackInput struct {
	PluginID    string
	Code        string
	State       string
	RedirectURI string
	// ErrorParam carries the provider's error query parameter verbatim.
	ErrorParam       string
	ErrorDescription string
}

type InstallResult struct {
	ConnectionID string
	PluginID     string
	ExternalID   string
	ExternalName string
}

// HandleCallback completes the install. The PKCE verifier and the state are
// consumed unconditionally before the code exchange, so neither can be
// replayed even when the exchange afterwards fails.
func (o *InstallOrchestrator) HandleCallback(ctx context.Context, in CallbackInput) (result InstallResult, err error) {
	if o == nil {
		return InstallResult{}, fmt.Errorf("core: install orchestrator is not configured")
	}
	startedAt := time.Now()
	in.PluginID = strings.TrimSpace(in.PluginID)
	defer func() {
		o.obs.ObserveOperation(ctx, startedAt, "oauth_install_callback", err, map[string]any{
			"plugin_id":     in.PluginID,
			"connection_id": result.ConnectionID,
		})
	}()

	if provErr := strings.TrimSpace(in.ErrorParam); provErr != "" {
		message := fmt.Sprintf("core: provider denied authorization: %s", provErr)
		if desc := strings.TrimSpace(in.ErrorDescription); desc != "" {
			message = fmt.Sprintf("%s (%s)", message, desc)
		}
		return InstallResult{}, newGatewayError(message, goerrors.CategoryBadInput, GatewayErrorInstallFailed)
	}

	capability, cfg, err := o.resolveOAuthPlugin(ctx, in.PluginID)
	if err != nil {
		return InstallResult{}, err
	}

	state := strings.TrimSpace(in.State)
	if state == "" {
		return InstallResult{}, newGatewayError("core: oauth state is required", goerrors.CategoryValidation, GatewayErrorStateInvalid)
	}
	code := strings.TrimSpace(in.Code)
	if code == "" {
		return InstallResult{}, newGatewayError("core: authorization code is required", goerrors.CategoryBadInput, GatewayErrorBadInput)
	}

	extra := map[string]string{}
	if capability.RequiresPKCE() {
		codeVerifier, found, consumeErr := o.pkce.Consume(ctx, state)
		if consumeErr != nil {
			return InstallResult{}, consumeErr
		}
		if !found {
			return InstallResult{}, newGatewayError(
				"core: pkce code verifier is missing or expired",
				goerrors.CategoryValidation,
				GatewayErrorPKCEInvalid,
			)
		}
		extra[PKCEParamCodeVerifier] = codeVerifier
	}

	valid, err := o.states.ValidateAndConsume(ctx, in.PluginID, state)
	if err != nil {
		return InstallResult{}, err
	}
	if !valid {
		return InstallResult{}, newGatewayError(
			"core: oauth state is missing, expired, or bound to a different plugin",
			goerrors.CategoryValidation,
			GatewayErrorStateInvalid,
		)
	}

	token, err := capability.ExchangeCode(ctx, cfg, code, strings.TrimSpace(in.RedirectURI), extra)
	if err != nil {
		return InstallResult{}, newGatewayError(
			fmt.Sprintf("core: token exchange for plugin %s: %v", in.PluginID, err),
			goerrors.CategoryExternal,
			GatewayErrorExchangeFailed,
		)
	}
	token.PluginID = in.PluginID

	conn, err := o.vault.SaveOAuthToken(ctx, token)
	if err != nil {
		return InstallResult{}, err
	}

	return InstallResult{
		ConnectionID: conn.ID,
		PluginID:     conn.PluginID,
		ExternalID:   conn.ExternalID,
		ExternalName: conn.ExternalName,
	}, nil
}

func (o *InstallOrchestrator) resolveOAuthPlugin(ctx context.Context, pluginID string) (OAuthCapability, PluginConfig, error) {
	if pluginID == "" {
		return nil, PluginConfig{}, newGatewayError("core: plugin id is required", goerrors.CategoryBadInput, GatewayErrorBadInput)
	}
	capability, ok := o.registry.OAuth(pluginID)
	if !ok {
		return nil, PluginConfig{}, newGatewayError(
			fmt.Sprintf("core: plugin %s is not registered", pluginID),
			goerrors.CategoryNotFound,
			GatewayErrorPluginUnknown,
		)
	}
	cfg, configured, err := o.configs.PluginConfig(ctx, pluginID)
	if err != nil {
		return nil, PluginConfig{}, err
	}
	if !configured || !cfg.HasOAuthClient() {
		return nil, PluginConfig{}, newGatewayError(
			fmt.Sprintf("core: plugin %s is not configured", pluginID),
			goerrors.CategoryNotFound,
			GatewayErrorPluginNotConfigured,
		)
	}
	return capability, cfg, nil
}
