package core

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type orchestratorFixture struct {
	registry   *CapabilityRegistry
	configs    *StaticConfigSource
	states     *MemoryStateStore
	pkce       *MemoryPKCEStore
	vault      *CredentialVault
	capability *fakeOAuthCapability
}

func newOrchestratorFixture(t *testing.T, capability *fakeOAuthCapability) (*InstallOrchestrator, *orchestratorFixture) {
	t.Helper()
	registry := NewCapabilityRegistry()
	if err := registry.Register("acme", Capabilities{OAuth: capability}); err != nil {
		t.Fatalf("register: %v", err)
	}
	configs := NewStaticConfigSource(PluginConfig{PluginID: "acme", ClientID: "cid", ClientSecret: "cs"})
	states := NewMemoryStateStore(time.Minute)
	pkce := NewMemoryPKCEStore(time.Minute)
	vault := newTestVault(t, newFakeConnectionStore(), newFakeCredentialStore(), registry, configs)

	orchestrator, err := NewInstallOrchestrator(registry, configs, states, pkce, vault)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return orchestrator, &orchestratorFixture{
		registry:   registry,
		configs:    configs,
		states:     states,
		pkce:       pkce,
		vault:      vault,
		capability: capability,
	}
}

func queryParam(t *testing.T, rawURL, key string) string {
	t.Helper()
	parsed, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse url %q: %v", rawURL, err)
	}
	return parsed.Query().Get(key)
}

func TestInstallOrchestrator_StartInstallUnknownPlugin(t *testing.T) {
	orchestrator, _ := newOrchestratorFixture(t, &fakeOAuthCapability{})

	_, err := orchestrator.StartInstall(context.Background(), "missing", "https://gw.example/cb")
	if err == nil {
		t.Fatalf("expected unknown plugin error")
	}
	mapped := GatewayErrorMapper(err)
	if mapped.Category != goerrors.CategoryNotFound {
		t.Fatalf("expected not found category, got %s", mapped.Category)
	}
	if mapped.TextCode != GatewayErrorPluginUnknown {
		t.Fatalf("expected %s, got %s", GatewayErrorPluginUnknown, mapped.TextCode)
	}
}

func TestInstallOrchestrator_StartInstallUnconfiguredPlugin(t *testing.T) {
	orchestrator, fixture := newOrchestratorFixture(t, &fakeOAuthCapability{})
	if err := fixture.registry.Register("bare", Capabilities{OAuth: &fakeOAuthCapability{}}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := orchestrator.StartInstall(context.Background(), "bare", "")
	mapped := GatewayErrorMapper(err)
	if mapped == nil || mapped.TextCode != GatewayErrorPluginNotConfigured {
		t.Fatalf("expected %s, got %v", GatewayErrorPluginNotConfigured, mapped)
	}
}

func TestInstallOrchestrator_StartInstallReturnsAuthorizationURL(t *testing.T) {
	orchestrator, _ := newOrchestratorFixture(t, &fakeOAuthCapability{})

	authorizationURL, err := orchestrator.StartInstall(context.Background(), "acme", "https://gw.example/cb")
	if err != nil {
		t.Fatalf("start install: %v", err)
	}
	if !strings.Contains(authorizationURL, "client_id=cid") {
		t.Fatalf("expected client id in url, got %q", authorizationURL)
	}
	if queryParam(t, authorizationURL, "state") == "" {
		t.Fatalf("expected state in url, got %q", authorizationURL)
	}
}

func TestInstallOrchestrator_PKCEChallengeMatchesStoredVerifier(t *testing.T) {
	orchestrator, fixture := newOrchestratorFixture(t, &fakeOAuthCapability{requiresPKCE: true})

	authorizationURL, err := orchestrator.StartInstall(context.Background(), "acme", "")
	if err != nil {
		t.Fatalf("start install: %v", err)
	}
	state := queryParam(t, authorizationURL, "state")
	challenge := queryParam(t, authorizationURL, "code_challenge")
	if challenge == "" {
		t.Fatalf("expected code challenge in url, got %q", authorizationURL)
	}
	if method := queryParam(t, authorizationURL, "code_challenge_method"); method != PKCEMethodS256 {
		t.Fatalf("expected S256 method, got %q", method)
	}

	verifier, ok, err := fixture.pkce.Consume(context.Background(), state)
	if err != nil || !ok {
		t.Fatalf("expected stored verifier, ok=%v err=%v", ok, err)
	}
	if CodeChallengeS256(verifier) != challenge {
		t.Fatalf("challenge does not match S256 of stored verifier")
	}
}

func TestInstallOrchestrator_CallbackRoundTrip(t *testing.T) {
	capability := &fakeOAuthCapability{
		requiresPKCE: true,
		exchangeToken: TokenInfo{
			ExternalID:   "T100",
			ExternalName: "Acme Workspace",
			AccessToken:  "at_1",
			RefreshToken: "rt_1",
		},
	}
	orchestrator, fixture := newOrchestratorFixture(t, capability)

	authorizationURL, err := orchestrator.StartInstall(context.Background(), "acme", "")
	if err != nil {
		t.Fatalf("start install: %v", err)
	}
	state := queryParam(t, authorizationURL, "state")

	result, err := orchestrator.HandleCallback(context.Background(), CallbackInput{
		PluginID: "acme",
		Code:     "auth_code",
		State:    state,
	})
	if err != nil {
		t.Fatalf("handle callback: %v", err)
	}
	if result.ConnectionID == "" {
		t.Fatalf("expected a connection id")
	}
	if result.ExternalID != "T100" {
		t.Fatalf("unexpected result %+v", result)
	}

	if len(capability.exchangeCalls) != 1 {
		t.Fatalf("expected one exchange call, got %d", len(capability.exchangeCalls))
	}
	if capability.exchangeCalls[0][PKCEParamCodeVerifier] == "" {
		t.Fatalf("expected code verifier to be passed to the exchange")
	}

	credential, err := fixture.vault.GetCredentialInfo(context.Background(), result.ConnectionID)
	if err != nil {
		t.Fatalf("get credential: %v", err)
	}
	if credential.AccessToken != "at_1" {
		t.Fatalf("expected saved access token, got %q", credential.AccessToken)
	}

	// The state was consumed; replaying the callback must fail.
	_, err = orchestrator.HandleCallback(context.Background(), CallbackInput{
		PluginID: "acme",
		Code:     "auth_code",
		State:    state,
	})
	if err == nil {
		t.Fatalf("expected replayed callback to fail")
	}
}

func TestInstallOrchestrator_CallbackErrorParamFailsFast(t *testing.T) {
	orchestrator, fixture := newOrchestratorFixture(t, &fakeOAuthCapability{requiresPKCE: true})

	authorizationURL, err := orchestrator.StartInstall(context.Background(), "acme", "")
	if err != nil {
		t.Fatalf("start install: %v", err)
	}
	state := queryParam(t, authorizationURL, "state")

	_, err = orchestrator.HandleCallback(context.Background(), CallbackInput{
		PluginID:   "acme",
		State:      state,
		ErrorParam: "access_denied",
	})
	mapped := GatewayErrorMapper(err)
	if mapped == nil || mapped.Category != goerrors.CategoryBadInput {
		t.Fatalf("expected bad input on provider error, got %v", mapped)
	}

	// Fail-fast must not burn the stored state or verifier.
	if _, ok, _ := fixture.pkce.Consume(context.Background(), state); !ok {
		t.Fatalf("expected verifier to survive a provider-error callback")
	}
	if ok, _ := fixture.states.ValidateAndConsume(context.Background(), "acme", state); !ok {
		t.Fatalf("expected state to survive a provider-error callback")
	}
}

func TestInstallOrchestrator_ExchangeFailureStillConsumesState(t *testing.T) {
	capability := &fakeOAuthCapability{
		requiresPKCE: true,
		exchangeErr:  fmt.Errorf("provider rejected the code"),
	}
	orchestrator, fixture := newOrchestratorFixture(t, capability)

	authorizationURL, err := orchestrator.StartInstall(context.Background(), "acme", "")
	if err != nil {
		t.Fatalf("start install: %v", err)
	}
	state := queryParam(t, authorizationURL, "state")

	_, err = orchestrator.HandleCallback(context.Background(), CallbackInput{
		PluginID: "acme",
		Code:     "auth_code",
		State:    state,
	})
	mapped := GatewayErrorMapper(err)
	if mapped == nil || mapped.TextCode != GatewayErrorExchangeFailed {
		t.Fatalf("expected %s, got %v", GatewayErrorExchangeFailed, mapped)
	}

	if _, ok, _ := fixture.pkce.Consume(context.Background(), state); ok {
		t.Fatalf("expected verifier to be consumed despite the failed exchange")
	}
	if ok, _ := fixture.states.ValidateAndConsume(context.Background(), "acme", state); ok {
		t.Fatalf("expected state to be consumed despite the failed exchange")
	}
}

func TestInstallOrchestrator_CallbackUnknownStateIsValidationError(t *testing.T) {
	orchestrator, _ := newOrchestratorFixture(t, &fakeOAuthCapability{})

	_, err := orchestrator.HandleCallback(context.Background(), CallbackInput{
		PluginID: "acme",
		Code:     "auth_code",
		State:    "never-issued",
	})
	mapped := GatewayErrorMapper(err)
	if mapped == nil || mapped.TextCode != GatewayErrorStateInvalid {
		t.Fatalf("expected %s, got %v", GatewayErrorStateInvalid, mapped)
	}
	if mapped.Code != 400 {
		t.Fatalf("expected 400, got %d", mapped.Code)
	}
}

func TestInstallOrchestrator_CallbackMissingVerifierIsValidationError(t *testing.T) {
	orchestrator, fixture := newOrchestratorFixture(t, &fakeOAuthCapability{requiresPKCE: true})

	state, err := fixture.states.GenerateAndStore(context.Background(), "acme", time.Minute)
	if err != nil {
		t.Fatalf("generate state: %v", err)
	}

	_, err = orchestrator.HandleCallback(context.Background(), CallbackInput{
		PluginID: "acme",
		Code:     "auth_code",
		State:    state,
	})
	mapped := GatewayErrorMapper(err)
	if mapped == nil || mapped.TextCode != GatewayErrorPKCEInvalid {
		t.Fatalf("expected %s, got %v", GatewayErrorPKCEInvalid, mapped)
	}
}
