package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

type fakeConnectionStore struct {
	mu          sync.Mutex
	seq         int
	connections map[string]Connection
}

func newFakeConnectionStore() *fakeConnectionStore {
	return &fakeConnectionStore{connections: map[string]Connection{}}
}

func (s *fakeConnectionStore) Create(_ context.Context, in CreateConnectionInput) (Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	now := time.Now().UTC()
	conn := Connection{
		ID:           fmt.Sprintf("conn_%d", s.seq),
		PluginID:     in.PluginID,
		Scope:        in.Scope,
		CompanyID:    in.CompanyID,
		UserID:       in.UserID,
		ExternalID:   in.ExternalID,
		ExternalName: in.ExternalName,
		Status:       ConnectionStatusActive,
		Metadata:     copyAnyMap(in.Metadata),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.connections[conn.ID] = conn
	return conn, nil
}

func (s *fakeConnectionStore) Get(_ context.Context, id string) (Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[id]
	if !ok {
		return Connection{}, fmt.Errorf("core: connection %s not found", id)
	}
	return conn, nil
}

func (s *fakeConnectionStore) FindByExternalID(_ context.Context, pluginID, externalID string) (Connection, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.connections {
		if conn.PluginID == pluginID && conn.ExternalID == externalID {
			return conn, true, nil
		}
	}
	return Connection{}, false, nil
}

func (s *fakeConnectionStore) Update(_ context.Context, in UpdateConnectionInput) (Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[in.ID]
	if !ok {
		return Connection{}, fmt.Errorf("core: connection %s not found", in.ID)
	}
	if strings.TrimSpace(in.ExternalName) != "" {
		conn.ExternalName = in.ExternalName
	}
	if strings.TrimSpace(string(in.Status)) != "" {
		conn.Status = in.Status
	}
	if in.Metadata != nil {
		conn.Metadata = copyAnyMap(in.Metadata)
	}
	conn.UpdatedAt = time.Now().UTC()
	s.connections[conn.ID] = conn
	return conn, nil
}

func (s *fakeConnectionStore) ListActive(_ context.Context, pluginID string) ([]Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Connection
	for _, conn := range s.connections {
		if conn.PluginID == pluginID && conn.IsActive() {
			out = append(out, conn)
		}
	}
	return out, nil
}

func (s *fakeConnectionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}

type fakeCredentialStore struct {
	mu      sync.Mutex
	entries map[string]StoredCredential
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{entries: map[string]StoredCredential{}}
}

func (s *fakeCredentialStore) Upsert(_ context.Context, in SaveCredentialInput) (StoredCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := StoredCredential{
		ConnectionID: in.ConnectionID,
		Kind:         in.Kind,
		Payload:      in.Payload,
		ExpiresAt:    in.ExpiresAt,
		Refreshable:  in.Refreshable,
		UpdatedAt:    time.Now().UTC(),
	}
	s.entries[in.ConnectionID] = stored
	return stored, nil
}

func (s *fakeCredentialStore) GetByConnection(_ context.Context, connectionID string) (StoredCredential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.entries[connectionID]
	return stored, ok, nil
}

func (s *fakeCredentialStore) DeleteByConnection(_ context.Context, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, connectionID)
	return nil
}

type fakeSecretProvider struct{}

func (fakeSecretProvider) Encrypt(_ context.Context, plaintext string) (string, error) {
	return "sealed:" + plaintext, nil
}

func (fakeSecretProvider) Decrypt(_ context.Context, ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, "sealed:") {
		return "", fmt.Errorf("core: unexpected ciphertext %q", ciphertext)
	}
	return strings.TrimPrefix(ciphertext, "sealed:"), nil
}

type fakeOAuthCapability struct {
	requiresPKCE    bool
	supportsRefresh bool

	authorizationURL string
	authErr          error

	exchangeToken TokenInfo
	exchangeErr   error
	exchangeCalls []map[string]string

	refreshToken TokenInfo
	refreshErr   error
	refreshCalls int
}

func (c *fakeOAuthCapability) AuthorizationURL(cfg PluginConfig, state, redirectURI string, extra map[string]string) (string, error) {
	if c.authErr != nil {
		return "", c.authErr
	}
	url := c.authorizationURL
	if url == "" {
		url = fmt.Sprintf("https://provider.example/authorize?client_id=%s&state=%s", cfg.ClientID, state)
		if challenge := extra[PKCEParamCodeChallenge]; challenge != "" {
			url += "&code_challenge=" + challenge + "&code_challenge_method=" + extra[PKCEParamCodeChallengeMethod]
		}
	}
	return url, nil
}

func (c *fakeOAuthCapability) ExchangeCode(_ context.Context, _ PluginConfig, code, _ string, extra map[string]string) (TokenInfo, error) {
	copied := make(map[string]string, len(extra)+1)
	for key, value := range extra {
		copied[key] = value
	}
	copied["code"] = code
	c.exchangeCalls = append(c.exchangeCalls, copied)
	if c.exchangeErr != nil {
		return TokenInfo{}, c.exchangeErr
	}
	return c.exchangeToken, nil
}

func (c *fakeOAuthCapability) RefreshToken(context.Context, PluginConfig, CredentialInfo) (TokenInfo, error) {
	c.refreshCalls++
	if c.refreshErr != nil {
		return TokenInfo{}, c.refreshErr
	}
	return c.refreshToken, nil
}

func (c *fakeOAuthCapability) SupportsRefresh() bool { return c.supportsRefresh }

func (c *fakeOAuthCapability) RequiresPKCE() bool { return c.requiresPKCE }

func newTestVault(
	t interface{ Fatalf(string, ...any) },
	connections ConnectionStore,
	credentials CredentialStore,
	registry Registry,
	configs ConfigSource,
	opts ...VaultOption,
) *CredentialVault {
	vault, err := NewCredentialVault(connections, credentials, registry, configs, fakeSecretProvider{}, opts...)
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	return vault
}
