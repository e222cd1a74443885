package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	defaultOAuthStateTTL    = 10 * time.Minute
	defaultStateMaxEntries  = 10_000
	defaultVerifierMaxEntry = 10_000
)

type stateEntry struct {
	pluginID  string
	expiresAt time.Time
}

// MemoryStateStore keeps single-use OAuth states in process memory. Expired
// entries are swept opportunistically on writes so an abandoned install
// never pins memory past its TTL.
type MemoryStateStore struct {
	mu         sync.Mutex
	defaultTTL time.Duration
	maxEntries int
	entries    map[string]stateEntry
	now        func() time.Time
}

func NewMemoryStateStore(ttl time.Duration) *MemoryStateStore {
	return NewMemoryStateStoreWithLimits(ttl, defaultStateMaxEntries)
}

func NewMemoryStateStoreWithLimits(ttl time.Duration, maxEntries int) *MemoryStateStore {
	if ttl <= 0 {
		ttl = defaultOAuthStateTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultStateMaxEntries
	}
	return &MemoryStateStore{
		defaultTTL: ttl,
		maxEntries: maxEntries,
		entries:    map[string]stateEntry{},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStateStore) GenerateAndStore(_ context.Context, pluginID string, ttl time.Duration) (string, error) {
	if s == nil {
		return "", fmt.Errorf("core: oauth state store is not configured")
	}
	pluginID = strings.TrimSpace(pluginID)
	if pluginID == "" {
		return "", fmt.Errorf("core: plugin id is required")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	state, err := generateOAuthState()
	if err != nil {
		return "", err
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)
	if len(s.entries) >= s.maxEntries {
		return "", fmt.Errorf("core: oauth state store is full")
	}
	s.entries[state] = stateEntry{
		pluginID:  pluginID,
		expiresAt: now.Add(ttl),
	}
	return state, nil
}

// ValidateAndConsume removes the state before checking anything else, so a
// replayed or expired state can never be validated twice.
func (s *MemoryStateStore) ValidateAndConsume(_ context.Context, pluginID, state string) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("core: oauth state store is not configured")
	}
	pluginID = strings.TrimSpace(pluginID)
	state = strings.TrimSpace(state)
	if pluginID == "" || state == "" {
		return false, nil
	}

	s.mu.Lock()
	entry, ok := s.entries[state]
	if ok {
		delete(s.entries, state)
	}
	now := s.now()
	s.mu.Unlock()

	if !ok {
		return false, nil
	}
	if now.After(entry.expiresAt) {
		return false, nil
	}
	return entry.pluginID == pluginID, nil
}

func (s *MemoryStateStore) sweepLocked(now time.Time) {
	for state, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, state)
		}
	}
}

type verifierEntry struct {
	codeVerifier string
	expiresAt    time.Time
}

// MemoryPKCEStore keeps PKCE code verifiers keyed by OAuth state. Consume is
// single-use regardless of what happens to the exchange afterwards.
type MemoryPKCEStore struct {
	mu         sync.Mutex
	defaultTTL time.Duration
	maxEntries int
	entries    map[string]verifierEntry
	now        func() time.Time
}

func NewMemoryPKCEStore(ttl time.Duration) *MemoryPKCEStore {
	return NewMemoryPKCEStoreWithLimits(ttl, defaultVerifierMaxEntry)
}

func NewMemoryPKCEStoreWithLimits(ttl time.Duration, maxEntries int) *MemoryPKCEStore {
	if ttl <= 0 {
		ttl = defaultOAuthStateTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultVerifierMaxEntry
	}
	return &MemoryPKCEStore{
		defaultTTL: ttl,
		maxEntries: maxEntries,
		entries:    map[string]verifierEntry{},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryPKCEStore) Store(_ context.Context, state, codeVerifier string, ttl time.Duration) error {
	if s == nil {
		return fmt.Errorf("core: pkce store is not configured")
	}
	state = strings.TrimSpace(state)
	codeVerifier = strings.TrimSpace(codeVerifier)
	if state == "" {
		return fmt.Errorf("core: oauth state is required")
	}
	if codeVerifier == "" {
		return fmt.Errorf("core: code verifier is required")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)
	if len(s.entries) >= s.maxEntries {
		return fmt.Errorf("core: pkce store is full")
	}
	s.entries[state] = verifierEntry{
		codeVerifier: codeVerifier,
		expiresAt:    now.Add(ttl),
	}
	return nil
}

func (s *MemoryPKCEStore) Consume(_ context.Context, state string) (string, bool, error) {
	if s == nil {
		return "", false, fmt.Errorf("core: pkce store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return "", false, nil
	}

	s.mu.Lock()
	entry, ok := s.entries[state]
	if ok {
		delete(s.entries, state)
	}
	now := s.now()
	s.mu.Unlock()

	if !ok {
		return "", false, nil
	}
	if now.After(entry.expiresAt) {
		return "", false, nil
	}
	return entry.codeVerifier, true, nil
}

func (s *MemoryPKCEStore) sweepLocked(now time.Time) {
	for state, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, state)
		}
	}
}

func generateOAuthState() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("core: generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
