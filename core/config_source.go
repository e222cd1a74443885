package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// StaticConfigSource serves plugin configuration from memory. Deployments
// that manage plugin settings elsewhere implement ConfigSource themselves.
type StaticConfigSource struct {
	mu      sync.RWMutex
	entries map[string]PluginConfig
}

func NewStaticConfigSource(configs ...PluginConfig) *StaticConfigSource {
	source := &StaticConfigSource{
		entries: make(map[string]PluginConfig, len(configs)),
	}
	for _, cfg := range configs {
		if id := strings.TrimSpace(cfg.PluginID); id != "" {
			source.entries[id] = clonePluginConfig(cfg)
		}
	}
	return source
}

func (s *StaticConfigSource) Set(cfg PluginConfig) error {
	if s == nil {
		return fmt.Errorf("core: config source is not configured")
	}
	id := strings.TrimSpace(cfg.PluginID)
	if id == "" {
		return fmt.Errorf("core: plugin id is required")
	}
	s.mu.Lock()
	s.entries[id] = clonePluginConfig(cfg)
	s.mu.Unlock()
	return nil
}

func (s *StaticConfigSource) PluginConfig(_ context.Context, pluginID string) (PluginConfig, bool, error) {
	if s == nil {
		return PluginConfig{}, false, fmt.Errorf("core: config source is not configured")
	}
	s.mu.RLock()
	cfg, ok := s.entries[strings.TrimSpace(pluginID)]
	s.mu.RUnlock()
	if !ok {
		return PluginConfig{}, false, nil
	}
	return clonePluginConfig(cfg), true, nil
}

func clonePluginConfig(cfg PluginConfig) PluginConfig {
	cloned := cfg
	cloned.Scopes = append([]string(nil), cfg.Scopes...)
	cloned.Secrets = copyStringMap(cfg.Secrets)
	cloned.Metadata = copyAnyMap(cfg.Metadata)
	return cloned
}

var _ ConfigSource = (*StaticConfigSource)(nil)
