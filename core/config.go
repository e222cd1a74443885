package core

import (
	"fmt"
	"strings"
	"time"
)

type OAuthConfig struct {
	StateTTLSeconds int    `koanf:"state_ttl_seconds" mapstructure:"state_ttl_seconds"`
	RedirectBaseURL string `koanf:"redirect_base_url" mapstructure:"redirect_base_url"`
}

func (c OAuthConfig) StateTTL() time.Duration {
	if c.StateTTLSeconds <= 0 {
		return DefaultInstallStateTTL
	}
	return time.Duration(c.StateTTLSeconds) * time.Second
}

type DispatchConfig struct {
	Workers        int `koanf:"workers" mapstructure:"workers"`
	TimeoutSeconds int `koanf:"timeout_seconds" mapstructure:"timeout_seconds"`
}

func (c DispatchConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	OAuth       OAuthConfig    `koanf:"oauth" mapstructure:"oauth"`
	Dispatch    DispatchConfig `koanf:"dispatch" mapstructure:"dispatch"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "gateway",
		OAuth: OAuthConfig{
			StateTTLSeconds: 600,
		},
		Dispatch: DispatchConfig{
			Workers:        8,
			TimeoutSeconds: 10,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.OAuth.StateTTLSeconds < 0 {
		return fmt.Errorf("core: oauth.state_ttl_seconds cannot be negative")
	}
	if c.Dispatch.Workers < 0 {
		return fmt.Errorf("core: dispatch.workers cannot be negative")
	}
	if c.Dispatch.TimeoutSeconds < 0 {
		return fmt.Errorf("core: dispatch.timeout_seconds cannot be negative")
	}
	return nil
}
