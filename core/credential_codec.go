package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	CredentialPayloadFormatJSONV1 = "credential_json"
	CredentialPayloadVersionV1    = 1
)

// CredentialCodec converts between the in-memory credential and the payload
// that gets encrypted at rest.
type CredentialCodec interface {
	Format() string
	Version() int
	Encode(credential CredentialInfo) ([]byte, error)
	Decode(payload []byte) (CredentialInfo, error)
}

type JSONCredentialCodec struct{}

func (JSONCredentialCodec) Format() string {
	return CredentialPayloadFormatJSONV1
}

func (JSONCredentialCodec) Version() int {
	return CredentialPayloadVersionV1
}

type jsonCredentialPayload struct {
	ConnectionID string         `json:"connection_id,omitempty"`
	PluginID     string         `json:"plugin_id,omitempty"`
	ExternalID   string         `json:"external_id,omitempty"`
	Kind         string         `json:"kind,omitempty"`
	AccessToken  string         `json:"access_token,omitempty"`
	RefreshToken string         `json:"refresh_token,omitempty"`
	APIKey       string         `json:"api_key,omitempty"`
	APISecret    string         `json:"api_secret,omitempty"`
	Scope        string         `json:"scope,omitempty"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func (JSONCredentialCodec) Encode(credential CredentialInfo) ([]byte, error) {
	payload := jsonCredentialPayload{
		ConnectionID: strings.TrimSpace(credential.ConnectionID),
		PluginID:     strings.TrimSpace(credential.PluginID),
		ExternalID:   strings.TrimSpace(credential.ExternalID),
		Kind:         strings.TrimSpace(string(credential.Kind)),
		AccessToken:  strings.TrimSpace(credential.AccessToken),
		RefreshToken: strings.TrimSpace(credential.RefreshToken),
		APIKey:       strings.TrimSpace(credential.APIKey),
		APISecret:    strings.TrimSpace(credential.APISecret),
		Scope:        strings.TrimSpace(credential.Scope),
		ExpiresAt:    cloneTimePointer(credential.ExpiresAt),
		Metadata:     copyAnyMap(credential.Metadata),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("core: encode credential payload: %w", err)
	}
	return encoded, nil
}

func (JSONCredentialCodec) Decode(payload []byte) (CredentialInfo, error) {
	if len(payload) == 0 {
		return CredentialInfo{}, fmt.Errorf("core: credential payload is empty")
	}
	decoded := jsonCredentialPayload{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return CredentialInfo{}, fmt.Errorf("core: decode credential payload: %w", err)
	}
	return CredentialInfo{
		ConnectionID: strings.TrimSpace(decoded.ConnectionID),
		PluginID:     strings.TrimSpace(decoded.PluginID),
		ExternalID:   strings.TrimSpace(decoded.ExternalID),
		Kind:         CredentialKind(strings.TrimSpace(decoded.Kind)),
		AccessToken:  strings.TrimSpace(decoded.AccessToken),
		RefreshToken: strings.TrimSpace(decoded.RefreshToken),
		APIKey:       strings.TrimSpace(decoded.APIKey),
		APISecret:    strings.TrimSpace(decoded.APISecret),
		Scope:        strings.TrimSpace(decoded.Scope),
		ExpiresAt:    cloneTimePointer(decoded.ExpiresAt),
		Metadata:     copyAnyMap(decoded.Metadata),
	}, nil
}

func cloneTimePointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := value.UTC()
	return &clone
}
