package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goliatone/go-gateway/core"
)

// ProfileIdentity resolves the account identity by calling a JSON profile
// endpoint with the freshly issued access token. Fields are dotted paths
// into the response document, e.g. "team.id".
type ProfileIdentity struct {
	URL       string
	IDField   string
	NameField string
}

func (p ProfileIdentity) Resolve(ctx context.Context, client HTTPDoer, token core.TokenInfo) (string, string, error) {
	profileURL := strings.TrimSpace(p.URL)
	if profileURL == "" {
		return "", "", fmt.Errorf("plugins: profile url is required")
	}
	if client == nil {
		return "", "", fmt.Errorf("plugins: http client is required")
	}
	accessToken := strings.TrimSpace(token.AccessToken)
	if accessToken == "" {
		return "", "", fmt.Errorf("plugins: access token is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, profileURL, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	response, err := client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("plugins: profile request failed: %w", err)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxTokenResponseBodyBytes+1))
	if readErr != nil {
		return "", "", fmt.Errorf("plugins: read profile response: %w", readErr)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return "", "", fmt.Errorf("plugins: profile endpoint error (%d)", response.StatusCode)
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", "", fmt.Errorf("plugins: decode profile response: %w", err)
	}

	externalID := lookupPath(decoded, p.IDField)
	if externalID == "" {
		return "", "", fmt.Errorf("plugins: profile response missing %q", p.IDField)
	}
	return externalID, lookupPath(decoded, p.NameField), nil
}

// StaticIdentity returns a fixed identity, for providers whose token
// response already pins the account, or for tests.
type StaticIdentity struct {
	ExternalID   string
	ExternalName string
}

func (s StaticIdentity) Resolve(context.Context, HTTPDoer, core.TokenInfo) (string, string, error) {
	if strings.TrimSpace(s.ExternalID) == "" {
		return "", "", fmt.Errorf("plugins: external id is required")
	}
	return strings.TrimSpace(s.ExternalID), strings.TrimSpace(s.ExternalName), nil
}

func lookupPath(document map[string]any, path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	var current any = document
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current = node[segment]
	}
	return readAnyString(current)
}

var (
	_ IdentityResolver = ProfileIdentity{}
	_ IdentityResolver = StaticIdentity{}
)
