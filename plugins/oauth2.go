package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-gateway/core"
)

const (
	defaultTokenRequestTimeout = 30 * time.Second
	maxTokenResponseBodyBytes  = 1 << 20 // 1 MiB
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// IdentityResolver maps a freshly issued token onto the provider-side
// account it belongs to. ExternalID becomes the connection uniqueness key,
// so resolvers must return a stable value per account.
type IdentityResolver interface {
	Resolve(ctx context.Context, client HTTPDoer, token core.TokenInfo) (externalID, externalName string, err error)
}

// OAuth2Options configures a generic authorization code capability. Client
// id, secret and redirect URI come from the per-plugin config at call time;
// everything endpoint-shaped lives here.
type OAuth2Options struct {
	AuthURL             string
	TokenURL            string
	DefaultScopes       []string
	ClientSecretInBody  bool
	UsePKCE             bool
	DisableRefresh      bool
	Identity            IdentityResolver
	TokenTTL            time.Duration
	TokenRequestTimeout time.Duration
	HTTPClient          HTTPDoer
	Now                 func() time.Time
}

// OAuth2Capability implements the OAuth capability contract against real
// token endpoints. Concrete plugins embed one and supply their endpoints
// and identity resolution.
type OAuth2Capability struct {
	opts       OAuth2Options
	httpClient HTTPDoer
}

func NewOAuth2Capability(opts OAuth2Options) (*OAuth2Capability, error) {
	opts.AuthURL = strings.TrimSpace(opts.AuthURL)
	opts.TokenURL = strings.TrimSpace(opts.TokenURL)
	if opts.AuthURL == "" {
		return nil, fmt.Errorf("plugins: auth url is required")
	}
	if opts.TokenURL == "" {
		return nil, fmt.Errorf("plugins: token url is required")
	}
	opts.DefaultScopes = normalizeScopes(opts.DefaultScopes)
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	if opts.TokenRequestTimeout <= 0 {
		opts.TokenRequestTimeout = defaultTokenRequestTimeout
	}
	if opts.Now == nil {
		opts.Now = func() time.Time {
			return time.Now().UTC()
		}
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.TokenRequestTimeout}
	}

	return &OAuth2Capability{
		opts:       opts,
		httpClient: httpClient,
	}, nil
}

func (c *OAuth2Capability) SupportsRefresh() bool {
	if c == nil {
		return false
	}
	return !c.opts.DisableRefresh
}

func (c *OAuth2Capability) RequiresPKCE() bool {
	if c == nil {
		return false
	}
	return c.opts.UsePKCE
}

func (c *OAuth2Capability) AuthorizationURL(cfg core.PluginConfig, state, redirectURI string, extra map[string]string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("plugins: oauth2 capability is nil")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return "", fmt.Errorf("plugins: client id is required for plugin %q", cfg.PluginID)
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return "", fmt.Errorf("plugins: oauth state is required")
	}

	scopes := normalizeScopes(cfg.Scopes)
	if len(scopes) == 0 {
		scopes = append([]string(nil), c.opts.DefaultScopes...)
	}

	values := url.Values{}
	values.Set("response_type", "code")
	values.Set("client_id", strings.TrimSpace(cfg.ClientID))
	if redirectURI = strings.TrimSpace(redirectURI); redirectURI != "" {
		values.Set("redirect_uri", redirectURI)
	}
	if len(scopes) > 0 {
		values.Set("scope", strings.Join(scopes, " "))
	}
	values.Set("state", state)
	for key, value := range extra {
		key = strings.TrimSpace(key)
		if key == "" || strings.TrimSpace(value) == "" {
			continue
		}
		values.Set(key, strings.TrimSpace(value))
	}

	authURL := c.opts.AuthURL
	if strings.Contains(authURL, "?") {
		authURL += "&" + values.Encode()
	} else {
		authURL += "?" + values.Encode()
	}
	return authURL, nil
}

func (c *OAuth2Capability) ExchangeCode(ctx context.Context, cfg core.PluginConfig, code, redirectURI string, extra map[string]string) (core.TokenInfo, error) {
	if c == nil {
		return core.TokenInfo{}, fmt.Errorf("plugins: oauth2 capability is nil")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return core.TokenInfo{}, fmt.Errorf("plugins: auth code is required")
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	if redirectURI = strings.TrimSpace(redirectURI); redirectURI != "" {
		form.Set("redirect_uri", redirectURI)
	}
	if verifier := strings.TrimSpace(extra[core.PKCEParamCodeVerifier]); verifier != "" {
		form.Set(core.PKCEParamCodeVerifier, verifier)
	}

	payload, err := c.fetchToken(ctx, cfg, form)
	if err != nil {
		return core.TokenInfo{}, err
	}

	token := c.tokenFromPayload(cfg, payload)
	if c.opts.Identity != nil {
		externalID, externalName, identityErr := c.opts.Identity.Resolve(ctx, c.httpClient, token)
		if identityErr != nil {
			return core.TokenInfo{}, fmt.Errorf("plugins: resolve identity: %w", identityErr)
		}
		token.ExternalID = strings.TrimSpace(externalID)
		token.ExternalName = strings.TrimSpace(externalName)
	}
	return token, nil
}

func (c *OAuth2Capability) RefreshToken(ctx context.Context, cfg core.PluginConfig, credential core.CredentialInfo) (core.TokenInfo, error) {
	if c == nil {
		return core.TokenInfo{}, fmt.Errorf("plugins: oauth2 capability is nil")
	}
	if c.opts.DisableRefresh {
		return core.TokenInfo{}, fmt.Errorf("plugins: token refresh is not supported")
	}
	refreshToken := strings.TrimSpace(credential.RefreshToken)
	if refreshToken == "" {
		return core.TokenInfo{}, fmt.Errorf("plugins: refresh token is required")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	if scope := strings.TrimSpace(credential.Scope); scope != "" {
		form.Set("scope", scope)
	}

	payload, err := c.fetchToken(ctx, cfg, form)
	if err != nil {
		return core.TokenInfo{}, err
	}

	token := c.tokenFromPayload(cfg, payload)
	token.ExternalID = credential.ExternalID
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}
	return token, nil
}

func (c *OAuth2Capability) tokenFromPayload(cfg core.PluginConfig, payload tokenEndpointPayload) core.TokenInfo {
	now := c.opts.Now().UTC()
	return core.TokenInfo{
		PluginID:     cfg.PluginID,
		AccessToken:  strings.TrimSpace(payload.AccessToken),
		RefreshToken: strings.TrimSpace(payload.RefreshToken),
		Scope:        strings.TrimSpace(payload.Scope),
		ExpiresAt:    c.resolveExpiresAt(now, payload.ExpiresIn),
		Metadata: map[string]any{
			"token_type": normalizeTokenType(payload.TokenType),
		},
	}
}

type tokenEndpointPayload struct {
	AccessToken      string
	TokenType        string
	RefreshToken     string
	Scope            string
	ExpiresIn        int64
	ErrorCode        string
	ErrorDescription string
}

func (c *OAuth2Capability) fetchToken(ctx context.Context, cfg core.PluginConfig, form url.Values) (tokenEndpointPayload, error) {
	if c.httpClient == nil {
		return tokenEndpointPayload{}, fmt.Errorf("plugins: oauth2 http client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		return tokenEndpointPayload{}, fmt.Errorf("plugins: client id is required for plugin %q", cfg.PluginID)
	}
	clientSecret := strings.TrimSpace(cfg.ClientSecret)

	values := url.Values{}
	for key, items := range form {
		for _, item := range items {
			values.Add(key, strings.TrimSpace(item))
		}
	}
	values.Set("client_id", clientID)
	if c.opts.ClientSecretInBody && clientSecret != "" {
		values.Set("client_secret", clientSecret)
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.opts.TokenRequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(
		requestCtx,
		http.MethodPost,
		c.opts.TokenURL,
		strings.NewReader(values.Encode()),
	)
	if err != nil {
		return tokenEndpointPayload{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if !c.opts.ClientSecretInBody && clientSecret != "" {
		httpReq.SetBasicAuth(clientID, clientSecret)
	}

	response, err := c.httpClient.Do(httpReq)
	if err != nil {
		return tokenEndpointPayload{}, fmt.Errorf("plugins: token exchange failed: %w", err)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxTokenResponseBodyBytes+1))
	if readErr != nil {
		return tokenEndpointPayload{}, fmt.Errorf("plugins: read token response: %w", readErr)
	}
	if int64(len(body)) > maxTokenResponseBodyBytes {
		return tokenEndpointPayload{}, fmt.Errorf("plugins: token response exceeds %d bytes", maxTokenResponseBodyBytes)
	}

	payload, parseErr := parseTokenPayload(body, response.Header.Get("Content-Type"))
	if parseErr != nil {
		return tokenEndpointPayload{}, fmt.Errorf("plugins: decode token response: %w", parseErr)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return tokenEndpointPayload{}, fmt.Errorf(
			"plugins: token exchange failed (%d): %s",
			response.StatusCode,
			describeTokenError(payload),
		)
	}
	if payload.ErrorCode != "" {
		return tokenEndpointPayload{}, fmt.Errorf("plugins: token exchange failed: %s", describeTokenError(payload))
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return tokenEndpointPayload{}, fmt.Errorf("plugins: token response missing access token")
	}
	return payload, nil
}

func (c *OAuth2Capability) resolveExpiresAt(now time.Time, expiresIn int64) *time.Time {
	ttl := c.opts.TokenTTL
	if expiresIn > 0 {
		ttl = time.Duration(expiresIn) * time.Second
	}
	if ttl <= 0 {
		return nil
	}
	expiresAt := now.Add(ttl)
	return &expiresAt
}

func describeTokenError(payload tokenEndpointPayload) string {
	if strings.TrimSpace(payload.ErrorDescription) != "" {
		return strings.TrimSpace(payload.ErrorDescription)
	}
	if strings.TrimSpace(payload.ErrorCode) != "" {
		return strings.TrimSpace(payload.ErrorCode)
	}
	return "unknown error"
}

func parseTokenPayload(body []byte, contentType string) (tokenEndpointPayload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if strings.Contains(contentType, "json") {
		return parseTokenPayloadJSON(body)
	}
	if strings.Contains(contentType, "x-www-form-urlencoded") || strings.Contains(contentType, "text/plain") {
		return parseTokenPayloadForm(body)
	}
	if payload, err := parseTokenPayloadJSON(body); err == nil {
		return payload, nil
	}
	return parseTokenPayloadForm(body)
}

func parseTokenPayloadJSON(body []byte) (tokenEndpointPayload, error) {
	if strings.TrimSpace(string(body)) == "" {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return tokenEndpointPayload{}, err
	}
	return tokenEndpointPayload{
		AccessToken:      readAnyString(decoded["access_token"]),
		TokenType:        readAnyString(decoded["token_type"]),
		RefreshToken:     readAnyString(decoded["refresh_token"]),
		Scope:            readAnyString(decoded["scope"]),
		ExpiresIn:        readAnyInt64(decoded["expires_in"]),
		ErrorCode:        readAnyString(decoded["error"]),
		ErrorDescription: readAnyString(decoded["error_description"]),
	}, nil
}

func parseTokenPayloadForm(body []byte) (tokenEndpointPayload, error) {
	if strings.TrimSpace(string(body)) == "" {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return tokenEndpointPayload{}, err
	}
	expiresIn, _ := strconv.ParseInt(strings.TrimSpace(values.Get("expires_in")), 10, 64)
	return tokenEndpointPayload{
		AccessToken:      strings.TrimSpace(values.Get("access_token")),
		TokenType:        strings.TrimSpace(values.Get("token_type")),
		RefreshToken:     strings.TrimSpace(values.Get("refresh_token")),
		Scope:            strings.TrimSpace(values.Get("scope")),
		ExpiresIn:        expiresIn,
		ErrorCode:        strings.TrimSpace(values.Get("error")),
		ErrorDescription: strings.TrimSpace(values.Get("error_description")),
	}, nil
}

func normalizeTokenType(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "bearer"
	}
	return normalized
}

func normalizeScopes(input []string) []string {
	if len(input) == 0 {
		return []string{}
	}
	values := make([]string, 0, len(input))
	seen := map[string]struct{}{}
	for _, value := range input {
		normalized := strings.TrimSpace(value)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		values = append(values, normalized)
	}
	return values
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	default:
		if value == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func readAnyInt64(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int64:
		return typed
	case float64:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err == nil {
			return parsed
		}
		floatParsed, floatErr := typed.Float64()
		if floatErr == nil {
			return int64(floatParsed)
		}
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err == nil {
			return parsed
		}
	}
	return 0
}

var _ core.OAuthCapability = (*OAuth2Capability)(nil)
