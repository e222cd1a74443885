package core

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// PKCE parameter names as they appear in authorization and token requests.
const (
	PKCEParamCodeChallenge       = "code_challenge"
	PKCEParamCodeChallengeMethod = "code_challenge_method"
	PKCEParamCodeVerifier        = "code_verifier"
	PKCEMethodS256               = "S256"
)

// GenerateCodeVerifier returns a high-entropy PKCE code verifier: 64 random
// bytes encoded as unpadded base64url, per RFC 7636 §4.1.
func GenerateCodeVerifier() (string, error) {
	raw := make([]byte, 64)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("core: generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// CodeChallengeS256 derives the S256 code challenge for a verifier.
func CodeChallengeS256(codeVerifier string) string {
	digest := sha256.Sum256([]byte(codeVerifier))
	return base64.RawURLEncoding.EncodeToString(digest[:])
}
