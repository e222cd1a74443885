package core

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func TestGenerateCodeVerifier(t *testing.T) {
	verifier, err := GenerateCodeVerifier()
	if err != nil {
		t.Fatalf("generate verifier: %v", err)
	}

	raw, err := base64.RawURLEncoding.DecodeString(verifier)
	if err != nil {
		t.Fatalf("verifier is not unpadded base64url: %v", err)
	}
	if len(raw) != 64 {
		t.Fatalf("expected 64 bytes of entropy, got %d", len(raw))
	}

	second, err := GenerateCodeVerifier()
	if err != nil {
		t.Fatalf("generate second verifier: %v", err)
	}
	if verifier == second {
		t.Fatalf("expected unique verifiers")
	}
}

func TestCodeChallengeS256(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"

	digest := sha256.Sum256([]byte(verifier))
	expected := base64.RawURLEncoding.EncodeToString(digest[:])

	if got := CodeChallengeS256(verifier); got != expected {
		t.Fatalf("expected challenge %q, got %q", expected, got)
	}
}
