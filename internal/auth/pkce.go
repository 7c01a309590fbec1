package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

const (
	// verifierBytes is the entropy for a PKCE code verifier. 32 bytes encode to
	// 43 base64url characters, the RFC 7636 minimum length.
	verifierBytes = 32

	// stateBytes is the entropy for the anti-CSRF state token.
	stateBytes = 32
)

// GenerateVerifier produces a cryptographically random PKCE code verifier,
// base64url-encoded without padding. A verifier is never reused across attempts.
func GenerateVerifier() (string, error) {
	return randomToken(verifierBytes)
}

// DeriveChallenge computes the S256 code challenge for a verifier:
// base64url(sha256(verifier)), no padding.
func DeriveChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// GenerateState produces a random state token for CSRF protection on the callback.
func GenerateState() (string, error) {
	return randomToken(stateBytes)
}

// VerifyState reports whether the state received on a callback matches the one
// issued for the pending attempt. Comparison is constant-time.
func VerifyState(received, expected string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(received), []byte(expected)) == 1
}

// randomToken reads n bytes from crypto/rand and encodes them as unpadded base64url.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
