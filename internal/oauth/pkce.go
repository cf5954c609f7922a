// Package oauth implements the credential layer's token-acquisition flows:
// the PKCE-protected authorization code grant (RFC 6749 + RFC 7636) and the
// device authorization grant (RFC 8628), plus refresh-token renewal. It is
// grounded on the teacher's OAuth provider idiom (golang.org/x/oauth2-backed
// Service/Provider shape) generalized to the credential vault's token model.
package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// verifierBytes is the number of random bytes used for the PKCE code
// verifier, before base64url encoding (32 bytes -> 43 chars, no padding).
const verifierBytes = 32

// GenerateVerifier produces a PKCE code verifier: CSPRNG bytes, base64url
// encoded without padding.
func GenerateVerifier() (string, error) {
	buf := make([]byte, verifierBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Challenge derives the S256 PKCE code challenge from a verifier:
// challenge = BASE64URL(SHA256(verifier)).
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// GenerateState produces a CSRF state token for the authorization request.
func GenerateState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
