// Package pkce implements the RFC 7636 verifier/challenge pair used to bind
// an authorization request to its eventual token exchange.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// Pair holds a code verifier and its S256 challenge. The verifier stays
// server-side; only the challenge is sent at authorization time.
type Pair struct {
	Verifier  string
	Challenge string
}

// NewPair generates a high-entropy verifier and derives its challenge
func NewPair() (Pair, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return Pair{}, fmt.Errorf("failed to generate verifier: %w", err)
	}

	verifier := base64.RawURLEncoding.EncodeToString(b)
	return Pair{
		Verifier:  verifier,
		Challenge: Challenge(verifier),
	}, nil
}

// Challenge computes the S256 code challenge for a verifier
func Challenge(verifier string) string {
	h := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(h[:])
}

// Verify checks that a verifier hashes to the given challenge
func Verify(verifier, challenge string) bool {
	computed := Challenge(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
