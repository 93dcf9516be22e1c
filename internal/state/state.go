// Package state issues and verifies the signed state parameter round-tripped
// through the provider's redirect. The signature is the broker's actual CSRF
// boundary: Origin checks are a fast-path filter, this is the proof that a
// callback belongs to a flow the broker itself started.
package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/ledgerlink/oauth-broker/internal/crypto"
)

// ErrInvalid is returned for any state token that cannot be accepted:
// malformed, tampered, or expired. Callers get no finer detail on purpose.
var ErrInvalid = errors.New("invalid or expired state")

// Payload is the data sealed inside a state token. The front-end only ever
// sees the opaque signed form.
type Payload struct {
	Nonce        string    `json:"nonce"`
	Realm        string    `json:"realm,omitempty"`
	PKCEVerifier string    `json:"pkce_verifier,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Issuer mints and verifies state tokens
type Issuer struct {
	signer crypto.TokenSigner
}

// NewIssuer creates a state issuer. ttl bounds how long a callback may
// arrive after the flow started.
func NewIssuer(signingKey []byte, ttl time.Duration) Issuer {
	return Issuer{
		signer: crypto.NewTokenSigner(signingKey, ttl),
	}
}

// Issue mints a signed state token. realm is an optional tenant hint and
// pkceVerifier, when non-empty, seals the PKCE verifier into the token so it
// never has to live in the browser.
func (i *Issuer) Issue(realm, pkceVerifier string) (token string, payload Payload, err error) {
	nonce, err := crypto.GenerateSecureToken()
	if err != nil {
		return "", Payload{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	payload = Payload{
		Nonce:        nonce,
		Realm:        realm,
		PKCEVerifier: pkceVerifier,
		CreatedAt:    time.Now(),
	}

	token, err = i.signer.Sign(payload)
	if err != nil {
		return "", Payload{}, fmt.Errorf("failed to sign state: %w", err)
	}
	return token, payload, nil
}

// Verify checks the signature and expiry of a state token and returns its
// payload. Any failure collapses to ErrInvalid.
func (i *Issuer) Verify(token string) (Payload, error) {
	var payload Payload
	if err := i.signer.Verify(token, &payload); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if payload.Nonce == "" {
		return Payload{}, ErrInvalid
	}
	return payload, nil
}
