// Package storage persists exchanged token sets keyed by realm. Ownership of
// a TokenSet transfers here after a successful exchange; the broker itself
// only ever holds one transiently.
package storage

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"
)

// ErrTokenSetNotFound is returned when no token set exists for a realm
var ErrTokenSetNotFound = errors.New("token set not found")

// TokenSet is the result of a successful exchange
type TokenSet struct {
	Realm        string    `json:"realm"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FromOAuth2Token converts a provider token response into a TokenSet.
// A refresh-only response may carry no new refresh token; the caller decides
// whether to keep the previous one.
func FromOAuth2Token(realm string, token *oauth2.Token) *TokenSet {
	return &TokenSet{
		Realm:        realm,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		ExpiresAt:    token.Expiry,
		UpdatedAt:    time.Now(),
	}
}

// Store persists token sets keyed by realm
type Store interface {
	Put(ctx context.Context, tokens *TokenSet) error
	Get(ctx context.Context, realm string) (*TokenSet, error)
	Delete(ctx context.Context, realm string) error
}
