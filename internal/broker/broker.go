// Package broker orchestrates one callback request through origin check,
// state validation, replay check, upstream exchange, and persistence.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerlink/oauth-broker/internal/log"
	"github.com/ledgerlink/oauth-broker/internal/origin"
	"github.com/ledgerlink/oauth-broker/internal/pkce"
	"github.com/ledgerlink/oauth-broker/internal/replay"
	"github.com/ledgerlink/oauth-broker/internal/state"
	"github.com/ledgerlink/oauth-broker/internal/storage"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Exchanger is the upstream provider client as the broker sees it
type Exchanger interface {
	AuthCodeURL(state, pkceChallenge string) string
	Exchange(ctx context.Context, code, pkceVerifier string) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// CallbackRequest is the front-end's forwarded authorization callback
type CallbackRequest struct {
	Code   string
	State  string
	Realm  string
	Origin string
}

// Result is a successful exchange, assembled for the front-end
type Result struct {
	Realm     string
	ExpiresAt time.Time

	// TokenSet is populated only when the broker is configured to hand
	// tokens to the browser; otherwise tokens live in storage alone
	TokenSet *storage.TokenSet
}

// Options tunes broker behavior
type Options struct {
	// UsePKCE adds a verifier/challenge pair to every flow. The verifier is
	// sealed inside the signed state token, never held by the front-end.
	UsePKCE bool

	// ReturnTokensToBrowser includes the token set in callback results.
	// Off by default: tokens are persisted server-side only.
	ReturnTokensToBrowser bool
}

// Broker composes the guards, the exchange client, and storage
type Broker struct {
	originGuard origin.Guard
	states      state.Issuer
	replayGuard replay.Guard
	exchanger   Exchanger
	store       storage.Store
	opts        Options

	refreshGroup singleflight.Group
}

// New creates a broker
func New(originGuard origin.Guard, states state.Issuer, replayGuard replay.Guard, exchanger Exchanger, store storage.Store, opts Options) *Broker {
	return &Broker{
		originGuard: originGuard,
		states:      states,
		replayGuard: replayGuard,
		exchanger:   exchanger,
		store:       store,
		opts:        opts,
	}
}

// ConnectURL starts a flow: it mints signed state (sealing a PKCE verifier
// when enabled) and returns the provider authorization URL for the
// front-end to redirect to.
func (b *Broker) ConnectURL(realm string) (string, error) {
	var verifier, challenge string
	if b.opts.UsePKCE {
		pair, err := pkce.NewPair()
		if err != nil {
			return "", fmt.Errorf("failed to generate PKCE pair: %w", err)
		}
		verifier = pair.Verifier
		challenge = pair.Challenge
	}

	stateToken, _, err := b.states.Issue(realm, verifier)
	if err != nil {
		return "", fmt.Errorf("failed to issue state: %w", err)
	}

	return b.exchanger.AuthCodeURL(stateToken, challenge), nil
}

// Connect walks a callback through the full state machine. Any failure is
// terminal for the request; nothing is retried here.
func (b *Broker) Connect(ctx context.Context, req CallbackRequest) (*Result, error) {
	if req.Code == "" || req.State == "" {
		return nil, failed(KindMalformedRequest, errors.New("code and state are required"))
	}

	if err := b.originGuard.Authorize(req.Origin); err != nil {
		return nil, failed(KindInvalidOrigin, err)
	}

	payload, err := b.states.Verify(req.State)
	if err != nil {
		return nil, failed(KindInvalidState, err)
	}

	realm := req.Realm
	if realm == "" {
		realm = payload.Realm
	}

	// Reserve before the upstream call. A code that was relayed upstream
	// stays consumed locally even if the provider rejects it: a resubmit of
	// the same callback deterministically fails anyway, and rejecting it
	// here keeps client-side retry storms off the provider.
	key := replay.Key(req.Code, payload.Nonce)
	if err := b.replayGuard.CheckAndReserve(ctx, key); err != nil {
		if errors.Is(err, replay.ErrAlreadyConsumed) {
			return nil, failed(KindReplayDetected, err)
		}
		// Guard storage trouble. The provider's own single-use enforcement
		// is the authoritative defense, so the flow continues.
		log.LogWarnWithFields("broker", "Replay guard unavailable, relying on provider enforcement", map[string]any{
			"error": err.Error(),
		})
	}

	// The exchange runs detached from the client connection: if the caller
	// disconnects mid-exchange, an actually-successful exchange must still
	// be recorded and persisted, or the code would look replayable.
	exchangeCtx := context.WithoutCancel(ctx)
	token, err := b.exchanger.Exchange(exchangeCtx, req.Code, payload.PKCEVerifier)
	if err != nil {
		return nil, failed(KindUpstreamError, err)
	}

	tokens := storage.FromOAuth2Token(realm, token)
	b.persist(exchangeCtx, tokens)

	result := &Result{
		Realm:     tokens.Realm,
		ExpiresAt: tokens.ExpiresAt,
	}
	if b.opts.ReturnTokensToBrowser {
		result.TokenSet = tokens
	}
	return result, nil
}

// Refresh performs a refresh-token exchange for a realm. Concurrent
// refreshes for the same realm collapse into one upstream call.
func (b *Broker) Refresh(ctx context.Context, realm string) (*Result, error) {
	if realm == "" {
		return nil, failed(KindMalformedRequest, errors.New("realm is required"))
	}

	v, err, _ := b.refreshGroup.Do(realm, func() (any, error) {
		return b.refresh(ctx, realm)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (b *Broker) refresh(ctx context.Context, realm string) (*Result, error) {
	current, err := b.store.Get(ctx, realm)
	if err != nil {
		if errors.Is(err, storage.ErrTokenSetNotFound) {
			return nil, failed(KindNotConnected, err)
		}
		return nil, failed(KindUpstreamError, err)
	}
	if current.RefreshToken == "" {
		return nil, failed(KindNotConnected, errors.New("no refresh token stored"))
	}

	token, err := b.exchanger.Refresh(context.WithoutCancel(ctx), current.RefreshToken)
	if err != nil {
		return nil, failed(KindUpstreamError, err)
	}

	tokens := storage.FromOAuth2Token(realm, token)
	if tokens.RefreshToken == "" {
		// Refresh-only responses may omit the refresh token; keep the old one
		tokens.RefreshToken = current.RefreshToken
	}
	b.persist(ctx, tokens)

	return &Result{Realm: realm, ExpiresAt: tokens.ExpiresAt}, nil
}

// persist stores the token set best effort. A storage failure does not roll
// back an already-issued token set; the front-end still gets its success.
func (b *Broker) persist(ctx context.Context, tokens *storage.TokenSet) {
	if b.store == nil {
		return
	}
	if err := b.store.Put(ctx, tokens); err != nil {
		log.LogErrorWithFields("broker", "Failed to persist token set", map[string]any{
			"kind":  "PersistFailed",
			"realm": tokens.Realm,
			"error": err.Error(),
		})
	}
}
