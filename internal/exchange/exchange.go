// Package exchange performs the secret-bearing code-for-token exchange
// against the upstream provider's token endpoint.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ledgerlink/oauth-broker/internal/log"
	"golang.org/x/oauth2"
)

// UpstreamError describes a failed exchange: either a provider rejection
// (Code carries the provider's error code, e.g. "invalid_grant") or a
// network-level failure (Code is empty). The raw provider body is never
// carried past this type.
type UpstreamError struct {
	Code        string
	Description string
	StatusCode  int
	cause       error
}

func (e *UpstreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream rejected exchange: %s", e.Code)
	}
	return "upstream exchange failed"
}

func (e *UpstreamError) Unwrap() error {
	return e.cause
}

// Config holds the provider endpoints and client credentials
type Config struct {
	ClientID         string
	ClientSecret     string
	AuthorizationURL string
	TokenURL         string
	RedirectURI      string
	Scopes           []string
	Timeout          time.Duration
}

// Client exchanges authorization codes and refresh tokens with one provider
type Client struct {
	config     oauth2.Config
	httpClient *http.Client
}

// NewClient creates an exchange client. timeout bounds the single outbound
// call; there is no automatic retry, since retrying with a consumed code
// deterministically fails and can mask a replay.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthorizationURL,
				TokenURL: cfg.TokenURL,
			},
			RedirectURL: cfg.RedirectURI,
			Scopes:      cfg.Scopes,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
}

// AuthCodeURL builds the provider authorization URL for a signed state and
// an optional PKCE challenge
func (c *Client) AuthCodeURL(state, pkceChallenge string) string {
	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
	if pkceChallenge != "" {
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", pkceChallenge),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		)
	}
	return c.config.AuthCodeURL(state, opts...)
}

// Exchange redeems an authorization code for tokens. pkceVerifier is sent
// as code_verifier when non-empty.
func (c *Client) Exchange(ctx context.Context, code, pkceVerifier string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	var opts []oauth2.AuthCodeOption
	if pkceVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(pkceVerifier))
	}

	token, err := c.config.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, c.wrapUpstream("code exchange", err)
	}
	return token, nil
}

// Refresh performs a grant_type=refresh_token exchange
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	token, err := c.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, c.wrapUpstream("token refresh", err)
	}
	return token, nil
}

// wrapUpstream normalizes oauth2 failures into UpstreamError. Provider error
// codes are safe to surface; response bodies and secrets are not, so only
// the structured fields leave this package.
func (c *Client) wrapUpstream(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		upstream := &UpstreamError{
			Code:        retrieveErr.ErrorCode,
			Description: retrieveErr.ErrorDescription,
			cause:       err,
		}
		if retrieveErr.Response != nil {
			upstream.StatusCode = retrieveErr.Response.StatusCode
		}
		log.LogWarnWithFields("exchange", "Provider rejected "+op, map[string]any{
			"error_code": upstream.Code,
			"status":     upstream.StatusCode,
		})
		return upstream
	}

	log.LogWarnWithFields("exchange", "Network failure during "+op, map[string]any{
		"error": err.Error(),
	})
	return &UpstreamError{cause: err}
}
