// Package origin allow-lists the single front-end origin permitted to call
// the broker. This is defense in depth: Origin headers are client-supplied,
// so passing this check proves nothing on its own — the signed state token
// remains the real security boundary.
package origin

import "errors"

// ErrRejected is returned for a missing or unlisted Origin header
var ErrRejected = errors.New("origin not allowed")

// Guard validates the Origin header of inbound requests
type Guard struct {
	allowed string
}

// NewGuard creates a guard for exactly one allowed origin
func NewGuard(allowedOrigin string) Guard {
	return Guard{allowed: allowedOrigin}
}

// Allowed returns the configured origin, for CORS response headers
func (g Guard) Allowed() string {
	return g.allowed
}

// Authorize rejects requests whose Origin header is absent or does not match
// the configured front-end origin byte-for-byte
func (g Guard) Authorize(requestOrigin string) error {
	if requestOrigin == "" || requestOrigin != g.allowed {
		return ErrRejected
	}
	return nil
}
