// Package replay records consumed authorization codes so a second exchange
// attempt is rejected before the broker ever contacts the provider. The
// provider's own single-use-code enforcement remains the authoritative
// defense; this guard is the fast local reject in front of it.
package replay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrAlreadyConsumed is returned when a key has already been reserved
var ErrAlreadyConsumed = errors.New("authorization code already consumed")

// Guard is an atomic check-and-reserve store for consumed codes. Two
// concurrent reservations of the same key must never both succeed.
type Guard interface {
	// CheckAndReserve marks key as consumed. Returns ErrAlreadyConsumed if
	// it was reserved before.
	CheckAndReserve(ctx context.Context, key string) error

	// SweepExpired removes entries past their TTL and reports how many
	SweepExpired(ctx context.Context) (int, error)
}

// Key builds a replay key from an authorization code and the state nonce.
// Codes can be arbitrarily long provider blobs, so they are hashed rather
// than used verbatim.
func Key(code, stateNonce string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:]) + ":" + stateNonce
}
