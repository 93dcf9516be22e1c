package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey derives a purpose-bound key from the configured master secret
// using HKDF-SHA256. Distinct info strings give independent keys, so the
// state-signing key and the storage-encryption key never coincide even
// though operators configure a single secret.
func DeriveKey(masterSecret []byte, info string, length int) ([]byte, error) {
	if len(masterSecret) == 0 {
		return nil, fmt.Errorf("master secret is empty")
	}

	reader := hkdf.New(sha256.New, masterSecret, nil, []byte(info))
	key := make([]byte, length)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("deriving key for %q: %w", info, err)
	}
	return key, nil
}

// Key derivation info strings. Changing one invalidates everything minted
// under it, so they are fixed constants.
const (
	KeyInfoStateSigning = "oauth-broker/state-signing/v1"
	KeyInfoTokenStorage = "oauth-broker/token-storage/v1"
	DerivedKeyLength    = 32
)
