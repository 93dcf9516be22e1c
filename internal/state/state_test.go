package state

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("state-signing-key-32-bytes-long!")

func TestIssueVerifyRoundTrip(t *testing.T) {
	issuer := NewIssuer(testKey, 5*time.Minute)

	token, issued, err := issuer.Issue("realm-42", "pkce-verifier-value")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.NotEmpty(t, issued.Nonce)

	payload, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, issued.Nonce, payload.Nonce)
	assert.Equal(t, "realm-42", payload.Realm)
	assert.Equal(t, "pkce-verifier-value", payload.PKCEVerifier)
}

func TestVerifyExpired(t *testing.T) {
	issuer := NewIssuer(testKey, time.Millisecond)

	token, _, err := issuer.Issue("", "")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = issuer.Verify(token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestVerifyTampered(t *testing.T) {
	issuer := NewIssuer(testKey, 5*time.Minute)

	token, _, err := issuer.Issue("realm-42", "")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 2)

	sig := []byte(parts[1])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}

	_, err = issuer.Verify(parts[0] + "." + string(sig))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestVerifyWrongKey(t *testing.T) {
	issuer := NewIssuer(testKey, 5*time.Minute)
	other := NewIssuer([]byte("different-signing-key-32-bytes!!"), 5*time.Minute)

	token, _, err := issuer.Issue("", "")
	require.NoError(t, err)

	_, err = other.Verify(token)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestVerifyGarbage(t *testing.T) {
	issuer := NewIssuer(testKey, 5*time.Minute)

	for _, token := range []string{"", "garbage", "a.b", "a.b.c"} {
		_, err := issuer.Verify(token)
		assert.True(t, errors.Is(err, ErrInvalid), "token %q should be invalid", token)
	}
}

func TestNoncesAreUnique(t *testing.T) {
	issuer := NewIssuer(testKey, 5*time.Minute)

	_, first, err := issuer.Issue("", "")
	require.NoError(t, err)
	_, second, err := issuer.Issue("", "")
	require.NoError(t, err)

	assert.NotEqual(t, first.Nonce, second.Nonce)
}
