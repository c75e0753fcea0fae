// ABOUTME: Tests for API token generation and verification
// ABOUTME: Covers signing-method enforcement and expiry

package authn

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_RoundTrip(t *testing.T) {
	verifier := NewTokenVerifier([]byte("test-secret"))

	token, err := verifier.Generate("user-1", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := verifier.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestToken_Expired(t *testing.T) {
	verifier := NewTokenVerifier([]byte("test-secret"))

	token, err := verifier.Generate("user-1", -time.Hour)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestToken_WrongSecret(t *testing.T) {
	verifier := NewTokenVerifier([]byte("test-secret"))
	other := NewTokenVerifier([]byte("other-secret"))

	token, err := other.Generate("user-1", time.Hour)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestToken_Garbage(t *testing.T) {
	verifier := NewTokenVerifier([]byte("test-secret"))

	_, err := verifier.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestToken_RejectsUnsignedAlgorithm(t *testing.T) {
	verifier := NewTokenVerifier([]byte("test-secret"))

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	tokenString, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = verifier.Verify(tokenString)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestToken_MissingSubject(t *testing.T) {
	verifier := NewTokenVerifier([]byte("test-secret"))

	noSub := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	tokenString, err := noSub.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = verifier.Verify(tokenString)
	assert.ErrorIs(t, err, ErrMissingClaim)
}
