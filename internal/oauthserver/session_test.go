package oauthserver

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerifySessionRoundTrip(t *testing.T) {
	secret := []byte("0123456789abcdef")
	p := sessionPayload{
		InternalState:       "nonce123",
		ClientState:         "client-state",
		Provider:            "keycloak",
		ClientRedirectURI:   "https://client.example/cb",
		CodeChallenge:       "abc",
		CodeChallengeMethod: "S256",
		IssuedAt:            time.Now().Unix(),
	}

	cookieValue, err := signSession(secret, p)
	require.NoError(t, err)

	got, err := verifySession(secret, cookieValue, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, p.InternalState, got.InternalState)
	assert.Equal(t, p.Provider, got.Provider)
}

func TestVerifySessionRejectsTamperedSignature(t *testing.T) {
	secret := []byte("0123456789abcdef")
	p := sessionPayload{InternalState: "n", Provider: "keycloak", IssuedAt: time.Now().Unix()}
	cookieValue, err := signSession(secret, p)
	require.NoError(t, err)

	// The last signature character carries four data bits and two zero
	// padding bits; swap it for one whose data bits differ, so the decoded
	// signature always changes.
	repl := "A"
	if cookieValue[len(cookieValue)-1] == 'A' {
		repl = "Q"
	}
	tampered := cookieValue[:len(cookieValue)-1] + repl
	_, err = verifySession(secret, tampered, 10*time.Minute)
	assert.Error(t, err)
}

func TestVerifySessionRejectsExpired(t *testing.T) {
	secret := []byte("0123456789abcdef")
	p := sessionPayload{
		InternalState: "n",
		Provider:      "keycloak",
		IssuedAt:      time.Now().Add(-time.Hour).Unix(),
	}
	cookieValue, err := signSession(secret, p)
	require.NoError(t, err)

	_, err = verifySession(secret, cookieValue, 10*time.Minute)
	assert.Error(t, err)
}

func TestVerifyPKCE(t *testing.T) {
	verifier := "a-valid-code-verifier-string-at-least-43-chars-long"
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	assert.True(t, verifyPKCE(verifier, challenge, "S256"))
	assert.False(t, verifyPKCE("wrong-verifier", challenge, "S256"))
	assert.False(t, verifyPKCE(verifier, challenge, "plain"))
}

func TestGenerateUserCodeFormat(t *testing.T) {
	code, err := generateUserCode()
	require.NoError(t, err)
	assert.Len(t, code, 9)
	assert.Equal(t, byte('-'), code[4])
}
