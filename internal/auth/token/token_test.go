package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpgw/authgw/internal/auth"
)

func newTestService() *Service {
	return NewService([]byte("test-secret-at-least-16-bytes!!"), "mcpgw-self-signed", "https://gw.example.com", "mcpgw-api")
}

func TestMintAndVerify_RoundTrip(t *testing.T) {
	svc := newTestService()
	uc := &auth.UserContext{
		Username: "alice",
		UserID:   "u-1",
		Scopes:   []string{"weather-read", "maps-read"},
		Groups:   []string{"dev"},
	}

	signed, err := svc.Mint(MintParams{UserContext: uc, ClientID: "client-1", Lifetime: time.Hour})
	require.NoError(t, err)
	assert.NotEmpty(t, signed)

	recovered, claims, err := svc.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "alice", recovered.Username)
	assert.ElementsMatch(t, []string{"weather-read", "maps-read"}, recovered.Scopes)
	assert.Equal(t, "client-1", claims.ClientID)
	assert.Equal(t, "mcpgw-api", claims.Audience)
	assert.NotEmpty(t, claims.JTI)
}

func TestMint_RejectsNonPositiveLifetime(t *testing.T) {
	svc := newTestService()
	_, err := svc.Mint(MintParams{UserContext: &auth.UserContext{Username: "alice"}, Lifetime: 0})
	assert.Error(t, err)
}

func TestMint_AudienceOverride(t *testing.T) {
	svc := newTestService()
	signed, err := svc.Mint(MintParams{
		UserContext: &auth.UserContext{Username: "bob"},
		Lifetime:    time.Minute,
		Audience:    "https://weather.example.com/mcp",
	})
	require.NoError(t, err)

	_, claims, err := svc.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "https://weather.example.com/mcp", claims.Audience)
}

func TestIsSelfIssued(t *testing.T) {
	svc := newTestService()
	signed, err := svc.Mint(MintParams{UserContext: &auth.UserContext{Username: "alice"}, Lifetime: time.Hour})
	require.NoError(t, err)

	assert.True(t, IsSelfIssued(signed, "mcpgw-self-signed"))
	assert.False(t, IsSelfIssued(signed, "some-other-kid"))
	assert.False(t, IsSelfIssued("not-a-jwt", "mcpgw-self-signed"))
}

func TestVerify_RejectsWrongSecret(t *testing.T) {
	svc := newTestService()
	signed, err := svc.Mint(MintParams{UserContext: &auth.UserContext{Username: "alice"}, Lifetime: time.Hour})
	require.NoError(t, err)

	other := NewService([]byte("a-completely-different-secret!!"), "mcpgw-self-signed", "https://gw.example.com", "mcpgw-api")
	_, _, err = other.Verify(signed)
	assert.Error(t, err)
}

func TestVerify_RejectsExpiredToken(t *testing.T) {
	svc := newTestService()
	// Expired by more than clockSkewLeeway, so the leeway cannot rescue it.
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "https://gw.example.com",
		"aud": "mcpgw-api",
		"sub": "alice",
		"iat": now.Add(-2 * time.Hour).Unix(),
		"exp": now.Add(-clockSkewLeeway - time.Minute).Unix(),
	})
	tok.Header["kid"] = svc.SelfIssuedKID()
	signed, err := tok.SignedString(svc.secret)
	require.NoError(t, err)

	_, _, err = svc.Verify(signed)
	assert.Error(t, err)
}

func TestVerify_RejectsWrongIssuer(t *testing.T) {
	mint := NewService([]byte("test-secret-at-least-16-bytes!!"), "mcpgw-self-signed", "https://issuer-a.example.com", "mcpgw-api")
	verify := NewService([]byte("test-secret-at-least-16-bytes!!"), "mcpgw-self-signed", "https://issuer-b.example.com", "mcpgw-api")

	signed, err := mint.Mint(MintParams{UserContext: &auth.UserContext{Username: "alice"}, Lifetime: time.Hour})
	require.NoError(t, err)

	_, _, err = verify.Verify(signed)
	assert.Error(t, err)
}
