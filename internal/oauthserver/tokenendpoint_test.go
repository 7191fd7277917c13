package oauthserver

import (
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpgw/authgw/internal/auth"
	"github.com/mcpgw/authgw/internal/auth/token"
	"github.com/mcpgw/authgw/internal/config"
	"github.com/mcpgw/authgw/internal/oauthserver/storage"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		SecretKey:             []byte("test-secret-key-32-bytes-long!!"),
		JWTIssuer:             "https://gw.example",
		JWTAudience:           "mcpgw",
		JWTSelfSignedKID:      "mcpgw-self-signed",
		AuthServerExternalURL: "https://gw.example",
		AuthServerAPIPrefix:   "/api",
		DeviceCodeExpiry:      600 * time.Second,
		DeviceCodePollInterval: 5 * time.Second,
		OAuthSessionTTL:       600 * time.Second,
		MaxTokenLifetime:      24 * time.Hour,
		DefaultTokenLifetime:  8 * time.Hour,
		MaxTokensPerUserHour:  100,
	}
	tokens := token.NewService(cfg.SecretKey, cfg.JWTSelfSignedKID, cfg.JWTIssuer, cfg.JWTAudience)
	flows := storage.NewFlowTables(storage.NewMemoryStore())
	return NewServer(cfg, nil, tokens, nil, flows, nil)
}

// TestAuthorizationCodeGrant_HappyPath covers spec scenario S1.
func TestAuthorizationCodeGrant_HappyPath(t *testing.T) {
	s := testServer(t)

	verifier := "a-valid-code-verifier-string-at-least-43-chars-long"
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	client := &storage.RegisteredClient{ClientID: "mcp-client-1", RedirectURIs: []string{"https://client.example/cb"}}
	require.NoError(t, s.flows.PutClient(t.Context(), client))

	rec := &storage.AuthCode{
		RedirectURI:         "https://client.example/cb",
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
		UserContext:         auth.UserContext{Username: "alice", Scopes: []string{"weather-read"}},
		ExpiresAt:           time.Now().Add(time.Minute),
	}
	require.NoError(t, s.flows.PutAuthCode(t.Context(), "auth-code-1", rec))

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {"auth-code-1"},
		"client_id":     {client.ClientID},
		"redirect_uri":  {"https://client.example/cb"},
		"code_verifier": {verifier},
	}
	req := httptest.NewRequest(http.MethodPost, "/oauth2/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	s.HandleToken(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"access_token"`)
	assert.Contains(t, w.Body.String(), `"refresh_token"`)

	// single redemption: the same code cannot be redeemed twice.
	req2 := httptest.NewRequest(http.MethodPost, "/oauth2/token", strings.NewReader(form.Encode()))
	req2.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w2 := httptest.NewRecorder()
	s.HandleToken(w2, req2)
	assert.Equal(t, http.StatusBadRequest, w2.Code)
	assert.Contains(t, w2.Body.String(), "invalid_grant")
}

func TestAuthorizationCodeGrant_WrongPKCEVerifierRejected(t *testing.T) {
	s := testServer(t)

	sum := sha256.Sum256([]byte("correct-verifier-at-least-43-characters-long"))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	client := &storage.RegisteredClient{ClientID: "mcp-client-1", RedirectURIs: []string{"https://client.example/cb"}}
	require.NoError(t, s.flows.PutClient(t.Context(), client))
	rec := &storage.AuthCode{
		RedirectURI:         "https://client.example/cb",
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
		UserContext:         auth.UserContext{Username: "alice"},
		ExpiresAt:           time.Now().Add(time.Minute),
	}
	require.NoError(t, s.flows.PutAuthCode(t.Context(), "auth-code-2", rec))

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {"auth-code-2"},
		"client_id":     {client.ClientID},
		"redirect_uri":  {"https://client.example/cb"},
		"code_verifier": {"wrong-verifier"},
	}
	req := httptest.NewRequest(http.MethodPost, "/oauth2/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.HandleToken(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_grant")
}

func TestDeviceCodeGrant_PendingThenApproved(t *testing.T) {
	s := testServer(t)
	client := &storage.RegisteredClient{ClientID: "mcp-client-1"}
	require.NoError(t, s.flows.PutClient(t.Context(), client))

	rec := &storage.DeviceCode{
		DeviceCode: "device-1",
		UserCode:   "ABCD-EFGH",
		ClientID:   client.ClientID,
		Status:     storage.DeviceStatusPending,
		ExpiresAt:  time.Now().Add(time.Minute),
		CreatedAt:  time.Now(),
	}
	require.NoError(t, s.flows.PutDeviceCode(t.Context(), rec))

	form := url.Values{
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
		"device_code": {"device-1"},
		"client_id":   {client.ClientID},
	}
	req := httptest.NewRequest(http.MethodPost, "/oauth2/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.HandleToken(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "authorization_pending")

	encoded, err := encodeDeviceUserContext(&auth.UserContext{Username: "bob", Scopes: []string{"weather-read"}})
	require.NoError(t, err)
	rec.Status = storage.DeviceStatusApproved
	rec.Token = encoded
	require.NoError(t, s.flows.UpdateDeviceCode(t.Context(), rec))

	req2 := httptest.NewRequest(http.MethodPost, "/oauth2/token", strings.NewReader(form.Encode()))
	req2.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w2 := httptest.NewRecorder()
	s.HandleToken(w2, req2)
	assert.Equal(t, http.StatusOK, w2.Code)
	assert.Contains(t, w2.Body.String(), `"access_token"`)
}
