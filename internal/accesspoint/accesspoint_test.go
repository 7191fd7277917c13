package accesspoint

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpgw/authgw/internal/auth"
	"github.com/mcpgw/authgw/internal/auth/token"
	"github.com/mcpgw/authgw/internal/config"
	"github.com/mcpgw/authgw/internal/scope"
)

func testPolicy(t *testing.T, body string) *scope.Policy {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scopes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	p, err := scope.Load(path)
	require.NoError(t, err)
	return p
}

func testHandler(t *testing.T, policy *scope.Policy) (*Handler, *token.Service) {
	t.Helper()
	tokens := token.NewService([]byte("test-secret-at-least-16-bytes!!"), "mcpgw-self-signed", "https://gw.example.com", "mcpgw-api")
	cfg := &config.Config{AuthServerExternalURL: "https://gw.example.com", AuthServerAPIPrefix: "/api"}
	return NewHandler(cfg, tokens, nil, policy), tokens
}

func mintSelfSigned(t *testing.T, tokens *token.Service, username string, scopes []string) string {
	t.Helper()
	signed, err := tokens.Mint(token.MintParams{
		UserContext: &auth.UserContext{Username: username, Scopes: scopes},
		ClientID:    "client-1",
		Lifetime:    time.Hour,
	})
	require.NoError(t, err)
	return signed
}

func TestServeHTTP_NoCredentialDeniesUnauthorized(t *testing.T) {
	policy := testPolicy(t, "weather-read:\n  - server: \"/weather\"\n    methods: [\"all\"]\n    tools: [\"all\"]\n")
	h, _ := testHandler(t, policy)

	req := httptest.NewRequest(http.MethodGet, "/validate", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
}

func TestServeHTTP_AllowsInScopeServer(t *testing.T) {
	policy := testPolicy(t, "weather-read:\n  - server: \"/weather\"\n    methods: [\"all\"]\n    tools: [\"all\"]\n")
	h, tokens := testHandler(t, policy)
	signed := mintSelfSigned(t, tokens, "alice", []string{"weather-read"})

	req := httptest.NewRequest(http.MethodGet, "/validate", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	req.Header.Set("X-Original-URL", "/weather/tools/call")
	req.Header.Set("X-Body", `{"params":{"name":"get_forecast"}}`)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Header().Get("X-Username"))
	assert.Equal(t, "get_forecast", rec.Header().Get("X-Tool-Name"))

	var d decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.True(t, d.Valid)
}

func TestServeHTTP_DeniesOutOfScopeServer(t *testing.T) {
	policy := testPolicy(t, "weather-read:\n  - server: \"/weather\"\n    methods: [\"all\"]\n    tools: [\"all\"]\n")
	h, tokens := testHandler(t, policy)
	signed := mintSelfSigned(t, tokens, "alice", []string{"weather-read"})

	req := httptest.NewRequest(http.MethodGet, "/validate", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	req.Header.Set("X-Original-URL", "/admin/tools/call")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServeHTTP_EmptyScopesWithServerAlwaysDenies(t *testing.T) {
	policy := testPolicy(t, "weather-read:\n  - server: \"/weather\"\n    methods: [\"all\"]\n    tools: [\"all\"]\n")
	h, tokens := testHandler(t, policy)
	signed := mintSelfSigned(t, tokens, "alice", nil)

	req := httptest.NewRequest(http.MethodGet, "/validate", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	req.Header.Set("X-Original-URL", "/weather/tools/call")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServeHTTP_XAuthorizationTakesPrecedenceOverAuthorization(t *testing.T) {
	policy := testPolicy(t, "weather-read:\n  - server: \"/weather\"\n    methods: [\"all\"]\n    tools: [\"all\"]\n")
	h, tokens := testHandler(t, policy)
	good := mintSelfSigned(t, tokens, "alice", []string{"weather-read"})

	req := httptest.NewRequest(http.MethodGet, "/validate", nil)
	req.Header.Set("X-Authorization", "Bearer "+good)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	req.Header.Set("X-Original-URL", "/weather")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServeHTTP_NoServerInPathDefaultsToInitialize(t *testing.T) {
	policy := testPolicy(t, "weather-read:\n  - server: \"/weather\"\n    methods: [\"all\"]\n    tools: [\"all\"]\n")
	h, tokens := testHandler(t, policy)
	signed := mintSelfSigned(t, tokens, "alice", []string{"weather-read"})

	req := httptest.NewRequest(http.MethodGet, "/validate", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var d decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, defaultMethod, d.Method)
}

func TestAuthenticate_RejectsInvalidToken(t *testing.T) {
	policy := testPolicy(t, "weather-read:\n  - server: \"*\"\n    methods: [\"all\"]\n    tools: [\"all\"]\n")
	h, _ := testHandler(t, policy)

	req := httptest.NewRequest(http.MethodGet, "/validate", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	_, _, err := h.Authenticate(req)
	assert.Error(t, err)
}
