package wellknown

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpgw/authgw/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		AuthProvider:          config.ProviderKeycloak,
		AuthServerExternalURL: "https://gw.example.com",
		AuthServerAPIPrefix:   "/api",
	}
}

func TestHandleAuthServerMetadata(t *testing.T) {
	h := NewHandler(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/.well-known/oauth-authorization-server", nil)
	rec := httptest.NewRecorder()

	h.HandleAuthServerMetadata(rec, req)

	var body authServerMetadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "https://gw.example.com", body.Issuer)
	assert.Equal(t, "https://gw.example.com/api/oauth2/token", body.TokenEndpoint)
	assert.Equal(t, "https://gw.example.com/api/oauth2/login/keycloak", body.AuthorizationEndpoint)
	assert.Contains(t, body.GrantTypesSupported, "urn:ietf:params:oauth:grant-type:device_code")
	assert.Contains(t, body.CodeChallengeMethodsSupported, "S256")
}

func TestHandleOIDCConfiguration_LayersAuthServerMetadata(t *testing.T) {
	h := NewHandler(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/.well-known/openid-configuration", nil)
	rec := httptest.NewRecorder()

	h.HandleOIDCConfiguration(rec, req)

	var body oidcMetadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "https://gw.example.com", body.Issuer)
	assert.Equal(t, []string{"public"}, body.SubjectTypesSupported)
}

func TestHandleJWKS_EmptyKeySet(t *testing.T) {
	h := NewHandler(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil)
	rec := httptest.NewRecorder()

	h.HandleJWKS(rec, req)

	var body jwks
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Keys)
}

func TestHandleRootAuthorize_RedirectsPreservingQuery(t *testing.T) {
	h := NewHandler(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/authorize?client_id=abc&state=xyz", nil)
	rec := httptest.NewRecorder()

	h.HandleRootAuthorize(rec, req)

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	loc := rec.Header().Get("Location")
	assert.Equal(t, "https://gw.example.com/api/oauth2/login/keycloak?client_id=abc&state=xyz", loc)
}
