// Package wellknown implements the Well-Known & Metadata component (spec
// §4.9, C9): RFC 8414 authorization-server metadata, OIDC discovery, an
// empty JWKS (the issuer signs symmetrically), and the root `/authorize`
// shim that 307-redirects clients building the authorize URL from the bare
// issuer origin rather than the prefixed login path.
package wellknown

import (
	"encoding/json"
	"net/http"

	"github.com/mcpgw/authgw/internal/config"
)

// Handler serves the gateway's discovery documents.
type Handler struct {
	cfg *config.Config
}

// NewHandler builds the well-known metadata handler from the resolved config.
func NewHandler(cfg *config.Config) *Handler {
	return &Handler{cfg: cfg}
}

// authServerMetadata is the RFC 8414 document shape, trimmed to the fields
// this gateway actually supports.
type authServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	DeviceAuthorizationEndpoint       string   `json:"device_authorization_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
}

func (h *Handler) metadata() authServerMetadata {
	prefix := h.cfg.AuthServerAPIPrefix
	base := h.cfg.AuthServerExternalURL
	return authServerMetadata{
		Issuer:                      h.cfg.Issuer(),
		AuthorizationEndpoint:       base + prefix + "/oauth2/login/" + string(h.cfg.AuthProvider),
		TokenEndpoint:               base + prefix + "/oauth2/token",
		DeviceAuthorizationEndpoint: base + prefix + "/oauth2/device/code",
		RegistrationEndpoint:        base + prefix + "/oauth2/register",
		JWKSURI:                     base + prefix + "/.well-known/jwks.json",
		ResponseTypesSupported:      []string{"code"},
		GrantTypesSupported: []string{
			"authorization_code",
			"refresh_token",
			"urn:ietf:params:oauth:grant-type:device_code",
		},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_post", "none"},
		CodeChallengeMethodsSupported:     []string{"S256"},
	}
}

// HandleAuthServerMetadata implements GET /.well-known/oauth-authorization-server.
func (h *Handler) HandleAuthServerMetadata(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.metadata())
}

// oidcMetadata layers the OIDC-specific fields on top of the shared
// authorization-server metadata document.
type oidcMetadata struct {
	authServerMetadata
	UserinfoEndpoint          string   `json:"userinfo_endpoint,omitempty"`
	SubjectTypesSupported     []string `json:"subject_types_supported"`
	IDTokenSigningAlgValues   []string `json:"id_token_signing_alg_values_supported"`
}

// HandleOIDCConfiguration implements GET /.well-known/openid-configuration.
func (h *Handler) HandleOIDCConfiguration(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, oidcMetadata{
		authServerMetadata:     h.metadata(),
		SubjectTypesSupported:  []string{"public"},
		IDTokenSigningAlgValues: []string{"HS256"},
	})
}

// jwks is always an empty key set: the gateway's own issuer signs
// symmetrically and must never expose the HMAC secret (spec §4.2, §4.9).
type jwks struct {
	Keys []json.RawMessage `json:"keys"`
}

// HandleJWKS implements GET /.well-known/jwks.json.
func (h *Handler) HandleJWKS(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, jwks{Keys: []json.RawMessage{}})
}

// HandleRootAuthorize implements the root-level GET /authorize shim (spec
// §4.9): a 307 redirect to the prefixed `/oauth2/login/{provider}` endpoint
// with the query string preserved, for clients that build the authorize URL
// from the bare issuer origin.
func (h *Handler) HandleRootAuthorize(w http.ResponseWriter, r *http.Request) {
	provider := string(h.cfg.AuthProvider)
	target := h.cfg.AuthServerExternalURL + h.cfg.AuthServerAPIPrefix + "/oauth2/login/" + provider
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
