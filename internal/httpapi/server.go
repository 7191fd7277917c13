// Package httpapi mounts every HTTP-facing component (the OAuth Flow
// Engine, the Access Enforcement Point, Well-Known & Metadata, and the
// Query API) onto a single chi router, the way the teacher's authserver
// mounts its own handler set (spec §4, §9 "transport is a thin net/http
// layer over the components").
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mcpgw/authgw/internal/accesspoint"
	"github.com/mcpgw/authgw/internal/config"
	"github.com/mcpgw/authgw/internal/discovery/query"
	"github.com/mcpgw/authgw/internal/gwerrors"
	"github.com/mcpgw/authgw/internal/oauthserver"
	"github.com/mcpgw/authgw/internal/wellknown"
)

// Deps collects every collaborator the router needs. Query may be nil when
// the Discovery Index is not configured; the search routes then
// answer 503 rather than being unmounted (spec §4.8: "When the underlying
// index is unavailable, the API returns 503, not an empty set").
type Deps struct {
	Config     *config.Config
	OAuth      *oauthserver.Server
	Access     *accesspoint.Handler
	WellKnown  *wellknown.Handler
	Query      *query.API
}

// NewRouter builds the gateway's complete HTTP surface.
func NewRouter(d Deps) http.Handler {
	m := newMetrics()
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(d.Config.CORSOrigins))

	route := func(pattern, name string, method string, h http.HandlerFunc) {
		wrapped := m.instrument(name, h)
		switch method {
		case http.MethodGet:
			r.Get(pattern, wrapped)
		case http.MethodPost:
			r.Post(pattern, wrapped)
		}
	}

	// Root-level well-known & discovery surface (spec §4.9): never behind
	// AuthServerAPIPrefix, since RFC 8414/9728 clients resolve these from the
	// bare issuer origin.
	route("/.well-known/oauth-authorization-server", "wellknown.oauth", http.MethodGet, d.WellKnown.HandleAuthServerMetadata)
	route("/.well-known/openid-configuration", "wellknown.oidc", http.MethodGet, d.WellKnown.HandleOIDCConfiguration)
	route("/.well-known/jwks.json", "wellknown.jwks", http.MethodGet, d.WellKnown.HandleJWKS)
	route("/.well-known/oauth-protected-resource", "wellknown.resource", http.MethodGet, protectedResourceHandler(d.Config))
	route("/authorize", "wellknown.authorize", http.MethodGet, d.WellKnown.HandleRootAuthorize)

	r.Get("/metrics", m.handler().ServeHTTP)

	prefix := d.Config.AuthServerAPIPrefix
	r.Route(prefix, func(api chi.Router) {
		api.Get("/oauth2/providers", m.instrument("oauth.providers", d.OAuth.HandleProviders))
		api.Post("/oauth2/register", m.instrument("oauth.register", d.OAuth.HandleRegister))
		api.Get("/oauth2/login/{provider}", m.instrument("oauth.login", d.OAuth.HandleLogin))
		api.Get("/oauth2/callback/{provider}", m.instrument("oauth.callback", d.OAuth.HandleCallback))
		api.Post("/oauth2/token", m.instrument("oauth.token", d.OAuth.HandleToken))
		api.Post("/oauth2/device/code", m.instrument("oauth.device.code", d.OAuth.HandleDeviceAuthorize))
		api.Get("/oauth2/device/verify", m.instrument("oauth.device.verify", d.OAuth.HandleDeviceVerify))
		api.With(requireIdentity(d.Access, d.Config)).
			Post("/oauth2/device/approve", m.instrument("oauth.device.approve", d.OAuth.HandleDeviceApprove))
		api.Post("/oauth2/logout/{provider}", m.instrument("oauth.logout", d.OAuth.HandleLogout))

		api.With(requireIdentity(d.Access, d.Config)).
			Post("/internal/tokens", m.instrument("internal.tokens", d.OAuth.HandleInternalTokens))

		api.Get("/search/semantic", m.instrument("search.semantic", handleSearchSemantic(d.Query)))
		api.Get("/search/servers", m.instrument("search.servers", handleSearchServers(d.Query)))
		api.Get("/search/tools", m.instrument("search.tools", handleSearchTools(d.Query, d.Access)))
	})

	r.Get("/validate", m.instrument("validate", d.Access.ServeHTTP))

	return r
}

// protectedResourceHandler implements GET /.well-known/oauth-protected-resource
// (RFC 9728, spec §4.9): the resource-level metadata document
// WWW-Authenticate's resource_metadata parameter points at.
func protectedResourceHandler(cfg *config.Config) http.HandlerFunc {
	type resourceMetadata struct {
		Resource             string   `json:"resource"`
		AuthorizationServers []string `json:"authorization_servers"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resourceMetadata{
			Resource:             cfg.AuthServerExternalURL + r.URL.Path,
			AuthorizationServers: []string{cfg.Issuer()},
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if gwErr, ok := err.(*gwerrors.Error); ok {
		status = gwErr.HTTPStatus()
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// discoveryUnavailable reports whether the Discovery Index was never
// configured, the 503-not-empty-set case (spec §4.8, §9).
func discoveryUnavailable(q *query.API, w http.ResponseWriter) bool {
	if q != nil {
		return false
	}
	writeAPIError(w, gwerrors.NewUpstreamUnavailableError("discovery index is not configured", nil))
	return true
}
