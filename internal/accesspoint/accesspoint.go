// Package accesspoint implements the Access Enforcement Point (spec §4.5,
// C5): the /validate endpoint an upstream reverse proxy invokes as an
// auth_request subrequest for every inbound MCP call. It combines the
// self-signed token service (C2), the IdP adapters (C1) and the scope
// engine (C4) into a single allow/deny decision, mirrored into both a JSON
// body and response headers so the proxy can forward identity without
// re-parsing anything.
package accesspoint

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/mcpgw/authgw/internal/auth"
	"github.com/mcpgw/authgw/internal/auth/idp"
	"github.com/mcpgw/authgw/internal/auth/token"
	"github.com/mcpgw/authgw/internal/config"
	"github.com/mcpgw/authgw/internal/gwerrors"
	"github.com/mcpgw/authgw/internal/gwlog"
	"github.com/mcpgw/authgw/internal/scope"
)

// defaultMethod is used when the upstream proxy can't parse a method off the
// forwarded URL (spec §4.5 step 3: "Default method is `initialize`").
const defaultMethod = "initialize"

// Handler serves GET /validate.
type Handler struct {
	cfg    *config.Config
	tokens *token.Service
	idps   *idp.Registry
	scopes *scope.Policy
}

// NewHandler wires the Access Enforcement Point's collaborators.
func NewHandler(cfg *config.Config, tokens *token.Service, idps *idp.Registry, scopes *scope.Policy) *Handler {
	return &Handler{cfg: cfg, tokens: tokens, idps: idps, scopes: scopes}
}

// decision is both the JSON response body and the source for the mirrored
// X-* response headers (spec §4.5 step 4).
type decision struct {
	Valid      bool     `json:"valid"`
	Username   string   `json:"username"`
	ClientID   string   `json:"client_id,omitempty"`
	Scopes     []string `json:"scopes"`
	Method     string   `json:"method,omitempty"`
	Groups     []string `json:"groups"`
	ServerName string   `json:"server_name,omitempty"`
	ToolName   string   `json:"tool_name,omitempty"`
}

// ServeHTTP implements the decision pipeline of spec §4.5.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	uc, clientID, err := h.authenticate(r)
	if err != nil {
		h.denyUnauthorized(w, err)
		return
	}

	serverName, method, toolName := parseRequest(r)
	if method == "" {
		method = defaultMethod
	}

	if serverName != "" {
		if len(uc.Scopes) == 0 {
			// spec §4.5 step 3 / invariant 4: empty scope set with a server
			// present is always a deny, before any rule lookup.
			h.denyForbidden(w, "no scopes granted")
			return
		}
		if !h.scopes.Allow(uc.Scopes, serverName, method, toolName) {
			h.denyForbidden(w, "scope policy denied "+method+" on "+serverName)
			return
		}
	}

	d := decision{
		Valid:      true,
		Username:   uc.Username,
		ClientID:   clientID,
		Scopes:     uc.Scopes,
		Method:     method,
		Groups:     uc.Groups,
		ServerName: serverName,
		ToolName:   toolName,
	}
	writeDecision(w, http.StatusOK, d)
}

// Authenticate exposes the same credential-resolution pipeline ServeHTTP
// uses, for other transports (e.g. internal/httpapi's bearer-auth
// middleware) that need a resolved identity without re-deriving the
// precedence rules.
func (h *Handler) Authenticate(r *http.Request) (*auth.UserContext, string, error) {
	return h.authenticate(r)
}

// authenticate implements spec §4.5's priority order: a signed session
// cookie first, then X-Authorization (preferred over Authorization to
// survive proxies that rewrite auth headers), then Authorization.
func (h *Handler) authenticate(r *http.Request) (*auth.UserContext, string, error) {
	if cookie, err := r.Cookie("session"); err == nil && cookie.Value != "" {
		uc, claims, err := h.tokens.Verify(cookie.Value)
		if err != nil {
			return nil, "", err
		}
		return uc, claims.ClientID, nil
	}

	rawToken := bearerToken(r.Header.Get("X-Authorization"))
	if rawToken == "" {
		rawToken = bearerToken(r.Header.Get("Authorization"))
	}
	if rawToken == "" {
		return nil, "", gwerrors.NewUnauthorizedError("no credential presented", nil)
	}

	if token.IsSelfIssued(rawToken, h.tokens.SelfIssuedKID()) {
		uc, claims, err := h.tokens.Verify(rawToken)
		if err != nil {
			return nil, "", err
		}
		return uc, claims.ClientID, nil
	}

	adapter, ok := h.idps.Get(h.cfg.AuthProvider)
	if !ok {
		return nil, "", gwerrors.NewUnauthorizedError("no identity provider configured for token validation", nil)
	}
	claims, err := adapter.ValidateIdPToken(r.Context(), rawToken)
	if err != nil {
		return nil, "", gwerrors.NewUnauthorizedError("idp token validation failed", err)
	}
	uc := idp.MapUserContext(claims, adapter.Mapping())
	// IdP-derived groups are authoritative and override any scope claim
	// carried on the token itself (spec §4.5 step 2).
	uc.Scopes = h.scopes.GroupsToScopes(uc.Groups)
	return uc, "", nil
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}

// parseRequest recovers the server name and JSON-RPC method/tool from the
// headers the upstream proxy sets: X-Original-URL carries the forwarded
// path, X-Body carries the raw MCP frame (spec §4.5).
func parseRequest(r *http.Request) (serverName, method, toolName string) {
	originalURL := r.Header.Get("X-Original-URL")
	serverName, method = parseOriginalURL(originalURL)

	if method == "tools/call" {
		body := r.Header.Get("X-Body")
		if body != "" {
			toolName = gjson.Get(body, "params.name").String()
		}
	}
	return serverName, method, toolName
}

// parseOriginalURL extracts the server path (the first path segment) and,
// when present, a method encoded later in the path (e.g. proxies that
// rewrite "/server/tools/call" style routes). Absent any recognizable
// method segment, the caller falls back to defaultMethod.
func parseOriginalURL(raw string) (serverName, method string) {
	if raw == "" {
		return "", ""
	}
	path := raw
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}
	path = strings.TrimPrefix(path, "/")
	segments := strings.Split(path, "/")
	if len(segments) == 0 || segments[0] == "" {
		return "", ""
	}
	serverName = "/" + segments[0]

	rest := segments[1:]
	for i := 0; i < len(rest); i++ {
		if rest[i] == "tools" && i+1 < len(rest) && rest[i+1] == "call" {
			return serverName, "tools/call"
		}
		if rest[i] == "tools" && i+1 < len(rest) && rest[i+1] == "list" {
			return serverName, "tools/list"
		}
	}
	return serverName, ""
}

func (h *Handler) denyUnauthorized(w http.ResponseWriter, cause error) {
	gwlog.Warnw("validate: authentication failed", "error", cause)
	w.Header().Set("WWW-Authenticate", auth.BuildWWWAuthenticate(h.cfg.Issuer(), "invalid_token", "", ""))
	w.Header().Set("Connection", "close")
	writeDecision(w, http.StatusUnauthorized, decision{Valid: false})
}

func (h *Handler) denyForbidden(w http.ResponseWriter, reason string) {
	gwlog.Warnw("validate: authorization denied", "reason", reason)
	writeDecision(w, http.StatusForbidden, decision{Valid: false})
}

func writeDecision(w http.ResponseWriter, status int, d decision) {
	w.Header().Set("X-User", d.Username)
	w.Header().Set("X-Username", d.Username)
	w.Header().Set("X-Scopes", strings.Join(d.Scopes, ","))
	w.Header().Set("X-Groups", strings.Join(d.Groups, ","))
	authMethod := "token"
	if d.ClientID == "" && d.Valid {
		authMethod = "idp"
	}
	w.Header().Set("X-Auth-Method", authMethod)
	if d.ServerName != "" {
		w.Header().Set("X-Server-Name", d.ServerName)
	}
	if d.ToolName != "" {
		w.Header().Set("X-Tool-Name", d.ToolName)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(d)
}
