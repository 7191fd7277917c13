package httpapi

import (
	"net/http"
	"strings"

	"github.com/mcpgw/authgw/internal/accesspoint"
	"github.com/mcpgw/authgw/internal/auth"
	"github.com/mcpgw/authgw/internal/config"
	"github.com/mcpgw/authgw/internal/gwerrors"
)

// requireIdentity resolves the caller's identity with the same precedence
// rules as the Access Enforcement Point and stores it in the request
// context, for routes served directly by this process rather than proxied
// through /validate (spec §4.5's authenticate() step, reused here for
// POST /internal/tokens).
func requireIdentity(access *accesspoint.Handler, cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uc, clientID, err := access.Authenticate(r)
			if err != nil {
				gwErr, ok := err.(*gwerrors.Error)
				status := http.StatusUnauthorized
				if ok {
					status = gwErr.HTTPStatus()
				}
				w.Header().Set("WWW-Authenticate", auth.BuildWWWAuthenticate(cfg.Issuer(), "invalid_token", "", ""))
				writeError(w, status, err)
				return
			}
			ident := auth.FromUserContext(uc, clientID, true)
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), ident)))
		})
	}
}

// corsMiddleware mirrors the teacher's discovery-endpoint CORS handling
// (pkg/auth/middleware/handlers.go): allow every configured origin (or "*"
// when none are configured), short-circuit preflight OPTIONS requests.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			w.Header().Set("Access-Control-Allow-Origin", resolveOrigin(allowedOrigins, origin))
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, X-Authorization, Content-Type, mcp-protocol-version")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func resolveOrigin(allowed []string, requested string) string {
	if len(allowed) == 0 {
		return "*"
	}
	for _, o := range allowed {
		if o == "*" || strings.EqualFold(o, requested) {
			return requested
		}
	}
	return allowed[0]
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + err.Error() + `"}`))
}
