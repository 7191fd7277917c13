package oauthserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mcpgw/authgw/internal/auth"
	"github.com/mcpgw/authgw/internal/auth/token"
	"github.com/mcpgw/authgw/internal/gwerrors"
	"github.com/mcpgw/authgw/internal/oauthserver/storage"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// refreshTokenLifetime is the fixed lifetime of every refresh token: 14 days.
const refreshTokenLifetime = 14 * 24 * time.Hour

// issueTokenPair mints a self-signed access token and a refresh token for a
// resolved user context, the common tail of the authorization_code and
// device_code grants (spec §4.3.3).
func (s *Server) issueTokenPair(w http.ResponseWriter, r *http.Request, clientID string, uc *auth.UserContext, resource string) {
	access, err := s.tokens.Mint(token.MintParams{
		UserContext: uc,
		ClientID:    clientID,
		Audience:    resource,
		Lifetime:    defaultAccessTokenLifetime,
	})
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, gwerrors.NewInternalError("minting access token", err))
		return
	}

	refreshToken, err := randomURLSafe(32)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, gwerrors.NewInternalError("generating refresh token", err))
		return
	}
	rec := &storage.RefreshToken{
		ClientID:    clientID,
		UserContext: *uc,
		Scope:       joinScopesLocal(uc.Scopes),
		ExpiresAt:   time.Now().Add(refreshTokenLifetime),
	}
	if err := s.flows.PutRefreshToken(r.Context(), refreshToken, rec); err != nil {
		writeOAuthError(w, http.StatusInternalServerError, gwerrors.NewInternalError("storing refresh token", err))
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    int64(defaultAccessTokenLifetime.Seconds()),
		RefreshToken: refreshToken,
		Scope:        rec.Scope,
	})
}

func joinScopesLocal(scopes []string) string {
	out := ""
	for i, sc := range scopes {
		if i > 0 {
			out += " "
		}
		out += sc
	}
	return out
}

func splitScopesLocal(scope string) []string {
	if scope == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(scope); i++ {
		if i == len(scope) || scope[i] == ' ' {
			if i > start {
				out = append(out, scope[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// grantedScopes resolves the scope a device code's eventual token actually
// carries (spec §4.3.3 "scoped per stored scope/resource"): the requested
// scope from POST /oauth2/device/code, intersected with what the approving
// user may grant, so a device flow can never mint a token broader than
// either side allows. An empty requested scope means the client asked for
// no restriction, so the approver's full scope set passes through.
func grantedScopes(approverScopes []string, requestedScope string) []string {
	requested := splitScopesLocal(requestedScope)
	if len(requested) == 0 {
		return approverScopes
	}
	allowed := make(map[string]struct{}, len(approverScopes))
	for _, sc := range approverScopes {
		allowed[sc] = struct{}{}
	}
	granted := make([]string, 0, len(requested))
	for _, sc := range requested {
		if _, ok := allowed[sc]; ok {
			granted = append(granted, sc)
		}
	}
	return granted
}

// decodeDeviceUserContext recovers the mapped user context device.go stashed
// in the DeviceCode record's Token field at approval time (repurposed since
// that field has no other use before a device code is redeemed).
func decodeDeviceUserContext(encoded string) (*auth.UserContext, error) {
	var uc auth.UserContext
	if err := json.Unmarshal([]byte(encoded), &uc); err != nil {
		return nil, err
	}
	return &uc, nil
}

func encodeDeviceUserContext(uc *auth.UserContext) (string, error) {
	b, err := json.Marshal(uc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
