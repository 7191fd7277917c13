package oauthserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mcpgw/authgw/internal/auth"
	"github.com/mcpgw/authgw/internal/auth/token"
	"github.com/mcpgw/authgw/internal/gwerrors"
)

type internalTokenRequest struct {
	ExpiresIn int64  `json:"expires_in,omitempty"` // seconds; defaults to the configured default lifetime
	Audience  string `json:"audience,omitempty"`
}

type internalTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// HandleInternalTokens implements POST /internal/tokens (spec §8 boundary
// behaviors: "expires_in must fall in (0, MAX_TOKEN_LIFETIME_HOURS]"). The
// caller must already be authenticated; internal/httpapi mounts this behind
// the access-enforcement middleware so an Identity is always present here.
func (s *Server) HandleInternalTokens(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeOAuthError(w, http.StatusUnauthorized, gwerrors.NewUnauthorizedError("authentication required", nil))
		return
	}
	if !s.rateLimiter.Allow(ident.Username) {
		writeOAuthError(w, http.StatusTooManyRequests, gwerrors.NewRateLimitedError("token mint rate limit exceeded", nil))
		return
	}

	var req internalTokenRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidRequestError("malformed request body", err))
			return
		}
	}

	lifetime := s.cfg.DefaultTokenLifetime
	if req.ExpiresIn != 0 {
		lifetime = time.Duration(req.ExpiresIn) * time.Second
	}
	if lifetime <= 0 || lifetime > s.cfg.MaxTokenLifetime {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidRequestError("expires_in must fall within (0, MAX_TOKEN_LIFETIME_HOURS]", nil))
		return
	}

	uc := &auth.UserContext{
		Username: ident.Username,
		Email:    ident.Email,
		Name:     ident.Name,
		Groups:   ident.Groups,
		Scopes:   ident.Scopes,
	}
	access, err := s.tokens.Mint(token.MintParams{
		UserContext: uc,
		ClientID:    ident.ClientID,
		Audience:    req.Audience,
		Lifetime:    lifetime,
	})
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, gwerrors.NewInternalError("minting token", err))
		return
	}

	writeJSON(w, http.StatusOK, internalTokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(lifetime.Seconds()),
	})
}
