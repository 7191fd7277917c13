// Package oauthserver implements the OAuth Flow Engine (spec §4.3): dynamic
// client registration, Authorization Code + PKCE, the Device Authorization
// Grant, and the token endpoint that dispatches across both grants plus
// refresh. Handlers are plain net/http, mounted by internal/httpapi.
package oauthserver

import (
	"context"
	"time"

	"github.com/mcpgw/authgw/internal/auth/idp"
	"github.com/mcpgw/authgw/internal/auth/token"
	"github.com/mcpgw/authgw/internal/config"
	"github.com/mcpgw/authgw/internal/oauthserver/ratelimit"
	"github.com/mcpgw/authgw/internal/oauthserver/storage"
	"github.com/mcpgw/authgw/internal/scope"
)

// UserStore resolves a mapped user context's user_id from an external user
// store (spec §3.6: "may be null"). A nil UserStore is valid; every lookup
// then resolves to an empty user_id.
type UserStore interface {
	ResolveUserID(ctx context.Context, idpID, username string) (string, error)
}

// Server holds every collaborator the OAuth Flow Engine dispatches to.
type Server struct {
	cfg         *config.Config
	idps        *idp.Registry
	tokens      *token.Service
	scopes      *scope.Policy
	flows       *storage.FlowTables
	rateLimiter *ratelimit.Limiter
	users       UserStore
}

// NewServer wires the OAuth Flow Engine's collaborators.
func NewServer(
	cfg *config.Config,
	idps *idp.Registry,
	tokens *token.Service,
	scopes *scope.Policy,
	flows *storage.FlowTables,
	users UserStore,
) *Server {
	return &Server{
		cfg:         cfg,
		idps:        idps,
		tokens:      tokens,
		scopes:      scopes,
		flows:       flows,
		rateLimiter: ratelimit.New(cfg.MaxTokensPerUserHour),
		users:       users,
	}
}

func (s *Server) resolveUserID(ctx context.Context, idpID, username string) string {
	if s.users == nil {
		return ""
	}
	id, err := s.users.ResolveUserID(ctx, idpID, username)
	if err != nil {
		return ""
	}
	return id
}

func (s *Server) issuerOrigin() string {
	return s.cfg.AuthServerExternalURL
}

// defaultAccessTokenLifetime is the lifetime for IdP-mediated tokens (spec §3.7).
const defaultAccessTokenLifetime = time.Hour
