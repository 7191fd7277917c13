// Package idp implements the Identity Provider Adapters (spec §4.1): a small,
// uniform capability set that the OAuth Flow Engine and the Access
// Enforcement Point dispatch to without ever introspecting by concrete type
// (spec §9 "Dynamic dispatch to IdP adapters").
package idp

import (
	"context"
	"time"

	"github.com/mcpgw/authgw/internal/auth"
)

// TokenBundle is what exchange_code/refresh/get_m2m_token return: the raw
// tokens plus whatever claims were available without a second round trip.
type TokenBundle struct {
	AccessToken  string
	IDToken      string // empty for client-credentials bundles
	RefreshToken string
	ExpiresIn    time.Duration
	Claims       map[string]any // ID-token claims, when present
}

// ClaimMapping declares which claim carries each mapped-user-context field,
// since the claim names vary per IdP (spec §4.1).
type ClaimMapping struct {
	UsernameClaim string
	EmailClaim    string
	NameClaim     string
	GroupsClaim   string
}

// ProviderInfo is returned by list_provider_info for the /oauth2/providers
// endpoint.
type ProviderInfo struct {
	Name        string
	DisplayName string
	Enabled     bool
}

// Adapter is the uniform capability set every IdP adapter implements (spec
// §4.1). Network failures on exchange/refresh must be distinguishable from
// an IdP-reported invalid_grant — implementations return the former as a
// plain wrapped error and the latter as *gwerrors.Error{Type: ErrInvalidGrant}.
type Adapter interface {
	// AuthCodeURL builds the IdP authorization endpoint URL the user agent
	// is redirected to at the start of a login (spec §4.3.2).
	AuthCodeURL(state, redirectURI string) string
	ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenBundle, error)
	FetchUserinfo(ctx context.Context, accessToken string) (map[string]any, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenBundle, error)
	ValidateIdPToken(ctx context.Context, rawToken string) (map[string]any, error)
	GetM2MToken(ctx context.Context, scope string) (*TokenBundle, error)
	Info() ProviderInfo
	Mapping() ClaimMapping
}

// MapUserContext turns raw claims (from an ID token or userinfo) into the
// provider-agnostic mapped user context (spec §3.6). Groups are intentionally
// left for authorization-time extraction too, but filled in here because C1
// adapters own the claim-mapping configuration.
func MapUserContext(claims map[string]any, mapping ClaimMapping) *auth.UserContext {
	uc := &auth.UserContext{
		Username: stringClaim(claims, orDefault(mapping.UsernameClaim, "preferred_username")),
		Email:    stringClaim(claims, orDefault(mapping.EmailClaim, "email")),
		Name:     stringClaim(claims, orDefault(mapping.NameClaim, "name")),
	}
	if uc.Username == "" {
		uc.Username = stringClaim(claims, "sub")
	}
	uc.IdPID = stringClaim(claims, "sub")
	uc.Groups = stringSliceClaim(claims, orDefault(mapping.GroupsClaim, "groups"))
	return uc
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func stringClaim(claims map[string]any, key string) string {
	v, _ := claims[key].(string)
	return v
}

func stringSliceClaim(claims map[string]any, key string) []string {
	switch v := claims[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
