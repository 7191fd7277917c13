package idp

import (
	"context"
	"fmt"
	"time"

	oidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/mcpgw/authgw/internal/gwerrors"
)

// CognitoConfig configures the Cognito adapter. URL is the user pool's issuer
// origin (https://cognito-idp.<region>.amazonaws.com/<user-pool-id>), which
// already identifies the user pool, so unlike KeycloakConfig there is no Realm.
type CognitoConfig struct {
	URL          string
	ClientID     string
	ClientSecret string
	Mapping      ClaimMapping
}

// cognitoAdapter implements Adapter against an AWS Cognito user pool. Cognito
// publishes the same OIDC discovery document shape as Keycloak, but its group
// claim defaults to "cognito:groups" rather than "groups" (spec §4.1).
type cognitoAdapter struct {
	cfg      CognitoConfig
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	oauth2   oauth2.Config
}

// NewCognito constructs the Cognito adapter via OIDC discovery against the
// user pool issuer.
func NewCognito(ctx context.Context, cfg CognitoConfig) (Adapter, error) {
	provider, err := oidc.NewProvider(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("discovering cognito user pool: %w", err)
	}
	if cfg.Mapping.GroupsClaim == "" {
		cfg.Mapping.GroupsClaim = "cognito:groups"
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return &cognitoAdapter{
		cfg:      cfg,
		provider: provider,
		verifier: verifier,
		oauth2: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
	}, nil
}

func (c *cognitoAdapter) AuthCodeURL(state, redirectURI string) string {
	cfg := c.oauth2
	cfg.RedirectURL = redirectURI
	return cfg.AuthCodeURL(state)
}

func (c *cognitoAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenBundle, error) {
	cfg := c.oauth2
	cfg.RedirectURL = redirectURI
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		if rErr, ok := err.(*oauth2.RetrieveError); ok {
			return nil, gwerrors.NewInvalidGrantError("cognito rejected authorization code", rErr)
		}
		return nil, fmt.Errorf("exchanging code with cognito: %w", err)
	}
	return c.toBundle(ctx, tok)
}

func (c *cognitoAdapter) Refresh(ctx context.Context, refreshToken string) (*TokenBundle, error) {
	src := c.oauth2.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		if rErr, ok := err.(*oauth2.RetrieveError); ok {
			return nil, gwerrors.NewInvalidGrantError("cognito refresh failed", rErr)
		}
		return nil, fmt.Errorf("refreshing token with cognito: %w", err)
	}
	return c.toBundle(ctx, tok)
}

func (c *cognitoAdapter) toBundle(ctx context.Context, tok *oauth2.Token) (*TokenBundle, error) {
	bundle := &TokenBundle{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    time.Until(tok.Expiry),
	}
	if raw, ok := tok.Extra("id_token").(string); ok && raw != "" {
		idTok, err := c.verifier.Verify(ctx, raw)
		if err != nil {
			return nil, gwerrors.NewUnauthorizedError("invalid cognito id_token", err)
		}
		claims := map[string]any{}
		if err := idTok.Claims(&claims); err != nil {
			return nil, fmt.Errorf("decoding id_token claims: %w", err)
		}
		bundle.IDToken = raw
		bundle.Claims = claims
	}
	return bundle, nil
}

func (c *cognitoAdapter) FetchUserinfo(ctx context.Context, accessToken string) (map[string]any, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	info, err := c.provider.UserInfo(ctx, ts)
	if err != nil {
		return nil, fmt.Errorf("fetching cognito userinfo: %w", err)
	}
	claims := map[string]any{}
	if err := info.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decoding cognito userinfo: %w", err)
	}
	return claims, nil
}

func (c *cognitoAdapter) ValidateIdPToken(ctx context.Context, rawToken string) (map[string]any, error) {
	idTok, err := c.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, gwerrors.NewUnauthorizedError("invalid cognito token", err)
	}
	claims := map[string]any{}
	if err := idTok.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decoding token claims: %w", err)
	}
	return claims, nil
}

// GetM2MToken is not supported by this adapter; Cognito user pools do not
// expose a client-credentials grant (that belongs to a paired resource
// server + app client config outside this gateway's scope).
func (c *cognitoAdapter) GetM2MToken(_ context.Context, _ string) (*TokenBundle, error) {
	return nil, gwerrors.NewUnsupportedGrantTypeError("cognito adapter does not support client_credentials", nil)
}

func (c *cognitoAdapter) Info() ProviderInfo {
	return ProviderInfo{Name: "cognito", DisplayName: "Amazon Cognito", Enabled: true}
}

func (c *cognitoAdapter) Mapping() ClaimMapping { return c.cfg.Mapping }
