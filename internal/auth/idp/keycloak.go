package idp

import (
	"context"
	"fmt"
	"time"

	oidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/mcpgw/authgw/internal/gwerrors"
)

// KeycloakConfig configures the Keycloak adapter.
type KeycloakConfig struct {
	URL          string // base server URL, e.g. https://kc.example.com
	Realm        string
	ClientID     string
	ClientSecret string
	Mapping      ClaimMapping
}

// keycloakAdapter implements Adapter against a Keycloak realm's OIDC
// discovery document (spec §4.1: "Keycloak/Cognito prefer ID-token claims").
type keycloakAdapter struct {
	cfg      KeycloakConfig
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	oauth2   oauth2.Config
}

// NewKeycloak constructs the Keycloak adapter, performing OIDC discovery
// against the realm's well-known document.
func NewKeycloak(ctx context.Context, cfg KeycloakConfig) (Adapter, error) {
	issuer := fmt.Sprintf("%s/realms/%s", cfg.URL, cfg.Realm)
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discovering keycloak realm %q: %w", cfg.Realm, err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return &keycloakAdapter{
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

func (k *keycloakAdapter) AuthCodeURL(state, redirectURI string) string {
	cfg := k.oauth2
	cfg.RedirectURL = redirectURI
	return cfg.AuthCodeURL(state)
}

func (k *keycloakAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenBundle, error) {
	cfg := k.oauth2
	cfg.RedirectURL = redirectURI
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		if rErr, ok := err.(*oauth2.RetrieveError); ok {
			return nil, gwerrors.NewInvalidGrantError("keycloak rejected authorization code", rErr)
		}
		return nil, fmt.Errorf("exchanging code with keycloak: %w", err)
	}
	return k.toBundle(ctx, tok)
}

func (k *keycloakAdapter) Refresh(ctx context.Context, refreshToken string) (*TokenBundle, error) {
	src := k.oauth2.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		if rErr, ok := err.(*oauth2.RetrieveError); ok {
			return nil, gwerrors.NewInvalidGrantError("keycloak refresh failed", rErr)
		}
		return nil, fmt.Errorf("refreshing token with keycloak: %w", err)
	}
	return k.toBundle(ctx, tok)
}

func (k *keycloakAdapter) toBundle(ctx context.Context, tok *oauth2.Token) (*TokenBundle, error) {
	bundle := &TokenBundle{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    time.Until(tok.Expiry),
	}
	if raw, ok := tok.Extra("id_token").(string); ok && raw != "" {
		idTok, err := k.verifier.Verify(ctx, raw)
		if err != nil {
			return nil, gwerrors.NewUnauthorizedError("invalid keycloak id_token", err)
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

func (k *keycloakAdapter) FetchUserinfo(ctx context.Context, accessToken string) (map[string]any, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	info, err := k.provider.UserInfo(ctx, ts)
	if err != nil {
		return nil, fmt.Errorf("fetching keycloak userinfo: %w", err)
	}
	claims := map[string]any{}
	if err := info.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decoding keycloak userinfo: %w", err)
	}
	return claims, nil
}

func (k *keycloakAdapter) ValidateIdPToken(ctx context.Context, rawToken string) (map[string]any, error) {
	idTok, err := k.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, gwerrors.NewUnauthorizedError("invalid keycloak token", err)
	}
	claims := map[string]any{}
	if err := idTok.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decoding token claims: %w", err)
	}
	return claims, nil
}

func (k *keycloakAdapter) GetM2MToken(ctx context.Context, scope string) (*TokenBundle, error) {
	cc := clientcredentialsConfig(k.cfg.ClientID, k.cfg.ClientSecret, k.oauth2.Endpoint.TokenURL, scope)
	tok, err := cc.Token(ctx)
	if err != nil {
		return nil, gwerrors.NewInvalidClientError("keycloak m2m token request failed", err)
	}
	return &TokenBundle{AccessToken: tok.AccessToken, ExpiresIn: time.Until(tok.Expiry)}, nil
}

func (k *keycloakAdapter) Info() ProviderInfo {
	return ProviderInfo{Name: "keycloak", DisplayName: "Keycloak", Enabled: true}
}

func (k *keycloakAdapter) Mapping() ClaimMapping { return k.cfg.Mapping }
