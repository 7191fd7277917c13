package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	azcore "github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	oidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/mcpgw/authgw/internal/gwerrors"
)

// EntraConfig configures the Entra ID (Azure AD) adapter.
type EntraConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Mapping      ClaimMapping
}

// entraAdapter implements Adapter against Microsoft Entra ID's v2.0 OIDC
// endpoint, falling back to Microsoft Graph for userinfo (spec §4.1: "Entra
// uses Microsoft Graph as a fallback") and using azidentity's client-secret
// credential for the client-credentials (M2M) grant.
type entraAdapter struct {
	cfg       EntraConfig
	provider  *oidc.Provider
	verifier  *oidc.IDTokenVerifier
	oauth2    oauth2.Config
	m2mCred   *azidentity.ClientSecretCredential
	http      *http.Client
}

// NewEntra constructs the Entra adapter, discovering the tenant's v2.0 OIDC
// issuer and preparing an azidentity client-secret credential for M2M calls.
func NewEntra(ctx context.Context, cfg EntraConfig) (Adapter, error) {
	issuer := fmt.Sprintf("https://login.microsoftonline.com/%s/v2.0", cfg.TenantID)
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discovering entra tenant %q: %w", cfg.TenantID, err)
	}
	cred, err := azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("building entra client-secret credential: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return &entraAdapter{
		cfg:      cfg,
		provider: provider,
		verifier: verifier,
		m2mCred:  cred,
		http:     http.DefaultClient,
		oauth2: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
	}, nil
}

func (e *entraAdapter) AuthCodeURL(state, redirectURI string) string {
	cfg := e.oauth2
	cfg.RedirectURL = redirectURI
	return cfg.AuthCodeURL(state)
}

func (e *entraAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenBundle, error) {
	cfg := e.oauth2
	cfg.RedirectURL = redirectURI
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		if rErr, ok := err.(*oauth2.RetrieveError); ok {
			return nil, gwerrors.NewInvalidGrantError("entra rejected authorization code", rErr)
		}
		return nil, fmt.Errorf("exchanging code with entra: %w", err)
	}
	return e.toBundle(ctx, tok)
}

func (e *entraAdapter) Refresh(ctx context.Context, refreshToken string) (*TokenBundle, error) {
	src := e.oauth2.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		if rErr, ok := err.(*oauth2.RetrieveError); ok {
			return nil, gwerrors.NewInvalidGrantError("entra refresh failed", rErr)
		}
		return nil, fmt.Errorf("refreshing token with entra: %w", err)
	}
	return e.toBundle(ctx, tok)
}

func (e *entraAdapter) toBundle(ctx context.Context, tok *oauth2.Token) (*TokenBundle, error) {
	bundle := &TokenBundle{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    time.Until(tok.Expiry),
	}
	if raw, ok := tok.Extra("id_token").(string); ok && raw != "" {
		idTok, err := e.verifier.Verify(ctx, raw)
		if err != nil {
			return nil, gwerrors.NewUnauthorizedError("invalid entra id_token", err)
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

// FetchUserinfo calls the standard OIDC userinfo endpoint first; Entra's
// userinfo omits group membership, so callers that need groups should rely
// on the ID token claims instead, with this as the fallback path (spec §4.1).
func (e *entraAdapter) FetchUserinfo(ctx context.Context, accessToken string) (map[string]any, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	info, err := e.provider.UserInfo(ctx, ts)
	if err == nil {
		claims := map[string]any{}
		if decErr := info.Claims(&claims); decErr == nil {
			return claims, nil
		}
	}
	return e.graphMe(ctx, accessToken)
}

// graphMe falls back to Microsoft Graph's /me endpoint when OIDC userinfo is
// unavailable or incomplete.
func (e *entraAdapter) graphMe(ctx context.Context, accessToken string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://graph.microsoft.com/v1.0/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling microsoft graph /me: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, gwerrors.NewUpstreamUnavailableError("microsoft graph /me failed", fmt.Errorf("status %d", resp.StatusCode))
	}
	var claims map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("decoding graph /me response: %w", err)
	}
	return claims, nil
}

func (e *entraAdapter) ValidateIdPToken(ctx context.Context, rawToken string) (map[string]any, error) {
	idTok, err := e.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, gwerrors.NewUnauthorizedError("invalid entra token", err)
	}
	claims := map[string]any{}
	if err := idTok.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decoding token claims: %w", err)
	}
	return claims, nil
}

// GetM2MToken uses azidentity's client-credential flow against Microsoft
// Graph's default scope, or the caller-supplied scope when set.
func (e *entraAdapter) GetM2MToken(ctx context.Context, scope string) (*TokenBundle, error) {
	if scope == "" {
		scope = "https://graph.microsoft.com/.default"
	}
	tok, err := e.m2mCred.GetToken(ctx, azcore.TokenRequestOptions{Scopes: []string{scope}})
	if err != nil {
		return nil, gwerrors.NewInvalidClientError("entra m2m token request failed", err)
	}
	return &TokenBundle{AccessToken: tok.Token, ExpiresIn: time.Until(tok.ExpiresOn)}, nil
}

func (e *entraAdapter) Info() ProviderInfo {
	return ProviderInfo{Name: "entra", DisplayName: "Microsoft Entra ID", Enabled: true}
}

func (e *entraAdapter) Mapping() ClaimMapping { return e.cfg.Mapping }
