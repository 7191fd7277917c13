package idp

import (
	"context"
	"fmt"

	"github.com/mcpgw/authgw/internal/config"
)

// Registry holds one Adapter per enabled provider, selected by configuration
// at startup (spec §9: "select adapter by configuration at startup; never
// introspect by type at runtime").
type Registry struct {
	adapters map[config.Provider]Adapter
}

// NewRegistry builds an adapter for every enabled IdP in cfg.
func NewRegistry(ctx context.Context, cfg *config.Config) (*Registry, error) {
	r := &Registry{adapters: map[config.Provider]Adapter{}}

	if kc, ok := cfg.IdPs[config.ProviderKeycloak]; ok && kc.Enabled {
		a, err := NewKeycloak(ctx, KeycloakConfig{
			URL: kc.URL, Realm: kc.Realm, ClientID: kc.ClientID, ClientSecret: kc.ClientSecret,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing keycloak adapter: %w", err)
		}
		r.adapters[config.ProviderKeycloak] = a
	}

	if cg, ok := cfg.IdPs[config.ProviderCognito]; ok && cg.Enabled {
		a, err := NewCognito(ctx, CognitoConfig{
			URL: cg.URL, ClientID: cg.ClientID, ClientSecret: cg.ClientSecret,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing cognito adapter: %w", err)
		}
		r.adapters[config.ProviderCognito] = a
	}

	if en, ok := cfg.IdPs[config.ProviderEntra]; ok && en.Enabled {
		a, err := NewEntra(ctx, EntraConfig{
			TenantID: en.Realm, ClientID: en.ClientID, ClientSecret: en.ClientSecret,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing entra adapter: %w", err)
		}
		r.adapters[config.ProviderEntra] = a
	}

	return r, nil
}

// Get returns the adapter for a provider, or false if it is not enabled.
// A nil Registry has no providers enabled.
func (r *Registry) Get(provider config.Provider) (Adapter, bool) {
	if r == nil {
		return nil, false
	}
	a, ok := r.adapters[provider]
	return a, ok
}

// List returns ProviderInfo for every enabled adapter, for /oauth2/providers.
func (r *Registry) List() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a.Info())
	}
	return out
}
