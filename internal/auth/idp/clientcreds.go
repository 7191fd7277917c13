package idp

import "golang.org/x/oauth2/clientcredentials"

// clientcredentialsConfig builds the client-credentials grant config shared
// by the adapters that support get_m2m_token (spec §4.1).
func clientcredentialsConfig(clientID, clientSecret, tokenURL, scope string) *clientcredentials.Config {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}
	if scope != "" {
		cfg.Scopes = []string{scope}
	}
	return cfg
}
