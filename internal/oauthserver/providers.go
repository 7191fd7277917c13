package oauthserver

import "net/http"

type providerSummary struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// HandleProviders implements GET /oauth2/providers: list_provider_info across
// every enabled IdP adapter (spec §4.1, §4.3).
func (s *Server) HandleProviders(w http.ResponseWriter, r *http.Request) {
	infos := s.idps.List()
	out := make([]providerSummary, 0, len(infos))
	for _, info := range infos {
		out = append(out, providerSummary{Name: info.Name, DisplayName: info.DisplayName})
	}
	writeJSON(w, http.StatusOK, out)
}
