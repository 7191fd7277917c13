package oauthserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mcpgw/authgw/internal/config"
	"github.com/mcpgw/authgw/internal/gwerrors"
)

// HandleLogout implements POST /oauth2/logout/{provider}: revokes the
// caller's refresh token, if one is presented, and clears any session
// cookie. IdP-side single-logout is out of scope (spec Non-goals).
func (s *Server) HandleLogout(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")
	if _, ok := s.idps.Get(config.Provider(providerName)); !ok {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidRequestError("unknown or disabled provider: "+providerName, nil))
		return
	}

	if err := r.ParseForm(); err == nil {
		if rt := r.PostForm.Get("refresh_token"); rt != "" {
			_ = s.flows.DeleteRefreshToken(r.Context(), rt)
		}
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookieName, Value: "", Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}
