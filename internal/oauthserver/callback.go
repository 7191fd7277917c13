package oauthserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mcpgw/authgw/internal/auth"
	"github.com/mcpgw/authgw/internal/auth/idp"
	"github.com/mcpgw/authgw/internal/config"
	"github.com/mcpgw/authgw/internal/gwerrors"
	"github.com/mcpgw/authgw/internal/gwlog"
	"github.com/mcpgw/authgw/internal/oauthserver/storage"
)

// authCodeLifetime is fixed and short (spec §3.2: "short-lived, single-use").
const authCodeLifetime = 60 * time.Second

// HandleCallback implements GET /oauth2/callback/{provider} (spec §4.3.2).
func (s *Server) HandleCallback(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")
	q := r.URL.Query()

	if idpErr := q.Get("error"); idpErr != "" {
		s.redirectError(w, r, idpErr, q.Get("error_description"))
		return
	}

	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		s.respondSessionExpired(w, r, q.Get("state"))
		return
	}
	session, err := verifySession(s.cfg.SecretKey, cookie.Value, s.cfg.OAuthSessionTTL)
	if err != nil {
		gwlog.Warnw("oauth session cookie invalid", "error", err)
		s.respondSessionExpired(w, r, q.Get("state"))
		return
	}
	// the cookie is single-use: clear it regardless of outcome below.
	http.SetCookie(w, &http.Cookie{Name: sessionCookieName, Value: "", Path: "/", MaxAge: -1})

	if session.Provider != providerName {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidRequestError("provider mismatch between login and callback", nil))
		return
	}
	code := q.Get("code")
	state := q.Get("state")
	if code == "" || state != session.InternalState {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidRequestError("missing code or state mismatch", nil))
		return
	}

	adapter, ok := s.idps.Get(config.Provider(providerName))
	if !ok {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidRequestError("unknown or disabled provider: "+providerName, nil))
		return
	}

	callbackRedirect := s.cfg.AuthServerExternalURL + s.cfg.AuthServerAPIPrefix + "/oauth2/callback/" + providerName
	bundle, err := adapter.ExchangeCode(r.Context(), code, callbackRedirect)
	if err != nil {
		s.redirectBackWithError(w, r, session, "invalid_grant", "code exchange failed")
		return
	}

	claims := bundle.Claims
	if claims == nil {
		claims, err = adapter.FetchUserinfo(r.Context(), bundle.AccessToken)
		if err != nil {
			s.redirectBackWithError(w, r, session, "server_error", "fetching userinfo failed")
			return
		}
	}
	uc := idp.MapUserContext(claims, adapter.Mapping())
	uc.UserID = s.resolveUserID(r.Context(), uc.IdPID, uc.Username)
	uc.Scopes = s.scopes.GroupsToScopes(uc.Groups)

	rawBundle, err := json.Marshal(bundle)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, gwerrors.NewInternalError("marshaling token bundle", err))
		return
	}

	mintedCode, err := randomURLSafe(32)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, gwerrors.NewInternalError("generating authorization code", err))
		return
	}
	rec := &storage.AuthCode{
		ClientID:            "", // bound at token redemption via the client's own client_id, spec §4.3.2
		RedirectURI:         session.ClientRedirectURI,
		CodeChallenge:       session.CodeChallenge,
		CodeChallengeMethod: session.CodeChallengeMethod,
		IdPTokenBundleJSON:  rawBundle,
		UserContext:         *uc,
		Resource:            session.Resource,
		ExpiresAt:           time.Now().Add(authCodeLifetime),
	}
	if err := s.flows.PutAuthCode(r.Context(), mintedCode, rec); err != nil {
		writeOAuthError(w, http.StatusInternalServerError, gwerrors.NewInternalError("storing authorization code", err))
		return
	}

	redirectURL, err := url.Parse(session.ClientRedirectURI)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidRequestError("invalid client redirect_uri", err))
		return
	}
	rq := redirectURL.Query()
	rq.Set("code", mintedCode)
	if session.ClientState != "" {
		rq.Set("state", session.ClientState)
	}
	redirectURL.RawQuery = rq.Encode()
	http.Redirect(w, r, redirectURL.String(), http.StatusFound)
}

// respondSessionExpired implements the 401 + WWW-Authenticate response
// scenario S3 requires: a missing or expired session cookie is a bearer
// challenge carrying the resource_metadata hint, not a redirect. The
// resource indicator can't be recovered from the (missing/expired) cookie,
// but it survives in the `state` the IdP echoed back on the query string,
// since that's the same internal state value encodeInternalState produced.
func (s *Server) respondSessionExpired(w http.ResponseWriter, r *http.Request, rawState string) {
	resourcePath := ""
	if st, err := decodeInternalState(rawState); err == nil {
		resourcePath = st.Resource
	}
	resourceURL := auth.ResourceMetadataURL(s.cfg.AuthServerExternalURL, resourcePath)
	challenge := auth.BuildWWWAuthenticate(s.issuerOrigin(), "invalid_token", "oauth session expired or missing", resourceURL)
	w.Header().Set("WWW-Authenticate", challenge)
	writeOAuthError(w, http.StatusUnauthorized, gwerrors.NewUnauthorizedError("oauth session expired", nil))
}

func (s *Server) redirectError(w http.ResponseWriter, r *http.Request, errCode, errDescription string) {
	cookie, cerr := r.Cookie(sessionCookieName)
	if cerr != nil {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewAccessDeniedError(errDescription, fmt.Errorf("%s", errCode)))
		return
	}
	session, verr := verifySession(s.cfg.SecretKey, cookie.Value, s.cfg.OAuthSessionTTL)
	if verr != nil {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewAccessDeniedError(errDescription, fmt.Errorf("%s", errCode)))
		return
	}
	s.redirectBackWithError(w, r, session, errCode, errDescription)
}

func (s *Server) redirectBackWithError(w http.ResponseWriter, r *http.Request, session *sessionPayload, errCode, errDescription string) {
	redirectURL, err := url.Parse(session.ClientRedirectURI)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidRequestError("invalid client redirect_uri", err))
		return
	}
	rq := redirectURL.Query()
	rq.Set("error", errCode)
	if errDescription != "" {
		rq.Set("error_description", errDescription)
	}
	if session.ClientState != "" {
		rq.Set("state", session.ClientState)
	}
	redirectURL.RawQuery = rq.Encode()
	http.Redirect(w, r, redirectURL.String(), http.StatusFound)
}
