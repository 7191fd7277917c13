package oauthserver

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mcpgw/authgw/internal/config"
	"github.com/mcpgw/authgw/internal/gwerrors"
)

// sessionCookieName carries the temporary, signed OAuth session envelope
// (spec §3.5). It is distinct from the post-login "session" cookie the
// Access Enforcement Point treats as a first-class credential (spec §4.5).
const sessionCookieName = "mcpgw_oauth_session"

// internalState is the base64url-JSON value passed to the IdP as `state`
// (spec §4.3.2: "an internal state value ... containing a nonce and the
// resource").
type internalState struct {
	Nonce    string `json:"nonce"`
	Resource string `json:"resource,omitempty"`
}

func encodeInternalState(resource string) (string, error) {
	nonce, err := randomURLSafe(16)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(internalState{Nonce: nonce, Resource: resource})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(body), nil
}

func decodeInternalState(s string) (*internalState, error) {
	body, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	var st internalState
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// HandleLogin implements GET /oauth2/login/{provider} (spec §4.3.2).
func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")
	provider := config.Provider(providerName)
	adapter, ok := s.idps.Get(provider)
	if !ok {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidRequestError("unknown or disabled provider: "+providerName, nil))
		return
	}

	q := r.URL.Query()
	redirectURI := q.Get("redirect_uri")
	clientState := q.Get("state")
	codeChallenge := q.Get("code_challenge")
	codeChallengeMethod := q.Get("code_challenge_method")
	resource := q.Get("resource")

	if redirectURI == "" || codeChallenge == "" {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidRequestError("redirect_uri and code_challenge are required", nil))
		return
	}
	if codeChallengeMethod == "" {
		codeChallengeMethod = "S256"
	}

	internal, err := encodeInternalState(resource)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, gwerrors.NewInternalError("generating internal state", err))
		return
	}

	envelope := sessionPayload{
		InternalState:       internal,
		ClientState:         clientState,
		Provider:            providerName,
		ClientRedirectURI:   redirectURI,
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: codeChallengeMethod,
		Resource:            resource,
		IssuedAt:            time.Now().Unix(),
	}
	cookieValue, err := signSession(s.cfg.SecretKey, envelope)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, gwerrors.NewInternalError("signing session cookie", err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    cookieValue,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.cfg.OAuthSessionTTL.Seconds()),
	})

	callbackRedirect := s.cfg.AuthServerExternalURL + s.cfg.AuthServerAPIPrefix + "/oauth2/callback/" + providerName
	authURL := adapter.AuthCodeURL(internal, callbackRedirect)
	http.Redirect(w, r, authURL, http.StatusFound)
}
