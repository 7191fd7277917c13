package oauthserver

import (
	"net/http"
	"time"

	"github.com/mcpgw/authgw/internal/auth/token"
	"github.com/mcpgw/authgw/internal/gwerrors"
	"github.com/mcpgw/authgw/internal/oauthserver/storage"
)

// tokenResponse is the RFC 6749 §5.1 success body.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// HandleToken implements POST /oauth2/token, dispatching on grant_type across
// the authorization_code and device_code grants plus refresh (spec §4.3.3).
func (s *Server) HandleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidRequestError("malformed token request", err))
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		s.handleAuthorizationCodeGrant(w, r)
	case "urn:ietf:params:oauth:grant-type:device_code":
		s.handleDeviceCodeGrant(w, r)
	case "refresh_token":
		s.handleRefreshTokenGrant(w, r)
	default:
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewUnsupportedGrantTypeError("unsupported grant_type", nil))
	}
}

func (s *Server) handleAuthorizationCodeGrant(w http.ResponseWriter, r *http.Request) {
	form := r.PostForm
	code := form.Get("code")
	clientID := form.Get("client_id")
	redirectURI := form.Get("redirect_uri")
	verifier := form.Get("code_verifier")

	if code == "" || clientID == "" {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidRequestError("code and client_id are required", nil))
		return
	}

	client, ok, err := s.flows.GetClient(r.Context(), clientID)
	if err != nil || !ok {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidClientError("unknown client_id", nil))
		return
	}

	rec, ok, err := s.flows.TakeAuthCode(r.Context(), code)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, gwerrors.NewInternalError("reading authorization code", err))
		return
	}
	if !ok {
		// already redeemed, or never existed: spec §8 invariant 1 — no
		// partial state is reverted, the client must restart the flow.
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidGrantError("authorization code is invalid or already used", nil))
		return
	}
	if time.Now().After(rec.ExpiresAt) {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidGrantError("authorization code expired", nil))
		return
	}
	if rec.RedirectURI != redirectURI {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidGrantError("redirect_uri does not match the authorization request", nil))
		return
	}
	if !verifyPKCE(verifier, rec.CodeChallenge, rec.CodeChallengeMethod) {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidGrantError("PKCE verification failed", nil))
		return
	}

	s.issueTokenPair(w, r, client.ClientID, &rec.UserContext, rec.Resource)
}

func (s *Server) handleDeviceCodeGrant(w http.ResponseWriter, r *http.Request) {
	form := r.PostForm
	deviceCode := form.Get("device_code")
	clientID := form.Get("client_id")
	if deviceCode == "" || clientID == "" {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidRequestError("device_code and client_id are required", nil))
		return
	}

	rec, ok, err := s.flows.GetDeviceByCode(r.Context(), deviceCode)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, gwerrors.NewInternalError("reading device code", err))
		return
	}
	if !ok {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidGrantError("device_code is invalid", nil))
		return
	}
	if time.Now().After(rec.ExpiresAt) {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewExpiredTokenError("device_code expired", nil))
		return
	}

	switch rec.Status {
	case storage.DeviceStatusPending:
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewAuthorizationPendingError("authorization pending user approval", nil))
	case storage.DeviceStatusDenied:
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewAccessDeniedError("user denied the authorization request", nil))
	case storage.DeviceStatusApproved:
		client, ok, err := s.flows.GetClient(r.Context(), clientID)
		if err != nil || !ok {
			writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidClientError("unknown client_id", nil))
			return
		}
		userCtx, err := decodeDeviceUserContext(rec.Token)
		if err != nil {
			writeOAuthError(w, http.StatusInternalServerError, gwerrors.NewInternalError("decoding device user context", err))
			return
		}
		// single-redemption: approved device codes are consumed on first poll.
		if err := s.flows.DeleteDeviceCode(r.Context(), rec.DeviceCode, rec.UserCode); err != nil {
			writeOAuthError(w, http.StatusInternalServerError, gwerrors.NewInternalError("invalidating device code", err))
			return
		}
		s.issueTokenPair(w, r, client.ClientID, userCtx, rec.Resource)
	default:
		writeOAuthError(w, http.StatusInternalServerError, gwerrors.NewInternalError("device code in unknown state", nil))
	}
}

func (s *Server) handleRefreshTokenGrant(w http.ResponseWriter, r *http.Request) {
	form := r.PostForm
	refreshToken := form.Get("refresh_token")
	clientID := form.Get("client_id")
	if refreshToken == "" {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidRequestError("refresh_token is required", nil))
		return
	}

	rec, ok, err := s.flows.GetRefreshToken(r.Context(), refreshToken)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, gwerrors.NewInternalError("reading refresh token", err))
		return
	}
	if !ok {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidGrantError("refresh_token is invalid", nil))
		return
	}
	if time.Now().After(rec.ExpiresAt) {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidGrantError("refresh_token expired", nil))
		return
	}
	if clientID != "" && clientID != rec.ClientID {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidGrantError("refresh_token was not issued to this client", nil))
		return
	}

	// Per the Open Question decision recorded in SPEC_FULL.md §E: refresh
	// does not rotate the refresh token, only the access token it mints.
	access, err := s.tokens.Mint(token.MintParams{
		UserContext: &rec.UserContext,
		ClientID:    rec.ClientID,
		Lifetime:    defaultAccessTokenLifetime,
	})
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, gwerrors.NewInternalError("minting access token", err))
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    int64(defaultAccessTokenLifetime.Seconds()),
		RefreshToken: refreshToken,
		Scope:        rec.Scope,
	})
}
