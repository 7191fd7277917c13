package oauthserver

import (
	"html/template"
	"net/http"
	"time"

	"github.com/mcpgw/authgw/internal/auth"
	"github.com/mcpgw/authgw/internal/gwerrors"
	"github.com/mcpgw/authgw/internal/oauthserver/storage"
)

// deviceAuthResponse is the RFC 8628 §3.2 device authorization response.
type deviceAuthResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int64  `json:"expires_in"`
	Interval                int64  `json:"interval"`
}

// HandleDeviceAuthorize implements POST /oauth2/device/code (spec §4.3.4,
// §3.3).
func (s *Server) HandleDeviceAuthorize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidRequestError("malformed device authorization request", err))
		return
	}
	clientID := r.PostForm.Get("client_id")
	if clientID == "" {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidRequestError("client_id is required", nil))
		return
	}
	if _, ok, err := s.flows.GetClient(r.Context(), clientID); err != nil || !ok {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidClientError("unknown client_id", nil))
		return
	}

	deviceCode, err := randomURLSafe(32)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, gwerrors.NewInternalError("generating device_code", err))
		return
	}
	userCode, err := generateUserCode()
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, gwerrors.NewInternalError("generating user_code", err))
		return
	}

	now := time.Now()
	rec := &storage.DeviceCode{
		DeviceCode: deviceCode,
		UserCode:   userCode,
		ClientID:   clientID,
		Scope:      r.PostForm.Get("scope"),
		Resource:   r.PostForm.Get("resource"),
		Status:     storage.DeviceStatusPending,
		ExpiresAt:  now.Add(s.cfg.DeviceCodeExpiry),
		CreatedAt:  now,
	}
	if err := s.flows.PutDeviceCode(r.Context(), rec); err != nil {
		writeOAuthError(w, http.StatusInternalServerError, gwerrors.NewInternalError("storing device code", err))
		return
	}

	verificationURI := s.cfg.AuthServerExternalURL + s.cfg.AuthServerAPIPrefix + "/oauth2/device/verify"
	writeJSON(w, http.StatusOK, deviceAuthResponse{
		DeviceCode:              deviceCode,
		UserCode:                userCode,
		VerificationURI:         verificationURI,
		VerificationURIComplete: verificationURI + "?user_code=" + userCode,
		ExpiresIn:               int64(s.cfg.DeviceCodeExpiry.Seconds()),
		Interval:                int64(s.cfg.DeviceCodePollInterval.Seconds()),
	})
}

var deviceVerifyPage = template.Must(template.New("verify").Parse(`<!DOCTYPE html>
<html><head><title>Device Login</title></head>
<body>
<h1>Enter the code shown on your device</h1>
<form method="POST" action="approve">
  <input type="text" name="user_code" value="{{.UserCode}}" autofocus>
  <input type="submit" value="Continue">
</form>
</body></html>`))

// HandleDeviceVerify renders the user-facing verification page for
// GET /oauth2/device/verify (spec §4.3.4).
func (s *Server) HandleDeviceVerify(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = deviceVerifyPage.Execute(w, struct{ UserCode string }{UserCode: r.URL.Query().Get("user_code")})
}

// HandleDeviceApprove implements the user's side of approval/denial, e.g.
// POST /oauth2/device/approve with user_code=... and action=approve|deny in
// the form body or the query string, after the
// user has authenticated with an IdP via the normal login/callback flow and
// this handler is reached with a cookie-backed identity already resolved.
// The concrete wiring of "authenticate, then land here" is owned by
// internal/httpapi; this handler assumes r.Context() already carries the
// resolved identity via internal/auth.IdentityFromContext.
func (s *Server) HandleDeviceApprove(w http.ResponseWriter, r *http.Request) {
	userCode := r.FormValue("user_code")
	action := r.FormValue("action")
	if userCode == "" {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidRequestError("user_code is required", nil))
		return
	}

	rec, ok, err := s.flows.GetDeviceByUserCode(r.Context(), userCode)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, gwerrors.NewInternalError("reading device code", err))
		return
	}
	if !ok {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidRequestError("unknown or expired user_code", nil))
		return
	}
	if time.Now().After(rec.ExpiresAt) {
		writeOAuthError(w, http.StatusBadRequest, gwerrors.NewExpiredTokenError("user_code expired", nil))
		return
	}

	if action == "deny" {
		rec.Status = storage.DeviceStatusDenied
		if err := s.flows.UpdateDeviceCode(r.Context(), rec); err != nil {
			writeOAuthError(w, http.StatusInternalServerError, gwerrors.NewInternalError("updating device code", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "denied"})
		return
	}

	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeOAuthError(w, http.StatusUnauthorized, gwerrors.NewUnauthorizedError("device approval requires an authenticated session", nil))
		return
	}
	uc := &auth.UserContext{
		Username: ident.Username,
		Email:    ident.Email,
		Name:     ident.Name,
		Groups:   ident.Groups,
		Scopes:   grantedScopes(ident.Scopes, rec.Scope),
	}
	encoded, err := encodeDeviceUserContext(uc)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, gwerrors.NewInternalError("encoding device user context", err))
		return
	}
	rec.Status = storage.DeviceStatusApproved
	rec.Token = encoded
	if err := s.flows.UpdateDeviceCode(r.Context(), rec); err != nil {
		writeOAuthError(w, http.StatusInternalServerError, gwerrors.NewInternalError("updating device code", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}
