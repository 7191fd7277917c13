package oauthserver

import (
	"encoding/json"
	"net/http"

	"github.com/mcpgw/authgw/internal/gwerrors"
)

// writeOAuthError emits the RFC 6749 §5.2 error body (spec §7: "OAuth
// protocol errors ... returned verbatim in the OAuth response body").
func writeOAuthError(w http.ResponseWriter, status int, err *gwerrors.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err.AsOAuthBody())
}

// writeOAuthErrorWithHeaders is writeOAuthError plus extra response headers,
// used for the 401 WWW-Authenticate case (spec §4.3.2 step 2).
func writeOAuthErrorWithHeaders(w http.ResponseWriter, status int, err *gwerrors.Error, headers map[string]string) {
	for k, v := range headers {
		w.Header().Set(k, v)
	}
	writeOAuthError(w, status, err)
}
