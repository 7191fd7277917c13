package oauthserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mcpgw/authgw/internal/gwerrors"
	"github.com/mcpgw/authgw/internal/oauthserver/storage"
)

// registrationRequest is the RFC 7591 request payload. Every field is
// optional; omitted fields receive the spec's defaults (spec §4.3.1).
type registrationRequest struct {
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	Scope                   string   `json:"scope"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
}

type registrationResponse struct {
	ClientID                string   `json:"client_id"`
	ClientSecret            string   `json:"client_secret"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	Scope                   string   `json:"scope"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at"`
}

var defaultGrantTypes = []string{"authorization_code", "device_code"}
var defaultResponseTypes = []string{"code"}

const defaultTokenEndpointAuthMethod = "client_secret_post"
const defaultScope = "mcp-default"

// HandleRegister implements POST /oauth2/register (RFC 7591, spec §4.3.1).
func (s *Server) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeOAuthError(w, http.StatusBadRequest, gwerrors.NewInvalidRequestError("malformed registration request", err))
			return
		}
	}

	if len(req.GrantTypes) == 0 {
		req.GrantTypes = defaultGrantTypes
	}
	if len(req.ResponseTypes) == 0 {
		req.ResponseTypes = defaultResponseTypes
	}
	if req.TokenEndpointAuthMethod == "" {
		req.TokenEndpointAuthMethod = defaultTokenEndpointAuthMethod
	}
	if req.Scope == "" {
		req.Scope = defaultScope
	}

	clientID, err := randomURLSafe(16)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, gwerrors.NewInternalError("generating client_id", err))
		return
	}
	clientSecret, err := randomURLSafe(32)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, gwerrors.NewInternalError("generating client_secret", err))
		return
	}
	clientID = "mcp-client-" + clientID

	record := &storage.RegisteredClient{
		ClientID:                clientID,
		ClientSecret:            clientSecret,
		RedirectURIs:            req.RedirectURIs,
		GrantTypes:              req.GrantTypes,
		ResponseTypes:           req.ResponseTypes,
		Scope:                   req.Scope,
		TokenEndpointAuthMethod: req.TokenEndpointAuthMethod,
		RegisteredAt:            time.Now(),
		OriginatingIP:           r.RemoteAddr,
	}
	if err := s.flows.PutClient(r.Context(), record); err != nil {
		writeOAuthError(w, http.StatusInternalServerError, gwerrors.NewInternalError("storing registered client", err))
		return
	}

	resp := registrationResponse{
		ClientID:                clientID,
		ClientSecret:            clientSecret,
		RedirectURIs:            record.RedirectURIs,
		GrantTypes:              record.GrantTypes,
		ResponseTypes:           record.ResponseTypes,
		Scope:                   record.Scope,
		TokenEndpointAuthMethod: record.TokenEndpointAuthMethod,
		ClientIDIssuedAt:        record.RegisteredAt.Unix(),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(resp)
}
