// Package auth holds the types shared across the identity plane: the mapped
// user context produced by an IdP adapter or a self-signed token, and the
// context keys used to carry it through a request.
package auth

import "encoding/json"

// UserContext is the provider-agnostic mapped user context (spec §3.6).
// It is constructed once at callback or token-validation time and is never
// persisted; it is embedded into access tokens and flow-table records.
type UserContext struct {
	Username string
	Email    string
	Name     string
	IdPID    string
	Groups   []string
	UserID   string // resolved from the user store; may be empty
	Scopes   []string
}

// Identity represents an authenticated principal for the duration of one
// request. Token is redacted from String()/MarshalJSON() so a stray log
// statement never leaks a bearer token.
type Identity struct {
	Subject   string
	Username  string
	Email     string
	Name      string
	Groups    []string
	Scopes    []string
	ClientID  string
	Claims    map[string]any
	Token     string
	TokenType string
	SelfIssued bool
}

func (i *Identity) String() string {
	if i == nil {
		return "<nil>"
	}
	return "Identity{Subject:" + i.Subject + "}"
}

// MarshalJSON redacts Token; everything else is safe to surface in the
// /validate response body.
func (i *Identity) MarshalJSON() ([]byte, error) {
	if i == nil {
		return []byte("null"), nil
	}
	type safe struct {
		Subject  string         `json:"subject"`
		Username string         `json:"username"`
		Email    string         `json:"email,omitempty"`
		Name     string         `json:"name,omitempty"`
		Groups   []string       `json:"groups"`
		Scopes   []string       `json:"scopes"`
		ClientID string         `json:"client_id,omitempty"`
		Claims   map[string]any `json:"claims,omitempty"`
		Token    string         `json:"token"`
	}
	token := ""
	if i.Token != "" {
		token = "REDACTED"
	}
	return json.Marshal(&safe{
		Subject:  i.Subject,
		Username: i.Username,
		Email:    i.Email,
		Name:     i.Name,
		Groups:   i.Groups,
		Scopes:   i.Scopes,
		ClientID: i.ClientID,
		Claims:   i.Claims,
		Token:    token,
	})
}

// FromUserContext builds an Identity from a mapped user context, e.g. right
// after C2 mints a token or C1 validates one.
func FromUserContext(uc *UserContext, clientID string, selfIssued bool) *Identity {
	return &Identity{
		Subject:    uc.Username,
		Username:   uc.Username,
		Email:      uc.Email,
		Name:       uc.Name,
		Groups:     uc.Groups,
		Scopes:     uc.Scopes,
		ClientID:   clientID,
		TokenType:  "Bearer",
		SelfIssued: selfIssued,
	}
}
