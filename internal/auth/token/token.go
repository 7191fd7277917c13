// Package token implements the Self-Signed Token Service (spec §4.2): HMAC-SHA256
// access tokens bearing a fixed, gateway-chosen `kid` that unambiguously marks
// them as self-issued, distinguishing them from delegated IdP-signed tokens at
// the point of verification.
package token

import (
	"errors"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mcpgw/authgw/internal/auth"
	"github.com/mcpgw/authgw/internal/gwerrors"
)

// clockSkewLeeway is applied to exp/iat/nbf validation (spec §4.2).
const clockSkewLeeway = 30 * time.Second

// Service mints and verifies self-signed access tokens.
type Service struct {
	secret       []byte
	selfIssuedKID string
	issuer       string
	audience     string
}

// NewService constructs a Service bound to the gateway's HMAC secret.
func NewService(secret []byte, selfIssuedKID, issuer, audience string) *Service {
	return &Service{secret: secret, selfIssuedKID: selfIssuedKID, issuer: issuer, audience: audience}
}

// SelfIssuedKID reports the fixed kid this service stamps on every token it
// mints, so callers (e.g. the access point) can recognize self-issued tokens
// without first attempting verification.
func (s *Service) SelfIssuedKID() string { return s.selfIssuedKID }

// MintParams carries everything needed to mint one access token.
type MintParams struct {
	UserContext *auth.UserContext
	ClientID    string
	Audience    string // overrides s.audience when set (e.g. RFC 8707 resource)
	Lifetime    time.Duration
}

// Mint issues a new HMAC-SHA256 JWT with the fixed self-issued kid (spec §3.7).
func (s *Service) Mint(p MintParams) (string, error) {
	if p.Lifetime <= 0 {
		return "", gwerrors.NewInvalidRequestError("token lifetime must be positive", nil)
	}
	aud := s.audience
	if p.Audience != "" {
		aud = p.Audience
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":        s.issuer,
		"aud":        aud,
		"sub":        p.UserContext.Username,
		"user_id":    p.UserContext.UserID,
		"client_id":  p.ClientID,
		"scope":      joinScopes(p.UserContext.Scopes),
		"groups":     p.UserContext.Groups,
		"iat":        now.Unix(),
		"exp":        now.Add(p.Lifetime).Unix(),
		"jti":        uuid.NewString(),
		"token_use":  "access",
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tok.Header["kid"] = s.selfIssuedKID
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", gwerrors.NewInternalError("signing access token", err)
	}
	return signed, nil
}

// IsSelfIssued reports whether a raw (unverified) JWT carries this service's
// self-issued kid marker — used by the access point to route verification
// without first attempting a signature check (spec §4.5).
func IsSelfIssued(rawToken, selfIssuedKID string) bool {
	parser := jwt.NewParser()
	unverified, _, err := parser.ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return false
	}
	kid, _ := unverified.Header["kid"].(string)
	return kid == selfIssuedKID
}

// Verify validates a self-signed token's signature and claims, returning the
// mapped user context recovered from its claims.
//
// Per spec §4.2, audience verification is skipped when the token's audience
// is a resource URL (RFC 8707); the issuer is always checked.
func (s *Service) Verify(rawToken string) (*auth.UserContext, *VerifiedClaims, error) {
	parsed, err := jwt.Parse(rawToken, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithLeeway(clockSkewLeeway), jwt.WithIssuer(s.issuer))
	if err != nil {
		return nil, nil, gwerrors.NewUnauthorizedError("invalid self-signed token", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, nil, gwerrors.NewUnauthorizedError("invalid self-signed token claims", nil)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, nil, gwerrors.NewUnauthorizedError("token missing sub claim", nil)
	}

	uc := &auth.UserContext{
		Username: sub,
		Scopes:   splitScopes(stringClaim(claims, "scope")),
		Groups:   stringSliceClaim(claims, "groups"),
	}
	if v, ok := claims["user_id"].(string); ok {
		uc.UserID = v
	}

	aud := stringClaim(claims, "aud")
	if aud != s.audience {
		if u, err := url.Parse(aud); err != nil || !u.IsAbs() {
			return nil, nil, gwerrors.NewUnauthorizedError("token audience mismatch", nil)
		}
	}

	vc := &VerifiedClaims{
		Issuer:   stringClaim(claims, "iss"),
		Audience: aud,
		ClientID: stringClaim(claims, "client_id"),
		JTI:      stringClaim(claims, "jti"),
	}
	return uc, vc, nil
}

// VerifiedClaims surfaces the subset of claims callers need beyond the
// mapped user context (e.g. to echo client_id back in /validate).
type VerifiedClaims struct {
	Issuer   string
	Audience string
	ClientID string
	JTI      string
}

func joinScopes(scopes []string) string {
	out := ""
	for i, sc := range scopes {
		if i > 0 {
			out += " "
		}
		out += sc
	}
	return out
}

func splitScopes(scope string) []string {
	if scope == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(scope); i++ {
		if i == len(scope) || scope[i] == ' ' {
			if i > start {
				out = append(out, scope[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func stringClaim(claims jwt.MapClaims, key string) string {
	v, _ := claims[key].(string)
	return v
}

func stringSliceClaim(claims jwt.MapClaims, key string) []string {
	raw, ok := claims[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
