package oauthserver

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcpgw/authgw/internal/gwerrors"
)

// sessionPayload is the temporary OAuth session cookie envelope (spec §3.5).
type sessionPayload struct {
	InternalState       string `json:"internal_state"`
	ClientState         string `json:"client_state"`
	Provider            string `json:"provider"`
	ClientRedirectURI   string `json:"client_redirect_uri"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
	Resource            string `json:"resource,omitempty"`
	IssuedAt            int64  `json:"issued_at"`
}

// signSession HMAC-signs and base64url-encodes a session envelope: the
// callback verifies both the signature and the TTL without server-side
// storage (spec §9: "callback is stateless").
func signSession(secret []byte, p sessionPayload) (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	sig := mac.Sum(nil)

	encoded := base64.RawURLEncoding.EncodeToString(body) + "." + base64.RawURLEncoding.EncodeToString(sig)
	return encoded, nil
}

// verifySession checks signature and TTL, returning the decoded payload.
func verifySession(secret []byte, cookieValue string, ttl time.Duration) (*sessionPayload, error) {
	sep := -1
	for i := len(cookieValue) - 1; i >= 0; i-- {
		if cookieValue[i] == '.' {
			sep = i
			break
		}
	}
	if sep < 0 {
		return nil, gwerrors.NewUnauthorizedError("malformed session cookie", nil)
	}
	body, err := base64.RawURLEncoding.DecodeString(cookieValue[:sep])
	if err != nil {
		return nil, gwerrors.NewUnauthorizedError("malformed session cookie body", err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(cookieValue[sep+1:])
	if err != nil {
		return nil, gwerrors.NewUnauthorizedError("malformed session cookie signature", err)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := mac.Sum(nil)
	if subtle.ConstantTimeCompare(sig, expected) != 1 {
		return nil, gwerrors.NewUnauthorizedError("session cookie signature mismatch", nil)
	}

	var p sessionPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, gwerrors.NewUnauthorizedError("malformed session cookie payload", err)
	}
	if time.Since(time.Unix(p.IssuedAt, 0)) > ttl {
		return nil, gwerrors.NewUnauthorizedError("session cookie expired", nil)
	}
	return &p, nil
}

// randomURLSafe returns n raw bytes of crypto/rand encoded as a URL-safe
// string, used for authorization codes, device codes and refresh tokens
// (spec §3.2-3.4: "32-byte URL-safe random string"). There is no ecosystem
// library in the corpus for this narrow a primitive; it is exactly what
// crypto/rand + base64 are for.
func randomURLSafe(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random string: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// userCodeAlphabet excludes confusable characters O, 0, I, 1 (spec §3.3).
const userCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// generateUserCode builds an 8-character code with a central dash, e.g.
// "ABCD-EFGH" (spec §3.3, §8 boundary behaviors).
func generateUserCode() (string, error) {
	buf := make([]byte, 8)
	raw := make([]byte, 8)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	for i, b := range raw {
		buf[i] = userCodeAlphabet[int(b)%len(userCodeAlphabet)]
	}
	return string(buf[:4]) + "-" + string(buf[4:]), nil
}

// verifyPKCE recomputes the S256 challenge from the presented verifier and
// compares it to the stored challenge (spec §4.3.2, invariant 2 of §8).
func verifyPKCE(verifier, challenge, method string) bool {
	if method != "S256" {
		return false
	}
	sum := sha256.Sum256([]byte(verifier))
	computed := base64.RawURLEncoding.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
