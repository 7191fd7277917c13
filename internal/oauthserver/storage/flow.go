package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mcpgw/authgw/internal/auth"
)

// RegisteredClient is the RFC 7591 client record (spec §3.1). Never mutated
// after registration; only ever deleted on explicit revocation.
type RegisteredClient struct {
	ClientID                string    `json:"client_id"`
	ClientSecret            string    `json:"client_secret,omitempty"`
	RedirectURIs            []string  `json:"redirect_uris"`
	GrantTypes              []string  `json:"grant_types"`
	ResponseTypes           []string  `json:"response_types"`
	Scope                   string    `json:"scope"`
	TokenEndpointAuthMethod string    `json:"token_endpoint_auth_method"`
	RegisteredAt            time.Time `json:"registered_at"`
	OriginatingIP           string    `json:"originating_ip"`
}

// AuthCode is the internal authorization-code record (spec §3.2).
type AuthCode struct {
	ClientID            string          `json:"client_id"`
	RedirectURI         string          `json:"redirect_uri"`
	CodeChallenge       string          `json:"code_challenge"`
	CodeChallengeMethod string          `json:"code_challenge_method"`
	IdPTokenBundleJSON  json.RawMessage `json:"idp_token_bundle,omitempty"`
	UserContext         auth.UserContext `json:"user_context"`
	Resource            string          `json:"resource,omitempty"`
	ExpiresAt           time.Time       `json:"expires_at"`
}

// DeviceCode is the device-authorization record (spec §3.3).
type DeviceCode struct {
	DeviceCode string    `json:"device_code"`
	UserCode   string    `json:"user_code"`
	ClientID   string    `json:"client_id"`
	Scope      string    `json:"scope"`
	Resource   string    `json:"resource,omitempty"`
	Status     string    `json:"status"` // pending | approved | denied
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
	Token      string    `json:"token,omitempty"`
}

const (
	DeviceStatusPending  = "pending"
	DeviceStatusApproved = "approved"
	DeviceStatusDenied   = "denied"
)

// RefreshToken is the refresh-token record (spec §3.4).
type RefreshToken struct {
	ClientID    string          `json:"client_id"`
	UserContext auth.UserContext `json:"user_context"`
	Scope       string          `json:"scope"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// key prefixes keep the four tables disjoint within one shared KVStore.
const (
	prefixClient       = "client:"
	prefixAuthCode     = "authcode:"
	prefixDeviceByCode = "device:code:"
	prefixDeviceByUser = "device:user:"
	prefixRefresh      = "refresh:"
)

// FlowTables is the typed view of the flow tables (spec §3, §9) over a
// single underlying KVStore, which may be the in-memory reference store or
// a Redis-backed store for horizontal scale.
type FlowTables struct {
	kv KVStore
}

// NewFlowTables wraps kv with the typed flow-table operations.
func NewFlowTables(kv KVStore) *FlowTables {
	return &FlowTables{kv: kv}
}

func encode(v any) ([]byte, error) { return json.Marshal(v) }

// --- Registered clients (no TTL: spec §3.1 "never mutated; never expires unless explicitly revoked") ---

func (f *FlowTables) PutClient(ctx context.Context, c *RegisteredClient) error {
	b, err := encode(c)
	if err != nil {
		return err
	}
	return f.kv.Put(ctx, prefixClient+c.ClientID, b, 0)
}

func (f *FlowTables) GetClient(ctx context.Context, clientID string) (*RegisteredClient, bool, error) {
	b, ok, err := f.kv.Get(ctx, prefixClient+clientID)
	if err != nil || !ok {
		return nil, ok, err
	}
	var c RegisteredClient
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, false, err
	}
	return &c, true, nil
}

// --- Authorization codes ---

func (f *FlowTables) PutAuthCode(ctx context.Context, code string, rec *AuthCode) error {
	b, err := encode(rec)
	if err != nil {
		return err
	}
	return f.kv.Put(ctx, prefixAuthCode+code, b, time.Until(rec.ExpiresAt))
}

// TakeAuthCode atomically fetches and removes the record for code. A second
// call for the same code (replay, or a concurrent redeemer) observes ok=false
// — this is the storage-layer enforcement of "redeemable at most once" (spec
// §3.2, invariant 1 of §8). Expiry is checked by the caller against
// ExpiresAt; the record is already gone from the store either way.
func (f *FlowTables) TakeAuthCode(ctx context.Context, code string) (*AuthCode, bool, error) {
	b, ok, err := f.kv.CompareAndDelete(ctx, prefixAuthCode+code)
	if err != nil || !ok {
		return nil, ok, err
	}
	var rec AuthCode
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

// --- Device codes: two indices, by device_code and by user_code (spec §3.3) ---

func (f *FlowTables) PutDeviceCode(ctx context.Context, rec *DeviceCode) error {
	b, err := encode(rec)
	if err != nil {
		return err
	}
	ttl := time.Until(rec.ExpiresAt)
	if err := f.kv.Put(ctx, prefixDeviceByCode+rec.DeviceCode, b, ttl); err != nil {
		return err
	}
	return f.kv.Put(ctx, prefixDeviceByUser+normalizeUserCode(rec.UserCode), []byte(rec.DeviceCode), ttl)
}

func (f *FlowTables) GetDeviceByCode(ctx context.Context, deviceCode string) (*DeviceCode, bool, error) {
	b, ok, err := f.kv.Get(ctx, prefixDeviceByCode+deviceCode)
	if err != nil || !ok {
		return nil, ok, err
	}
	var rec DeviceCode
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

// GetDeviceByUserCode resolves a user-entered code (normalized: upper-cased,
// dash optional) to its device-code record (spec §3.3, §8 boundary
// behaviors).
func (f *FlowTables) GetDeviceByUserCode(ctx context.Context, userCode string) (*DeviceCode, bool, error) {
	deviceCode, ok, err := f.kv.Get(ctx, prefixDeviceByUser+normalizeUserCode(userCode))
	if err != nil || !ok {
		return nil, ok, err
	}
	return f.GetDeviceByCode(ctx, string(deviceCode))
}

// UpdateDeviceCode rewrites a device-code record in place (e.g. on approval),
// preserving the remaining TTL.
func (f *FlowTables) UpdateDeviceCode(ctx context.Context, rec *DeviceCode) error {
	return f.PutDeviceCode(ctx, rec)
}

// DeleteDeviceCode removes both indices for a device code, used once a code
// is redeemed or explicitly revoked (spec §3.3: single redemption).
func (f *FlowTables) DeleteDeviceCode(ctx context.Context, deviceCode, userCode string) error {
	if err := f.kv.Delete(ctx, prefixDeviceByCode+deviceCode); err != nil {
		return err
	}
	return f.kv.Delete(ctx, prefixDeviceByUser+normalizeUserCode(userCode))
}

func normalizeUserCode(code string) string {
	out := make([]byte, 0, len(code))
	for i := 0; i < len(code); i++ {
		c := code[i]
		if c == '-' || c == ' ' {
			continue
		}
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// --- Refresh tokens ---

func (f *FlowTables) PutRefreshToken(ctx context.Context, token string, rec *RefreshToken) error {
	b, err := encode(rec)
	if err != nil {
		return err
	}
	return f.kv.Put(ctx, prefixRefresh+token, b, time.Until(rec.ExpiresAt))
}

func (f *FlowTables) GetRefreshToken(ctx context.Context, token string) (*RefreshToken, bool, error) {
	b, ok, err := f.kv.Get(ctx, prefixRefresh+token)
	if err != nil || !ok {
		return nil, ok, err
	}
	var rec RefreshToken
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

func (f *FlowTables) DeleteRefreshToken(ctx context.Context, token string) error {
	return f.kv.Delete(ctx, prefixRefresh+token)
}
