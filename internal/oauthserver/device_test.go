package oauthserver

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpgw/authgw/internal/auth"
	"github.com/mcpgw/authgw/internal/oauthserver/storage"
)

func approveAsIdentity(t *testing.T, s *Server, userCode string, ident *auth.Identity) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/oauth2/device/approve?user_code="+url.QueryEscape(userCode), nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), ident))
	w := httptest.NewRecorder()
	s.HandleDeviceApprove(w, req)
	return w
}

// TestDeviceApprove_ScopesToRequestedScope covers spec scenario S2: a device
// code requested with scope=registry-admin must yield a token scoped to
// exactly that, not the approver's full scope set.
func TestDeviceApprove_ScopesToRequestedScope(t *testing.T) {
	s := testServer(t)

	client := &storage.RegisteredClient{ClientID: "device-client"}
	require.NoError(t, s.flows.PutClient(t.Context(), client))

	rec := &storage.DeviceCode{
		DeviceCode: "dc-1",
		UserCode:   "ABCD-EFGH",
		ClientID:   client.ClientID,
		Scope:      "registry-admin",
		Status:     storage.DeviceStatusPending,
		ExpiresAt:  time.Now().Add(time.Minute),
	}
	require.NoError(t, s.flows.PutDeviceCode(t.Context(), rec))

	ident := &auth.Identity{
		Username: "alice",
		Scopes:   []string{"registry-admin", "weather-read", "weather-write"},
	}
	w := approveAsIdentity(t, s, rec.UserCode, ident)
	require.Equal(t, http.StatusOK, w.Code)

	stored, ok, err := s.flows.GetDeviceByCode(t.Context(), rec.DeviceCode)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, storage.DeviceStatusApproved, stored.Status)

	uc, err := decodeDeviceUserContext(stored.Token)
	require.NoError(t, err)
	assert.Equal(t, []string{"registry-admin"}, uc.Scopes)
}

// TestDeviceApprove_NeverGrantsBeyondApproverScopes ensures intersection, not
// the raw requested scope string, wins when the approver lacks a requested
// scope.
func TestDeviceApprove_NeverGrantsBeyondApproverScopes(t *testing.T) {
	s := testServer(t)

	client := &storage.RegisteredClient{ClientID: "device-client"}
	require.NoError(t, s.flows.PutClient(t.Context(), client))

	rec := &storage.DeviceCode{
		DeviceCode: "dc-2",
		UserCode:   "WXYZ-1234",
		ClientID:   client.ClientID,
		Scope:      "registry-admin weather-write",
		Status:     storage.DeviceStatusPending,
		ExpiresAt:  time.Now().Add(time.Minute),
	}
	require.NoError(t, s.flows.PutDeviceCode(t.Context(), rec))

	ident := &auth.Identity{Username: "bob", Scopes: []string{"weather-write"}}
	w := approveAsIdentity(t, s, rec.UserCode, ident)
	require.Equal(t, http.StatusOK, w.Code)

	stored, ok, err := s.flows.GetDeviceByCode(t.Context(), rec.DeviceCode)
	require.NoError(t, err)
	require.True(t, ok)

	uc, err := decodeDeviceUserContext(stored.Token)
	require.NoError(t, err)
	assert.Equal(t, []string{"weather-write"}, uc.Scopes)
}

// TestDeviceApprove_NoRequestedScopeKeepsApproverScopes matches the
// unrestricted-request case: an empty scope on the original device_code
// request means no narrowing is requested.
func TestDeviceApprove_NoRequestedScopeKeepsApproverScopes(t *testing.T) {
	s := testServer(t)

	client := &storage.RegisteredClient{ClientID: "device-client"}
	require.NoError(t, s.flows.PutClient(t.Context(), client))

	rec := &storage.DeviceCode{
		DeviceCode: "dc-3",
		UserCode:   "QRST-5678",
		ClientID:   client.ClientID,
		Status:     storage.DeviceStatusPending,
		ExpiresAt:  time.Now().Add(time.Minute),
	}
	require.NoError(t, s.flows.PutDeviceCode(t.Context(), rec))

	ident := &auth.Identity{Username: "carol", Scopes: []string{"weather-read", "weather-write"}}
	w := approveAsIdentity(t, s, rec.UserCode, ident)
	require.Equal(t, http.StatusOK, w.Code)

	stored, ok, err := s.flows.GetDeviceByCode(t.Context(), rec.DeviceCode)
	require.NoError(t, err)
	require.True(t, ok)

	uc, err := decodeDeviceUserContext(stored.Token)
	require.NoError(t, err)
	assert.Equal(t, ident.Scopes, uc.Scopes)
}

func TestGrantedScopes(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, grantedScopes([]string{"a", "b"}, ""))
	assert.Equal(t, []string{"a"}, grantedScopes([]string{"a", "b"}, "a"))
	assert.Equal(t, []string{}, grantedScopes([]string{"a"}, "c"))
	assert.Equal(t, []string{"a", "b"}, grantedScopes([]string{"a", "b", "c"}, "a b"))
}

func TestSplitScopesLocal(t *testing.T) {
	assert.Nil(t, splitScopesLocal(""))
	assert.Equal(t, []string{"a", "b"}, splitScopesLocal("a b"))
	assert.Equal(t, []string{"a", "b"}, splitScopesLocal("  a   b  "))
}
