package scope

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePolicy(t *testing.T, body string) *Policy {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scopes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	p, err := Load(path)
	require.NoError(t, err)
	return p
}

// TestAllow_ScopeGatedValidate covers spec scenario S4.
func TestAllow_ScopeGatedValidate(t *testing.T) {
	p := writePolicy(t, `
weather-read:
  - server: "/weather"
    methods: ["initialize", "tools/list"]
    tools: ["get_forecast"]
`)

	assert.True(t, p.Allow([]string{"weather-read"}, "/weather", "tools/call", "get_forecast"))
	assert.False(t, p.Allow([]string{"weather-read"}, "/weather", "tools/call", "delete_all"))
	assert.False(t, p.Allow([]string{"weather-read"}, "/admin", "tools/call", "get_forecast"))
	assert.False(t, p.Allow(nil, "/weather", "tools/call", "get_forecast"))
}

func TestAllow_EmptyPolicyDenies(t *testing.T) {
	var p *Policy
	assert.False(t, p.Allow([]string{"anything"}, "/weather", "initialize", ""))
}

func TestAllow_Wildcards(t *testing.T) {
	p := writePolicy(t, `
admin:
  - server: "*"
    methods: ["all"]
    tools: ["*"]
`)
	assert.True(t, p.Allow([]string{"admin"}, "/anything", "tools/call", "whatever"))
	assert.True(t, p.Allow([]string{"admin"}, "/anything/", "initialize", ""))
}

func TestAllow_EmptyRuleDenies(t *testing.T) {
	p := writePolicy(t, `
empty-scope:
  - server: "*"
    methods: []
    tools: []
`)
	assert.False(t, p.Allow([]string{"empty-scope"}, "/weather", "initialize", ""))
}

func TestGroupsToScopes(t *testing.T) {
	p := writePolicy(t, `
weather-read:
  - server: "/weather"
    methods: ["all"]
    tools: ["all"]
group_mappings:
  dev: ["weather-read"]
  qa: ["weather-read"]
`)
	scopes := p.GroupsToScopes([]string{"dev", "qa"})
	assert.Equal(t, []string{"weather-read"}, scopes)
}
