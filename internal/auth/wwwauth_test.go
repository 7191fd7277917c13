package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestResourceMetadataURL_UsesResourceOrigin covers spec scenario S3: the
// metadata document lives at the resource indicator's own origin, not the
// auth server's external origin.
func TestResourceMetadataURL_UsesResourceOrigin(t *testing.T) {
	got := ResourceMetadataURL("https://auth.internal", "https://example.com/gateway/proxy/mcpgw")
	assert.Equal(t, "https://example.com/.well-known/oauth-protected-resource/gateway/proxy/mcpgw", got)
}

func TestResourceMetadataURL_BarePathFallsBackToExternalOrigin(t *testing.T) {
	got := ResourceMetadataURL("https://auth.internal", "/gateway/proxy/mcpgw")
	assert.Equal(t, "https://auth.internal/.well-known/oauth-protected-resource/gateway/proxy/mcpgw", got)
}

func TestResourceMetadataURL_EmptyResourceUsesExternalOrigin(t *testing.T) {
	got := ResourceMetadataURL("https://auth.internal", "")
	assert.Equal(t, "https://auth.internal/.well-known/oauth-protected-resource", got)
}

func TestBuildWWWAuthenticate_IncludesResourceMetadata(t *testing.T) {
	got := BuildWWWAuthenticate("https://auth.internal", "invalid_token", "oauth session expired", "https://example.com/.well-known/oauth-protected-resource/gateway/proxy/mcpgw")
	want := `Bearer realm="https://auth.internal", error="invalid_token", error_description="oauth session expired", resource_metadata="https://example.com/.well-known/oauth-protected-resource/gateway/proxy/mcpgw"`
	assert.Equal(t, want, got)
}
