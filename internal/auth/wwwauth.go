package auth

import (
	"fmt"
	"net/url"
)

// BuildWWWAuthenticate renders a Bearer challenge per RFC 6750 §3, optionally
// carrying RFC 9728's resource_metadata parameter so the client can discover
// the protected-resource metadata document for the resource it asked for.
func BuildWWWAuthenticate(realm, errCode, errDescription, resourceMetadataURL string) string {
	v := fmt.Sprintf("Bearer realm=%q", realm)
	if errCode != "" {
		v += fmt.Sprintf(`, error="%s"`, errCode)
	}
	if errDescription != "" {
		v += fmt.Sprintf(`, error_description="%s"`, errDescription)
	}
	if resourceMetadataURL != "" {
		v += fmt.Sprintf(`, resource_metadata="%s"`, resourceMetadataURL)
	}
	return v
}

// ResourceMetadataURL derives the RFC 9728 discovery URL for a resource
// indicator, hosting the metadata document at the resource's own origin
// rather than the auth server's: a resource of
// "https://example.com/gateway/proxy/mcpgw" yields
// "https://example.com/.well-known/oauth-protected-resource/gateway/proxy/mcpgw".
// resource may also be a bare path (no scheme/host), in which case
// externalOrigin is used as the origin.
func ResourceMetadataURL(externalOrigin, resource string) string {
	origin := externalOrigin
	path := resource
	if u, err := url.Parse(resource); err == nil && u.IsAbs() {
		origin = u.Scheme + "://" + u.Host
		path = u.Path
		if u.RawQuery != "" {
			path += "?" + u.RawQuery
		}
	}
	if path == "" {
		return origin + "/.well-known/oauth-protected-resource"
	}
	return origin + "/.well-known/oauth-protected-resource" + path
}
