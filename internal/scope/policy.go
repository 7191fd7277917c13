// Package scope implements the Scope & Policy Engine (spec §4.4): a YAML-declared
// mapping from scope name to the servers/methods/tools it authorizes, plus the
// group-to-scope map applied at token-mint and validate time.
package scope

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mcpgw/authgw/internal/gwerrors"
)

// Rule is one server rule within a scope (spec §3.8).
type Rule struct {
	Server  string   `yaml:"server"`
	Methods []string `yaml:"methods"`
	Tools   []string `yaml:"tools"`
}

// rawPolicy mirrors the YAML document shape (spec §6 "Scope policy file").
type rawPolicy struct {
	GroupMappings map[string][]string `yaml:"group_mappings"`
}

// Policy is the loaded scope policy and group map, immutable after Load
// (spec §5: "loaded once and treated as immutable at runtime; reload ...
// must be done by atomic swap of the whole policy object").
type Policy struct {
	scopes       map[string][]Rule
	groupMapping map[string][]string
}

// Load parses a scope-policy YAML file (spec §6). The document's top-level
// keys are scope names, except the reserved `group_mappings` key.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, gwerrors.NewInternalError("reading scope policy file", err)
	}

	var node map[string]yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, gwerrors.NewInternalError("parsing scope policy YAML", err)
	}

	p := &Policy{scopes: map[string][]Rule{}, groupMapping: map[string][]string{}}
	for key, n := range node {
		if key == "group_mappings" {
			if err := n.Decode(&p.groupMapping); err != nil {
				return nil, gwerrors.NewInternalError("parsing group_mappings", err)
			}
			continue
		}
		var rules []Rule
		if err := n.Decode(&rules); err != nil {
			return nil, gwerrors.NewInternalError("parsing scope rules for "+key, err)
		}
		p.scopes[key] = rules
	}
	return p, nil
}

// GroupsToScopes applies the group-to-scope map (spec §3.9), deduplicating
// and producing a stable set.
func (p *Policy) GroupsToScopes(groups []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, g := range groups {
		for _, sc := range p.groupMapping[g] {
			if _, ok := seen[sc]; !ok {
				seen[sc] = struct{}{}
				out = append(out, sc)
			}
		}
	}
	return out
}

const wildcardAll = "all"
const wildcardStar = "*"

func isWildcard(s string) bool {
	return s == wildcardAll || s == wildcardStar
}

func containsOrWildcard(list []string, want string) bool {
	for _, v := range list {
		if isWildcard(v) || v == want {
			return true
		}
	}
	return false
}

func normalizeServer(server string) string {
	return strings.TrimRight(server, "/")
}

// Allow implements the scope-check algorithm (spec §4.4): fail-closed when
// the policy is absent, normalize the server name, and for every scope the
// caller holds, accept the first matching rule.
func (p *Policy) Allow(scopes []string, server, method, tool string) bool {
	if p == nil {
		return false
	}
	server = normalizeServer(server)

	for _, sc := range scopes {
		rules, ok := p.scopes[sc]
		if !ok {
			continue
		}
		for _, rule := range rules {
			if !isWildcard(rule.Server) && normalizeServer(rule.Server) != server {
				continue
			}
			// Empty methods and empty tools denies (spec §3.8 invariant).
			if len(rule.Methods) == 0 && len(rule.Tools) == 0 {
				continue
			}
			if method == "tools/call" {
				if containsOrWildcard(rule.Tools, tool) {
					return true
				}
				continue
			}
			if containsOrWildcard(rule.Methods, method) {
				return true
			}
			// Backward-compat: non-tools/call methods may also be listed
			// under tools (spec §4.4 step 3).
			if containsOrWildcard(rule.Tools, method) {
				return true
			}
		}
	}
	return false
}
