// Package discovery defines the Discovery Index's document model and
// portable filter contract (spec §3.10-3.12, §4.6, C6). Concrete retrieval
// backends live in internal/discovery/store; embedding and reranking
// collaborators live in internal/discovery/embed and internal/discovery/rerank.
package discovery

import (
	"sort"
	"strings"
)

// EntityType discriminates the kind of document indexed (spec §3.10).
type EntityType string

const (
	EntityMCPTool   EntityType = "mcp_tool"
	EntityMCPServer EntityType = "mcp_server"
	EntityA2AAgent  EntityType = "a2a_agent"
	EntityAll       EntityType = "all"
)

// Document is the canonical discovery record for one MCP tool, MCP server,
// or A2A agent (spec §3.10).
type Document struct {
	ID         string
	ToolName   string
	ServerName string
	ServerPath string
	ServerID   string
	EntityType EntityType

	MainDescription    string
	ArgsDescription    string
	ReturnsDescription string
	RaisesDescription  string
	InputSchema        string // serialized JSON

	Tags      []string
	IsEnabled bool

	// Content is the text actually embedded; it must always equal
	// BuildContent(doc) — spec §3.10 invariant: "content is a pure function
	// of the other fields".
	Content string
}

// MetadataSafeFields lists the properties update_metadata/batch_update_properties
// may touch without forcing a re-embed (spec §3.11).
var MetadataSafeFields = map[string]struct{}{
	"is_enabled":  {},
	"tags":        {},
	"entity_type": {},
	"server_name": {},
}

// IsMetadataSafe reports whether every key in patch is in the metadata-safe
// set, the fast-path precondition for update_metadata (spec §4.6).
func IsMetadataSafe(patch map[string]any) bool {
	for k := range patch {
		if _, ok := MetadataSafeFields[k]; !ok {
			return false
		}
	}
	return true
}

// BuildContent deterministically concatenates a document's semantic fields
// into the string fed to the vectorizer (spec §3.10). Any change to a
// non-metadata field requires recomputing this and re-embedding.
func BuildContent(d Document) string {
	var b strings.Builder
	name := d.ToolName
	if name == "" {
		name = d.ServerName
	}
	b.WriteString(name)
	if d.ServerName != "" && d.ServerName != name {
		b.WriteString(" | server: ")
		b.WriteString(d.ServerName)
	}
	if d.MainDescription != "" {
		b.WriteString(" | ")
		b.WriteString(d.MainDescription)
	}
	if d.ArgsDescription != "" {
		b.WriteString(" | args: ")
		b.WriteString(d.ArgsDescription)
	}
	if d.ReturnsDescription != "" {
		b.WriteString(" | returns: ")
		b.WriteString(d.ReturnsDescription)
	}
	if len(d.Tags) > 0 {
		tags := make([]string, len(d.Tags))
		copy(tags, d.Tags)
		sort.Strings(tags)
		b.WriteString(" | tags: ")
		b.WriteString(strings.Join(tags, ","))
	}
	return b.String()
}

// NormalizeTags lowercases tags (spec §3.10: "tags[] (lowercased)").
func NormalizeTags(tags []string) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = strings.ToLower(t)
	}
	return out
}

// Prepare fills Content from the document's current fields, enforcing the
// pure-function invariant before a document is inserted or fully updated.
func Prepare(d Document) Document {
	d.Tags = NormalizeTags(d.Tags)
	d.Content = BuildContent(d)
	return d
}

// ScoredDocument is a retrieval result, carrying whichever distance metrics
// the backend supplied (spec §4.6 "Result metadata").
type ScoredDocument struct {
	Document
	Distance     *float64
	Certainty    *float64
	Score        *float64
	MatchedHighlights []string // populated by fuzzy() post-hoc highlighting
}

// SearchType enumerates the retrieval mode a caller may request (spec §4.6,
// §4.8).
type SearchType string

const (
	SearchSemantic SearchType = "semantic"
	SearchBM25     SearchType = "bm25"
	SearchHybrid   SearchType = "hybrid"
	SearchFuzzy    SearchType = "fuzzy"
)
