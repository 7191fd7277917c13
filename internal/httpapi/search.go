package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/mcpgw/authgw/internal/accesspoint"
	"github.com/mcpgw/authgw/internal/discovery"
	"github.com/mcpgw/authgw/internal/discovery/query"
)

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func entityTypes(csv string) []discovery.EntityType {
	raw := splitCSV(csv)
	out := make([]discovery.EntityType, 0, len(raw))
	for _, r := range raw {
		out = append(out, discovery.EntityType(r))
	}
	return out
}

func atoiDefault(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

// handleSearchSemantic implements GET /search/semantic (spec §4.8):
// query, entity_types?, max_results<=50 -> grouped results.
func handleSearchSemantic(q *query.API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if discoveryUnavailable(q, w) {
			return
		}
		groups, err := q.Semantic(r.Context(), query.SemanticParams{
			Query:       r.URL.Query().Get("query"),
			EntityTypes: entityTypes(r.URL.Query().Get("entity_types")),
			MaxResults:  atoiDefault(r.URL.Query().Get("max_results"), 10),
		})
		if err != nil {
			writeAPIError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, groups)
	}
}

// handleSearchServers implements GET /search/servers (spec §4.8):
// query, top_n, search_type, type_list, include_disabled -> server documents.
func handleSearchServers(q *query.API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if discoveryUnavailable(q, w) {
			return
		}
		qs := r.URL.Query()
		results, err := q.Servers(r.Context(), query.ServersParams{
			Query:           qs.Get("query"),
			TopN:            atoiDefault(qs.Get("top_n"), 10),
			SearchType:      discovery.SearchType(qs.Get("search_type")),
			TypeList:        entityTypes(qs.Get("type_list")),
			IncludeDisabled: qs.Get("include_disabled") == "true",
		})
		if err != nil {
			writeAPIError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, results)
	}
}

// handleSearchTools implements GET /search/tools (spec §4.8): the
// intelligent tool finder. user_scopes are taken from the caller's own
// resolved identity (the same precedence /validate uses), never a
// client-supplied parameter — a caller cannot ask the finder to pretend it
// holds scopes it was not actually granted.
func handleSearchTools(q *query.API, access *accesspoint.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if discoveryUnavailable(q, w) {
			return
		}
		qs := r.URL.Query()
		var scopes []string
		if uc, _, err := access.Authenticate(r); err == nil {
			scopes = uc.Scopes
		}
		results, err := q.Tools(r.Context(), query.ToolsParams{
			Query:       qs.Get("query"),
			Tags:        splitCSV(qs.Get("tags")),
			UserScopes:  scopes,
			TopKServers: atoiDefault(qs.Get("top_k_services"), 20),
			TopNTools:   atoiDefault(qs.Get("top_n_tools"), 10),
		})
		if err != nil {
			writeAPIError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, results)
	}
}
