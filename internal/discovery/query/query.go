// Package query implements the Query API (spec §4.8, C8): the transport-
// agnostic discovery endpoints callers invoke, scope-filtered via the
// Scope & Policy Engine (C4) before results are returned.
package query

import (
	"context"

	"github.com/mcpgw/authgw/internal/discovery"
	"github.com/mcpgw/authgw/internal/discovery/sync"
	"github.com/mcpgw/authgw/internal/gwerrors"
	"github.com/mcpgw/authgw/internal/scope"
)

// maxResultsCeiling is the hard clamp on max_results (spec §4.8, §8
// boundary behaviors: "max_results for discovery is clamped to 50").
const maxResultsCeiling = 50

const (
	minQueryLength = 1
	maxQueryLength = 512
)

// API exposes the Query API's three endpoints over the Discovery Index.
type API struct {
	index  *discovery.Index
	scopes *scope.Policy
}

// New builds the Query API.
func New(index *discovery.Index, scopes *scope.Policy) *API {
	return &API{index: index, scopes: scopes}
}

func validateQuery(q string) error {
	if len(q) < minQueryLength || len(q) > maxQueryLength {
		return gwerrors.NewInvalidRequestError("query must be between 1 and 512 characters", nil)
	}
	return nil
}

func clampMaxResults(n int) int {
	if n <= 0 {
		return maxResultsCeiling
	}
	if n > maxResultsCeiling {
		return maxResultsCeiling
	}
	return n
}

// SemanticGroup is one entity type's slice of a grouped semantic-search response.
type SemanticGroup struct {
	EntityType discovery.EntityType
	Results    []discovery.ScoredDocument
}

// SemanticParams configures search/semantic.
type SemanticParams struct {
	Query       string
	EntityTypes []discovery.EntityType // empty means "all"
	MaxResults  int
}

// Semantic implements search/semantic(query, entity_types?, max_results<=50)
// (spec §4.8): results grouped by entity type.
func (a *API) Semantic(ctx context.Context, p SemanticParams) ([]SemanticGroup, error) {
	if err := validateQuery(p.Query); err != nil {
		return nil, err
	}
	k := clampMaxResults(p.MaxResults)

	types := p.EntityTypes
	if len(types) == 0 {
		types = []discovery.EntityType{discovery.EntityMCPTool, discovery.EntityMCPServer, discovery.EntityA2AAgent}
	}

	groups := make([]SemanticGroup, 0, len(types))
	for _, et := range types {
		collection := collectionFor(et)
		results, err := a.index.Store().NearText(ctx, collection, p.Query, k, discovery.Filter{"entity_type": string(et)})
		if err != nil {
			return nil, gwerrors.NewUpstreamUnavailableError("discovery index unavailable", err)
		}
		groups = append(groups, SemanticGroup{EntityType: et, Results: results})
	}
	return groups, nil
}

func collectionFor(et discovery.EntityType) string {
	if et == discovery.EntityMCPTool {
		return sync.CollectionTools
	}
	return sync.CollectionServers
}

// ServersParams configures search/servers.
type ServersParams struct {
	Query            string
	TopN             int
	SearchType       discovery.SearchType // defaults to hybrid+rerank
	TypeList         []discovery.EntityType
	IncludeDisabled  bool
}

// Servers implements search/servers(query, top_n, search_type, type_list,
// include_disabled) (spec §4.8): by default hybrid+rerank.
func (a *API) Servers(ctx context.Context, p ServersParams) ([]discovery.ScoredDocument, error) {
	if err := validateQuery(p.Query); err != nil {
		return nil, err
	}
	k := clampMaxResults(p.TopN)
	searchType := p.SearchType
	if searchType == "" {
		searchType = discovery.SearchHybrid
	}

	filter := discovery.Filter{}
	if !p.IncludeDisabled {
		filter["is_enabled"] = true
	}
	if len(p.TypeList) > 0 {
		values := make([]string, len(p.TypeList))
		for i, t := range p.TypeList {
			values[i] = string(t)
		}
		filter["entity_type"] = values
	}

	results, err := a.index.SearchWithRerank(ctx, discovery.SearchWithRerankParams{
		Collection: sync.CollectionServers,
		Text:       p.Query,
		K:          k,
		SearchType: searchType,
		Filter:     filter,
	})
	if err != nil {
		return nil, gwerrors.NewUpstreamUnavailableError("discovery index unavailable", err)
	}
	return results, nil
}

// ToolsParams configures search/tools, the "intelligent tool finder" (spec
// §4.8).
type ToolsParams struct {
	Query       string
	Tags        []string
	UserScopes  []string
	TopKServers int
	TopNTools   int
}

// Tools implements search/tools(query, tags?, user_scopes?, top_k_services,
// top_n_tools) (spec §4.8): re-ranks candidates against the query, then
// fail-closed scope-filters the result set. No scopes supplied means an
// empty result, never an error — the caller asked for nothing they're
// authorized to see.
func (a *API) Tools(ctx context.Context, p ToolsParams) ([]discovery.ScoredDocument, error) {
	if err := validateQuery(p.Query); err != nil {
		return nil, err
	}
	if len(p.UserScopes) == 0 {
		return nil, nil
	}

	k := clampMaxResults(p.TopNTools)
	candidateK := clampMaxResults(p.TopKServers)
	if candidateK < k {
		candidateK = k
	}

	filter := discovery.Filter{"is_enabled": true}
	if len(p.Tags) > 0 {
		filter["tags"] = p.Tags
	}

	candidates, err := a.index.SearchWithRerank(ctx, discovery.SearchWithRerankParams{
		Collection: sync.CollectionTools,
		Text:       p.Query,
		K:          candidateK,
		SearchType: discovery.SearchHybrid,
		Alpha:      0.5,
		Filter:     filter,
	})
	if err != nil {
		return nil, gwerrors.NewUpstreamUnavailableError("discovery index unavailable", err)
	}

	filtered := make([]discovery.ScoredDocument, 0, len(candidates))
	for _, c := range candidates {
		if a.scopes.Allow(p.UserScopes, c.ServerPath, "tools/call", c.ToolName) {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) > k {
		filtered = filtered[:k]
	}
	return filtered, nil
}
