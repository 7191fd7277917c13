package query

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpgw/authgw/internal/discovery"
	"github.com/mcpgw/authgw/internal/scope"
)

// fakeStore is a minimal in-memory discovery.Store stand-in that ignores the
// requested search semantics and just returns every document in the
// collection that matches the filter, so the Query API's own scope-filtering
// and clamping logic can be exercised in isolation.
type fakeStore struct {
	docs map[string][]discovery.Document
}

func (f *fakeStore) byCollection(collection string, filter discovery.Filter) []discovery.ScoredDocument {
	var out []discovery.ScoredDocument
	for _, d := range f.docs[collection] {
		if et, ok := filter["entity_type"].(string); ok && string(d.EntityType) != et {
			continue
		}
		if enabled, ok := filter["is_enabled"].(bool); ok && d.IsEnabled != enabled {
			continue
		}
		out = append(out, discovery.ScoredDocument{Document: d})
	}
	return out
}

func (f *fakeStore) Insert(context.Context, string, discovery.Document) (string, error) { return "", nil }
func (f *fakeStore) BulkInsert(context.Context, string, []discovery.Document) ([]string, error) {
	return nil, nil
}
func (f *fakeStore) Get(context.Context, string, string) (*discovery.Document, error) { return nil, nil }
func (f *fakeStore) GetMany(context.Context, string, []string) ([]discovery.Document, error) {
	return nil, nil
}
func (f *fakeStore) Update(context.Context, string, string, discovery.Document) error { return nil }
func (f *fakeStore) UpdateMetadata(context.Context, string, string, map[string]any) error {
	return nil
}
func (f *fakeStore) BatchUpdateProperties(context.Context, string, []string, map[string]any) error {
	return nil
}
func (f *fakeStore) Delete(context.Context, string, string) error { return nil }
func (f *fakeStore) DeleteByFilter(context.Context, string, discovery.Filter) (int, error) {
	return 0, nil
}
func (f *fakeStore) Filter(context.Context, string, discovery.Filter, int, int) ([]discovery.Document, error) {
	return nil, nil
}
func (f *fakeStore) NearText(_ context.Context, collection, _ string, k int, filter discovery.Filter) ([]discovery.ScoredDocument, error) {
	return clampDocs(f.byCollection(collection, filter), k), nil
}
func (f *fakeStore) BM25(_ context.Context, collection, _ string, k int, filter discovery.Filter, _ []string) ([]discovery.ScoredDocument, error) {
	return clampDocs(f.byCollection(collection, filter), k), nil
}
func (f *fakeStore) Hybrid(_ context.Context, collection, _ string, k int, _ float64, filter discovery.Filter) ([]discovery.ScoredDocument, error) {
	return clampDocs(f.byCollection(collection, filter), k), nil
}
func (f *fakeStore) NearVector(_ context.Context, collection string, _ []float32, k int, filter discovery.Filter) ([]discovery.ScoredDocument, error) {
	return clampDocs(f.byCollection(collection, filter), k), nil
}

func clampDocs(docs []discovery.ScoredDocument, k int) []discovery.ScoredDocument {
	if k > 0 && k < len(docs) {
		return docs[:k]
	}
	return docs
}

func newTestAPI(t *testing.T, docs map[string][]discovery.Document, policyYAML string) *API {
	t.Helper()
	idx := discovery.NewIndex(&fakeStore{docs: docs}, nil)

	dir := t.TempDir()
	path := filepath.Join(dir, "scopes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(policyYAML), 0o600))
	policy, err := scope.Load(path)
	require.NoError(t, err)

	return New(idx, policy)
}

func TestSemantic_RejectsOutOfRangeQuery(t *testing.T) {
	api := newTestAPI(t, nil, "weather-read:\n  - server: \"*\"\n    methods: [\"all\"]\n    tools: [\"all\"]\n")
	_, err := api.Semantic(context.Background(), SemanticParams{Query: ""})
	assert.Error(t, err)
}

func TestSemantic_GroupsByEntityType(t *testing.T) {
	docs := map[string][]discovery.Document{
		"tools":   {{ID: "t1", ToolName: "get_forecast", EntityType: discovery.EntityMCPTool, IsEnabled: true}},
		"servers": {{ID: "s1", ServerName: "weather", EntityType: discovery.EntityMCPServer, IsEnabled: true}},
	}
	api := newTestAPI(t, docs, "weather-read:\n  - server: \"*\"\n    methods: [\"all\"]\n    tools: [\"all\"]\n")

	groups, err := api.Semantic(context.Background(), SemanticParams{Query: "forecast"})
	require.NoError(t, err)
	require.Len(t, groups, 3)

	var toolGroup SemanticGroup
	for _, g := range groups {
		if g.EntityType == discovery.EntityMCPTool {
			toolGroup = g
		}
	}
	require.Len(t, toolGroup.Results, 1)
	assert.Equal(t, "get_forecast", toolGroup.Results[0].ToolName)
}

func TestTools_NoScopesReturnsEmptyNotError(t *testing.T) {
	docs := map[string][]discovery.Document{
		"tools": {{ID: "t1", ToolName: "get_forecast", ServerPath: "/weather", EntityType: discovery.EntityMCPTool, IsEnabled: true}},
	}
	api := newTestAPI(t, docs, "weather-read:\n  - server: \"/weather\"\n    methods: [\"all\"]\n    tools: [\"all\"]\n")

	results, err := api.Tools(context.Background(), ToolsParams{Query: "forecast"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestTools_FailClosedFiltersUnauthorizedResults(t *testing.T) {
	docs := map[string][]discovery.Document{
		"tools": {
			{ID: "t1", ToolName: "get_forecast", ServerPath: "/weather", EntityType: discovery.EntityMCPTool, IsEnabled: true},
			{ID: "t2", ToolName: "delete_all", ServerPath: "/admin", EntityType: discovery.EntityMCPTool, IsEnabled: true},
		},
	}
	api := newTestAPI(t, docs, strings.Join([]string{
		"weather-read:",
		"  - server: \"/weather\"",
		"    methods: [\"all\"]",
		"    tools: [\"all\"]",
	}, "\n"))

	results, err := api.Tools(context.Background(), ToolsParams{
		Query:       "forecast",
		UserScopes:  []string{"weather-read"},
		TopKServers: 10,
		TopNTools:   10,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "get_forecast", results[0].ToolName)
}

func TestClampMaxResults(t *testing.T) {
	assert.Equal(t, 50, clampMaxResults(0))
	assert.Equal(t, 50, clampMaxResults(-1))
	assert.Equal(t, 50, clampMaxResults(500))
	assert.Equal(t, 10, clampMaxResults(10))
}
