package discovery

import (
	"context"
	"strings"
)

// Store is the subset of internal/discovery/store.Store the Index needs;
// declared here (rather than importing the store package) to avoid an
// import cycle, since store.Store is defined in terms of this package's
// types.
type Store interface {
	Insert(ctx context.Context, collection string, doc Document) (string, error)
	BulkInsert(ctx context.Context, collection string, docs []Document) ([]string, error)
	Get(ctx context.Context, collection, id string) (*Document, error)
	GetMany(ctx context.Context, collection string, ids []string) ([]Document, error)
	Update(ctx context.Context, collection, id string, doc Document) error
	UpdateMetadata(ctx context.Context, collection, id string, patch map[string]any) error
	BatchUpdateProperties(ctx context.Context, collection string, ids []string, patch map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	DeleteByFilter(ctx context.Context, collection string, filter Filter) (int, error)
	Filter(ctx context.Context, collection string, filter Filter, limit, offset int) ([]Document, error)
	NearText(ctx context.Context, collection, text string, k int, filter Filter) ([]ScoredDocument, error)
	BM25(ctx context.Context, collection, text string, k int, filter Filter, properties []string) ([]ScoredDocument, error)
	Hybrid(ctx context.Context, collection, text string, k int, alpha float64, filter Filter) ([]ScoredDocument, error)
	NearVector(ctx context.Context, collection string, vector []float32, k int, filter Filter) ([]ScoredDocument, error)
}

// Reranker is the subset of internal/discovery/rerank.Reranker the Index
// needs, kept as an interface for the same import-cycle reason as Store.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []ScoredDocument, k int) []ScoredDocument
}

// fuzzyAlpha biases the hybrid search toward keyword matching for fuzzy()
// (spec §4.6: "hybrid biased toward keyword (alpha~=0.3)").
const fuzzyAlpha = 0.3

// candidateMultiplier is search_with_rerank's default candidate_k ratio
// (spec §4.6: "candidate_k=3*k").
const candidateMultiplier = 3

// Index is the Discovery Index (C6): a thin orchestration layer over a Store
// that adds search_with_rerank and fuzzy's highlighting, so callers never
// need to reach into the store package directly.
type Index struct {
	store    Store
	reranker Reranker
}

// NewIndex builds an Index. reranker may be nil; SearchWithRerank then
// always falls back to the base search (spec §9).
func NewIndex(store Store, reranker Reranker) *Index {
	return &Index{store: store, reranker: reranker}
}

func (idx *Index) Store() Store { return idx.store }

// Fuzzy implements fuzzy() (spec §4.6): a hybrid search biased toward
// keyword matching, with post-hoc highlighting of which query terms
// actually appeared in each matched field.
func (idx *Index) Fuzzy(ctx context.Context, collection, text string, k int, filter Filter) ([]ScoredDocument, error) {
	results, err := idx.store.Hybrid(ctx, collection, text, k, fuzzyAlpha, filter)
	if err != nil {
		return nil, err
	}
	terms := strings.Fields(strings.ToLower(text))
	for i := range results {
		results[i].MatchedHighlights = highlight(results[i].Document, terms)
	}
	return results, nil
}

// highlight lists which of the document's searchable fields contain at
// least one query term, case-insensitively.
func highlight(d Document, terms []string) []string {
	fields := map[string]string{
		"tool_name":        d.ToolName,
		"server_name":      d.ServerName,
		"main_description": d.MainDescription,
		"tags":             strings.Join(d.Tags, " "),
	}
	var matched []string
	for name, text := range fields {
		lower := strings.ToLower(text)
		for _, term := range terms {
			if term != "" && strings.Contains(lower, term) {
				matched = append(matched, name)
				break
			}
		}
	}
	return matched
}

// SearchWithRerankParams configures search_with_rerank; SearchType selects
// which base retrieval mode runs before reranking (spec §4.6).
type SearchWithRerankParams struct {
	Collection string
	Text       string
	K          int
	SearchType SearchType
	Filter     Filter
	Alpha      float64 // only used when SearchType == SearchHybrid
}

// SearchWithRerank implements search_with_rerank() (spec §4.6): fetch
// candidate_k=3*k candidates with the requested base search type, then
// rerank down to k. On reranker failure it falls back to the base search's
// own top-k (spec §9).
func (idx *Index) SearchWithRerank(ctx context.Context, p SearchWithRerankParams) ([]ScoredDocument, error) {
	candidateK := p.K * candidateMultiplier
	if candidateK < p.K {
		candidateK = p.K
	}

	var candidates []ScoredDocument
	var err error
	switch p.SearchType {
	case SearchBM25:
		candidates, err = idx.store.BM25(ctx, p.Collection, p.Text, candidateK, p.Filter, nil)
	case SearchHybrid:
		alpha := p.Alpha
		if alpha == 0 {
			alpha = 0.5
		}
		candidates, err = idx.store.Hybrid(ctx, p.Collection, p.Text, candidateK, alpha, p.Filter)
	case SearchFuzzy:
		candidates, err = idx.Fuzzy(ctx, p.Collection, p.Text, candidateK, p.Filter)
	default:
		candidates, err = idx.store.NearText(ctx, p.Collection, p.Text, candidateK, p.Filter)
	}
	if err != nil {
		return nil, err
	}

	if idx.reranker == nil {
		return truncateDocs(candidates, p.K), nil
	}
	return idx.reranker.Rerank(ctx, p.Text, candidates, p.K), nil
}

func truncateDocs(docs []ScoredDocument, k int) []ScoredDocument {
	if k > 0 && k < len(docs) {
		return docs[:k]
	}
	return docs
}
