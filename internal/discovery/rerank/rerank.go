// Package rerank implements the Discovery Index's cross-encoder rerank step
// (spec §4.6 search_with_rerank, §9 "Rerank fallback"). The reference
// cross-encoder (FlashRank) has no Go binding in the example corpus, so the
// reranker here scores candidates by cosine similarity between the query
// embedding and each candidate's content embedding — reusing the already-wired
// embeddings provider (internal/discovery/embed) rather than introducing an
// unwired dependency (see DESIGN.md).
package rerank

import (
	"context"
	"math"
	"sort"

	"github.com/mcpgw/authgw/internal/discovery"
	"github.com/mcpgw/authgw/internal/gwlog"
)

// Embedder is the subset of store.Vectorizer the reranker needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Reranker reorders candidate_k search results down to the top k requested
// results (spec §4.6).
type Reranker struct {
	embedder Embedder
}

// New builds a Reranker. A nil embedder is valid: Rerank then always falls
// back to the base ordering.
func New(embedder Embedder) *Reranker {
	return &Reranker{embedder: embedder}
}

// Rerank scores candidates against the query and returns the top k. Any
// failure (embedder error, empty candidate set) falls back to the base
// search's ordering truncated to k, per spec §9: "any failure in the
// reranker MUST fall back to the base retrieval and still return results".
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []discovery.ScoredDocument, k int) []discovery.ScoredDocument {
	if r == nil || r.embedder == nil || len(candidates) == 0 {
		return truncate(candidates, k)
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		gwlog.Warnw("rerank: query embedding failed, falling back to base search", "error", err)
		return truncate(candidates, k)
	}

	type scored struct {
		doc   discovery.ScoredDocument
		score float64
	}
	out := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		vec, err := r.embedder.Embed(ctx, c.Content)
		if err != nil {
			gwlog.Warnw("rerank: candidate embedding failed, falling back to base search", "error", err)
			return truncate(candidates, k)
		}
		out = append(out, scored{doc: c, score: cosineSimilarity(queryVec, vec)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })

	results := make([]discovery.ScoredDocument, 0, len(out))
	for _, s := range out {
		score := s.score
		d := s.doc
		d.Score = &score
		results = append(results, d)
	}
	return truncate(results, k)
}

func truncate(docs []discovery.ScoredDocument, k int) []discovery.ScoredDocument {
	if k > 0 && k < len(docs) {
		return docs[:k]
	}
	return docs
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
