package store

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mcpgw/authgw/internal/discovery"
	"github.com/mcpgw/authgw/internal/gwerrors"
)

// MemoryStore is an in-process Store, a single-node reference
// implementation. No code path switches to it when a configured backend
// call fails: search_with_rerank and fuzzy() always query the Index's own
// store.
type MemoryStore struct {
	vectorizer Vectorizer

	mu          sync.RWMutex
	collections map[string]map[string]entry
}

type entry struct {
	doc    discovery.Document
	vector []float32
}

// NewMemoryStore builds an empty in-memory store. vectorizer may be nil, in
// which case NearText/Hybrid fall back to pure BM25 scoring.
func NewMemoryStore(vectorizer Vectorizer) *MemoryStore {
	return &MemoryStore{vectorizer: vectorizer, collections: map[string]map[string]entry{}}
}

func (m *MemoryStore) EnsureCollection(_ context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.collections[collection] == nil {
		m.collections[collection] = map[string]entry{}
	}
	return nil
}

func (m *MemoryStore) col(collection string) map[string]entry {
	if m.collections[collection] == nil {
		m.collections[collection] = map[string]entry{}
	}
	return m.collections[collection]
}

func (m *MemoryStore) Insert(ctx context.Context, collection string, doc discovery.Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	var vector []float32
	if m.vectorizer != nil {
		v, err := m.vectorizer.Embed(ctx, doc.Content)
		if err != nil {
			return "", gwerrors.NewUpstreamUnavailableError("embedding discovery document", err)
		}
		vector = v
	}
	m.col(collection)[doc.ID] = entry{doc: doc, vector: vector}
	return doc.ID, nil
}

func (m *MemoryStore) BulkInsert(ctx context.Context, collection string, docs []discovery.Document) ([]string, error) {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		id, err := m.Insert(ctx, collection, d)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *MemoryStore) Get(_ context.Context, collection, id string) (*discovery.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.col(collection)[id]
	if !ok {
		return nil, gwerrors.NewNotFoundError("discovery document not found: "+id, nil)
	}
	doc := e.doc
	return &doc, nil
}

func (m *MemoryStore) GetMany(_ context.Context, collection string, ids []string) ([]discovery.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]discovery.Document, 0, len(ids))
	for _, id := range ids {
		if e, ok := m.col(collection)[id]; ok {
			out = append(out, e.doc)
		}
	}
	return out, nil
}

func (m *MemoryStore) Update(ctx context.Context, collection, id string, doc discovery.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var vector []float32
	if m.vectorizer != nil {
		v, err := m.vectorizer.Embed(ctx, doc.Content)
		if err != nil {
			return gwerrors.NewUpstreamUnavailableError("embedding discovery document", err)
		}
		vector = v
	}
	doc.ID = id
	m.col(collection)[id] = entry{doc: doc, vector: vector}
	return nil
}

func (m *MemoryStore) UpdateMetadata(_ context.Context, collection, id string, patch map[string]any) error {
	if !discovery.IsMetadataSafe(patch) {
		return gwerrors.NewInvalidRequestError("update_metadata patch touches a non-metadata-safe field", nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.col(collection)[id]
	if !ok {
		return gwerrors.NewNotFoundError("discovery document not found: "+id, nil)
	}
	applyMetadataPatch(&e.doc, patch)
	m.col(collection)[id] = e // vector untouched: the whole point of the fast path
	return nil
}

func (m *MemoryStore) BatchUpdateProperties(_ context.Context, collection string, ids []string, patch map[string]any) error {
	if !discovery.IsMetadataSafe(patch) {
		return gwerrors.NewInvalidRequestError("batch_update_properties patch touches a non-metadata-safe field", nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	col := m.col(collection)
	for _, id := range ids {
		e, ok := col[id]
		if !ok {
			continue
		}
		applyMetadataPatch(&e.doc, patch)
		col[id] = e
	}
	return nil
}

func applyMetadataPatch(d *discovery.Document, patch map[string]any) {
	if v, ok := patch["is_enabled"].(bool); ok {
		d.IsEnabled = v
	}
	if v, ok := patch["tags"].([]string); ok {
		d.Tags = discovery.NormalizeTags(v)
	}
	if v, ok := patch["entity_type"].(string); ok {
		d.EntityType = discovery.EntityType(v)
	}
	if v, ok := patch["server_name"].(string); ok {
		d.ServerName = v
	}
}

func (m *MemoryStore) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.col(collection), id)
	return nil
}

func (m *MemoryStore) DeleteByFilter(_ context.Context, collection string, filter discovery.Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	col := m.col(collection)
	n := 0
	for id, e := range col {
		if matches(e.doc, filter) {
			delete(col, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Filter(_ context.Context, collection string, filter discovery.Filter, limit, offset int) ([]discovery.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []discovery.Document
	for _, e := range m.col(collection) {
		if matches(e.doc, filter) {
			out = append(out, e.doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, limit, offset), nil
}

func paginate(docs []discovery.Document, limit, offset int) []discovery.Document {
	if offset > 0 {
		if offset >= len(docs) {
			return nil
		}
		docs = docs[offset:]
	}
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}

func (m *MemoryStore) NearText(ctx context.Context, collection, text string, k int, filter discovery.Filter) ([]discovery.ScoredDocument, error) {
	if m.vectorizer == nil {
		return m.BM25(ctx, collection, text, k, filter, nil)
	}
	vector, err := m.vectorizer.Embed(ctx, text)
	if err != nil {
		return nil, gwerrors.NewUpstreamUnavailableError("embedding query text", err)
	}
	return m.NearVector(ctx, collection, vector, k, filter)
}

func (m *MemoryStore) NearVector(_ context.Context, collection string, vector []float32, k int, filter discovery.Filter) ([]discovery.ScoredDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var scored []discovery.ScoredDocument
	for _, e := range m.col(collection) {
		if !matches(e.doc, filter) {
			continue
		}
		dist := cosineDistance(vector, e.vector)
		certainty := 1 - dist/2
		scored = append(scored, discovery.ScoredDocument{Document: e.doc, Distance: &dist, Certainty: &certainty})
	}
	sort.Slice(scored, func(i, j int) bool { return *scored[i].Distance < *scored[j].Distance })
	return topK(scored, k), nil
}

func (m *MemoryStore) BM25(_ context.Context, collection, text string, k int, filter discovery.Filter, properties []string) ([]discovery.ScoredDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	terms := tokenize(text)
	var docs []discovery.Document
	for _, e := range m.col(collection) {
		if matches(e.doc, filter) {
			docs = append(docs, e.doc)
		}
	}
	scores := bm25Scores(docs, terms, properties)
	scored := make([]discovery.ScoredDocument, 0, len(docs))
	for i, d := range docs {
		if scores[i] <= 0 {
			continue
		}
		score := scores[i]
		scored = append(scored, discovery.ScoredDocument{Document: d, Score: &score})
	}
	sort.Slice(scored, func(i, j int) bool { return *scored[i].Score > *scored[j].Score })
	return topK(scored, k), nil
}

func (m *MemoryStore) Hybrid(ctx context.Context, collection, text string, k int, alpha float64, filter discovery.Filter) ([]discovery.ScoredDocument, error) {
	if alpha <= 0 {
		return m.BM25(ctx, collection, text, k, filter, nil)
	}
	vecResults, err := m.NearText(ctx, collection, text, k*3, filter)
	if err != nil {
		return nil, err
	}
	if alpha >= 1 {
		return topK(vecResults, k), nil
	}
	bm25Results, err := m.BM25(ctx, collection, text, k*3, filter, nil)
	if err != nil {
		return nil, err
	}
	merged := mergeWeighted(vecResults, bm25Results, alpha)
	return topK(merged, k), nil
}

// mergeWeighted fuses a vector ranking and a BM25 ranking by reciprocal-rank
// blending, weighted by alpha (1=pure vector, 0=pure BM25), matching spec
// §4.6's hybrid() contract for the reference in-memory backend.
func mergeWeighted(vec, bm25 []discovery.ScoredDocument, alpha float64) []discovery.ScoredDocument {
	type acc struct {
		doc   discovery.Document
		score float64
	}
	byID := map[string]*acc{}
	order := []string{}
	addRanked := func(docs []discovery.ScoredDocument, weight float64) {
		for i, d := range docs {
			rrf := 1.0 / float64(i+60)
			if a, ok := byID[d.ID]; ok {
				a.score += weight * rrf
			} else {
				byID[d.ID] = &acc{doc: d.Document, score: weight * rrf}
				order = append(order, d.ID)
			}
		}
	}
	addRanked(vec, alpha)
	addRanked(bm25, 1-alpha)

	out := make([]discovery.ScoredDocument, 0, len(order))
	for _, id := range order {
		a := byID[id]
		score := a.score
		out = append(out, discovery.ScoredDocument{Document: a.doc, Score: &score})
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].Score > *out[j].Score })
	return out
}

func topK(docs []discovery.ScoredDocument, k int) []discovery.ScoredDocument {
	if k > 0 && k < len(docs) {
		return docs[:k]
	}
	return docs
}

func cosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return 1 - cos
}

func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

// bm25Scores implements the Okapi BM25 scoring function over a document's
// Content field (and any caller-named properties), MemoryStore's keyword
// scoring (spec §4.6 "bm25()").
func bm25Scores(docs []discovery.Document, queryTerms []string, properties []string) []float64 {
	const k1 = 1.2
	const b = 0.75

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = strings.ToLower(searchableText(d, properties))
	}

	var totalLen int
	df := map[string]int{}
	for _, t := range texts {
		terms := tokenize(t)
		totalLen += len(terms)
		seen := map[string]struct{}{}
		for _, term := range terms {
			if _, ok := seen[term]; !ok {
				df[term]++
				seen[term] = struct{}{}
			}
		}
	}
	n := float64(len(docs))
	if n == 0 {
		return nil
	}
	avgLen := float64(totalLen) / n

	scores := make([]float64, len(docs))
	for i, text := range texts {
		docTerms := tokenize(text)
		tf := map[string]int{}
		for _, term := range docTerms {
			tf[term]++
		}
		docLen := float64(len(docTerms))
		var score float64
		for _, qt := range queryTerms {
			qt = strings.ToLower(qt)
			freq, ok := tf[qt]
			if !ok {
				continue
			}
			idf := math.Log(1 + (n-float64(df[qt])+0.5)/(float64(df[qt])+0.5))
			numerator := float64(freq) * (k1 + 1)
			denominator := float64(freq) + k1*(1-b+b*docLen/avgLen)
			score += idf * numerator / denominator
		}
		scores[i] = score
	}
	return scores
}

func searchableText(d discovery.Document, properties []string) string {
	if len(properties) == 0 {
		return d.Content
	}
	var b strings.Builder
	for _, p := range properties {
		switch p {
		case "tool_name":
			b.WriteString(d.ToolName)
		case "server_name":
			b.WriteString(d.ServerName)
		case "main_description":
			b.WriteString(d.MainDescription)
		case "content":
			b.WriteString(d.Content)
		}
		b.WriteString(" ")
	}
	return b.String()
}

// matches evaluates a portable Filter against one document in-process,
// mirroring the semantics an adapter's native translation enforces
// server-side (spec §4.6 "Filter model").
func matches(d discovery.Document, f discovery.Filter) bool {
	if len(f) == 0 {
		return true
	}
	return evalCondition(d, discovery.Walk(f))
}

func evalCondition(d discovery.Document, c discovery.Condition) bool {
	if len(c.And) > 0 {
		for _, sub := range c.And {
			if !evalCondition(d, sub) {
				return false
			}
		}
		return true
	}
	if len(c.Or) > 0 {
		for _, sub := range c.Or {
			if evalCondition(d, sub) {
				return true
			}
		}
		return false
	}
	if c.Key == "" {
		return true
	}
	actual := fieldValue(d, c.Key)
	return evalLeaf(actual, c.Op, c.Value)
}

func fieldValue(d discovery.Document, key string) any {
	switch key {
	case "id":
		return d.ID
	case "tool_name":
		return d.ToolName
	case "server_name":
		return d.ServerName
	case "server_path":
		return d.ServerPath
	case "server_id":
		return d.ServerID
	case "entity_type":
		return string(d.EntityType)
	case "is_enabled":
		return d.IsEnabled
	case "tags":
		return d.Tags
	default:
		return nil
	}
}

func evalLeaf(actual any, op discovery.Op, want any) bool {
	switch op {
	case discovery.OpIn:
		return containsValue(want, actual)
	case discovery.OpEq:
		return equalValue(actual, want)
	case discovery.OpNe:
		return !equalValue(actual, want)
	case discovery.OpGt, discovery.OpGte, discovery.OpLt, discovery.OpLte:
		return compareNumeric(actual, want, op)
	default:
		return false
	}
}

func equalValue(a, b any) bool {
	if as, ok := a.([]string); ok {
		for _, v := range as {
			if equalValue(v, b) {
				return true
			}
		}
		return false
	}
	return toComparable(a) == toComparable(b)
}

func containsValue(list any, actual any) bool {
	switch l := list.(type) {
	case []string:
		for _, v := range l {
			if equalValue(actual, v) {
				return true
			}
		}
	case []any:
		for _, v := range l {
			if equalValue(actual, v) {
				return true
			}
		}
	}
	return false
}

func toComparable(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func compareNumeric(a, b any, op discovery.Op) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return false
	}
	switch op {
	case discovery.OpGt:
		return af > bf
	case discovery.OpGte:
		return af >= bf
	case discovery.OpLt:
		return af < bf
	case discovery.OpLte:
		return af <= bf
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}
