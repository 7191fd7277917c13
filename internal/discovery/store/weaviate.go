package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/mcpgw/authgw/internal/discovery"
	"github.com/mcpgw/authgw/internal/gwerrors"
)

// WeaviateStore adapts the Discovery Index's Store contract to a Weaviate
// cluster (spec §4.6 "a single collection per document kind is sufficient,
// with a vectorizer configured per provider").
type WeaviateStore struct {
	client           *weaviate.Client
	collectionPrefix string
	vectorizer       Vectorizer
}

// Vectorizer embeds query text into a vector for near_text/hybrid calls that
// don't rely on Weaviate's own built-in vectorizer module (spec §4.6: "with
// external embeddings, the caller provides the query vector alongside the
// text").
type Vectorizer interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NewWeaviateStore builds a Store backed by a running Weaviate instance.
func NewWeaviateStore(host string, port int, apiKey string, collectionPrefix string, vectorizer Vectorizer) (*WeaviateStore, error) {
	cfg := weaviate.Config{
		Host:   fmt.Sprintf("%s:%d", host, port),
		Scheme: "http",
	}
	if apiKey != "" {
		cfg.AuthConfig = weaviate.ApiKey{Value: apiKey}
	}
	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, gwerrors.NewUpstreamUnavailableError("connecting to vector store", err)
	}
	return &WeaviateStore{client: client, collectionPrefix: collectionPrefix, vectorizer: vectorizer}, nil
}

func (s *WeaviateStore) className(collection string) string {
	return s.collectionPrefix + "_" + collection
}

// EnsureCollection creates the collection's class if it doesn't exist yet.
func (s *WeaviateStore) EnsureCollection(ctx context.Context, collection string) error {
	class := s.className(collection)
	exists, err := s.client.Schema().ClassExistenceChecker().WithClassName(class).Do(ctx)
	if err != nil {
		return gwerrors.NewUpstreamUnavailableError("checking vector store schema", err)
	}
	if exists {
		return nil
	}
	err = s.client.Schema().ClassCreator().WithClass(&models.Class{
		Class:      class,
		Vectorizer: "none", // embeddings are supplied externally (C6 embed providers)
		Properties: []*models.Property{
			{Name: "tool_name", DataType: []string{"text"}},
			{Name: "server_name", DataType: []string{"text"}},
			{Name: "server_path", DataType: []string{"text"}},
			{Name: "server_id", DataType: []string{"text"}},
			{Name: "entity_type", DataType: []string{"text"}},
			{Name: "main_description", DataType: []string{"text"}},
			{Name: "args_description", DataType: []string{"text"}},
			{Name: "returns_description", DataType: []string{"text"}},
			{Name: "raises_description", DataType: []string{"text"}},
			{Name: "input_schema", DataType: []string{"text"}},
			{Name: "tags", DataType: []string{"text[]"}},
			{Name: "is_enabled", DataType: []string{"boolean"}},
			{Name: "content", DataType: []string{"text"}},
		},
	}).Do(ctx)
	if err != nil {
		return gwerrors.NewUpstreamUnavailableError("creating vector store class", err)
	}
	return nil
}

func toProperties(d discovery.Document) map[string]any {
	return map[string]any{
		"tool_name":            d.ToolName,
		"server_name":          d.ServerName,
		"server_path":          d.ServerPath,
		"server_id":            d.ServerID,
		"entity_type":          string(d.EntityType),
		"main_description":     d.MainDescription,
		"args_description":     d.ArgsDescription,
		"returns_description":  d.ReturnsDescription,
		"raises_description":   d.RaisesDescription,
		"input_schema":         d.InputSchema,
		"tags":                 d.Tags,
		"is_enabled":           d.IsEnabled,
		"content":              d.Content,
	}
}

func fromObject(id string, props map[string]any) discovery.Document {
	d := discovery.Document{ID: id}
	d.ToolName, _ = props["tool_name"].(string)
	d.ServerName, _ = props["server_name"].(string)
	d.ServerPath, _ = props["server_path"].(string)
	d.ServerID, _ = props["server_id"].(string)
	d.EntityType = discovery.EntityType(stringProp(props, "entity_type"))
	d.MainDescription, _ = props["main_description"].(string)
	d.ArgsDescription, _ = props["args_description"].(string)
	d.ReturnsDescription, _ = props["returns_description"].(string)
	d.RaisesDescription, _ = props["raises_description"].(string)
	d.InputSchema, _ = props["input_schema"].(string)
	d.Tags = stringSliceProp(props, "tags")
	if b, ok := props["is_enabled"].(bool); ok {
		d.IsEnabled = b
	}
	d.Content, _ = props["content"].(string)
	return d
}

func stringProp(props map[string]any, key string) string {
	v, _ := props[key].(string)
	return v
}

func stringSliceProp(props map[string]any, key string) []string {
	switch v := props[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Insert implements Store.Insert.
func (s *WeaviateStore) Insert(ctx context.Context, collection string, doc discovery.Document) (string, error) {
	vector, err := s.embedOrNil(ctx, doc.Content)
	if err != nil {
		return "", err
	}
	creator := s.client.Data().Creator().
		WithClassName(s.className(collection)).
		WithProperties(toProperties(doc))
	if doc.ID != "" {
		creator = creator.WithID(doc.ID)
	}
	if vector != nil {
		creator = creator.WithVector(vector)
	}
	obj, err := creator.Do(ctx)
	if err != nil {
		return "", gwerrors.NewUpstreamUnavailableError("inserting discovery document", err)
	}
	return obj.Object.ID.String(), nil
}

// BulkInsert implements Store.BulkInsert via Weaviate's batch API.
func (s *WeaviateStore) BulkInsert(ctx context.Context, collection string, docs []discovery.Document) ([]string, error) {
	ids := make([]string, 0, len(docs))
	objs := make([]*models.Object, 0, len(docs))
	for _, doc := range docs {
		vector, err := s.embedOrNil(ctx, doc.Content)
		if err != nil {
			return nil, err
		}
		obj := &models.Object{
			Class:      s.className(collection),
			Properties: toProperties(doc),
		}
		if doc.ID != "" {
			obj.ID = strfmt.UUID(doc.ID)
		}
		if vector != nil {
			obj.Vector = vector
		}
		objs = append(objs, obj)
	}
	results, err := s.client.Batch().ObjectsBatcher().WithObjects(objs...).Do(ctx)
	if err != nil {
		return nil, gwerrors.NewUpstreamUnavailableError("bulk inserting discovery documents", err)
	}
	for _, r := range results {
		ids = append(ids, r.ID.String())
	}
	return ids, nil
}

// Get implements Store.Get.
func (s *WeaviateStore) Get(ctx context.Context, collection, id string) (*discovery.Document, error) {
	objs, err := s.client.Data().ObjectsGetter().WithClassName(s.className(collection)).WithID(id).Do(ctx)
	if err != nil {
		return nil, gwerrors.NewUpstreamUnavailableError("fetching discovery document", err)
	}
	if len(objs) == 0 {
		return nil, gwerrors.NewNotFoundError("discovery document not found: "+id, nil)
	}
	props, _ := objs[0].Properties.(map[string]any)
	doc := fromObject(id, props)
	return &doc, nil
}

// GetMany implements Store.GetMany.
func (s *WeaviateStore) GetMany(ctx context.Context, collection string, ids []string) ([]discovery.Document, error) {
	out := make([]discovery.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := s.Get(ctx, collection, id)
		if err != nil {
			if gwerrors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, nil
}

// Update implements Store.Update: a full overwrite, re-embedding Content.
func (s *WeaviateStore) Update(ctx context.Context, collection, id string, doc discovery.Document) error {
	vector, err := s.embedOrNil(ctx, doc.Content)
	if err != nil {
		return err
	}
	updater := s.client.Data().Updater().
		WithClassName(s.className(collection)).
		WithID(id).
		WithProperties(toProperties(doc))
	if vector != nil {
		updater = updater.WithVector(vector)
	}
	if err := updater.Do(ctx); err != nil {
		return gwerrors.NewUpstreamUnavailableError("updating discovery document", err)
	}
	return nil
}

// UpdateMetadata implements Store.UpdateMetadata: rejects non-metadata-safe
// keys and merges properties in place without touching the vector (spec
// §3.11, §4.6).
func (s *WeaviateStore) UpdateMetadata(ctx context.Context, collection, id string, patch map[string]any) error {
	if !discovery.IsMetadataSafe(patch) {
		return gwerrors.NewInvalidRequestError("update_metadata patch touches a non-metadata-safe field", nil)
	}
	if err := s.client.Data().Merger().
		WithClassName(s.className(collection)).
		WithID(id).
		WithProperties(patch).
		Do(ctx); err != nil {
		return gwerrors.NewUpstreamUnavailableError("updating discovery document metadata", err)
	}
	return nil
}

// BatchUpdateProperties implements Store.BatchUpdateProperties.
func (s *WeaviateStore) BatchUpdateProperties(ctx context.Context, collection string, ids []string, patch map[string]any) error {
	if !discovery.IsMetadataSafe(patch) {
		return gwerrors.NewInvalidRequestError("batch_update_properties patch touches a non-metadata-safe field", nil)
	}
	for _, id := range ids {
		if err := s.UpdateMetadata(ctx, collection, id, patch); err != nil {
			return err
		}
	}
	return nil
}

// Delete implements Store.Delete.
func (s *WeaviateStore) Delete(ctx context.Context, collection, id string) error {
	if err := s.client.Data().Deleter().WithClassName(s.className(collection)).WithID(id).Do(ctx); err != nil {
		return gwerrors.NewUpstreamUnavailableError("deleting discovery document", err)
	}
	return nil
}

// DeleteByFilter implements Store.DeleteByFilter.
func (s *WeaviateStore) DeleteByFilter(ctx context.Context, collection string, filter discovery.Filter) (int, error) {
	where := translateFilter(filter)
	result, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(s.className(collection)).
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return 0, gwerrors.NewUpstreamUnavailableError("deleting discovery documents by filter", err)
	}
	if result.Results == nil {
		return 0, nil
	}
	return int(result.Results.Successful), nil
}

// Filter implements Store.Filter: a metadata-only query with no vector.
func (s *WeaviateStore) Filter(ctx context.Context, collection string, filter discovery.Filter, limit, offset int) ([]discovery.Document, error) {
	where := translateFilter(filter)
	q := s.client.GraphQL().Get().
		WithClassName(s.className(collection)).
		WithFields(allFields()...).
		WithLimit(limit).
		WithOffset(offset)
	if where != nil {
		q = q.WithWhere(where)
	}
	resp, err := q.Do(ctx)
	if err != nil {
		return nil, gwerrors.NewUpstreamUnavailableError("filtering discovery documents", err)
	}
	return parseGetResponse(s.className(collection), resp)
}

// NearText implements Store.NearText (semantic retrieval).
func (s *WeaviateStore) NearText(ctx context.Context, collection, text string, k int, filter discovery.Filter) ([]discovery.ScoredDocument, error) {
	vector, err := s.vectorizer.Embed(ctx, text)
	if err != nil {
		return nil, gwerrors.NewUpstreamUnavailableError("embedding query text", err)
	}
	return s.NearVector(ctx, collection, vector, k, filter)
}

// BM25 implements Store.BM25 (keyword retrieval).
func (s *WeaviateStore) BM25(ctx context.Context, collection, text string, k int, filter discovery.Filter, properties []string) ([]discovery.ScoredDocument, error) {
	bm25 := s.client.GraphQL().Bm25ArgBuilder().WithQuery(text)
	if len(properties) > 0 {
		bm25 = bm25.WithProperties(properties...)
	}
	where := translateFilter(filter)
	q := s.client.GraphQL().Get().
		WithClassName(s.className(collection)).
		WithFields(append(allFields(), graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "score"}}})...).
		WithBM25(bm25).
		WithLimit(k)
	if where != nil {
		q = q.WithWhere(where)
	}
	resp, err := q.Do(ctx)
	if err != nil {
		return nil, gwerrors.NewUpstreamUnavailableError("bm25 search", err)
	}
	return parseScoredResponse(s.className(collection), resp)
}

// Hybrid implements Store.Hybrid (alpha=0 pure BM25, alpha=1 pure vector).
func (s *WeaviateStore) Hybrid(ctx context.Context, collection, text string, k int, alpha float64, filter discovery.Filter) ([]discovery.ScoredDocument, error) {
	vector, err := s.vectorizer.Embed(ctx, text)
	if err != nil {
		return nil, gwerrors.NewUpstreamUnavailableError("embedding query text", err)
	}
	hybrid := s.client.GraphQL().HybridArgumentBuilder().
		WithQuery(text).
		WithVector(vector).
		WithAlpha(float32(alpha))
	where := translateFilter(filter)
	q := s.client.GraphQL().Get().
		WithClassName(s.className(collection)).
		WithFields(append(allFields(), graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "score"}}})...).
		WithHybrid(hybrid).
		WithLimit(k)
	if where != nil {
		q = q.WithWhere(where)
	}
	resp, err := q.Do(ctx)
	if err != nil {
		return nil, gwerrors.NewUpstreamUnavailableError("hybrid search", err)
	}
	return parseScoredResponse(s.className(collection), resp)
}

// NearVector implements Store.NearVector.
func (s *WeaviateStore) NearVector(ctx context.Context, collection string, vector []float32, k int, filter discovery.Filter) ([]discovery.ScoredDocument, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)
	where := translateFilter(filter)
	q := s.client.GraphQL().Get().
		WithClassName(s.className(collection)).
		WithFields(append(allFields(), graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}, {Name: "certainty"}}})...).
		WithNearVector(nearVector).
		WithLimit(k)
	if where != nil {
		q = q.WithWhere(where)
	}
	resp, err := q.Do(ctx)
	if err != nil {
		return nil, gwerrors.NewUpstreamUnavailableError("vector search", err)
	}
	return parseScoredResponse(s.className(collection), resp)
}

func (s *WeaviateStore) embedOrNil(ctx context.Context, content string) ([]float32, error) {
	if s.vectorizer == nil || content == "" {
		return nil, nil
	}
	v, err := s.vectorizer.Embed(ctx, content)
	if err != nil {
		return nil, gwerrors.NewUpstreamUnavailableError("embedding discovery document content", err)
	}
	return v, nil
}

func allFields() []graphql.Field {
	names := []string{
		"tool_name", "server_name", "server_path", "server_id", "entity_type",
		"main_description", "args_description", "returns_description", "raises_description",
		"input_schema", "tags", "is_enabled", "content",
	}
	fields := make([]graphql.Field, 0, len(names)+1)
	for _, n := range names {
		fields = append(fields, graphql.Field{Name: n})
	}
	fields = append(fields, graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "id"}}})
	return fields
}

// translateFilter converts a portable discovery.Filter into Weaviate's
// native WhereBuilder tree (spec §9 "Dict -> native-filter translation").
func translateFilter(f discovery.Filter) *filters.WhereBuilder {
	if len(f) == 0 {
		return nil
	}
	return buildWhere(discovery.Walk(f))
}

func buildWhere(c discovery.Condition) *filters.WhereBuilder {
	if len(c.And) > 0 {
		operands := make([]*filters.WhereBuilder, 0, len(c.And))
		for _, sub := range c.And {
			operands = append(operands, buildWhere(sub))
		}
		return filters.Where().WithOperator(filters.And).WithOperands(operands)
	}
	if len(c.Or) > 0 {
		operands := make([]*filters.WhereBuilder, 0, len(c.Or))
		for _, sub := range c.Or {
			operands = append(operands, buildWhere(sub))
		}
		return filters.Where().WithOperator(filters.Or).WithOperands(operands)
	}

	w := filters.Where().WithPath([]string{c.Key}).WithOperator(translateOp(c.Op))
	switch v := c.Value.(type) {
	case string:
		w = w.WithValueString(v)
	case bool:
		w = w.WithValueBoolean(v)
	case int:
		w = w.WithValueInt(int64(v))
	case int64:
		w = w.WithValueInt(v)
	case float64:
		w = w.WithValueNumber(v)
	case []string:
		return filters.Where().WithOperator(filters.Or).WithOperands(stringInOperands(c.Key, v))
	case []any:
		strs := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				strs = append(strs, s)
			}
		}
		return filters.Where().WithOperator(filters.Or).WithOperands(stringInOperands(c.Key, strs))
	default:
		w = w.WithValueString(fmt.Sprintf("%v", v))
	}
	return w
}

// stringInOperands expands an $in condition into an OR of equality checks,
// since not every Weaviate version exposes a native ContainsAny comparator
// for the text[] property shape tags uses.
func stringInOperands(key string, values []string) []*filters.WhereBuilder {
	operands := make([]*filters.WhereBuilder, 0, len(values))
	for _, v := range values {
		operands = append(operands, filters.Where().WithPath([]string{key}).WithOperator(filters.Equal).WithValueString(v))
	}
	return operands
}

func translateOp(op discovery.Op) filters.WhereOperator {
	switch op {
	case discovery.OpEq:
		return filters.Equal
	case discovery.OpNe:
		return filters.NotEqual
	case discovery.OpGt:
		return filters.GreaterThan
	case discovery.OpGte:
		return filters.GreaterThanEqual
	case discovery.OpLt:
		return filters.LessThan
	case discovery.OpLte:
		return filters.LessThanEqual
	default:
		return filters.Equal
	}
}

func parseGetResponse(class string, resp *models.GraphQLResponse) ([]discovery.Document, error) {
	raw, err := extractClassResults(class, resp)
	if err != nil {
		return nil, err
	}
	docs := make([]discovery.Document, 0, len(raw))
	for _, item := range raw {
		docs = append(docs, objectToDocument(item))
	}
	return docs, nil
}

func parseScoredResponse(class string, resp *models.GraphQLResponse) ([]discovery.ScoredDocument, error) {
	raw, err := extractClassResults(class, resp)
	if err != nil {
		return nil, err
	}
	docs := make([]discovery.ScoredDocument, 0, len(raw))
	for _, item := range raw {
		doc := objectToDocument(item)
		sd := discovery.ScoredDocument{Document: doc}
		if additional, ok := item["_additional"].(map[string]any); ok {
			if d, ok := additional["distance"].(float64); ok {
				sd.Distance = &d
			}
			if c, ok := additional["certainty"].(float64); ok {
				sd.Certainty = &c
			}
			if sc, ok := additional["score"].(string); ok {
				if f, err := jsonNumberToFloat(sc); err == nil {
					sd.Score = &f
				}
			}
		}
		docs = append(docs, sd)
	}
	return docs, nil
}

func jsonNumberToFloat(s string) (float64, error) {
	var f float64
	err := json.Unmarshal([]byte(s), &f)
	return f, err
}

func extractClassResults(class string, resp *models.GraphQLResponse) ([]map[string]any, error) {
	if resp == nil || resp.Data == nil {
		return nil, nil
	}
	getData, ok := resp.Data["Get"].(map[string]any)
	if !ok {
		return nil, nil
	}
	items, ok := getData[class].([]any)
	if !ok {
		return nil, nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func objectToDocument(props map[string]any) discovery.Document {
	id := ""
	if additional, ok := props["_additional"].(map[string]any); ok {
		id, _ = additional["id"].(string)
	}
	return fromObject(id, props)
}

