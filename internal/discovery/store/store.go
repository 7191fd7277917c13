// Package store defines the Discovery Index's retrieval contract (spec
// §4.6, C6) and implements it against Weaviate, with an in-memory adapter
// as a single-node reference implementation. Nothing switches to the
// in-memory adapter when a Weaviate call fails.
package store

import (
	"context"

	"github.com/mcpgw/authgw/internal/discovery"
)

// Store is the collection-oriented document store the Discovery Index is
// built on (spec §4.6). A single collection per document kind is sufficient;
// callers pass the collection name explicitly so one Store instance serves
// every kind.
type Store interface {
	Insert(ctx context.Context, collection string, doc discovery.Document) (string, error)
	BulkInsert(ctx context.Context, collection string, docs []discovery.Document) ([]string, error)

	Get(ctx context.Context, collection, id string) (*discovery.Document, error)
	GetMany(ctx context.Context, collection string, ids []string) ([]discovery.Document, error)

	// Update replaces properties on an existing document. If patch touches
	// any field outside discovery.MetadataSafeFields, the caller MUST
	// delete-and-reinsert instead of calling Update (spec §4.6); Update
	// itself performs the full overwrite + re-embed for that case.
	Update(ctx context.Context, collection, id string, doc discovery.Document) error

	// UpdateMetadata is the fast path: it rejects any key outside the
	// metadata-safe set and never re-embeds (spec §3.11, §4.6).
	UpdateMetadata(ctx context.Context, collection, id string, patch map[string]any) error

	// BatchUpdateProperties applies the same metadata-only patch across
	// many IDs in one call (spec §4.6, used by catalog sync's disable/toggle
	// path).
	BatchUpdateProperties(ctx context.Context, collection string, ids []string, patch map[string]any) error

	Delete(ctx context.Context, collection, id string) error
	DeleteByFilter(ctx context.Context, collection string, filter discovery.Filter) (int, error)

	Filter(ctx context.Context, collection string, filter discovery.Filter, limit, offset int) ([]discovery.Document, error)

	NearText(ctx context.Context, collection, text string, k int, filter discovery.Filter) ([]discovery.ScoredDocument, error)
	BM25(ctx context.Context, collection, text string, k int, filter discovery.Filter, properties []string) ([]discovery.ScoredDocument, error)
	Hybrid(ctx context.Context, collection, text string, k int, alpha float64, filter discovery.Filter) ([]discovery.ScoredDocument, error)
	NearVector(ctx context.Context, collection string, vector []float32, k int, filter discovery.Filter) ([]discovery.ScoredDocument, error)
}

// EnsureCollection creates the named collection if it does not already
// exist. Backends that have no schema concept (the in-memory store) treat
// this as a no-op.
type CollectionManager interface {
	EnsureCollection(ctx context.Context, collection string) error
}
