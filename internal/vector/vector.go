package vector

import "context"

// Document represents a chunk of contract text with its embedding.
type Document struct {
	ID       string
	Content  string
	Vector   []float32
	Metadata map[string]string
}

// SearchResult is a single match from a similarity search.
type SearchResult struct {
	ID       string
	Score    float32
	Content  string
	Metadata map[string]string
}

// IndexStats describes the backing index.
type IndexStats struct {
	Vectors   uint64
	Dimension int
}

// Store provides raw vector storage and similarity search. Implementations
// exist for Qdrant, Pinecone serverless and an in-memory store.
type Store interface {
	// EnsureCollection creates the collection with the given dimensionality
	// and cosine metric when absent. Idempotent; losing a concurrent
	// creation race is success as long as the collection ends up existing
	// with the right dimension.
	EnsureCollection(ctx context.Context, dimension int) error
	// Upsert inserts or updates documents. Writes must be visible to a
	// Search issued after Upsert returns.
	Upsert(ctx context.Context, docs []Document) error
	// Search finds the top-k documents most similar to the vector,
	// restricted to exact metadata matches when filter is non-empty.
	// An empty index yields an empty result, not an error.
	Search(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]SearchResult, error)
	// Stats reports the current index size and dimensionality.
	Stats(ctx context.Context) (IndexStats, error)
	// Close releases resources.
	Close() error
}

// Index is the embedding-aware surface the ingestion pipeline consumes.
// Gateway is the production implementation.
type Index interface {
	EnsureIndex(ctx context.Context) error
	UpsertTexts(ctx context.Context, texts []string, metas []map[string]string) error
	SimilaritySearch(ctx context.Context, query string, topK int, filter map[string]string) ([]SearchResult, error)
	DescribeStats(ctx context.Context) (IndexStats, error)
}
