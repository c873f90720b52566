package vector

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/soliscan/soliscan/internal/llm"
	"github.com/soliscan/soliscan/internal/observability"
)

// Gateway pairs an embedding provider with a Store: callers hand it text,
// it owns vectorization and the index round-trips. Errors are wrapped in
// the package sentinels so the pipeline can tell a quota problem from a
// store outage.
type Gateway struct {
	provider  llm.Provider
	store     Store
	dimension int
}

// NewGateway creates a Gateway over the given provider and store.
func NewGateway(provider llm.Provider, store Store, dimension int) *Gateway {
	return &Gateway{provider: provider, store: store, dimension: dimension}
}

// EnsureIndex makes sure the backing collection exists with the configured
// dimensionality. Safe to call on every startup.
func (g *Gateway) EnsureIndex(ctx context.Context) error {
	if err := g.store.EnsureCollection(ctx, g.dimension); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexProvisioning, err)
	}
	return nil
}

// UpsertTexts embeds every text and writes one entry per (text, metadata)
// pair in a single batch.
func (g *Gateway) UpsertTexts(ctx context.Context, texts []string, metas []map[string]string) error {
	if len(texts) == 0 {
		return nil
	}

	start := time.Now()
	ctx, span := observability.StartEmbedSpan(ctx, len(texts))
	defer span.End()

	vectors, err := g.provider.Embed(ctx, texts)
	if err != nil {
		observability.RecordError(span, err)
		observability.RecordEmbedFailure()
		return fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbedding, len(vectors), len(texts))
	}
	observability.RecordEmbedBatch(len(vectors), time.Since(start))

	docs := make([]Document, len(texts))
	for i := range texts {
		meta := map[string]string{}
		if i < len(metas) && metas[i] != nil {
			meta = metas[i]
		}
		docs[i] = Document{
			ID:       entryID(meta, i),
			Content:  texts[i],
			Vector:   vectors[i],
			Metadata: meta,
		}
	}

	if err := g.store.Upsert(ctx, docs); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexWrite, err)
	}
	return nil
}

// SimilaritySearch embeds the query and returns up to topK matches in
// descending score order. Searching an empty index returns an empty slice.
func (g *Gateway) SimilaritySearch(ctx context.Context, query string, topK int, filter map[string]string) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}

	vectors, err := g.provider.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for query", ErrEmbedding, len(vectors))
	}

	results, err := g.store.Search(ctx, vectors[0], topK, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearch, err)
	}
	return results, nil
}

// DescribeStats reports the current state of the backing index.
func (g *Gateway) DescribeStats(ctx context.Context) (IndexStats, error) {
	stats, err := g.store.Stats(ctx)
	if err != nil {
		return IndexStats{}, fmt.Errorf("%w: %v", ErrStats, err)
	}
	return stats, nil
}

// entryID derives a stable UUID from the chunk's fingerprint and position
// so a racing double-ingest of the same document converges on identical
// points instead of duplicating them. Content without a fingerprint gets a
// random ID.
func entryID(meta map[string]string, i int) string {
	hash := meta["file_hash"]
	if hash == "" {
		return uuid.NewString()
	}
	idx := meta["chunk_index"]
	if idx == "" {
		idx = strconv.Itoa(i)
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(hash+":"+idx)).String()
}

var _ Index = (*Gateway)(nil)
