// Package memory provides a brute-force in-memory vector store used by
// tests and offline runs.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/soliscan/soliscan/internal/vector"
)

// Store keeps documents in a map and searches by exact cosine similarity.
type Store struct {
	mu        sync.RWMutex
	docs      map[string]vector.Document
	dimension int
	ready     bool
}

// New creates an empty store.
func New() *Store {
	return &Store{docs: make(map[string]vector.Document)}
}

func (s *Store) EnsureCollection(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("dimension must be positive, got %d", dimension)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready && s.dimension != dimension {
		return fmt.Errorf("collection exists with dimension %d, requested %d", s.dimension, dimension)
	}
	s.dimension = dimension
	s.ready = true
	return nil
}

func (s *Store) Upsert(_ context.Context, docs []vector.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		if s.ready && len(d.Vector) != s.dimension {
			return fmt.Errorf("vector dimension %d does not match collection dimension %d", len(d.Vector), s.dimension)
		}
		s.docs[d.ID] = d
	}
	return nil
}

func (s *Store) Search(_ context.Context, vec []float32, topK int, filter map[string]string) ([]vector.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]vector.SearchResult, 0, len(s.docs))
	for _, d := range s.docs {
		if !matchesFilter(d.Metadata, filter) {
			continue
		}
		results = append(results, vector.SearchResult{
			ID:       d.ID,
			Score:    cosine(vec, d.Vector),
			Content:  d.Content,
			Metadata: d.Metadata,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *Store) Stats(_ context.Context) (vector.IndexStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return vector.IndexStats{Vectors: uint64(len(s.docs)), Dimension: s.dimension}, nil
}

func (s *Store) Close() error { return nil }

func matchesFilter(meta, filter map[string]string) bool {
	for k, v := range filter {
		if meta[k] != v {
			return false
		}
	}
	return true
}

// cosine similarity; zero vectors and mismatched lengths score zero.
func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
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
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

var _ vector.Store = (*Store)(nil)
