// Package graph persists the structural view of ingested sources: which
// files declare which contracts, their members, and the import edges
// between files. The vector index remains the source of truth for content;
// the graph answers structural queries.
package graph

import (
	"context"

	"github.com/soliscan/soliscan/internal/solidity"
)

// SourceNode summarizes one indexed source file.
type SourceNode struct {
	Path        string   `json:"path"`
	Fingerprint string   `json:"fingerprint"`
	Contracts   []string `json:"contracts"`
}

// Repository provides graph storage for ingested sources. The ingestion
// service calls RecordSource after each successful index write.
type Repository interface {
	// RecordSource merges the source file, its declarations and its
	// import edges into the graph.
	RecordSource(ctx context.Context, path, fingerprint string, meta solidity.Metadata) error
	// ListSources returns all recorded source files with their contracts.
	ListSources(ctx context.Context) ([]SourceNode, error)
	// QueryImporters returns the paths of source files that import the
	// given path.
	QueryImporters(ctx context.Context, importPath string) ([]string, error)
	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
	// Close releases resources.
	Close(ctx context.Context) error
}
