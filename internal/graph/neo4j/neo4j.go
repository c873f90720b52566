package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/soliscan/soliscan/internal/graph"
	"github.com/soliscan/soliscan/internal/solidity"
)

// Repository implements graph.Repository using Neo4j.
type Repository struct {
	driver neo4j.DriverWithContext
}

// New creates a Neo4j-backed repository and verifies connectivity.
func New(ctx context.Context, uri, username, password string) (*Repository, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Repository{driver: driver}, nil
}

// RecordSource merges the file node, contract declarations, contract
// members and import edges. Members attach to the file's first declared
// contract; files without contracts keep members on the file node.
func (r *Repository) RecordSource(ctx context.Context, path, fingerprint string, meta solidity.Metadata) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx,
			"MERGE (s:SourceFile {path: $path}) SET s.fingerprint = $fp, s.pragma = $pragma",
			map[string]any{"path": path, "fp": fingerprint, "pragma": meta.Pragma})
		if err != nil {
			return nil, err
		}

		for _, contract := range meta.Contracts {
			_, err := tx.Run(ctx,
				"MERGE (c:Contract {name: $name}) "+
					"MERGE (s:SourceFile {path: $path}) "+
					"MERGE (s)-[:DECLARES]->(c)",
				map[string]any{"name": contract, "path": path})
			if err != nil {
				return nil, err
			}
		}

		if err := r.recordMembers(ctx, tx, path, meta, "Function", meta.Functions); err != nil {
			return nil, err
		}
		if err := r.recordMembers(ctx, tx, path, meta, "Modifier", meta.Modifiers); err != nil {
			return nil, err
		}
		if err := r.recordMembers(ctx, tx, path, meta, "Event", meta.Events); err != nil {
			return nil, err
		}

		for _, imp := range meta.Imports {
			_, err := tx.Run(ctx,
				"MERGE (i:Import {path: $import}) "+
					"MERGE (s:SourceFile {path: $path}) "+
					"MERGE (s)-[:IMPORTS]->(i)",
				map[string]any{"import": imp, "path": path})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("record source %s: %w", path, err)
	}
	return nil
}

func (r *Repository) recordMembers(ctx context.Context, tx neo4j.ManagedTransaction, path string, meta solidity.Metadata, label string, names []string) error {
	for _, name := range names {
		var err error
		if len(meta.Contracts) > 0 {
			_, err = tx.Run(ctx,
				fmt.Sprintf("MERGE (m:%s {name: $name, source: $path}) ", label)+
					"MERGE (c:Contract {name: $contract}) "+
					"MERGE (c)-[:DECLARES]->(m)",
				map[string]any{"name": name, "path": path, "contract": meta.Contracts[0]})
		} else {
			_, err = tx.Run(ctx,
				fmt.Sprintf("MERGE (m:%s {name: $name, source: $path}) ", label)+
					"MERGE (s:SourceFile {path: $path}) "+
					"MERGE (s)-[:DECLARES]->(m)",
				map[string]any{"name": name, "path": path})
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) ListSources(ctx context.Context) ([]graph.SourceNode, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx,
			"MATCH (s:SourceFile) OPTIONAL MATCH (s)-[:DECLARES]->(c:Contract) "+
				"RETURN s.path AS path, s.fingerprint AS fp, collect(c.name) AS contracts "+
				"ORDER BY s.path",
			nil)
		if err != nil {
			return nil, err
		}

		var sources []graph.SourceNode
		for records.Next(ctx) {
			rec := records.Record()
			path, _ := rec.Get("path")
			fp, _ := rec.Get("fp")
			contracts, _ := rec.Get("contracts")

			node := graph.SourceNode{
				Path:        asString(path),
				Fingerprint: asString(fp),
			}
			if list, ok := contracts.([]any); ok {
				for _, c := range list {
					if c != nil {
						node.Contracts = append(node.Contracts, asString(c))
					}
				}
			}
			sources = append(sources, node)
		}
		return sources, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]graph.SourceNode), nil
}

func (r *Repository) QueryImporters(ctx context.Context, importPath string) ([]string, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx,
			"MATCH (s:SourceFile)-[:IMPORTS]->(:Import {path: $path}) RETURN s.path AS path",
			map[string]any{"path": importPath})
		if err != nil {
			return nil, err
		}
		var paths []string
		for records.Next(ctx) {
			p, _ := records.Record().Get("path")
			paths = append(paths, asString(p))
		}
		return paths, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.driver.VerifyConnectivity(ctx)
}

func (r *Repository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

var _ graph.Repository = (*Repository)(nil)
