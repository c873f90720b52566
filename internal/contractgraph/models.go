// Package contractgraph builds an in-memory structural graph of parsed
// sources: declared contracts and functions, import edges, and the
// source-to-source dependencies the imports resolve to.
package contractgraph

// Node represents a node in the contract graph
type Node struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Kind     NodeKind          `json:"kind"`   // source, contract, function, import
	Source   string            `json:"source"` // declaring source path
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NodeKind classifies graph nodes
type NodeKind string

const (
	NodeSource   NodeKind = "source"
	NodeContract NodeKind = "contract"
	NodeFunction NodeKind = "function"
	NodeImport   NodeKind = "import"
)

// Edge represents a directed edge between two nodes
type Edge struct {
	From  string   `json:"from"`
	To    string   `json:"to"`
	Kind  EdgeKind `json:"kind"`
	Label string   `json:"label,omitempty"`
}

// EdgeKind classifies relationships
type EdgeKind string

const (
	EdgeDeclares  EdgeKind = "declares"   // source declares contract, contract declares function
	EdgeImports   EdgeKind = "imports"    // source imports a path
	EdgeDependsOn EdgeKind = "depends_on" // source depends on another indexed source
)

// Graph is the full contract graph
type Graph struct {
	Nodes []Node     `json:"nodes"`
	Edges []Edge     `json:"edges"`
	Stats GraphStats `json:"stats"`
}

// GraphStats holds computed metrics about the graph
type GraphStats struct {
	TotalNodes          int            `json:"total_nodes"`
	TotalEdges          int            `json:"total_edges"`
	SourceCount         int            `json:"source_count"`
	ContractCount       int            `json:"contract_count"`
	FunctionCount       int            `json:"function_count"`
	ImportCount         int            `json:"import_count"`
	MaxFanOut           int            `json:"max_fan_out"` // most outgoing edges
	MaxFanIn            int            `json:"max_fan_in"`  // most incoming edges
	HotspotNode         string         `json:"hotspot_node"`
	MostImported        string         `json:"most_imported,omitempty"` // import path with most importers
	IsolatedContracts   []string       `json:"isolated_contracts,omitempty"`
	ConnectedComponents int            `json:"connected_components"`
	CyclicDeps          [][]string     `json:"cyclic_deps,omitempty"` // source-level import cycles
	SourceFanOut        map[string]int `json:"source_fan_out"`        // per-source dependency count
}
