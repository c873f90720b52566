package contractgraph

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/soliscan/soliscan/internal/solidity"
)

// Source is one parsed source file.
type Source struct {
	Path string
	Meta solidity.Metadata
}

// Analyze builds a contract graph from parsed sources.
func Analyze(sources []Source) *Graph {
	g := &Graph{}

	nodeMap := make(map[string]bool) // track existing node IDs

	for _, src := range sources {
		srcID := "src:" + src.Path
		if !nodeMap[srcID] {
			node := Node{
				ID:     srcID,
				Name:   src.Path,
				Kind:   NodeSource,
				Source: src.Path,
			}
			if src.Meta.Pragma != "" {
				node.Metadata = map[string]string{"pragma": src.Meta.Pragma}
			}
			g.Nodes = append(g.Nodes, node)
			nodeMap[srcID] = true
		}

		for _, contract := range src.Meta.Contracts {
			ctID := "ct:" + contract
			if !nodeMap[ctID] {
				g.Nodes = append(g.Nodes, Node{
					ID:     ctID,
					Name:   contract,
					Kind:   NodeContract,
					Source: src.Path,
				})
				nodeMap[ctID] = true
			}
			g.Edges = append(g.Edges, Edge{
				From: srcID,
				To:   ctID,
				Kind: EdgeDeclares,
			})
		}

		// Functions hang off the file's first contract; contract-less
		// files keep them on the source node.
		owner := srcID
		if len(src.Meta.Contracts) > 0 {
			owner = "ct:" + src.Meta.Contracts[0]
		}
		for _, fn := range src.Meta.Functions {
			fnID := fmt.Sprintf("fn:%s.%s", src.Path, fn)
			if !nodeMap[fnID] {
				g.Nodes = append(g.Nodes, Node{
					ID:     fnID,
					Name:   fn,
					Kind:   NodeFunction,
					Source: src.Path,
				})
				nodeMap[fnID] = true
			}
			g.Edges = append(g.Edges, Edge{
				From: owner,
				To:   fnID,
				Kind: EdgeDeclares,
			})
		}

		for _, imp := range src.Meta.Imports {
			impID := "imp:" + imp
			if !nodeMap[impID] {
				g.Nodes = append(g.Nodes, Node{
					ID:   impID,
					Name: imp,
					Kind: NodeImport,
				})
				nodeMap[impID] = true
			}
			g.Edges = append(g.Edges, Edge{
				From: srcID,
				To:   impID,
				Kind: EdgeImports,
			})
		}
	}

	g.addSourceDependencies(sources)
	g.computeStats()

	return g
}

// addSourceDependencies resolves import paths against the indexed sources
// and adds source-to-source edges. Resolution matches on file basename,
// which covers the relative "./X.sol" style Solidity uses.
func (g *Graph) addSourceDependencies(sources []Source) {
	byBase := make(map[string][]string)
	for _, src := range sources {
		base := path.Base(src.Path)
		byBase[base] = append(byBase[base], src.Path)
	}

	for _, src := range sources {
		for _, imp := range src.Meta.Imports {
			for _, target := range byBase[path.Base(imp)] {
				if target == src.Path {
					continue
				}
				from, to := "src:"+src.Path, "src:"+target
				if !hasEdge(g, from, to, EdgeDependsOn) {
					g.Edges = append(g.Edges, Edge{
						From: from,
						To:   to,
						Kind: EdgeDependsOn,
					})
				}
			}
		}
	}
}

func hasEdge(g *Graph, from, to string, kind EdgeKind) bool {
	for _, e := range g.Edges {
		if e.From == from && e.To == to && e.Kind == kind {
			return true
		}
	}
	return false
}

// sourceOf strips the kind prefix from a source node ID.
func sourceOf(nodeID string) string {
	return strings.TrimPrefix(nodeID, "src:")
}

// computeStats computes graph metrics
func (g *Graph) computeStats() {
	g.Stats.TotalNodes = len(g.Nodes)
	g.Stats.TotalEdges = len(g.Edges)

	fanOut := make(map[string]int)
	fanIn := make(map[string]int)
	g.Stats.SourceFanOut = make(map[string]int)

	for _, n := range g.Nodes {
		switch n.Kind {
		case NodeSource:
			g.Stats.SourceCount++
		case NodeContract:
			g.Stats.ContractCount++
		case NodeFunction:
			g.Stats.FunctionCount++
		case NodeImport:
			g.Stats.ImportCount++
		}
	}

	for _, e := range g.Edges {
		fanOut[e.From]++
		fanIn[e.To]++
		if e.Kind == EdgeDependsOn {
			g.Stats.SourceFanOut[sourceOf(e.From)]++
		}
	}

	for id, count := range fanOut {
		if count > g.Stats.MaxFanOut {
			g.Stats.MaxFanOut = count
			g.Stats.HotspotNode = id
		}
	}
	for _, count := range fanIn {
		if count > g.Stats.MaxFanIn {
			g.Stats.MaxFanIn = count
		}
	}

	g.Stats.MostImported = g.mostImported(fanIn)
	g.Stats.IsolatedContracts = g.isolatedContracts()
	g.Stats.ConnectedComponents = g.countComponents()
	g.Stats.CyclicDeps = g.detectCycles()
}

// mostImported returns the import path with the highest fan-in.
func (g *Graph) mostImported(fanIn map[string]int) string {
	best, bestCount := "", 0
	for _, n := range g.Nodes {
		if n.Kind != NodeImport {
			continue
		}
		if count := fanIn[n.ID]; count > bestCount {
			best, bestCount = n.Name, count
		}
	}
	return best
}

// isolatedContracts lists contracts whose declaring source has no
// dependency edges in either direction.
func (g *Graph) isolatedContracts() []string {
	connected := make(map[string]bool)
	for _, e := range g.Edges {
		if e.Kind == EdgeDependsOn {
			connected[sourceOf(e.From)] = true
			connected[sourceOf(e.To)] = true
		}
	}

	var isolated []string
	for _, n := range g.Nodes {
		if n.Kind == NodeContract && !connected[n.Source] {
			isolated = append(isolated, n.Name)
		}
	}
	sort.Strings(isolated)
	return isolated
}

// countComponents counts connected components via union-find
func (g *Graph) countComponents() int {
	parent := make(map[string]string)
	var find func(string) string
	find = func(x string) string {
		if parent[x] == "" {
			parent[x] = x
		}
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		fa, fb := find(a), find(b)
		if fa != fb {
			parent[fa] = fb
		}
	}

	for _, n := range g.Nodes {
		find(n.ID)
	}
	for _, e := range g.Edges {
		union(e.From, e.To)
	}

	roots := make(map[string]bool)
	for _, n := range g.Nodes {
		roots[find(n.ID)] = true
	}
	return len(roots)
}

// detectCycles finds import cycles using DFS on source-level dependency edges
func (g *Graph) detectCycles() [][]string {
	adj := make(map[string][]string)
	sources := make(map[string]bool)

	for _, e := range g.Edges {
		if e.Kind == EdgeDependsOn {
			from := sourceOf(e.From)
			to := sourceOf(e.To)
			adj[from] = append(adj[from], to)
			sources[from] = true
			sources[to] = true
		}
	}

	var cycles [][]string
	visited := make(map[string]int) // 0=unvisited, 1=in-progress, 2=done
	stack := make([]string, 0)

	var dfs func(node string)
	dfs = func(node string) {
		if visited[node] == 2 {
			return
		}
		if visited[node] == 1 {
			// Found cycle - extract it
			cycle := make([]string, 0)
			for i := len(stack) - 1; i >= 0; i-- {
				cycle = append(cycle, stack[i])
				if stack[i] == node {
					break
				}
			}
			for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
				cycle[i], cycle[j] = cycle[j], cycle[i]
			}
			cycles = append(cycles, cycle)
			return
		}
		visited[node] = 1
		stack = append(stack, node)
		for _, next := range adj[node] {
			dfs(next)
		}
		stack = stack[:len(stack)-1]
		visited[node] = 2
	}

	// Sort sources for deterministic output
	sorted := make([]string, 0, len(sources))
	for s := range sources {
		sorted = append(sorted, s)
	}
	sort.Strings(sorted)

	for _, s := range sorted {
		if visited[s] == 0 {
			dfs(s)
		}
	}

	return cycles
}
