package contractgraph

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExportDOT generates a Graphviz DOT representation of the graph.
func ExportDOT(g *Graph) string {
	var b strings.Builder
	b.WriteString("digraph contracts {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\" fontsize=10];\n\n")

	// Shared import nodes sit at the top level; everything else clusters
	// under its declaring source file.
	for _, n := range g.Nodes {
		if n.Kind == NodeImport {
			b.WriteString(fmt.Sprintf("  \"%s\" [label=\"%s\" shape=%s style=filled fillcolor=\"%s\"];\n",
				n.ID, n.Name, nodeShape(n.Kind), nodeColor(n.Kind)))
		}
	}

	clusters := make(map[string][]Node)
	for _, n := range g.Nodes {
		if n.Kind != NodeSource && n.Kind != NodeImport {
			clusters[n.Source] = append(clusters[n.Source], n)
		}
	}

	for source, nodes := range clusters {
		b.WriteString(fmt.Sprintf("  subgraph cluster_%s {\n", sanitizeID(source)))
		b.WriteString(fmt.Sprintf("    label=\"%s\";\n", source))
		b.WriteString("    style=dashed;\n")
		b.WriteString("    color=\"#58a6ff\";\n")
		for _, n := range nodes {
			b.WriteString(fmt.Sprintf("    \"%s\" [label=\"%s\" shape=%s style=filled fillcolor=\"%s\"];\n",
				n.ID, n.Name, nodeShape(n.Kind), nodeColor(n.Kind)))
		}
		b.WriteString("  }\n\n")
	}

	for _, e := range g.Edges {
		label := ""
		if e.Label != "" {
			label = fmt.Sprintf(" label=\"%s\"", e.Label)
		}
		b.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\" [style=%s color=\"%s\"%s];\n",
			e.From, e.To, edgeStyle(e.Kind), edgeColor(e.Kind), label))
	}

	b.WriteString("}\n")
	return b.String()
}

// ExportMermaid generates a Mermaid diagram of the graph.
func ExportMermaid(g *Graph) string {
	var b strings.Builder
	b.WriteString("graph LR\n")

	for _, n := range g.Nodes {
		if n.Kind == NodeImport {
			b.WriteString(fmt.Sprintf("  %s%s\n", sanitizeID(n.ID), mermaidNodeShape(n)))
		}
	}

	clusters := make(map[string][]Node)
	for _, n := range g.Nodes {
		if n.Kind != NodeImport {
			clusters[n.Source] = append(clusters[n.Source], n)
		}
	}

	for source, nodes := range clusters {
		b.WriteString(fmt.Sprintf("  subgraph %s\n", sanitizeID(source)))
		for _, n := range nodes {
			b.WriteString(fmt.Sprintf("    %s%s\n", sanitizeID(n.ID), mermaidNodeShape(n)))
		}
		b.WriteString("  end\n")
	}

	for _, e := range g.Edges {
		label := ""
		if e.Label != "" {
			label = "|" + e.Label + "|"
		}
		b.WriteString(fmt.Sprintf("  %s %s%s %s\n",
			sanitizeID(e.From), mermaidArrow(e.Kind), label, sanitizeID(e.To)))
	}

	return b.String()
}

// ExportJSON serializes the graph to JSON.
func ExportJSON(g *Graph) ([]byte, error) {
	return json.MarshalIndent(g, "", "  ")
}

// FormatStats returns a human-readable summary of graph statistics.
func FormatStats(g *Graph) string {
	var b strings.Builder
	b.WriteString("Contract Graph Statistics\n")
	b.WriteString("=========================\n\n")
	b.WriteString(fmt.Sprintf("Nodes:       %d total\n", g.Stats.TotalNodes))
	b.WriteString(fmt.Sprintf("  Sources:   %d\n", g.Stats.SourceCount))
	b.WriteString(fmt.Sprintf("  Contracts: %d\n", g.Stats.ContractCount))
	b.WriteString(fmt.Sprintf("  Functions: %d\n", g.Stats.FunctionCount))
	b.WriteString(fmt.Sprintf("  Imports:   %d\n", g.Stats.ImportCount))
	b.WriteString(fmt.Sprintf("Edges:       %d total\n", g.Stats.TotalEdges))
	b.WriteString(fmt.Sprintf("Max Fan-Out: %d (%s)\n", g.Stats.MaxFanOut, g.Stats.HotspotNode))
	b.WriteString(fmt.Sprintf("Max Fan-In:  %d\n", g.Stats.MaxFanIn))
	if g.Stats.MostImported != "" {
		b.WriteString(fmt.Sprintf("Most Imported: %s\n", g.Stats.MostImported))
	}
	b.WriteString(fmt.Sprintf("Components:  %d\n", g.Stats.ConnectedComponents))

	if len(g.Stats.IsolatedContracts) > 0 {
		b.WriteString(fmt.Sprintf("\nIsolated Contracts: %s\n", strings.Join(g.Stats.IsolatedContracts, ", ")))
	}

	if len(g.Stats.CyclicDeps) > 0 {
		b.WriteString(fmt.Sprintf("\nImport Cycles: %d\n", len(g.Stats.CyclicDeps)))
		for i, cycle := range g.Stats.CyclicDeps {
			b.WriteString(fmt.Sprintf("  %d: %s\n", i+1, strings.Join(cycle, " -> ")))
		}
	}

	if len(g.Stats.SourceFanOut) > 0 {
		b.WriteString("\nSource Dependencies:\n")
		for source, count := range g.Stats.SourceFanOut {
			b.WriteString(fmt.Sprintf("  %s: %d outgoing\n", source, count))
		}
	}

	return b.String()
}

func sanitizeID(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, s)
}

func nodeShape(kind NodeKind) string {
	switch kind {
	case NodeSource:
		return "box3d"
	case NodeContract:
		return "box"
	case NodeFunction:
		return "ellipse"
	case NodeImport:
		return "diamond"
	default:
		return "box"
	}
}

func nodeColor(kind NodeKind) string {
	switch kind {
	case NodeSource:
		return "#1f6feb"
	case NodeContract:
		return "#238636"
	case NodeFunction:
		return "#8957e5"
	case NodeImport:
		return "#d29922"
	default:
		return "#30363d"
	}
}

func edgeStyle(kind EdgeKind) string {
	switch kind {
	case EdgeDeclares:
		return "dashed"
	case EdgeImports:
		return "solid"
	case EdgeDependsOn:
		return "bold"
	default:
		return "solid"
	}
}

func edgeColor(kind EdgeKind) string {
	switch kind {
	case EdgeDeclares:
		return "#8b949e"
	case EdgeImports:
		return "#3fb950"
	case EdgeDependsOn:
		return "#f85149"
	default:
		return "#c9d1d9"
	}
}

func mermaidNodeShape(n Node) string {
	switch n.Kind {
	case NodeSource:
		return fmt.Sprintf("[[\"%s\"]]", n.Name)
	case NodeContract:
		return fmt.Sprintf("[\"%s\"]", n.Name)
	case NodeFunction:
		return fmt.Sprintf("([\"%s\"])", n.Name)
	case NodeImport:
		return fmt.Sprintf("{\"%s\"}", n.Name)
	default:
		return fmt.Sprintf("[\"%s\"]", n.Name)
	}
}

func mermaidArrow(kind EdgeKind) string {
	switch kind {
	case EdgeDeclares:
		return "-.->"
	case EdgeImports:
		return "-->"
	case EdgeDependsOn:
		return "===>"
	default:
		return "-->"
	}
}
