// Package solidity extracts structural metadata and security-relevant tags
// from Solidity source text using a fixed set of patterns. Extraction is
// total: input that does not compile, or is not Solidity at all, yields
// empty results rather than errors.
package solidity

import (
	"regexp"
	"strings"
)

// Metadata holds the structural facts extracted from one source file.
// All slices preserve declaration order and contain no duplicates.
type Metadata struct {
	Contracts []string `json:"contracts"`
	Functions []string `json:"functions"`
	Modifiers []string `json:"modifiers"`
	Events    []string `json:"events"`
	Imports   []string `json:"imports"`
	Pragma    string   `json:"pragma"`
}

var (
	// contract Foo is Bar { ... }
	contractPattern = regexp.MustCompile(`(?s)contract\s+(\w+).*?\{`)

	// function transfer(address to, uint256 amount) public returns (bool) { ... }
	functionPattern = regexp.MustCompile(`(?s)function\s+(\w+)\s*\([^)]*\)\s*(?:public|private|internal|external)?\s*(?:view|pure|payable)?\s*(?:returns\s*\([^)]*\))?\s*\{`)

	// modifier onlyOwner() { ... }
	modifierPattern = regexp.MustCompile(`(?s)modifier\s+(\w+)\s*\([^)]*\)\s*\{`)

	// event Transfer(address indexed from, address indexed to, uint256 value);
	eventPattern = regexp.MustCompile(`event\s+(\w+)\s*\([^)]*\);`)

	// import "@openzeppelin/contracts/token/ERC20/ERC20.sol";
	importPattern = regexp.MustCompile(`import\s+[^;]+;`)

	// pragma solidity ^0.8.0;
	pragmaPattern = regexp.MustCompile(`pragma\s+solidity\s+([^;]+);`)
)

// Extract parses source text and returns its structural metadata. It never
// fails; categories without a match come back empty.
func Extract(text string) Metadata {
	md := Metadata{}

	if m := pragmaPattern.FindStringSubmatch(text); len(m) > 1 {
		md.Pragma = strings.TrimSpace(m[1])
	}

	for _, m := range importPattern.FindAllString(text, -1) {
		md.Imports = append(md.Imports, strings.TrimSpace(m))
	}

	md.Contracts = submatches(contractPattern, text)
	md.Functions = submatches(functionPattern, text)
	md.Modifiers = submatches(modifierPattern, text)
	md.Events = submatches(eventPattern, text)

	return md
}

// submatches collects the first capture group of every match, deduplicated
// in first-seen order.
func submatches(p *regexp.Regexp, text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range p.FindAllStringSubmatch(text, -1) {
		if len(m) < 2 {
			continue
		}
		name := m[1]
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// ImportPath reduces a full import statement to the quoted path, when one is
// present. Used by the contract graph to label import nodes.
func ImportPath(stmt string) string {
	start := strings.IndexAny(stmt, `"'`)
	if start == -1 {
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(stmt, "import"), ";"))
	}
	quote := stmt[start]
	end := strings.IndexByte(stmt[start+1:], quote)
	if end == -1 {
		return stmt[start+1:]
	}
	return stmt[start+1 : start+1+end]
}
