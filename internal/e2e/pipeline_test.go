// Package e2e exercises the full ingestion and retrieval pipeline against
// the in-memory vector store: admission, fingerprinting, chunking,
// embedding, index writes, search, the audit assistant and the structural
// graph, with no external services.
package e2e

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/soliscan/soliscan/internal/admission"
	"github.com/soliscan/soliscan/internal/auditor"
	"github.com/soliscan/soliscan/internal/contractgraph"
	"github.com/soliscan/soliscan/internal/ingest"
	"github.com/soliscan/soliscan/internal/llm"
	"github.com/soliscan/soliscan/internal/solidity"
	"github.com/soliscan/soliscan/internal/vector"
	"github.com/soliscan/soliscan/internal/vector/memory"
)

const embedDim = 64

// scriptedProvider is a deterministic stand-in for a real LLM backend.
// Embeddings are hashed bag-of-words vectors, so texts sharing vocabulary
// score higher under cosine similarity; completions replay a canned reply
// and record every prompt for assertions.
type scriptedProvider struct {
	reply string

	mu      sync.Mutex
	prompts []*llm.Prompt
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, embedDim)
		for _, tok := range strings.Fields(strings.ToLower(text)) {
			tok = strings.Trim(tok, "(){}[].,;:\"'")
			if tok == "" {
				continue
			}
			h := fnv.New32a()
			h.Write([]byte(tok))
			vec[h.Sum32()%embedDim]++
		}
		out[i] = vec
	}
	return out, nil
}

func (p *scriptedProvider) Complete(_ context.Context, prompt *llm.Prompt, _ *llm.RequestOptions) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
	return &llm.Response{Content: p.reply, Model: "scripted-1", InputTokens: 10, OutputTokens: 20}, nil
}

func (p *scriptedProvider) lastPrompt() *llm.Prompt {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.prompts) == 0 {
		return nil
	}
	return p.prompts[len(p.prompts)-1]
}

// newPipeline wires provider → gateway → service over a fresh in-memory
// store, mirroring what the binaries assemble from config.
func newPipeline(t *testing.T) (*ingest.Service, *scriptedProvider, *vector.Gateway) {
	t.Helper()

	provider := &scriptedProvider{reply: "scripted analysis"}
	index := vector.NewGateway(provider, memory.New(), embedDim)
	if err := index.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("ensure index: %v", err)
	}

	chunker, err := ingest.NewChunker(400, 80)
	if err != nil {
		t.Fatalf("chunker: %v", err)
	}

	return ingest.NewService(index, chunker, 5), provider, index
}

const vaultSource = `pragma solidity ^0.8.0;

import "./interfaces/IToken.sol";

contract TokenVault {
    mapping(address => uint256) public balances;
    address public owner;

    modifier onlyOwner() {
        require(msg.sender == owner, "not owner");
        _;
    }

    event Withdrawal(address indexed account, uint256 amount);

    function deposit() external payable {
        balances[msg.sender] += msg.value;
    }

    function withdraw(uint256 amount) external nonReentrant {
        require(balances[msg.sender] >= amount, "insufficient");
        balances[msg.sender] -= amount;
        (bool ok, ) = msg.sender.call{value: amount}("");
        require(ok, "transfer failed");
        emit Withdrawal(msg.sender, amount);
    }

    function pause() external onlyOwner {
        // halts deposits during migration
    }
}
`

const oracleSource = `pragma solidity ^0.8.0;

contract PriceOracle {
    uint256 public lastPrice;
    uint256 public lastUpdated;

    function update(uint256 price) external {
        require(block.timestamp > lastUpdated, "too soon");
        lastPrice = price;
        lastUpdated = block.timestamp;
    }
}
`

func TestPipeline_IngestAndSearch(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newPipeline(t)

	// 1. Write contract fixtures.
	tmpDir := t.TempDir()
	vaultPath := filepath.Join(tmpDir, "TokenVault.sol")
	oraclePath := filepath.Join(tmpDir, "PriceOracle.sol")
	if err := os.WriteFile(vaultPath, []byte(vaultSource), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(oraclePath, []byte(oracleSource), 0o644); err != nil {
		t.Fatal(err)
	}

	// 2. Admit and ingest both files.
	checks := admission.DefaultPipeline(1 << 20)
	for _, path := range []string{vaultPath, oraclePath} {
		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if decision := checks.Run(&admission.Submission{Path: path, Content: content}); !decision.Accepted {
			t.Fatalf("admission rejected %s: %s", path, decision.Reason())
		}
		res, err := svc.Ingest(ctx, ingest.Document{Path: path, Text: string(content)})
		if err != nil {
			t.Fatalf("ingest %s: %v", path, err)
		}
		if res.Status != ingest.StatusIngested {
			t.Fatalf("expected %s ingested, got %s", path, res.Status)
		}
		if res.ChunkCount == 0 {
			t.Fatalf("ingest %s produced no chunks", path)
		}
	}

	// 3. Identical content under a third path is a duplicate.
	res, err := svc.Ingest(ctx, ingest.Document{Path: "copy.sol", Text: vaultSource})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != ingest.StatusDuplicate {
		t.Fatalf("expected duplicate for identical content, got %s", res.Status)
	}

	// 4. Stats reflect both documents.
	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Vectors == 0 {
		t.Fatal("index is empty after ingestion")
	}
	if stats.Dimension != embedDim {
		t.Fatalf("expected dimension %d, got %d", embedDim, stats.Dimension)
	}

	// 5. A withdrawal-flavored query ranks the vault contract first.
	results, err := svc.Search(ctx, "withdraw balances transfer nonReentrant", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("search returned no results")
	}
	if got := results[0].Metadata["file_path"]; got != vaultPath {
		t.Errorf("expected top hit from %s, got %s", vaultPath, got)
	}

	// 6. Hits carry the structural and security metadata.
	top := results[0]
	if !strings.Contains(top.Metadata["contracts"], "TokenVault") {
		t.Errorf("expected contracts metadata to name TokenVault, got %q", top.Metadata["contracts"])
	}
	if !strings.Contains(top.Metadata["security_patterns"], solidity.TagReentrancyGuard) {
		t.Errorf("expected reentrancy guard tag, got %q", top.Metadata["security_patterns"])
	}
	if top.Metadata["content_type"] != "solidity_contract" {
		t.Errorf("unexpected content_type %q", top.Metadata["content_type"])
	}
}

func TestPipeline_DuplicateDetection(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newPipeline(t)

	first, err := svc.Ingest(ctx, ingest.Document{Path: "vault.sol", Text: vaultSource})
	if err != nil {
		t.Fatal(err)
	}
	if first.Status != ingest.StatusIngested {
		t.Fatalf("expected ingested, got %s", first.Status)
	}

	before, err := svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}

	// Same bytes under another path: skipped, index untouched.
	second, err := svc.Ingest(ctx, ingest.Document{Path: "renamed/vault.sol", Text: vaultSource})
	if err != nil {
		t.Fatal(err)
	}
	if second.Status != ingest.StatusDuplicate {
		t.Fatalf("expected duplicate, got %s", second.Status)
	}
	if second.Fingerprint != first.Fingerprint {
		t.Fatalf("fingerprint changed: %s vs %s", second.Fingerprint, first.Fingerprint)
	}

	after, err := svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if after.Vectors != before.Vectors {
		t.Fatalf("duplicate ingest wrote vectors: %d -> %d", before.Vectors, after.Vectors)
	}

	// One changed byte makes it a new document.
	third, err := svc.Ingest(ctx, ingest.Document{Path: "vault.sol", Text: vaultSource + "\n"})
	if err != nil {
		t.Fatal(err)
	}
	if third.Status != ingest.StatusIngested {
		t.Fatalf("expected modified content to ingest, got %s", third.Status)
	}
	if third.Fingerprint == first.Fingerprint {
		t.Fatal("distinct content produced the same fingerprint")
	}

	final, err := svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if final.Vectors <= after.Vectors {
		t.Fatalf("expected index to grow, got %d -> %d", after.Vectors, final.Vectors)
	}
}

func TestPipeline_AdmissionGate(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newPipeline(t)
	checks := admission.DefaultPipeline(256)

	cases := []struct {
		name    string
		path    string
		content []byte
	}{
		{"wrong extension", "malware.exe", []byte("contract X {}")},
		{"oversized", "big.sol", []byte(strings.Repeat("a", 300))},
		{"binary", "blob.sol", []byte{0x7f, 'E', 'L', 'F', 0x00, 0x01}},
		{"blank", "empty.sol", []byte("   \n\t  ")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision := checks.Run(&admission.Submission{Path: tc.path, Content: tc.content})
			if decision.Accepted {
				t.Fatalf("expected %s to be rejected", tc.path)
			}
			if decision.Reason() == "" {
				t.Error("rejection carries no reason")
			}
		})
	}

	// Nothing reached the index.
	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Vectors != 0 {
		t.Fatalf("expected empty index, got %d vectors", stats.Vectors)
	}
}

func TestPipeline_AuditAssistant(t *testing.T) {
	ctx := context.Background()
	svc, provider, _ := newPipeline(t)

	if _, err := svc.Ingest(ctx, ingest.Document{Path: "vault.sol", Text: vaultSource}); err != nil {
		t.Fatal(err)
	}

	// Reasoning tags in the raw completion must never reach callers.
	provider.reply = "<think>checking CEI ordering</think>The withdraw function updates balances before the external call."

	aud := auditor.New(provider, svc).WithIngester(svc)

	res, err := aud.Chat(ctx, "how does the vault guard withdraw against reentrancy", true)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !res.ContextUsed {
		t.Fatal("expected retrieval context for an on-corpus question")
	}
	if strings.Contains(res.Response, "<think>") {
		t.Errorf("reasoning tags leaked into the response: %q", res.Response)
	}
	if !strings.Contains(res.Response, "withdraw function updates balances") {
		t.Errorf("unexpected response: %q", res.Response)
	}

	// The indexed contract was quoted back into the prompt.
	prompt := provider.lastPrompt()
	if prompt == nil {
		t.Fatal("provider saw no prompt")
	}
	if !strings.Contains(prompt.SystemPrompt, "TokenVault") {
		t.Error("retrieved contract context missing from the prompt")
	}

	// Full analysis indexes the contract under review first, so the index
	// grows and retrieval can quote it.
	before, err := svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	analysis, err := aud.AnalyzeContract(ctx, oracleSource)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if analysis.ContractHash != ingest.Fingerprint(oracleSource) {
		t.Error("analysis fingerprint does not match the submitted source")
	}
	after, err := svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if after.Vectors <= before.Vectors {
		t.Error("pre-analysis ingestion did not reach the index")
	}
}

func TestPipeline_ChunkRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _, index := newPipeline(t)

	// A contract large enough to span many chunks.
	var b strings.Builder
	b.WriteString("pragma solidity ^0.8.0;\n\ncontract RewardLedger {\n")
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, "    function claimReward%d(address account) external returns (uint256) {\n        return rewards[account] * %d;\n    }\n\n", i, i)
	}
	b.WriteString("}\n")
	source := b.String()

	res, err := svc.Ingest(ctx, ingest.Document{Path: "ledger.sol", Text: source})
	if err != nil {
		t.Fatal(err)
	}
	if res.ChunkCount < 2 {
		t.Fatalf("expected a multi-chunk document, got %d chunks", res.ChunkCount)
	}

	// Pull every chunk back out via the fingerprint filter and reassemble:
	// first chunk whole, then each chunk minus its leading overlap.
	hits, err := index.SimilaritySearch(ctx, "claimReward rewards ledger", res.ChunkCount+10, map[string]string{"file_hash": res.Fingerprint})
	if err != nil {
		t.Fatalf("filtered search: %v", err)
	}
	if len(hits) != res.ChunkCount {
		t.Fatalf("expected %d chunks back, got %d", res.ChunkCount, len(hits))
	}

	sort.Slice(hits, func(i, j int) bool {
		a, _ := strconv.Atoi(hits[i].Metadata["chunk_index"])
		b, _ := strconv.Atoi(hits[j].Metadata["chunk_index"])
		return a < b
	})

	var rebuilt strings.Builder
	for i, h := range hits {
		if i == 0 {
			rebuilt.WriteString(h.Content)
			continue
		}
		rebuilt.WriteString(h.Content[80:])
	}
	if rebuilt.String() != source {
		t.Error("reassembled chunks do not reproduce the source")
	}
}

func TestPipeline_StructuralGraph(t *testing.T) {
	// The same corpus feeds the structural analyzer without touching the
	// vector index.
	sources := []contractgraph.Source{
		{Path: "TokenVault.sol", Meta: solidity.Extract(vaultSource)},
		{Path: "PriceOracle.sol", Meta: solidity.Extract(oracleSource)},
	}

	g := contractgraph.Analyze(sources)

	var sawVault, sawOracle bool
	for _, n := range g.Nodes {
		if n.Kind != contractgraph.NodeContract {
			continue
		}
		switch n.Name {
		case "TokenVault":
			sawVault = true
		case "PriceOracle":
			sawOracle = true
		}
	}
	if !sawVault || !sawOracle {
		t.Fatalf("contract nodes missing: vault=%v oracle=%v", sawVault, sawOracle)
	}

	var sawImport bool
	for _, e := range g.Edges {
		if e.Kind == contractgraph.EdgeImports {
			sawImport = true
		}
	}
	if !sawImport {
		t.Error("vault import edge missing from the graph")
	}

	dot := contractgraph.ExportDOT(g)
	if !strings.Contains(dot, "TokenVault") {
		t.Error("DOT export does not mention TokenVault")
	}
}
