// Package auditor implements the retrieval-augmented audit assistant. It
// answers questions about indexed contracts, runs full security analyses,
// suggests improvements and explains vulnerability classes, using the vector
// index for context and an LLM provider for the reasoning.
package auditor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/soliscan/soliscan/internal/ingest"
	"github.com/soliscan/soliscan/internal/llm"
	"github.com/soliscan/soliscan/internal/observability"
	"github.com/soliscan/soliscan/internal/vector"
)

const (
	defaultTopK        = 5
	defaultTemperature = 0.1
	defaultMaxTokens   = 2000

	// historyWindow is how many prior messages accompany each chat turn.
	historyWindow = 10
)

// Retriever supplies contract context for audit prompts. *ingest.Service
// satisfies it.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]vector.SearchResult, error)
}

// Ingester persists a contract under analysis so retrieval can see it.
type Ingester interface {
	Ingest(ctx context.Context, doc ingest.Document) (*ingest.Result, error)
}

// ChatResult is one answer from the conversational interface.
type ChatResult struct {
	Response    string    `json:"response"`
	ContextUsed bool      `json:"context_used"`
	Timestamp   time.Time `json:"timestamp"`
}

// AnalysisResult is a full security analysis of one contract.
type AnalysisResult struct {
	Analysis     string    `json:"analysis"`
	ContractHash string    `json:"contract_hash"`
	Timestamp    time.Time `json:"timestamp"`
}

// ImprovementResult lists suggested improvements for one contract.
type ImprovementResult struct {
	Improvements string    `json:"improvements"`
	Timestamp    time.Time `json:"timestamp"`
}

// ExplanationResult explains one vulnerability class.
type ExplanationResult struct {
	Explanation       string    `json:"explanation"`
	VulnerabilityType string    `json:"vulnerability_type"`
	Timestamp         time.Time `json:"timestamp"`
}

// ConversationSummary describes the current conversation state.
type ConversationSummary struct {
	MessageCount       int        `json:"message_count"`
	LastInteraction    *time.Time `json:"last_interaction,omitempty"`
	ConversationLength int        `json:"conversation_length"`
}

// Auditor is the audit assistant. Conversation state is guarded by a mutex;
// one Auditor serves all callers of a process.
type Auditor struct {
	provider    llm.Provider
	retriever   Retriever
	ingester    Ingester
	topK        int
	temperature float64
	maxTokens   int
	logger      *slog.Logger

	mu      sync.Mutex
	history []llm.Message
	lastAt  time.Time
}

// New creates an audit assistant over the given LLM provider and retriever.
func New(provider llm.Provider, retriever Retriever) *Auditor {
	return &Auditor{
		provider:    provider,
		retriever:   retriever,
		topK:        defaultTopK,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
		logger:      slog.Default(),
	}
}

// WithIngester lets AnalyzeContract index the contract under analysis so the
// retrieval step can quote it back.
func (a *Auditor) WithIngester(i Ingester) *Auditor {
	a.ingester = i
	return a
}

// WithLogger replaces the default logger.
func (a *Auditor) WithLogger(logger *slog.Logger) *Auditor {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// WithTopK overrides how many context chunks are retrieved per query.
func (a *Auditor) WithTopK(topK int) *Auditor {
	if topK > 0 {
		a.topK = topK
	}
	return a
}

// Chat answers a user message, optionally grounding the answer in retrieved
// contract context, and appends the exchange to the conversation history.
func (a *Auditor) Chat(ctx context.Context, message string, includeContext bool) (*ChatResult, error) {
	contextText, found := "", false
	if includeContext {
		contextText, found = a.retrieveContext(ctx, message)
	}

	prompt := plainPrompt(message)
	if found {
		prompt = auditPrompt(contextText, message)
	}
	prompt.Messages = append(a.window(), prompt.Messages...)

	resp, err := a.complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}

	a.remember(message, resp.Content)

	return &ChatResult{
		Response:    resp.Content,
		ContextUsed: found,
		Timestamp:   time.Now(),
	}, nil
}

// AnalyzeContract runs a full security audit of the given contract source.
// When an ingester is configured the contract is indexed first so retrieval
// can surface related, previously indexed code.
func (a *Auditor) AnalyzeContract(ctx context.Context, content string) (*AnalysisResult, error) {
	if a.ingester != nil {
		path := fmt.Sprintf("temp_analysis_%d.sol", time.Now().UnixNano())
		if _, err := a.ingester.Ingest(ctx, ingest.Document{Path: path, Text: content}); err != nil {
			a.logger.Warn("pre-analysis ingestion failed", "error", err)
		}
	}

	query := analysisQuery(content)
	resp, err := a.completeWithContext(ctx, query, query)
	if err != nil {
		return nil, fmt.Errorf("analyze contract: %w", err)
	}

	return &AnalysisResult{
		Analysis:     resp.Content,
		ContractHash: ingest.Fingerprint(content),
		Timestamp:    time.Now(),
	}, nil
}

// SuggestImprovements proposes concrete improvements for the given contract.
func (a *Auditor) SuggestImprovements(ctx context.Context, content string) (*ImprovementResult, error) {
	query := improvementQuery(content)
	resp, err := a.completeWithContext(ctx, query, query)
	if err != nil {
		return nil, fmt.Errorf("suggest improvements: %w", err)
	}

	return &ImprovementResult{
		Improvements: resp.Content,
		Timestamp:    time.Now(),
	}, nil
}

// ExplainVulnerability explains a vulnerability class, grounded in indexed
// contracts that exhibit it when any exist.
func (a *Auditor) ExplainVulnerability(ctx context.Context, vulnerabilityType string) (*ExplanationResult, error) {
	query := explanationQuery(vulnerabilityType)
	searchQuery := vulnerabilityType + " vulnerability smart contract"

	resp, err := a.completeWithContext(ctx, query, searchQuery)
	if err != nil {
		return nil, fmt.Errorf("explain vulnerability: %w", err)
	}

	return &ExplanationResult{
		Explanation:       resp.Content,
		VulnerabilityType: vulnerabilityType,
		Timestamp:         time.Now(),
	}, nil
}

// ClearConversation drops the conversation history.
func (a *Auditor) ClearConversation() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = nil
	a.lastAt = time.Time{}
}

// Summary reports the current conversation state.
func (a *Auditor) Summary() ConversationSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	length := 0
	for _, m := range a.history {
		length += len(m.Content)
	}

	summary := ConversationSummary{
		MessageCount:       len(a.history),
		ConversationLength: length,
	}
	if !a.lastAt.IsZero() {
		last := a.lastAt
		summary.LastInteraction = &last
	}
	return summary
}

// completeWithContext retrieves context for searchQuery and completes the
// audit prompt for query. One-shot: conversation history is not involved.
func (a *Auditor) completeWithContext(ctx context.Context, query, searchQuery string) (*llm.Response, error) {
	contextText, found := a.retrieveContext(ctx, searchQuery)
	if !found {
		contextText = noContextMessage
	}
	return a.complete(ctx, auditPrompt(contextText, query))
}

// complete runs one LLM call with the audit defaults and records the span,
// token usage and audit trail entry.
func (a *Auditor) complete(ctx context.Context, prompt *llm.Prompt) (*llm.Response, error) {
	start := time.Now()
	ctx, span := observability.StartChatSpan(ctx, a.provider.Name(), "")
	defer span.End()

	resp, err := a.provider.Complete(ctx, prompt, &llm.RequestOptions{
		Temperature: llm.FloatPtr(a.temperature),
		MaxTokens:   llm.IntPtr(a.maxTokens),
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	elapsed := time.Since(start)
	observability.RecordLLMUsage(span, resp.InputTokens, resp.OutputTokens, elapsed)
	observability.Audit().LogChat(ctx, a.provider.Name(), resp.Model, resp.InputTokens, resp.OutputTokens, elapsed)

	// Local models may prepend <think> reasoning; never show it to callers.
	resp.Content = llm.StripThinkingTags(resp.Content)

	return resp, nil
}

// retrieveContext searches the index and formats the hits into prompt
// context. Retrieval failures degrade to an uncontextualized answer.
func (a *Auditor) retrieveContext(ctx context.Context, query string) (string, bool) {
	results, err := a.retriever.Search(ctx, query, a.topK)
	if err != nil {
		a.logger.Warn("context retrieval failed", "error", err)
		return "", false
	}
	if len(results) == 0 {
		return "", false
	}
	return formatContext(results), true
}

// window returns a copy of the most recent history messages.
func (a *Auditor) window() []llm.Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	h := a.history
	if len(h) > historyWindow {
		h = h[len(h)-historyWindow:]
	}
	out := make([]llm.Message, len(h))
	copy(out, h)
	return out
}

func (a *Auditor) remember(userMessage, assistantReply string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history,
		llm.Message{Role: llm.RoleUser, Content: userMessage},
		llm.Message{Role: llm.RoleAssistant, Content: assistantReply},
	)
	a.lastAt = time.Now()
}
