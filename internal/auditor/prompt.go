package auditor

import (
	"fmt"
	"strings"

	"github.com/soliscan/soliscan/internal/llm"
	"github.com/soliscan/soliscan/internal/vector"
)

const systemPrompt = `You are an expert Smart Contract Security Auditor with deep knowledge of Solidity, blockchain security, and common vulnerabilities. Your role is to help users analyze smart contracts for security issues, best practices, and potential improvements.

CORE CAPABILITIES:
1. Security Vulnerability Detection (Reentrancy, Integer Overflow/Underflow, Access Control, etc.)
2. Gas Optimization Analysis
3. Code Quality Assessment
4. Best Practices Recommendations
5. Compliance Checking (ERC standards, etc.)

AUDIT METHODOLOGY:
- Always provide specific line references when discussing code
- Categorize findings by severity: CRITICAL, HIGH, MEDIUM, LOW, INFORMATIONAL
- Explain the potential impact and exploitation scenarios
- Suggest specific remediation steps
- Consider both automated and manual testing approaches

RESPONSE FORMAT:
- Start with a brief summary of findings
- Provide detailed analysis with code references
- Include severity ratings and risk assessments
- Offer concrete remediation suggestions
- Mention relevant tools and testing strategies

SECURITY FOCUS AREAS:
- Reentrancy attacks and state changes
- Access control and authorization
- Integer arithmetic and overflow protection
- External call safety
- Randomness and timestamp dependencies
- Front-running and MEV considerations
- Gas limit and DoS vulnerabilities
- Upgrade patterns and proxy security

Always be thorough, precise, and educational in your responses. When analyzing provided contract code, reference specific functions, variables, and patterns you observe.`

const noContextMessage = "No relevant contract context found in the database."

// maxListedFunctions limits how many function names appear per context block.
const maxListedFunctions = 5

// Long contract bodies are truncated before being embedded in audit queries.
const (
	analysisExcerptLimit    = 2000
	improvementExcerptLimit = 1500
)

// auditPrompt embeds retrieved contract context into the system message and
// frames the user's question as an audit query.
func auditPrompt(contextText, query string) *llm.Prompt {
	system := fmt.Sprintf(`%s

RELEVANT CONTRACT CONTEXT:
%s

Based on the above context and your expertise, provide a comprehensive audit response to the user's query.`, systemPrompt, contextText)

	user := fmt.Sprintf(`User Query: %s

Please analyze the provided smart contract context and address the user's specific question or concern.
Focus on security implications, best practices, and actionable recommendations.`, query)

	return &llm.Prompt{
		SystemPrompt: system,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: user}},
	}
}

// plainPrompt is used when no contract context is available.
func plainPrompt(query string) *llm.Prompt {
	return llm.UserPrompt(systemPrompt, query)
}

// formatContext renders search hits as numbered context blocks.
func formatContext(results []vector.SearchResult) string {
	parts := make([]string, 0, len(results))
	for i, r := range results {
		functions := splitList(r.Metadata["functions"])
		if len(functions) > maxListedFunctions {
			functions = functions[:maxListedFunctions]
		}
		parts = append(parts, fmt.Sprintf(`
--- Contract Context %d ---
File: %s
Contracts: %s
Functions: %s
Security Patterns: %s

Code:
%s
`,
			i+1,
			valueOr(r.Metadata["file_path"], "Unknown"),
			joinList(splitList(r.Metadata["contracts"])),
			joinList(functions),
			joinList(splitList(r.Metadata["security_patterns"])),
			r.Content,
		))
	}
	return strings.Join(parts, "\n")
}

func analysisQuery(content string) string {
	return fmt.Sprintf(`Perform a comprehensive security audit of this smart contract:

%s

Focus on:
1. Critical vulnerabilities (reentrancy, access control, etc.)
2. Gas optimization opportunities
3. Best practices compliance
4. Potential attack vectors`, excerpt(content, analysisExcerptLimit))
}

func improvementQuery(content string) string {
	return fmt.Sprintf(`Analyze this smart contract and suggest specific improvements:

%s

Focus on:
1. Code optimization and gas efficiency
2. Security enhancements
3. Readability and maintainability
4. Standard compliance (ERC-20, ERC-721, etc.)
5. Testing and deployment considerations`, excerpt(content, improvementExcerptLimit))
}

func explanationQuery(vulnerabilityType string) string {
	return fmt.Sprintf(`Provide a detailed explanation of the %s vulnerability in smart contracts:

1. What is it and how does it work?
2. Common scenarios where it occurs
3. Example vulnerable code patterns
4. How to detect it
5. Prevention and mitigation strategies
6. Real-world examples if applicable`, vulnerabilityType)
}

// excerpt truncates long contract bodies so audit queries stay within
// prompt budgets.
func excerpt(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func joinList(items []string) string {
	return strings.Join(items, ", ")
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
