package solidity

import "regexp"

// Security tags form a fixed vocabulary. Each tag is emitted when its
// pattern occurs anywhere in the source, matched case-insensitively.
const (
	TagReentrancyGuard   = "reentrancy_guard_present"
	TagAccessControl     = "access_control_present"
	TagUncheckedMath     = "uses_unchecked_arithmetic"
	TagSafeMath          = "uses_safe_math"
	TagExternalCalls     = "performs_external_calls"
	TagBlockTimestamp    = "uses_block_timestamp"
	TagBlockRandomness   = "uses_block_based_randomness"
	TagOverflowChecks    = "has_explicit_overflow_checks"
)

// securityRule pairs a tag with the pattern that triggers it. Rules are
// evaluated in order, so tag output order is stable across runs.
type securityRule struct {
	tag     string
	pattern *regexp.Regexp
}

var securityRules = []securityRule{
	{TagReentrancyGuard, regexp.MustCompile(`(?i)nonReentrant|ReentrancyGuard`)},
	{TagAccessControl, regexp.MustCompile(`(?i)onlyOwner|onlyAdmin|require\s*\(\s*msg\.sender`)},
	{TagUncheckedMath, regexp.MustCompile(`(?i)unchecked\s*\{`)},
	{TagSafeMath, regexp.MustCompile(`(?i)SafeMath|\.add\(|\.sub\(|\.mul\(|\.div\(`)},
	{TagExternalCalls, regexp.MustCompile(`(?i)\.call\(|\.delegatecall\(|\.staticcall\(`)},
	{TagBlockTimestamp, regexp.MustCompile(`(?i)block\.timestamp|now\s`)},
	{TagBlockRandomness, regexp.MustCompile(`(?i)block\.difficulty|blockhash\(`)},
	{TagOverflowChecks, regexp.MustCompile(`(?i)require\s*\([^)]*[+\-]`)},
}

// SecurityTags scans source text for heuristic security-relevant patterns
// and returns the matching tags in rule order. Like Extract, it is total.
func SecurityTags(text string) []string {
	var tags []string
	for _, r := range securityRules {
		if r.pattern.MatchString(text) {
			tags = append(tags, r.tag)
		}
	}
	return tags
}
