package llm

import "testing"

func TestStripThinkingTags(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "no tags",
			in:   "The withdraw function is vulnerable to reentrancy.",
			want: "The withdraw function is vulnerable to reentrancy.",
		},
		{
			name: "single block",
			in:   "<think>check CEI ordering</think>State is written after the external call.",
			want: "State is written after the external call.",
		},
		{
			name: "block mid answer",
			in:   "Finding: <think>verify</think> unchecked return value.",
			want: "Finding:  unchecked return value.",
		},
		{
			name: "multiple blocks",
			in:   "<think>a</think>First.<think>b</think> Second.",
			want: "First. Second.",
		},
		{
			name: "unterminated block drops the rest",
			in:   "Summary follows. <think>still reasoning",
			want: "Summary follows.",
		},
		{
			name: "only a block",
			in:   "<think>nothing but reasoning</think>",
			want: "",
		},
		{
			name: "multiline block",
			in:   "<think>step 1\nstep 2</think>Use a reentrancy guard.",
			want: "Use a reentrancy guard.",
		},
		{
			name: "surrounding whitespace trimmed",
			in:   "  \n<think>x</think>  answer  \n",
			want: "answer",
		},
		{
			name: "empty input",
			in:   "",
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripThinkingTags(tc.in); got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
