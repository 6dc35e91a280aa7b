// Package classifier turns a natural-language user prompt into a
// (category, suggested tools, context strategy) triple: the supporting
// "query classifier" piece spec.md §2 calls out at 10% share, consumed
// by the host before it decides whether to run context assembly and
// which tools to advertise to the LLM first. The pattern-table dispatch
// here is grounded on hector's reasoning.CreateStrategy
// (pkg/reasoning/factory.go), which normalizes an input string and
// switches on it to pick a concrete strategy; classifier generalizes
// that single-keyword switch into an ordered table of regexp rules
// since a free-form prompt, unlike a config field, never matches a
// single literal.
package classifier

import (
	"regexp"
	"strings"
)

// Category is the coarse intent bucket a prompt falls into.
type Category string

const (
	CategoryFileOperation Category = "file_operation"
	CategorySearch        Category = "search"
	CategoryShell         Category = "shell"
	CategoryGit           Category = "git"
	CategoryAnalysis      Category = "analysis"
	CategoryGeneral       Category = "general"
)

// ContextStrategy tells the host how aggressively to run project-context
// assembly (pkg/context) before handing the prompt to the LLM.
type ContextStrategy string

const (
	// StrategyNone skips context assembly entirely (e.g. a pure shell
	// command has no file relevance to rank).
	StrategyNone ContextStrategy = "none"
	// StrategyFocused ranks a small, high-precision file set.
	StrategyFocused ContextStrategy = "focused"
	// StrategyBroad ranks a larger file set for exploratory questions.
	StrategyBroad ContextStrategy = "broad"
)

// Classification is the result of classifying one prompt.
type Classification struct {
	Category        Category
	SuggestedTools  []string
	ContextStrategy ContextStrategy
	Confidence      float64
}

// rule pairs an ordered list of regexps with the classification to
// produce when any of them match. Rules are tried in order; the first
// match wins, mirroring the first-match-wins switch in
// reasoning.CreateStrategy.
type rule struct {
	category   Category
	patterns   []*regexp.Regexp
	tools      []string
	strategy   ContextStrategy
	confidence float64
}

func mustCompileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

// rules is evaluated top-to-bottom; order encodes precedence between
// overlapping intents (e.g. "find the bug in the git log" reads as git,
// not search or analysis, because the git rule is checked before both).
var rules = []rule{
	{
		category:   CategoryShell,
		patterns:   mustCompileAll(`\b(run|execute|build|compile|test|install|npm|go\s+(run|build|test)|make|pytest)\b`),
		tools:      []string{"execute_command"},
		strategy:   StrategyNone,
		confidence: 0.8,
	},
	{
		category:   CategoryGit,
		patterns:   mustCompileAll(`\bgit\b`, `\b(commit|branch|merge|rebase|diff|stash)\b`),
		tools:      []string{"execute_command"},
		strategy:   StrategyFocused,
		confidence: 0.75,
	},
	{
		category:   CategorySearch,
		patterns:   mustCompileAll(`\b(find|search|grep|locate|where is|look for)\b`),
		tools:      []string{"grep_search", "read_file"},
		strategy:   StrategyBroad,
		confidence: 0.75,
	},
	{
		category:   CategoryFileOperation,
		patterns:   mustCompileAll(`\b(read|open|write|edit|create|delete|rename|move)\b.*\b(file|directory|folder)\b`, `\bfile\b.*\b(read|write|edit|create)\b`),
		tools:      []string{"read_file", "write_file"},
		strategy:   StrategyFocused,
		confidence: 0.7,
	},
	{
		category:   CategoryAnalysis,
		patterns:   mustCompileAll(`\b(why|explain|analyze|debug|bug|fix|understand|review)\b`),
		tools:      []string{"read_file", "grep_search"},
		strategy:   StrategyBroad,
		confidence: 0.6,
	},
}

// Classify inspects a user prompt and returns its best-match
// Classification. Prompts matching no rule fall back to CategoryGeneral
// with StrategyFocused and no suggested tools, rather than erroring: a
// classifier that cannot confidently categorize a prompt should not
// block the runtime from attempting it.
func Classify(prompt string) Classification {
	normalized := strings.ToLower(strings.TrimSpace(prompt))
	if normalized == "" {
		return Classification{Category: CategoryGeneral, ContextStrategy: StrategyNone}
	}

	for _, r := range rules {
		for _, p := range r.patterns {
			if p.MatchString(normalized) {
				return Classification{
					Category:        r.category,
					SuggestedTools:  append([]string(nil), r.tools...),
					ContextStrategy: r.strategy,
					Confidence:      r.confidence,
				}
			}
		}
	}

	return Classification{
		Category:        CategoryGeneral,
		SuggestedTools:  nil,
		ContextStrategy: StrategyFocused,
		Confidence:      0.2,
	}
}
