// Package allocator implements the Task Allocator:
// keyword-driven mapping from a task description to the set of
// providers capable of handling it, plus round-robin load
// distribution across the available set.
package allocator

import (
	"strings"

	"github.com/forgecode/orchestra/internal/provider"
)

// capability is a tag in the static capability matrix
// (openai→algorithms; anthropic→refactoring, architecture;
// deepseek→quick fixes, completion; perplexity→research;
// local->privacy). The matrix is
// configuration, not a design constant, so CapabilityMatrix below is
// exported and replaceable.
type capability string

const (
	capAlgorithms   capability = "algorithms"
	capRefactoring  capability = "refactoring"
	capArchitecture capability = "architecture"
	capQuickFix     capability = "quick_fixes"
	capCompletion   capability = "completion"
	capResearch     capability = "research"
	capPrivacy      capability = "privacy"
)

// keywordTags scans a lower-cased description for substrings tied to
// capability tags. Order doesn't matter; a description can match
// multiple tags and the matched tags' provider sets are unioned.
var keywordTags = map[string]capability{
	"sort":       capAlgorithms,
	"algorithm":  capAlgorithms,
	"optimize":   capAlgorithms,
	"complexity": capAlgorithms,
	"refactor":   capRefactoring,
	"clean up":   capRefactoring,
	"restructure": capRefactoring,
	"architecture": capArchitecture,
	"design pattern": capArchitecture,
	"system design": capArchitecture,
	"quick fix":  capQuickFix,
	"typo":       capQuickFix,
	"complete":   capCompletion,
	"autocomplete": capCompletion,
	"research":   capResearch,
	"look up":    capResearch,
	"cite":       capResearch,
	"offline":    capPrivacy,
	"private":    capPrivacy,
	"local only": capPrivacy,
}

// CapabilityMatrix maps each capability tag to the providers that
// claim it. Kept as a plain overridable
// value rather than a constant, since the matrix is configuration.
var CapabilityMatrix = map[capability][]provider.Name{
	capAlgorithms:   {provider.OpenAI},
	capRefactoring:  {provider.Anthropic},
	capArchitecture: {provider.Anthropic},
	capQuickFix:     {provider.DeepSeek},
	capCompletion:   {provider.DeepSeek},
	capResearch:     {provider.Perplexity},
	capPrivacy:      {provider.Local},
}

// AutoAllocate maps a task description to providers: lower-case the
// description, scan for keyword-tied capability tags, map tags to
// providers, and return the union. If nothing matches, all configured
// providers are returned (the caller passes its full known set as
// "allConfigured" for that fallback).
func AutoAllocate(description string, allConfigured []provider.Name) []provider.Name {
	lower := strings.ToLower(description)

	seen := make(map[provider.Name]bool)
	var matched []provider.Name
	for keyword, tag := range keywordTags {
		if !strings.Contains(lower, keyword) {
			continue
		}
		for _, p := range CapabilityMatrix[tag] {
			if !seen[p] {
				seen[p] = true
				matched = append(matched, p)
			}
		}
	}

	if len(matched) == 0 {
		return append([]provider.Name(nil), allConfigured...)
	}
	return matched
}

// DistributeLoad assigns each description in descriptions to a subset
// of available, preferring a capability match and falling back to
// round-robin over available when no keyword matches.
func DistributeLoad(descriptions []string, available []provider.Name) [][]provider.Name {
	if len(available) == 0 {
		return make([][]provider.Name, len(descriptions))
	}

	result := make([][]provider.Name, len(descriptions))
	rrIndex := 0
	for i, desc := range descriptions {
		matched := AutoAllocate(desc, nil)
		matched = intersect(matched, available)
		if len(matched) == 0 {
			matched = []provider.Name{available[rrIndex%len(available)]}
			rrIndex++
		}
		result[i] = matched
	}
	return result
}

func intersect(a, b []provider.Name) []provider.Name {
	bSet := make(map[provider.Name]bool, len(b))
	for _, p := range b {
		bSet[p] = true
	}
	var out []provider.Name
	for _, p := range a {
		if bSet[p] {
			out = append(out, p)
		}
	}
	return out
}
