// Package contextfmt implements the Context Formatter: a
// pure transformation that composes the system prompt and the
// enhanced user prompt from relevant files and prior-provider
// summaries.
package contextfmt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/forgecode/orchestra/internal/provider"
)

// maxSummaryChars bounds a single prior provider's answer before it is
// folded into the system prompt.
const maxSummaryChars = 1000

const baseSystemInstruction = "You are a coding assistant collaborating with other AI providers on the same task. Produce correct, runnable code and explain your reasoning concisely."

// BuildSystemPrompt returns the base system instruction, appending a
// dashed-delimited summary of each prior provider's answer when
// pctx.PreviousResults is non-empty.
func BuildSystemPrompt(pctx provider.Context) string {
	if len(pctx.PreviousResults) == 0 {
		return baseSystemInstruction
	}

	var b strings.Builder
	b.WriteString(baseSystemInstruction)
	b.WriteString("\n\n")
	for _, name := range sortedNames(pctx.PreviousResults) {
		b.WriteString("--- ")
		b.WriteString(string(name))
		b.WriteString(" ---\n")
		b.WriteString(truncate(pctx.PreviousResults[name], maxSummaryChars))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// BuildEnhancedPrompt concatenates prompt, an optional "relevant
// files" block, and a previous-responses block.
func BuildEnhancedPrompt(prompt string, pctx provider.Context) string {
	var b strings.Builder
	b.WriteString(prompt)

	if len(pctx.RelevantFiles) > 0 {
		b.WriteString("\n\n")
		for _, path := range sortedKeys(pctx.RelevantFiles) {
			fmt.Fprintf(&b, "File: %s\n```\n%s\n```\n", path, pctx.RelevantFiles[path])
		}
	}

	if len(pctx.PreviousResults) > 0 {
		b.WriteString("\nPrevious provider responses:\n")
		for _, name := range sortedNames(pctx.PreviousResults) {
			b.WriteString("--- ")
			b.WriteString(string(name))
			b.WriteString(" ---\n")
			b.WriteString(truncate(pctx.PreviousResults[name], maxSummaryChars))
			b.WriteString("\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}

func sortedNames(m map[provider.Name]string) []provider.Name {
	names := make([]provider.Name, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
