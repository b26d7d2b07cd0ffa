package contextfmt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/forgecode/orchestra/internal/provider"
)

func TestBuildSystemPromptWithoutPreviousResults(t *testing.T) {
	prompt := BuildSystemPrompt(provider.Context{})
	assert.Equal(t, baseSystemInstruction, prompt)
}

func TestBuildSystemPromptAppendsPriorSummaries(t *testing.T) {
	pctx := provider.Context{
		PreviousResults: map[provider.Name]string{
			provider.OpenAI:    "def hello(): pass",
			provider.Anthropic: "print('hi')",
		},
	}
	prompt := BuildSystemPrompt(pctx)
	assert.Contains(t, prompt, "--- openai ---")
	assert.Contains(t, prompt, "--- anthropic ---")
	assert.True(t, strings.Index(prompt, "anthropic") < strings.Index(prompt, "openai"))
}

func TestBuildSystemPromptTruncatesLongSummaries(t *testing.T) {
	long := strings.Repeat("x", maxSummaryChars+50)
	pctx := provider.Context{PreviousResults: map[provider.Name]string{provider.OpenAI: long}}
	prompt := BuildSystemPrompt(pctx)
	assert.Contains(t, prompt, "…")
	assert.NotContains(t, prompt, strings.Repeat("x", maxSummaryChars+1))
}

func TestBuildEnhancedPromptIncludesFilesAndPriorResponses(t *testing.T) {
	pctx := provider.Context{
		RelevantFiles:   map[string]string{"main.go": "package main"},
		PreviousResults: map[provider.Name]string{provider.DeepSeek: "a sketch"},
	}
	enhanced := BuildEnhancedPrompt("write a CLI", pctx)
	assert.Contains(t, enhanced, "write a CLI")
	assert.Contains(t, enhanced, "File: main.go")
	assert.Contains(t, enhanced, "```\npackage main\n```")
	assert.Contains(t, enhanced, "Previous provider responses:")
	assert.Contains(t, enhanced, "a sketch")
}
