package tokencount

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 25, EstimateTokens(strings.Repeat("a", 100)))
}

func TestCounter_NonOpenAIUsesHeuristic(t *testing.T) {
	c := NewCounter()
	text := strings.Repeat("word ", 50)
	assert.Equal(t, EstimateTokens(text), c.Count("anthropic", "claude-3-5-sonnet", text))
	assert.Equal(t, EstimateTokens(text), c.Count("deepseek", "deepseek-chat", text))
}

func TestCounter_OpenAIUsesTiktoken(t *testing.T) {
	c := NewCounter()
	n := c.Count("openai", "gpt-4o", "hello, world!")
	assert.Greater(t, n, 0)
}

func TestCounter_UnknownModelFallsBackToHeuristic(t *testing.T) {
	c := NewCounter()
	text := "some arbitrary text for an unknown model family"
	assert.Equal(t, EstimateTokens(text), c.Count("openai", "some-future-model", text))
}

func TestPricer_LocalAlwaysFree(t *testing.T) {
	p := NewPricer()
	assert.Equal(t, 0.0, p.Cost("local", "llama3", 100000, 100000))
}

func TestPricer_ExactModelMatch(t *testing.T) {
	p := NewPricer()
	cost := p.Cost("openai", "gpt-4o-mini", 1000, 1000)
	assert.InDelta(t, 0.00015+0.0006, cost, 1e-9)
}

func TestPricer_PrefixMatchAndFamilyFallback(t *testing.T) {
	p := NewPricer()
	// prefix match: "gpt-4o-mini-2024-07-18" should match the "gpt-4o-mini" rate
	got := p.Cost("openai", "gpt-4o-mini-2024-07-18", 1000, 1000)
	want := p.Cost("openai", "gpt-4o-mini", 1000, 1000)
	assert.Equal(t, want, got)

	// wholly unknown model under a known provider falls back to family default
	fallback := p.Cost("openai", "gpt-9-ultra", 1000, 0)
	assert.Greater(t, fallback, 0.0)
}

func TestPricer_UnknownProviderIsZero(t *testing.T) {
	p := NewPricer()
	assert.Equal(t, 0.0, p.Cost("nonexistent", "whatever", 1000, 1000))
}

func TestFormatUSD(t *testing.T) {
	assert.Equal(t, "< $0.01", FormatUSD(0.0))
	assert.Equal(t, "< $0.01", FormatUSD(0.009999))
	assert.Equal(t, "$0.0150", FormatUSD(0.015))
	assert.Equal(t, "$1.2340", FormatUSD(1.234))
}
