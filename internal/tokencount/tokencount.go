// Package tokencount implements token estimation per provider/model
// and USD cost calculation from a static per-model rate table.
package tokencount

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// EstimateTokens implements the fallback heuristic, ⌈len(text)/4⌉,
// used for any provider/model without a known tiktoken encoding.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text)
	return (n + 3) / 4
}

// modelEncoding maps an OpenAI-family model prefix to its tiktoken
// encoding. Anthropic, DeepSeek, Perplexity, OCI, and local models
// have no known BPE encoding and always use EstimateTokens.
var modelEncoding = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

// Counter counts tokens for a given provider/model pair, using an
// exact BPE count via tiktoken-go when a known OpenAI encoding
// applies, and the ⌈chars/4⌉ heuristic otherwise. Tiktoken encodings
// are loaded lazily and cached; Counter is safe for concurrent use.
type Counter struct {
	mu    sync.Mutex
	cache map[string]*tiktoken.Tiktoken
}

// NewCounter creates a Counter with an empty encoding cache.
func NewCounter() *Counter {
	return &Counter{cache: make(map[string]*tiktoken.Tiktoken)}
}

// Count returns the token count for text under the given provider and
// model. Providers other than "openai" always use the heuristic.
func (c *Counter) Count(provider, model, text string) int {
	if text == "" {
		return 0
	}
	if !strings.EqualFold(provider, "openai") {
		return EstimateTokens(text)
	}

	enc, ok := c.encodingFor(model)
	if !ok {
		return EstimateTokens(text)
	}
	return len(enc.Encode(text, nil, nil))
}

func (c *Counter) encodingFor(model string) (*tiktoken.Tiktoken, bool) {
	name, ok := encodingName(model)
	if !ok {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.cache[name]; ok {
		return enc, true
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, false
	}
	c.cache[name] = enc
	return enc, true
}

func encodingName(model string) (string, bool) {
	var best string
	for prefix := range modelEncoding {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return "", false
	}
	return modelEncoding[best], true
}

// Rate is a per-model USD-per-token pricing entry.
type Rate struct {
	InputPerToken  float64
	OutputPerToken float64
}

// defaultRates is the static model-name → rate table, prefix-matched.
// Rates are USD per single token (not per 1K) to keep Cost's math
// direct.
var defaultRates = map[string]Rate{
	"openai:gpt-4o-mini":     {InputPerToken: 0.00000015, OutputPerToken: 0.0000006},
	"openai:gpt-4o":          {InputPerToken: 0.000005, OutputPerToken: 0.000015},
	"openai:gpt-4-turbo":     {InputPerToken: 0.00001, OutputPerToken: 0.00003},
	"openai:gpt-4":           {InputPerToken: 0.00003, OutputPerToken: 0.00006},
	"openai:gpt-3.5-turbo":   {InputPerToken: 0.0000005, OutputPerToken: 0.0000015},
	"anthropic:claude-3-opus":   {InputPerToken: 0.000015, OutputPerToken: 0.000075},
	"anthropic:claude-3-5-sonnet": {InputPerToken: 0.000003, OutputPerToken: 0.000015},
	"anthropic:claude-3-haiku": {InputPerToken: 0.00000025, OutputPerToken: 0.00000125},
	"deepseek:deepseek-chat":    {InputPerToken: 0.00000014, OutputPerToken: 0.00000028},
	"deepseek:deepseek-reasoner": {InputPerToken: 0.00000055, OutputPerToken: 0.00000219},
	"perplexity:sonar":          {InputPerToken: 0.000001, OutputPerToken: 0.000001},
	"perplexity:sonar-pro":      {InputPerToken: 0.000003, OutputPerToken: 0.000015},
	"oci:cohere.command-r-plus": {InputPerToken: 0.000003, OutputPerToken: 0.000015},
}

// familyDefault is the conservative fallback rate per provider family
// when a model is unrecognized.
var familyDefault = map[string]Rate{
	"openai":     {InputPerToken: 0.00001, OutputPerToken: 0.00003},
	"anthropic":  {InputPerToken: 0.000015, OutputPerToken: 0.000075},
	"deepseek":   {InputPerToken: 0.00000055, OutputPerToken: 0.00000219},
	"perplexity": {InputPerToken: 0.000003, OutputPerToken: 0.000015},
	"oci":        {InputPerToken: 0.000003, OutputPerToken: 0.000015},
}

// Pricer calculates request cost from a static rate table. The local
// provider is always free.
type Pricer struct {
	mu    sync.RWMutex
	rates map[string]Rate
}

// NewPricer creates a Pricer seeded with defaultRates.
func NewPricer() *Pricer {
	p := &Pricer{rates: make(map[string]Rate, len(defaultRates))}
	for k, v := range defaultRates {
		p.rates[k] = v
	}
	return p
}

// SetRate overrides or adds a provider/model rate.
func (p *Pricer) SetRate(provider, model string, rate Rate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rates[provider+":"+model] = rate
}

// Cost computes the USD cost of a call given input/output token
// counts, using exact model rates with prefix matching and falling
// back to the provider family's conservative default.
func (p *Pricer) Cost(provider, model string, inputTokens, outputTokens int) float64 {
	if strings.EqualFold(provider, "local") {
		return 0
	}

	rate, ok := p.lookupRate(provider, model)
	if !ok {
		return 0
	}
	return float64(inputTokens)*rate.InputPerToken + float64(outputTokens)*rate.OutputPerToken
}

func (p *Pricer) lookupRate(provider, model string) (Rate, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	key := provider + ":" + model
	if rate, ok := p.rates[key]; ok {
		return rate, true
	}

	var best string
	for k := range p.rates {
		if !strings.HasPrefix(k, provider+":") {
			continue
		}
		modelPart := strings.TrimPrefix(k, provider+":")
		if strings.HasPrefix(model, modelPart) && len(modelPart) > len(best) {
			best = modelPart
		}
	}
	if best != "" {
		return p.rates[provider+":"+best], true
	}

	if rate, ok := familyDefault[provider]; ok {
		return rate, true
	}
	return Rate{}, false
}

// FormatUSD renders a cost the way the CLI's usage summary does: values
// below one cent render as "< $0.01", otherwise four decimal dollars.
func FormatUSD(cost float64) string {
	if cost < 0.01 {
		return "< $0.01"
	}
	return fmt.Sprintf("$%.4f", cost)
}
