// Package perplexity adapts the shared OpenAI-compatible base to
// Perplexity's Chat Completions API, additionally appending a
// numbered citation list to the content when citations are present.
package perplexity

import (
	"go.uber.org/zap"

	"github.com/forgecode/orchestra/internal/provider"
	"github.com/forgecode/orchestra/internal/provider/openaicompat"
)

const defaultBaseURL = "https://api.perplexity.ai"

// New creates the Perplexity adapter.
func New(logger *zap.Logger) provider.Adapter {
	return openaicompat.New(openaicompat.Config{
		Name:        provider.Perplexity,
		BaseURL:     defaultBaseURL,
		PostProcess: openaicompat.AppendCitations,
	}, logger)
}
