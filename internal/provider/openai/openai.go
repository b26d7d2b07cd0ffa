// Package openai adapts the shared OpenAI-compatible base to OpenAI's
// own Chat Completions API.
package openai

import (
	"go.uber.org/zap"

	"github.com/forgecode/orchestra/internal/provider"
	"github.com/forgecode/orchestra/internal/provider/openaicompat"
)

const defaultBaseURL = "https://api.openai.com"

// New creates the OpenAI adapter.
func New(logger *zap.Logger) provider.Adapter {
	return openaicompat.New(openaicompat.Config{
		Name:    provider.OpenAI,
		BaseURL: defaultBaseURL,
	}, logger)
}
