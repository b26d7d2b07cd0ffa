// Package deepseek adapts the shared OpenAI-compatible base to
// DeepSeek's Chat Completions API.
package deepseek

import (
	"go.uber.org/zap"

	"github.com/forgecode/orchestra/internal/provider"
	"github.com/forgecode/orchestra/internal/provider/openaicompat"
)

const defaultBaseURL = "https://api.deepseek.com"

// New creates the DeepSeek adapter.
func New(logger *zap.Logger) provider.Adapter {
	return openaicompat.New(openaicompat.Config{
		Name:    provider.DeepSeek,
		BaseURL: defaultBaseURL,
	}, logger)
}
