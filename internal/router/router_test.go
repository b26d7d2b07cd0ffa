package router

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgecode/orchestra/internal/bus"
	"github.com/forgecode/orchestra/internal/orcherr"
	"github.com/forgecode/orchestra/internal/provider"
	"github.com/forgecode/orchestra/internal/supervisor"
)

type scriptedAdapter struct {
	name provider.Name
	err  *orcherr.Error
}

func (a *scriptedAdapter) Call(ctx context.Context, desc provider.Descriptor, prompt string, pctx provider.Context) (provider.Result, *orcherr.Error) {
	if a.err != nil {
		return provider.Result{}, a.err
	}
	return provider.Result{Content: fmt.Sprintf("[%s] reply to: %s", a.name, prompt)}, nil
}
func (a *scriptedAdapter) CallStreaming(ctx context.Context, desc provider.Descriptor, prompt string, pctx provider.Context, events *bus.Bus) (provider.Result, *orcherr.Error) {
	return a.Call(ctx, desc, prompt, pctx)
}
func (a *scriptedAdapter) ValidateCredentials(ctx context.Context, desc provider.Descriptor) *orcherr.Error {
	return a.err
}

func newTestSupervisor(t *testing.T, specs map[provider.Name]*orcherr.Error) *supervisor.Supervisor {
	registry := provider.Registry{}
	var descriptors []provider.Descriptor
	for name, errOut := range specs {
		registry[name] = &scriptedAdapter{name: name, err: errOut}
		descriptors = append(descriptors, provider.Descriptor{Name: name})
	}
	sup, err := supervisor.New(descriptors, registry, bus.New(nil), nil)
	require.NoError(t, err)
	return sup
}

func TestRouteAllReturnsAllResultsOneFailure(t *testing.T) {
	sup := newTestSupervisor(t, map[provider.Name]*orcherr.Error{
		provider.OpenAI:    nil,
		provider.Anthropic: orcherr.New(orcherr.AuthenticationError, "bad key"),
	})
	r := New(sup, nil)

	results := r.RouteAll(context.Background(), "write hello world", []provider.Name{provider.OpenAI, provider.Anthropic}, provider.Context{})

	require.Len(t, results, 2)
	assert.Nil(t, results[provider.OpenAI].Err)
	assert.Contains(t, results[provider.OpenAI].Result.Content, "write hello world")
	require.NotNil(t, results[provider.Anthropic].Err)
	assert.Equal(t, orcherr.AuthenticationError, results[provider.Anthropic].Err.Code)
}

func TestRouteSequentialFeedsPreviousResults(t *testing.T) {
	sup := newTestSupervisor(t, map[provider.Name]*orcherr.Error{
		provider.OpenAI:    nil,
		provider.Anthropic: nil,
	})
	r := New(sup, nil)

	results := r.RouteSequential(context.Background(), "write hello world", []provider.Name{provider.OpenAI, provider.Anthropic}, provider.Context{})
	require.Len(t, results, 2)
	assert.Nil(t, results[provider.Anthropic].Err)
	// Anthropic's call should see openai's prior answer folded into its prompt.
	assert.Contains(t, results[provider.Anthropic].Result.Content, "openai")
}

func TestRouteDialecticalProducesThreePhases(t *testing.T) {
	sup := newTestSupervisor(t, map[provider.Name]*orcherr.Error{
		provider.OpenAI:    nil,
		provider.Anthropic: nil,
		provider.DeepSeek:  nil,
	})
	r := New(sup, nil)

	result := r.RouteDialectical(context.Background(), "write hello world", []provider.Name{provider.OpenAI, provider.Anthropic, provider.DeepSeek}, provider.Context{})

	require.Len(t, result.Thesis, 3)
	require.Len(t, result.Antithesis, 3)
	require.Len(t, result.Synthesis, 3)

	// antithesis[openai] should contain critiques attributed to the other two.
	assert.Contains(t, result.Antithesis[provider.OpenAI], "anthropic")
	assert.Contains(t, result.Antithesis[provider.OpenAI], "deepseek")
	assert.NotNil(t, result.Synthesis[provider.OpenAI])
}
