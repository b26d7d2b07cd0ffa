package supervisor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgecode/orchestra/internal/bus"
	"github.com/forgecode/orchestra/internal/orcherr"
	"github.com/forgecode/orchestra/internal/provider"
)

type fakeAdapter struct {
	validateErr *orcherr.Error
}

func (f *fakeAdapter) Call(ctx context.Context, desc provider.Descriptor, prompt string, pctx provider.Context) (provider.Result, *orcherr.Error) {
	return provider.Result{}, nil
}
func (f *fakeAdapter) CallStreaming(ctx context.Context, desc provider.Descriptor, prompt string, pctx provider.Context, events *bus.Bus) (provider.Result, *orcherr.Error) {
	return provider.Result{}, nil
}
func (f *fakeAdapter) ValidateCredentials(ctx context.Context, desc provider.Descriptor) *orcherr.Error {
	return f.validateErr
}

func TestNewStartsOneWorkerPerDescriptor(t *testing.T) {
	registry := provider.Registry{
		provider.OpenAI:    &fakeAdapter{},
		provider.Anthropic: &fakeAdapter{},
	}
	descriptors := []provider.Descriptor{
		{Name: provider.OpenAI},
		{Name: provider.Anthropic},
	}
	s, err := New(descriptors, registry, bus.New(nil), nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []provider.Name{provider.OpenAI, provider.Anthropic}, s.ListWorkers())
}

func TestCheckAllProvidersExcludesUnhealthy(t *testing.T) {
	registry := provider.Registry{
		provider.OpenAI: &fakeAdapter{},
		provider.Local:  &fakeAdapter{validateErr: orcherr.New(orcherr.ServerUnreachable, "down")},
	}
	descriptors := []provider.Descriptor{
		{Name: provider.OpenAI},
		{Name: provider.Local},
	}
	s, err := New(descriptors, registry, bus.New(nil), nil)
	require.NoError(t, err)

	checks := s.CheckAllProviders(context.Background())
	require.Len(t, checks, 2)
	assert.Nil(t, checks[provider.OpenAI])
	assert.NotNil(t, checks[provider.Local])

	healthy := HealthyProviders(checks)
	assert.ElementsMatch(t, []provider.Name{provider.OpenAI}, healthy)
}
