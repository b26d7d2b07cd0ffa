package perplexity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forgecode/orchestra/internal/provider"
)

func TestAdapter_AppendsCitations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"model": "sonar-pro",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]string{"content": "the answer"}},
			},
			"citations": []string{"https://example.com/a"},
		})
	}))
	defer srv.Close()

	p := New(zap.NewNop())
	desc := provider.Descriptor{Name: provider.Perplexity, Model: "sonar-pro", Credentials: "k", EndpointOverride: srv.URL}

	result, err := p.Call(context.Background(), desc, "hi", provider.Context{})
	require.Nil(t, err)
	assert.Contains(t, result.Content, "the answer")
	assert.Contains(t, result.Content, "[1] https://example.com/a")
}
