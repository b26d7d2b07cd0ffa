package oci

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forgecode/orchestra/internal/orcherr"
	"github.com/forgecode/orchestra/internal/provider"
)

func TestAdapter_Call_RequiresCompartment(t *testing.T) {
	a := New(zap.NewNop())
	desc := provider.Descriptor{Name: provider.OCI, Model: "cohere.command-r-plus", Credentials: "k"}

	_, err := a.Call(context.Background(), desc, "hi", provider.Context{})
	require.NotNil(t, err)
	assert.Equal(t, orcherr.ConfigurationError, err.Code)
}

func TestAdapter_Call(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body chatRequest
		json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "ocid1.compartment.x", body.CompartmentID)

		resp := chatResponse{}
		resp.ChatResponse.ChatChoices = []struct {
			Message struct {
				Content []ociPart `json:"content"`
			} `json:"message"`
		}{
			{Message: struct {
				Content []ociPart `json:"content"`
			}{Content: []ociPart{{Type: "TEXT", Text: "done"}}}},
		}
		resp.ChatResponse.Usage.PromptTokens = 8
		resp.ChatResponse.Usage.CompletionTokens = 2
		resp.ChatResponse.Usage.TotalTokens = 10
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	a := New(zap.NewNop())
	desc := provider.Descriptor{
		Name: provider.OCI, Model: "cohere.command-r-plus", Credentials: "k",
		CompartmentID: "ocid1.compartment.x", EndpointOverride: srv.URL,
	}

	result, err := a.Call(context.Background(), desc, "hi", provider.Context{})
	require.Nil(t, err)
	assert.Equal(t, "done", result.Content)
	assert.Equal(t, 10, result.Usage.TotalTokens)
}

func TestAdapter_ValidateCredentials_RequiresCompartment(t *testing.T) {
	a := New(zap.NewNop())
	desc := provider.Descriptor{Name: provider.OCI, Model: "cohere.command-r-plus", Credentials: "k"}

	err := a.ValidateCredentials(context.Background(), desc)
	require.NotNil(t, err)
	assert.Equal(t, orcherr.ConfigurationError, err.Code)
}
