// Package provider defines the uniform Provider Adapter contract
// implemented by every backend (openai, anthropic, deepseek,
// perplexity, oci, local), plus the shared request/response
// types each adapter maps into and out of.
package provider

import (
	"context"
	"time"

	"github.com/forgecode/orchestra/internal/bus"
	"github.com/forgecode/orchestra/internal/orcherr"
)

// Name identifies a provider backend.
type Name string

const (
	OpenAI     Name = "openai"
	Anthropic  Name = "anthropic"
	DeepSeek   Name = "deepseek"
	Perplexity Name = "perplexity"
	OCI        Name = "oci"
	Local      Name = "local"
)

// Descriptor is the immutable provider configuration created at
// startup. Credentials carries the resolved secret; environment
// references are resolved by the configuration loader before the
// descriptor reaches a worker.
type Descriptor struct {
	Name             Name
	Model            string
	Credentials      string
	EndpointOverride string
	Temperature      float64
	MaxOutputTokens  int

	// CompartmentID is required by the OCI adapter only.
	CompartmentID string
}

// Message is a single turn in a conversation, independent of any
// provider's wire format.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// Context carries prompt-construction inputs that the Context
// Formatter assembles and the Router threads between
// sequential/dialectical phases.
type Context struct {
	SystemPrompt    string
	Messages        []Message
	PreviousResults map[Name]string
	RelevantFiles   map[string]string
}

// Usage is the normalized token/cost summary.
type Usage struct {
	Provider         Name
	Model            string
	InputTokens      int
	OutputTokens     int
	TotalTokens      int
	EstimatedCostUSD float64
	FormattedCost    string
}

// Result is the successful outcome of a call or call_streaming.
type Result struct {
	Content string
	Usage   Usage
}

// Chunk is a streaming text delta event published on the bus while
// call_streaming runs.
type Chunk struct {
	Provider  Name
	Text      string
	Timestamp time.Time
}

// Complete is the terminal streaming event carrying the final text
// and usage.
type Complete struct {
	Provider  Name
	Response  string
	Usage     Usage
	Timestamp time.Time
}

// ErrorEvent is the terminal streaming event on failure.
type ErrorEvent struct {
	Provider  Name
	Kind      orcherr.Code
	Message   string
	Timestamp time.Time
}

// StatusChange announces a worker status transition; published by internal/worker, not by adapters.
type StatusChange struct {
	Provider Name
	Status   string
}

// Adapter is the uniform contract every provider backend implements
//.
type Adapter interface {
	// Call performs a synchronous request and returns the assistant
	// content and usage, or a classified error.
	Call(ctx context.Context, desc Descriptor, prompt string, pctx Context) (Result, *orcherr.Error)

	// CallStreaming performs a streaming request, publishing a Chunk
	// event per non-empty text delta on topic bus.Topic(string(desc.Name))
	// as it arrives, and returns the accumulated content and usage on
	// completion.
	CallStreaming(ctx context.Context, desc Descriptor, prompt string, pctx Context, events *bus.Bus) (Result, *orcherr.Error)

	// ValidateCredentials performs a lightweight reachability/auth
	// check without generating content.
	ValidateCredentials(ctx context.Context, desc Descriptor) *orcherr.Error
}

// Registry resolves a provider name to its Adapter implementation.
type Registry map[Name]Adapter

// NewRegistry builds a Registry from the six built-in adapters.
func NewRegistry(openai, anthropic, deepseek, perplexity, oci, local Adapter) Registry {
	return Registry{
		OpenAI:     openai,
		Anthropic:  anthropic,
		DeepSeek:   deepseek,
		Perplexity: perplexity,
		OCI:        oci,
		Local:      local,
	}
}

// Get looks up the adapter for name.
func (r Registry) Get(name Name) (Adapter, bool) {
	a, ok := r[name]
	return a, ok
}
