// Package oci implements the Provider Adapter contract
// for Oracle Cloud Infrastructure's Generative AI inference API. OCI
// calls are scoped to a compartment, so every call requires
// Descriptor.CompartmentID and refuses to proceed without it.
package oci

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/forgecode/orchestra/internal/bus"
	"github.com/forgecode/orchestra/internal/httpretry"
	"github.com/forgecode/orchestra/internal/orcherr"
	"github.com/forgecode/orchestra/internal/provider"
)

const defaultBaseURL = "https://inference.generativeai.us-chicago-1.oci.oraclecloud.com"

// Adapter implements provider.Adapter for OCI Generative AI.
type Adapter struct {
	client *httpretry.Client
	logger *zap.Logger
}

// New creates the OCI adapter.
func New(logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{client: httpretry.New(nil, logger), logger: logger}
}

type chatRequest struct {
	CompartmentID string      `json:"compartmentId"`
	ServingMode   servingMode `json:"servingMode"`
	ChatRequest   innerChat   `json:"chatRequest"`
}

type servingMode struct {
	ModelID     string `json:"modelId"`
	ServingType string `json:"servingType"`
}

type innerChat struct {
	Messages    []ociMessage `json:"messages"`
	MaxTokens   int          `json:"maxTokens,omitempty"`
	Temperature float64      `json:"temperature,omitempty"`
	APIFormat   string       `json:"apiFormat"`
}

type ociMessage struct {
	Role    string   `json:"role"`
	Content []ociPart `json:"content"`
}

type ociPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type chatResponse struct {
	ChatResponse struct {
		ChatChoices []struct {
			Message struct {
				Content []ociPart `json:"content"`
			} `json:"message"`
		} `json:"chatChoices"`
		Usage struct {
			PromptTokens     int `json:"promptTokens"`
			CompletionTokens int `json:"completionTokens"`
			TotalTokens      int `json:"totalTokens"`
		} `json:"usage"`
	} `json:"chatResponse"`
}

func (a *Adapter) endpoint(desc provider.Descriptor) string {
	base := defaultBaseURL
	if desc.EndpointOverride != "" {
		base = desc.EndpointOverride
	}
	return strings.TrimRight(base, "/") + "/20231130/actions/chat"
}

func (a *Adapter) headers(desc provider.Descriptor) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + desc.Credentials,
		"Content-Type":  "application/json",
	}
}

func (a *Adapter) buildRequest(desc provider.Descriptor, prompt string, pctx provider.Context) chatRequest {
	messages := make([]ociMessage, 0, len(pctx.Messages)+2)
	if pctx.SystemPrompt != "" {
		messages = append(messages, ociMessage{Role: "SYSTEM", Content: []ociPart{{Type: "TEXT", Text: pctx.SystemPrompt}}})
	}
	for _, m := range pctx.Messages {
		messages = append(messages, ociMessage{Role: strings.ToUpper(m.Role), Content: []ociPart{{Type: "TEXT", Text: m.Content}}})
	}
	messages = append(messages, ociMessage{Role: "USER", Content: []ociPart{{Type: "TEXT", Text: prompt}}})

	return chatRequest{
		CompartmentID: desc.CompartmentID,
		ServingMode:   servingMode{ModelID: desc.Model, ServingType: "ON_DEMAND"},
		ChatRequest: innerChat{
			Messages:    messages,
			MaxTokens:   desc.MaxOutputTokens,
			Temperature: desc.Temperature,
			APIFormat:   "GENERIC",
		},
	}
}

func contentOf(resp chatResponse) string {
	if len(resp.ChatResponse.ChatChoices) == 0 {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.ChatResponse.ChatChoices[0].Message.Content {
		if part.Type == "TEXT" {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

// Call implements provider.Adapter.
func (a *Adapter) Call(ctx context.Context, desc provider.Descriptor, prompt string, pctx provider.Context) (provider.Result, *orcherr.Error) {
	if desc.CompartmentID == "" {
		return provider.Result{}, orcherr.New(orcherr.ConfigurationError, "oci provider requires a compartment id").
			WithProvider(string(provider.OCI))
	}

	body := a.buildRequest(desc, prompt, pctx)
	httpResp, httpErr := a.client.Post(ctx, a.endpoint(desc), body, a.headers(desc), httpretry.DefaultPostOptions())
	if httpErr != nil {
		return provider.Result{}, classify(httpErr)
	}

	var resp chatResponse
	if err := json.Unmarshal(httpResp.Body, &resp); err != nil {
		return provider.Result{}, orcherr.New(orcherr.InvalidResponseFormat, "decoding oci chat response").WithCause(err).WithProvider(string(provider.OCI))
	}
	content := contentOf(resp)
	if content == "" {
		return provider.Result{}, orcherr.New(orcherr.NoContentInResponse, "no content in response").WithProvider(string(provider.OCI))
	}
	u := resp.ChatResponse.Usage
	return provider.Result{
		Content: content,
		Usage: provider.Usage{
			Provider:     provider.OCI,
			Model:        desc.Model,
			InputTokens:  u.PromptTokens,
			OutputTokens: u.CompletionTokens,
			TotalTokens:  u.TotalTokens,
		},
	}, nil
}

// CallStreaming implements provider.Adapter. The OCI Generative AI
// inference API streams newline-delimited JSON rather than SSE; this
// adapter performs the non-streaming Call and replays the full
// content as a single chunk event instead of parsing that format
// incrementally.
func (a *Adapter) CallStreaming(ctx context.Context, desc provider.Descriptor, prompt string, pctx provider.Context, events *bus.Bus) (provider.Result, *orcherr.Error) {
	result, err := a.Call(ctx, desc, prompt, pctx)
	if err != nil {
		return provider.Result{}, err
	}
	if events != nil && result.Content != "" {
		events.Publish(bus.Topic(string(provider.OCI)), provider.Chunk{Provider: provider.OCI, Text: result.Content})
	}
	return result, nil
}

// ValidateCredentials implements provider.Adapter.
func (a *Adapter) ValidateCredentials(ctx context.Context, desc provider.Descriptor) *orcherr.Error {
	if desc.CompartmentID == "" {
		return orcherr.New(orcherr.ConfigurationError, "oci provider requires a compartment id").WithProvider(string(provider.OCI))
	}
	probe := desc
	probe.MaxOutputTokens = 1
	body := a.buildRequest(probe, "ping", provider.Context{})
	_, httpErr := a.client.Post(ctx, a.endpoint(desc), body, a.headers(desc), httpretry.DefaultPostOptions())
	if httpErr != nil {
		return classify(httpErr)
	}
	return nil
}

func classify(httpErr *httpretry.HTTPError) *orcherr.Error {
	if httpErr.StatusCode == 0 {
		return orcherr.New(orcherr.NetworkError, "network error").
			WithCause(httpErr.Cause).WithProvider(string(provider.OCI)).WithRetryable(true)
	}
	code := orcherr.FromHTTPStatus(httpErr.StatusCode)
	return orcherr.Newf(code, "http status %d", httpErr.StatusCode).
		WithCause(httpErr.Cause).WithProvider(string(provider.OCI)).WithRetryable(httpErr.Retryable)
}
