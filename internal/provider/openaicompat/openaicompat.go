// Package openaicompat is the shared OpenAI-Chat-Completions-wire-format
// base embedded by the openai, deepseek, and perplexity adapters: all
// three speak the same request/response/SSE shape and differ only in
// name, base URL, an optional auth-header hook, and (for perplexity) a
// citation post-processing step.
package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/forgecode/orchestra/internal/bus"
	"github.com/forgecode/orchestra/internal/httpretry"
	"github.com/forgecode/orchestra/internal/orcherr"
	"github.com/forgecode/orchestra/internal/provider"
)

// Config is how a concrete provider customizes the shared base.
type Config struct {
	Name        provider.Name
	BaseURL     string
	AuthHeader  func(req *http.Request, apiKey string)
	// PostProcess optionally rewrites the extracted content before it
	// is returned, given any citation URLs the response carried
	// (perplexity appends a numbered citation list here).
	PostProcess func(content string, citations []string) string
}

// Base implements provider.Adapter for any OpenAI-compatible backend.
type Base struct {
	cfg    Config
	client *httpretry.Client
	logger *zap.Logger
}

// New creates a Base adapter.
func New(cfg Config, logger *zap.Logger) *Base {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Base{cfg: cfg, client: httpretry.New(nil, logger), logger: logger}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatChoice struct {
	Index   int `json:"index"`
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
	FinishReason string `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	ID        string       `json:"id"`
	Model     string       `json:"model"`
	Choices   []chatChoice `json:"choices"`
	Usage     chatUsage    `json:"usage"`
	Citations []string     `json:"citations,omitempty"`
}

func (b *Base) buildRequest(desc provider.Descriptor, prompt string, pctx provider.Context, stream bool) chatRequest {
	messages := make([]chatMessage, 0, len(pctx.Messages)+1)
	if pctx.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: pctx.SystemPrompt})
	}
	for _, m := range pctx.Messages {
		messages = append(messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	return chatRequest{
		Model:       desc.Model,
		Messages:    messages,
		Temperature: desc.Temperature,
		MaxTokens:   desc.MaxOutputTokens,
		Stream:      stream,
	}
}

func (b *Base) headers(desc provider.Descriptor) map[string]string {
	headers := map[string]string{"Content-Type": "application/json"}
	if b.cfg.AuthHeader != nil {
		req := &http.Request{Header: http.Header{}}
		b.cfg.AuthHeader(req, desc.Credentials)
		for k := range req.Header {
			headers[k] = req.Header.Get(k)
		}
	} else {
		headers["Authorization"] = "Bearer " + desc.Credentials
	}
	return headers
}

func (b *Base) endpoint(desc provider.Descriptor, path string) string {
	base := b.cfg.BaseURL
	if desc.EndpointOverride != "" {
		base = desc.EndpointOverride
	}
	return strings.TrimRight(base, "/") + path
}

func (b *Base) toResult(resp chatResponse) provider.Result {
	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	if b.cfg.PostProcess != nil {
		content = b.cfg.PostProcess(content, resp.Citations)
	}
	return provider.Result{
		Content: content,
		Usage: provider.Usage{
			Provider:     b.cfg.Name,
			Model:        resp.Model,
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
}

// Call implements provider.Adapter.
func (b *Base) Call(ctx context.Context, desc provider.Descriptor, prompt string, pctx provider.Context) (provider.Result, *orcherr.Error) {
	body := b.buildRequest(desc, prompt, pctx, false)
	httpResp, httpErr := b.client.Post(ctx, b.endpoint(desc, "/v1/chat/completions"), body, b.headers(desc), httpretry.DefaultPostOptions())
	if httpErr != nil {
		return provider.Result{}, classify(httpErr, string(b.cfg.Name))
	}

	var resp chatResponse
	if err := json.Unmarshal(httpResp.Body, &resp); err != nil {
		return provider.Result{}, orcherr.New(orcherr.InvalidResponseFormat, "decoding chat completion response").
			WithCause(err).WithProvider(string(b.cfg.Name))
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return provider.Result{}, orcherr.New(orcherr.NoContentInResponse, "no content in response").
			WithProvider(string(b.cfg.Name))
	}
	return b.toResult(resp), nil
}

// CallStreaming implements provider.Adapter.
func (b *Base) CallStreaming(ctx context.Context, desc provider.Descriptor, prompt string, pctx provider.Context, events *bus.Bus) (provider.Result, *orcherr.Error) {
	body := b.buildRequest(desc, prompt, pctx, true)
	payload, err := json.Marshal(body)
	if err != nil {
		return provider.Result{}, orcherr.New(orcherr.InvalidRequest, "marshaling streaming request").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint(desc, "/v1/chat/completions"), bytes.NewReader(payload))
	if err != nil {
		return provider.Result{}, orcherr.New(orcherr.InvalidRequest, "building streaming request").WithCause(err)
	}
	for k, v := range b.headers(desc) {
		req.Header.Set(k, v)
	}

	httpClient := &http.Client{}
	resp, err := httpClient.Do(req)
	if err != nil {
		return provider.Result{}, orcherr.New(orcherr.NetworkError, "streaming request failed").WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return provider.Result{}, orcherr.Newf(orcherr.FromHTTPStatus(resp.StatusCode), "http status %d: %s", resp.StatusCode, string(data)).
			WithProvider(string(b.cfg.Name))
	}

	topic := bus.Topic(string(b.cfg.Name))
	var content strings.Builder
	var usage chatUsage
	var model string
	var citations []string

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk chatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		if chunk.Usage.TotalTokens > 0 {
			usage = chunk.Usage
		}
		if len(chunk.Citations) > 0 {
			citations = chunk.Citations
		}
		for _, choice := range chunk.Choices {
			delta := choice.Delta.Content
			if delta == "" {
				continue
			}
			content.WriteString(delta)
			if events != nil {
				events.Publish(topic, provider.Chunk{Provider: b.cfg.Name, Text: delta, Timestamp: time.Now()})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return provider.Result{}, orcherr.New(orcherr.NetworkError, "reading stream").WithCause(err).WithRetryable(true)
	}

	if content.Len() == 0 {
		return provider.Result{}, orcherr.New(orcherr.NoContentInResponse, "no content in stream").WithProvider(string(b.cfg.Name))
	}

	final := content.String()
	if b.cfg.PostProcess != nil {
		final = b.cfg.PostProcess(final, citations)
	}

	return provider.Result{
		Content: final,
		Usage: provider.Usage{
			Provider:     b.cfg.Name,
			Model:        model,
			InputTokens:  usage.PromptTokens,
			OutputTokens: usage.CompletionTokens,
			TotalTokens:  usage.TotalTokens,
		},
	}, nil
}

// ValidateCredentials implements provider.Adapter via a models-list
// probe.
func (b *Base) ValidateCredentials(ctx context.Context, desc provider.Descriptor) *orcherr.Error {
	_, httpErr := b.client.Get(ctx, b.endpoint(desc, "/v1/models"), b.headers(desc), httpretry.DefaultGetOptions())
	if httpErr != nil {
		return classify(httpErr, string(b.cfg.Name))
	}
	return nil
}

// classify pushes an httpretry.HTTPError through the final
// provider-adapter taxonomy.
func classify(httpErr *httpretry.HTTPError, providerName string) *orcherr.Error {
	if httpErr.StatusCode == 0 {
		return orcherr.New(orcherr.NetworkError, "network error").
			WithCause(httpErr.Cause).WithProvider(providerName).WithRetryable(true)
	}
	code := orcherr.FromHTTPStatus(httpErr.StatusCode)
	return orcherr.Newf(code, "http status %d", httpErr.StatusCode).
		WithCause(httpErr.Cause).WithProvider(providerName).WithRetryable(httpErr.Retryable)
}

// AppendCitations formats a numbered citation list appended to
// content, used by the perplexity adapter's PostProcess hook.
func AppendCitations(content string, citations []string) string {
	if len(citations) == 0 {
		return content
	}
	var b strings.Builder
	b.WriteString(content)
	b.WriteString("\n\nSources:\n")
	for i, c := range citations {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, c)
	}
	return b.String()
}
