// Package anthropic implements the Provider Adapter contract for
// Anthropic's Messages API, which differs from the
// OpenAI-compatible shape in its auth header (x-api-key), its
// separate top-level system field, and its SSE event framing
// (content_block_delta rather than a raw delta object per chunk).
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
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

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
)

// Adapter implements provider.Adapter for Anthropic Claude models.
type Adapter struct {
	client *httpretry.Client
	logger *zap.Logger
}

// New creates the Anthropic adapter.
func New(logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{client: httpretry.New(nil, logger), logger: logger}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type response struct {
	Model   string         `json:"model"`
	Content []contentBlock `json:"content"`
	Usage   usage          `json:"usage"`
}

func (a *Adapter) endpoint(desc provider.Descriptor) string {
	base := defaultBaseURL
	if desc.EndpointOverride != "" {
		base = desc.EndpointOverride
	}
	return strings.TrimRight(base, "/") + "/v1/messages"
}

func (a *Adapter) headers(desc provider.Descriptor) map[string]string {
	return map[string]string{
		"x-api-key":         desc.Credentials,
		"anthropic-version": apiVersion,
		"Content-Type":      "application/json",
	}
}

func (a *Adapter) buildRequest(desc provider.Descriptor, prompt string, pctx provider.Context, stream bool) request {
	messages := make([]message, 0, len(pctx.Messages)+1)
	for _, m := range pctx.Messages {
		if m.Role == "system" {
			continue
		}
		messages = append(messages, message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, message{Role: "user", Content: prompt})

	maxTokens := desc.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	return request{
		Model:       desc.Model,
		System:      pctx.SystemPrompt,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: desc.Temperature,
		Stream:      stream,
	}
}

func contentOf(blocks []contentBlock) string {
	var b strings.Builder
	for _, c := range blocks {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// Call implements provider.Adapter.
func (a *Adapter) Call(ctx context.Context, desc provider.Descriptor, prompt string, pctx provider.Context) (provider.Result, *orcherr.Error) {
	body := a.buildRequest(desc, prompt, pctx, false)
	httpResp, httpErr := a.client.Post(ctx, a.endpoint(desc), body, a.headers(desc), httpretry.DefaultPostOptions())
	if httpErr != nil {
		return provider.Result{}, classify(httpErr)
	}

	var resp response
	if err := json.Unmarshal(httpResp.Body, &resp); err != nil {
		return provider.Result{}, orcherr.New(orcherr.InvalidResponseFormat, "decoding messages response").WithCause(err).WithProvider(string(provider.Anthropic))
	}
	content := contentOf(resp.Content)
	if content == "" {
		return provider.Result{}, orcherr.New(orcherr.NoContentInResponse, "no content in response").WithProvider(string(provider.Anthropic))
	}
	return provider.Result{
		Content: content,
		Usage: provider.Usage{
			Provider:     provider.Anthropic,
			Model:        resp.Model,
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

// sseEvent mirrors the subset of Anthropic's streaming event shapes
// this adapter consumes: content_block_delta carries text, and
// message_delta carries the final usage/output token count.
type sseEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Text         string `json:"text"`
		OutputTokens int    `json:"output_tokens"`
	} `json:"delta"`
	Usage   usage `json:"usage"`
	Message struct {
		Model string `json:"model"`
		Usage usage  `json:"usage"`
	} `json:"message"`
}

// CallStreaming implements provider.Adapter.
func (a *Adapter) CallStreaming(ctx context.Context, desc provider.Descriptor, prompt string, pctx provider.Context, events *bus.Bus) (provider.Result, *orcherr.Error) {
	body := a.buildRequest(desc, prompt, pctx, true)
	payload, err := json.Marshal(body)
	if err != nil {
		return provider.Result{}, orcherr.New(orcherr.InvalidRequest, "marshaling streaming request").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(desc), bytes.NewReader(payload))
	if err != nil {
		return provider.Result{}, orcherr.New(orcherr.InvalidRequest, "building streaming request").WithCause(err)
	}
	for k, v := range a.headers(desc) {
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
			WithProvider(string(provider.Anthropic))
	}

	topic := bus.Topic(string(provider.Anthropic))
	var content strings.Builder
	var model string
	var inputTokens, outputTokens int

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		var evt sseEvent
		if err := json.Unmarshal([]byte(data), &evt); err != nil {
			continue
		}
		switch evt.Type {
		case "message_start":
			if evt.Message.Model != "" {
				model = evt.Message.Model
			}
			inputTokens = evt.Message.Usage.InputTokens
		case "content_block_delta":
			if evt.Delta.Text == "" {
				continue
			}
			content.WriteString(evt.Delta.Text)
			if events != nil {
				events.Publish(topic, provider.Chunk{Provider: provider.Anthropic, Text: evt.Delta.Text, Timestamp: time.Now()})
			}
		case "message_delta":
			if evt.Usage.OutputTokens > 0 {
				outputTokens = evt.Usage.OutputTokens
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return provider.Result{}, orcherr.New(orcherr.NetworkError, "reading stream").WithCause(err).WithRetryable(true)
	}

	if content.Len() == 0 {
		return provider.Result{}, orcherr.New(orcherr.NoContentInResponse, "no content in stream").WithProvider(string(provider.Anthropic))
	}

	return provider.Result{
		Content: content.String(),
		Usage: provider.Usage{
			Provider:     provider.Anthropic,
			Model:        model,
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			TotalTokens:  inputTokens + outputTokens,
		},
	}, nil
}

// ValidateCredentials implements provider.Adapter via a minimal
// request (Anthropic has no dedicated "list models" endpoint on all
// API versions, so a 1-token completion doubles as the credential
// check).
func (a *Adapter) ValidateCredentials(ctx context.Context, desc provider.Descriptor) *orcherr.Error {
	probe := desc
	probe.MaxOutputTokens = 1
	body := a.buildRequest(probe, "ping", provider.Context{}, false)
	_, httpErr := a.client.Post(ctx, a.endpoint(desc), body, a.headers(desc), httpretry.DefaultPostOptions())
	if httpErr != nil {
		return classify(httpErr)
	}
	return nil
}

func classify(httpErr *httpretry.HTTPError) *orcherr.Error {
	if httpErr.StatusCode == 0 {
		return orcherr.New(orcherr.NetworkError, "network error").
			WithCause(httpErr.Cause).WithProvider(string(provider.Anthropic)).WithRetryable(true)
	}
	code := orcherr.FromHTTPStatus(httpErr.StatusCode)
	return orcherr.Newf(code, "http status %d", httpErr.StatusCode).
		WithCause(httpErr.Cause).WithProvider(string(provider.Anthropic)).WithRetryable(httpErr.Retryable)
}
