// Package local implements the Provider Adapter contract
// for a local Ollama-compatible server. Every call is preceded by a
// health probe (GET /api/tags); a failed probe reports
// server_unreachable rather than the generic network_error a remote
// provider would surface, since the expected remediation differs
// (start the local server vs. check connectivity).
package local

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/forgecode/orchestra/internal/bus"
	"github.com/forgecode/orchestra/internal/httpretry"
	"github.com/forgecode/orchestra/internal/orcherr"
	"github.com/forgecode/orchestra/internal/provider"
)

const defaultBaseURL = "http://localhost:11434"

// Adapter implements provider.Adapter for a local Ollama-compatible
// server.
type Adapter struct {
	client *httpretry.Client
	logger *zap.Logger
}

// New creates the Local adapter.
func New(logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{client: httpretry.New(nil, logger), logger: logger}
}

func (a *Adapter) baseURL(desc provider.Descriptor) string {
	if desc.EndpointOverride != "" {
		return strings.TrimRight(desc.EndpointOverride, "/")
	}
	return defaultBaseURL
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature,omitempty"`
	} `json:"options,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

// probe issues the health check required before every request.
func (a *Adapter) probe(ctx context.Context, desc provider.Descriptor) *orcherr.Error {
	_, httpErr := a.client.Get(ctx, a.baseURL(desc)+"/api/tags", nil, httpretry.DefaultGetOptions())
	if httpErr != nil {
		return orcherr.New(orcherr.ServerUnreachable, "local server health check failed").
			WithCause(httpErr.Cause).WithProvider(string(provider.Local))
	}
	return nil
}

func (a *Adapter) buildRequest(desc provider.Descriptor, prompt string, pctx provider.Context, stream bool) chatRequest {
	messages := make([]chatMessage, 0, len(pctx.Messages)+2)
	if pctx.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: pctx.SystemPrompt})
	}
	for _, m := range pctx.Messages {
		messages = append(messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	req := chatRequest{Model: desc.Model, Messages: messages, Stream: stream}
	req.Options.Temperature = desc.Temperature
	return req
}

// Call implements provider.Adapter.
func (a *Adapter) Call(ctx context.Context, desc provider.Descriptor, prompt string, pctx provider.Context) (provider.Result, *orcherr.Error) {
	if err := a.probe(ctx, desc); err != nil {
		return provider.Result{}, err
	}

	body := a.buildRequest(desc, prompt, pctx, false)
	httpResp, httpErr := a.client.Post(ctx, a.baseURL(desc)+"/api/chat", body, map[string]string{"Content-Type": "application/json"}, httpretry.DefaultPostOptions())
	if httpErr != nil {
		return provider.Result{}, classify(httpErr)
	}

	var resp chatResponse
	if err := json.Unmarshal(httpResp.Body, &resp); err != nil {
		return provider.Result{}, orcherr.New(orcherr.InvalidResponseFormat, "decoding chat response").WithCause(err).WithProvider(string(provider.Local))
	}
	if resp.Message.Content == "" {
		return provider.Result{}, orcherr.New(orcherr.NoContentInResponse, "no content in response").WithProvider(string(provider.Local))
	}
	return provider.Result{
		Content: resp.Message.Content,
		Usage: provider.Usage{
			Provider:     provider.Local,
			Model:        resp.Model,
			InputTokens:  resp.PromptEvalCount,
			OutputTokens: resp.EvalCount,
			TotalTokens:  resp.PromptEvalCount + resp.EvalCount,
		},
	}, nil
}

// CallStreaming implements provider.Adapter. Ollama streams
// newline-delimited JSON objects, one per token/line, each a partial
// chatResponse with Done=false until the final summary object.
func (a *Adapter) CallStreaming(ctx context.Context, desc provider.Descriptor, prompt string, pctx provider.Context, events *bus.Bus) (provider.Result, *orcherr.Error) {
	if err := a.probe(ctx, desc); err != nil {
		return provider.Result{}, err
	}

	body := a.buildRequest(desc, prompt, pctx, true)
	payload, err := json.Marshal(body)
	if err != nil {
		return provider.Result{}, orcherr.New(orcherr.InvalidRequest, "marshaling streaming request").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL(desc)+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return provider.Result{}, orcherr.New(orcherr.InvalidRequest, "building streaming request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := &http.Client{}
	resp, err := httpClient.Do(req)
	if err != nil {
		return provider.Result{}, orcherr.New(orcherr.NetworkError, "streaming request failed").WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return provider.Result{}, orcherr.Newf(orcherr.FromHTTPStatus(resp.StatusCode), "http status %d", resp.StatusCode).
			WithProvider(string(provider.Local))
	}

	topic := bus.Topic(string(provider.Local))
	var content strings.Builder
	var model string
	var promptTokens, evalTokens int

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var chunk chatResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			continue
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		if chunk.Message.Content != "" {
			content.WriteString(chunk.Message.Content)
			if events != nil {
				events.Publish(topic, provider.Chunk{Provider: provider.Local, Text: chunk.Message.Content, Timestamp: time.Now()})
			}
		}
		if chunk.Done {
			promptTokens = chunk.PromptEvalCount
			evalTokens = chunk.EvalCount
		}
	}
	if err := scanner.Err(); err != nil {
		return provider.Result{}, orcherr.New(orcherr.NetworkError, "reading stream").WithCause(err).WithRetryable(true)
	}
	if content.Len() == 0 {
		return provider.Result{}, orcherr.New(orcherr.NoContentInResponse, "no content in stream").WithProvider(string(provider.Local))
	}

	return provider.Result{
		Content: content.String(),
		Usage: provider.Usage{
			Provider:     provider.Local,
			Model:        model,
			InputTokens:  promptTokens,
			OutputTokens: evalTokens,
			TotalTokens:  promptTokens + evalTokens,
		},
	}, nil
}

// ValidateCredentials implements provider.Adapter: the local provider
// has no API key, so validation is exactly the health probe.
func (a *Adapter) ValidateCredentials(ctx context.Context, desc provider.Descriptor) *orcherr.Error {
	return a.probe(ctx, desc)
}

func classify(httpErr *httpretry.HTTPError) *orcherr.Error {
	if httpErr.StatusCode == 0 {
		return orcherr.New(orcherr.ServerUnreachable, "local server unreachable").
			WithCause(httpErr.Cause).WithProvider(string(provider.Local))
	}
	code := orcherr.FromHTTPStatus(httpErr.StatusCode)
	return orcherr.Newf(code, "http status %d", httpErr.StatusCode).
		WithCause(httpErr.Cause).WithProvider(string(provider.Local)).WithRetryable(httpErr.Retryable)
}
