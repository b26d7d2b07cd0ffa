package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgecode/orchestra/internal/bus"
	"github.com/forgecode/orchestra/internal/orcherr"
	"github.com/forgecode/orchestra/internal/provider"
)

type fakeAdapter struct {
	chunks   []string
	content  string
	callErr  *orcherr.Error
}

func (f *fakeAdapter) Call(ctx context.Context, desc provider.Descriptor, prompt string, pctx provider.Context) (provider.Result, *orcherr.Error) {
	if f.callErr != nil {
		return provider.Result{}, f.callErr
	}
	return provider.Result{Content: f.content}, nil
}

func (f *fakeAdapter) CallStreaming(ctx context.Context, desc provider.Descriptor, prompt string, pctx provider.Context, events *bus.Bus) (provider.Result, *orcherr.Error) {
	if f.callErr != nil {
		return provider.Result{}, f.callErr
	}
	var content string
	for _, c := range f.chunks {
		content += c
		if events != nil {
			events.Publish(bus.Topic(string(desc.Name)), provider.Chunk{Provider: desc.Name, Text: c, Timestamp: time.Now()})
		}
	}
	return provider.Result{Content: content}, nil
}

func (f *fakeAdapter) ValidateCredentials(ctx context.Context, desc provider.Descriptor) *orcherr.Error {
	return f.callErr
}

func TestExecuteTransitionsIdleWorkingIdle(t *testing.T) {
	b := bus.New(nil)
	w := New(provider.Descriptor{Name: provider.OpenAI}, &fakeAdapter{content: "hello"}, b, nil)

	assert.Equal(t, StatusIdle, w.Status())
	result, err := w.Execute(context.Background(), "prompt", provider.Context{})
	require.Nil(t, err)
	assert.Equal(t, "hello", result.Content)
	assert.Equal(t, StatusIdle, w.Status())
}

func TestExecuteStreamingPublishesStatusThenChunksThenComplete(t *testing.T) {
	b := bus.New(nil)
	var mu sync.Mutex
	var received []any
	done := make(chan struct{})

	b.Subscribe(bus.Topic("openai"), func(e bus.Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
		if _, ok := e.(provider.Complete); ok {
			close(done)
		}
	})

	w := New(provider.Descriptor{Name: provider.OpenAI}, &fakeAdapter{chunks: []string{"def ", "hello", "()"}}, b, nil)
	result, err := w.ExecuteStreaming(context.Background(), "prompt", provider.Context{})
	require.Nil(t, err)
	assert.Equal(t, "def hello()", result.Content)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for complete event")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 5) // status_change, 3 chunks, complete
	_, isStatusChange := received[0].(provider.StatusChange)
	assert.True(t, isStatusChange)
	_, isComplete := received[4].(provider.Complete)
	assert.True(t, isComplete)

	var concatenated string
	for _, e := range received[1:4] {
		chunk := e.(provider.Chunk)
		concatenated += chunk.Text
	}
	assert.Equal(t, "def hello()", concatenated)
}

func TestExecutePublishesErrorOnFailure(t *testing.T) {
	b := bus.New(nil)
	errCh := make(chan provider.ErrorEvent, 1)
	b.Subscribe(bus.Topic("openai"), func(e bus.Event) {
		if ev, ok := e.(provider.ErrorEvent); ok {
			errCh <- ev
		}
	})

	w := New(provider.Descriptor{Name: provider.OpenAI}, &fakeAdapter{callErr: orcherr.New(orcherr.AuthenticationError, "bad key")}, b, nil)
	_, err := w.Execute(context.Background(), "prompt", provider.Context{})
	require.NotNil(t, err)

	select {
	case ev := <-errCh:
		assert.Equal(t, orcherr.AuthenticationError, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error event")
	}
}
