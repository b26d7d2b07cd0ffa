package display

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgecode/orchestra/internal/bus"
	"github.com/forgecode/orchestra/internal/provider"
)

type recordingRenderer struct {
	mu    sync.Mutex
	calls int
	last  []PaneState
}

func (r *recordingRenderer) Render(layout Layout, panes []PaneState, cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.last = panes
}

func (r *recordingRenderer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestLayoutForcesStackedAtThreeProviders(t *testing.T) {
	d := New(bus.New(nil), nil, Config{Layout: LayoutSideBySide})
	assert.Equal(t, LayoutSideBySide, d.layoutFor(2))
	assert.Equal(t, LayoutStacked, d.layoutFor(3))
}

func TestWatchAccumulatesChunksIntoPane(t *testing.T) {
	b := bus.New(nil)
	renderer := &recordingRenderer{}
	d := New(b, renderer, Config{RefreshRateMs: 0})
	d.Watch([]provider.Name{provider.OpenAI})

	b.Publish(bus.Topic("openai"), provider.StatusChange{Provider: provider.OpenAI, Status: "working"})
	b.Publish(bus.Topic("openai"), provider.Chunk{Provider: provider.OpenAI, Text: "def "})
	b.Publish(bus.Topic("openai"), provider.Chunk{Provider: provider.OpenAI, Text: "hello()"})
	b.Publish(bus.Topic("openai"), provider.Complete{Provider: provider.OpenAI, Response: "def hello()"})

	require.Eventually(t, func() bool {
		snap := d.Snapshot()
		return len(snap) == 1 && snap[0].AccumulatedContent == "def hello()"
	}, time.Second, 5*time.Millisecond)
}

func TestRedrawThrottledByRefreshRate(t *testing.T) {
	b := bus.New(nil)
	renderer := &recordingRenderer{}
	d := New(b, renderer, Config{RefreshRateMs: 10_000})
	d.Watch([]provider.Name{provider.OpenAI})

	for i := 0; i < 5; i++ {
		b.Publish(bus.Topic("openai"), provider.Chunk{Provider: provider.OpenAI, Text: "x"})
	}

	require.Eventually(t, func() bool { return renderer.count() >= 1 }, time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, renderer.count(), 1)
}
