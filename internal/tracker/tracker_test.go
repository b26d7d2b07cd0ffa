package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgecode/orchestra/internal/bus"
	"github.com/forgecode/orchestra/internal/provider"
)

func TestStartThenCompleteUpdatesRollingAverage(t *testing.T) {
	tr := New(nil)
	tr.Start("t1", provider.OpenAI)

	stats := tr.ProviderStats(provider.OpenAI)
	assert.Equal(t, 1, stats.ActiveTasks)

	time.Sleep(2 * time.Millisecond)
	tr.Complete("t1")

	stats = tr.ProviderStats(provider.OpenAI)
	assert.Equal(t, 0, stats.ActiveTasks)
	assert.Equal(t, 1, stats.CompletedTasks)
	assert.Greater(t, stats.AvgCompletionMs, 0.0)
}

func TestUpdateComputesETA(t *testing.T) {
	tr := New(nil)
	tr.Start("t1", provider.OpenAI)
	time.Sleep(5 * time.Millisecond)

	progress := 0.5
	tr.Update("t1", nil, &progress, nil)

	rec, ok := tr.Get("t1")
	require.True(t, ok)
	require.NotNil(t, rec.EstimatedCompletion)
	assert.True(t, rec.EstimatedCompletion.After(rec.StartedAt))
}

func TestUpdateWithZeroProgressHasNoETA(t *testing.T) {
	tr := New(nil)
	tr.Start("t1", provider.OpenAI)

	zero := 0.0
	tr.Update("t1", nil, &zero, nil)

	rec, ok := tr.Get("t1")
	require.True(t, ok)
	assert.Nil(t, rec.EstimatedCompletion)
}

func TestFailIncrementsFailedAndClearsActive(t *testing.T) {
	tr := New(nil)
	tr.Start("t1", provider.Anthropic)
	tr.Fail("t1")

	stats := tr.ProviderStats(provider.Anthropic)
	assert.Equal(t, 0, stats.ActiveTasks)
	assert.Equal(t, 1, stats.FailedTasks)

	_, ok := tr.Get("t1")
	assert.False(t, ok)
}

func TestGlobalStatsAggregatesAcrossProviders(t *testing.T) {
	tr := New(nil)
	tr.Start("t1", provider.OpenAI)
	tr.Start("t2", provider.Anthropic)
	tr.Complete("t1")
	tr.Fail("t2")

	g := tr.GlobalStats()
	assert.Equal(t, 0, g.TotalActive)
	assert.Equal(t, 1, g.TotalCompleted)
	assert.Equal(t, 1, g.TotalFailed)
}

func TestWatchDrivesTrackingFromBusEvents(t *testing.T) {
	events := bus.New(nil)
	tr := New(nil)
	tr.Watch(events, []provider.Name{provider.OpenAI})
	defer tr.Stop()

	tr.Start("task-1", provider.OpenAI)
	topic := bus.Topic(string(provider.OpenAI))

	events.Publish(topic, provider.Chunk{Provider: provider.OpenAI, Text: "def hello():", Timestamp: time.Now()})
	assert.Eventually(t, func() bool {
		r, ok := tr.Get("task-1")
		return ok && r.TokensUsed > 0
	}, time.Second, 5*time.Millisecond)

	events.Publish(topic, provider.Complete{
		Provider:  provider.OpenAI,
		Response:  "def hello():",
		Usage:     provider.Usage{TotalTokens: 12},
		Timestamp: time.Now(),
	})
	assert.Eventually(t, func() bool {
		_, inFlight := tr.Get("task-1")
		stats := tr.ProviderStats(provider.OpenAI)
		return !inFlight && stats.CompletedTasks == 1 && stats.TotalTokens == 12
	}, time.Second, 5*time.Millisecond)
}

func TestWatchFailsRecordOnErrorEvent(t *testing.T) {
	events := bus.New(nil)
	tr := New(nil)
	tr.Watch(events, []provider.Name{provider.Anthropic})
	defer tr.Stop()

	tr.Start("task-2", provider.Anthropic)
	events.Publish(bus.Topic(string(provider.Anthropic)), provider.ErrorEvent{
		Provider: provider.Anthropic,
		Message:  "bad key",
	})

	assert.Eventually(t, func() bool {
		_, inFlight := tr.Get("task-2")
		return !inFlight && tr.ProviderStats(provider.Anthropic).FailedTasks == 1
	}, time.Second, 5*time.Millisecond)
}

func TestChunkProgressUsesRollingAverage(t *testing.T) {
	events := bus.New(nil)
	tr := New(nil)
	tr.Watch(events, []provider.Name{provider.Local})
	defer tr.Stop()

	// Seed a completed task so the provider has an average to
	// estimate against.
	tr.Start("seed", provider.Local)
	time.Sleep(10 * time.Millisecond)
	tr.Complete("seed")
	require.Greater(t, tr.ProviderStats(provider.Local).AvgCompletionMs, 0.0)

	tr.Start("task-3", provider.Local)
	time.Sleep(5 * time.Millisecond)
	events.Publish(bus.Topic(string(provider.Local)), provider.Chunk{Provider: provider.Local, Text: "chunk"})

	assert.Eventually(t, func() bool {
		r, ok := tr.Get("task-3")
		return ok && r.Progress > 0 && r.Progress <= progressCeiling && r.EstimatedCompletion != nil
	}, time.Second, 5*time.Millisecond)
}
