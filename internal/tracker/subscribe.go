package tracker

import (
	"time"

	"github.com/forgecode/orchestra/internal/bus"
	"github.com/forgecode/orchestra/internal/provider"
	"github.com/forgecode/orchestra/internal/tokencount"
)

// progressCeiling caps the elapsed-over-average progress estimate so a
// slow call never reports itself finished before its terminal event.
const progressCeiling = 0.95

// Watch subscribes the tracker to each provider's topic so streaming
// events drive the tracking records: chunk events accumulate tokens
// and refresh the progress/ETA estimate, and complete/error events
// finalize the record. Start stays explicit because only the caller
// knows the task id; a worker can run one task at a time, so the
// provider named in an event identifies the task unambiguously.
func (t *Tracker) Watch(events *bus.Bus, providers []provider.Name) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.events = events
	for _, p := range providers {
		if _, ok := t.subIDs[p]; ok {
			continue
		}
		t.subIDs[p] = events.Subscribe(bus.Topic(string(p)), t.handle)
	}
}

// Stop unsubscribes from every watched provider's topic.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for p, id := range t.subIDs {
		t.events.Unsubscribe(bus.Topic(string(p)), id)
	}
	t.subIDs = make(map[provider.Name]string)
}

func (t *Tracker) handle(event bus.Event) {
	switch e := event.(type) {
	case provider.Chunk:
		t.onChunk(e.Provider, e.Text)
	case provider.Complete:
		t.onComplete(e.Provider, e.Usage.TotalTokens)
	case provider.ErrorEvent:
		t.onError(e.Provider)
	}
}

// onChunk accumulates the chunk's estimated tokens into the in-flight
// record and estimates progress as elapsed time over the provider's
// rolling average completion time, when one exists.
func (t *Tracker) onChunk(p provider.Name, text string) {
	t.mu.Lock()
	taskID, ok := t.active[p]
	if !ok {
		t.mu.Unlock()
		return
	}
	r, ok := t.records[taskID]
	if !ok {
		t.mu.Unlock()
		return
	}
	tokens := r.TokensUsed + tokencount.EstimateTokens(text)

	var progress *float64
	if avg := t.statsFor(p).AvgCompletionMs; avg > 0 {
		pr := float64(time.Since(r.StartedAt).Milliseconds()) / avg
		if pr > progressCeiling {
			pr = progressCeiling
		}
		progress = &pr
	}
	t.mu.Unlock()

	t.Update(taskID, &tokens, progress, nil)
}

func (t *Tracker) onComplete(p provider.Name, totalTokens int) {
	t.mu.Lock()
	taskID, ok := t.active[p]
	t.mu.Unlock()
	if !ok {
		return
	}
	if totalTokens > 0 {
		t.Update(taskID, &totalTokens, nil, nil)
	}
	t.Complete(taskID)
}

func (t *Tracker) onError(p provider.Name) {
	t.mu.Lock()
	taskID, ok := t.active[p]
	t.mu.Unlock()
	if !ok {
		return
	}
	t.Fail(taskID)
}
