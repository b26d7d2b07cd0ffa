// Package tracker implements the Task Tracker: per-task
// progress/ETA tracking and rolling per-provider statistics, updated
// from worker/provider-adapter events and exported as Prometheus
// metrics via internal/metrics.
package tracker

import (
	"sync"
	"time"

	"github.com/forgecode/orchestra/internal/bus"
	"github.com/forgecode/orchestra/internal/metrics"
	"github.com/forgecode/orchestra/internal/provider"
)

// Record is a per-task tracking record, created on worker start and discarded on terminal state.
type Record struct {
	TaskID              string
	Provider            provider.Name
	StartedAt           time.Time
	TokensUsed          int
	Progress            float64
	EstimatedCompletion *time.Time
	LastUpdate          time.Time
	Metadata            map[string]string
}

// ProviderStats is the rolling per-provider statistics, updated
// incrementally as tasks finish.
type ProviderStats struct {
	ActiveTasks     int
	CompletedTasks  int
	FailedTasks     int
	TotalTokens     int
	AvgCompletionMs float64
}

// GlobalStats aggregates ProviderStats across every known provider.
type GlobalStats struct {
	TotalActive    int
	TotalCompleted int
	TotalFailed    int
	TotalTokens    int
}

// Tracker is the singleton actor owning tracking records and rolling
// statistics. All methods serialize through a single
// mutex, one cooperative actor owning all tracking state.
type Tracker struct {
	mu      sync.Mutex
	records map[string]*Record
	stats   map[provider.Name]*ProviderStats
	metrics *metrics.Collector

	// Bus subscription state (subscribe.go). active binds each
	// provider to its in-flight task so provider-keyed bus events can
	// find the record to update.
	events *bus.Bus
	subIDs map[provider.Name]string
	active map[provider.Name]string
}

// New creates an empty Tracker. metrics may be nil to disable
// Prometheus export (tests typically pass nil).
func New(m *metrics.Collector) *Tracker {
	return &Tracker{
		records: make(map[string]*Record),
		stats:   make(map[provider.Name]*ProviderStats),
		subIDs:  make(map[provider.Name]string),
		active:  make(map[provider.Name]string),
		metrics: m,
	}
}

// Start begins tracking taskID against provider.
func (t *Tracker) Start(taskID string, p provider.Name) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.records[taskID] = &Record{
		TaskID:     taskID,
		Provider:   p,
		StartedAt:  now,
		LastUpdate: now,
	}
	t.active[p] = taskID
	s := t.statsFor(p)
	s.ActiveTasks++
	t.exportActive(p, s)
}

// Update records new tokens/progress/metadata for an in-flight task
// and recomputes its ETA: remaining_ms = (elapsed_ms /
// progress) − elapsed_ms when progress > 0, else nil).
func (t *Tracker) Update(taskID string, tokens *int, progress *float64, metadata map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.records[taskID]
	if !ok {
		return
	}
	now := time.Now()
	if tokens != nil {
		r.TokensUsed = *tokens
	}
	if progress != nil {
		r.Progress = *progress
	}
	if metadata != nil {
		r.Metadata = metadata
	}
	r.LastUpdate = now

	if r.Progress > 0 {
		elapsedMs := float64(now.Sub(r.StartedAt).Milliseconds())
		remainingMs := elapsedMs/r.Progress - elapsedMs
		eta := now.Add(time.Duration(remainingMs) * time.Millisecond)
		r.EstimatedCompletion = &eta
	} else {
		r.EstimatedCompletion = nil
	}
}

// Complete finalizes a task's tracking record as successful, updating
// the provider's rolling average completion time with the
// recurrence avg' = (avg*(n-1) + t)/n.
func (t *Tracker) Complete(taskID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.records[taskID]
	if !ok {
		return
	}
	delete(t.records, taskID)
	if t.active[r.Provider] == taskID {
		delete(t.active, r.Provider)
	}

	elapsed := time.Since(r.StartedAt)
	s := t.statsFor(r.Provider)
	if s.ActiveTasks > 0 {
		s.ActiveTasks--
	}
	s.CompletedTasks++
	s.TotalTokens += r.TokensUsed
	n := float64(s.CompletedTasks)
	s.AvgCompletionMs = (s.AvgCompletionMs*(n-1) + float64(elapsed.Milliseconds())) / n

	if t.metrics != nil {
		t.metrics.RecordCompletion(string(r.Provider), r.TokensUsed, elapsed)
	}
	t.exportActive(r.Provider, s)
}

// Fail finalizes a task's tracking record as failed.
func (t *Tracker) Fail(taskID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.records[taskID]
	if !ok {
		return
	}
	delete(t.records, taskID)
	if t.active[r.Provider] == taskID {
		delete(t.active, r.Provider)
	}

	s := t.statsFor(r.Provider)
	if s.ActiveTasks > 0 {
		s.ActiveTasks--
	}
	s.FailedTasks++

	if t.metrics != nil {
		t.metrics.RecordFailure(string(r.Provider))
	}
	t.exportActive(r.Provider, s)
}

// Get returns a copy of taskID's tracking record, if still in flight.
func (t *Tracker) Get(taskID string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.records[taskID]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// ListAll returns a copy of every in-flight tracking record.
func (t *Tracker) ListAll() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Record, 0, len(t.records))
	for _, r := range t.records {
		out = append(out, *r)
	}
	return out
}

// ProviderStats returns a copy of p's rolling statistics.
func (t *Tracker) ProviderStats(p provider.Name) ProviderStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.statsFor(p)
}

// AllProviderStats returns a copy of every known provider's rolling
// statistics.
func (t *Tracker) AllProviderStats() map[provider.Name]ProviderStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[provider.Name]ProviderStats, len(t.stats))
	for p, s := range t.stats {
		out[p] = *s
	}
	return out
}

// GlobalStats aggregates every provider's rolling statistics.
func (t *Tracker) GlobalStats() GlobalStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	var g GlobalStats
	for _, s := range t.stats {
		g.TotalActive += s.ActiveTasks
		g.TotalCompleted += s.CompletedTasks
		g.TotalFailed += s.FailedTasks
		g.TotalTokens += s.TotalTokens
	}
	return g
}

func (t *Tracker) statsFor(p provider.Name) *ProviderStats {
	s, ok := t.stats[p]
	if !ok {
		s = &ProviderStats{}
		t.stats[p] = s
	}
	return s
}

func (t *Tracker) exportActive(p provider.Name, s *ProviderStats) {
	if t.metrics != nil {
		t.metrics.SetActiveTasks(string(p), s.ActiveTasks)
	}
}
