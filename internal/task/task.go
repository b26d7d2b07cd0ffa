// Package task implements the Task Model: the Task entity
// and its functional mutations. A Task carries its own id, description,
// priority, provider assignment, lifecycle status and timings; every
// mutation returns a new Task value rather than mutating in place, so
// the Task Queue can reason about ownership without aliasing.
package task

import (
	"time"

	"github.com/google/uuid"

	"github.com/forgecode/orchestra/internal/provider"
)

// Priority orders pending tasks in the queue.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// rank gives Priority a total order for the queue's min-heap: lower
// rank dequeues first.
func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// Rank exposes the priority ordering to the queue's heap comparator.
func Rank(p Priority) int { return p.rank() }

// Status is a task's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Result is one provider's outcome for a task, keyed into Task.Results
// by provider.Name.
type Result struct {
	Content string
	Usage   provider.Usage
	Err     error
}

// Task is an immutable-by-convention entity. Callers
// never mutate a Task's fields directly; every state transition goes
// through one of the functions below (AssignTo, SetStatus, SetStarted,
// SetCompleted, SetResult), which return a new value.
type Task struct {
	ID          string
	Description string
	Priority    Priority
	Status      Status
	AssignedTo  []provider.Name
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Results     map[provider.Name]Result
}

// Options configures New.
type Options struct {
	Priority Priority
}

// New constructs a pending Task with a fresh id.
func New(description string, opts Options) Task {
	priority := opts.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	return Task{
		ID:          uuid.NewString(),
		Description: description,
		Priority:    priority,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}
}

// AssignTo returns a copy of t assigned to the given non-empty set of
// providers.
func AssignTo(t Task, providers []provider.Name) Task {
	t.AssignedTo = append([]provider.Name(nil), providers...)
	return t
}

// SetStatus returns a copy of t with Status updated.
func SetStatus(t Task, status Status) Task {
	t.Status = status
	return t
}

// SetStarted returns a copy of t transitioned to running with
// StartedAt set.
func SetStarted(t Task, ts time.Time) Task {
	t.Status = StatusRunning
	t.StartedAt = &ts
	return t
}

// SetCompleted returns a copy of t transitioned to a terminal status
// with CompletedAt set. CompletedAt is clamped to StartedAt so the
// invariant completed_at >= started_at always holds even if the
// caller's clock read happened to race backwards.
func SetCompleted(t Task, status Status, ts time.Time) Task {
	if t.StartedAt != nil && ts.Before(*t.StartedAt) {
		ts = *t.StartedAt
	}
	t.Status = status
	t.CompletedAt = &ts
	return t
}

// SetResult returns a copy of t with provider's outcome recorded.
func SetResult(t Task, p provider.Name, result Result) Task {
	results := make(map[provider.Name]Result, len(t.Results)+1)
	for k, v := range t.Results {
		results[k] = v
	}
	results[p] = result
	t.Results = results
	return t
}

// ElapsedMillis returns the task's running duration in milliseconds,
// measured from StartedAt to CompletedAt if terminal or to now
// otherwise, or nil if the task has not started.
func ElapsedMillis(t Task) *int64 {
	if t.StartedAt == nil {
		return nil
	}
	end := time.Now()
	if t.CompletedAt != nil {
		end = *t.CompletedAt
	}
	ms := end.Sub(*t.StartedAt).Milliseconds()
	return &ms
}
