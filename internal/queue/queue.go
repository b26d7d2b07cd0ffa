// Package queue implements the Task Queue: a process-wide
// task store with four partitions: pending (priority min-heap),
// running, completed (bounded to the last 1000), and failed (bounded
// to the last 1000). Every operation serializes through a single
// mutex, one cooperative actor owning all task state.
package queue

import (
	"container/heap"
	"fmt"
	"sync"
	"time"

	"github.com/forgecode/orchestra/internal/task"
)

// retentionLimit bounds the completed and failed partitions.
const retentionLimit = 1000

// pendingItem is one entry in the pending min-heap, ordered by
// {priority_rank, created_at}.
type pendingItem struct {
	task  task.Task
	index int
}

type pendingHeap []*pendingItem

func (h pendingHeap) Len() int { return len(h) }
func (h pendingHeap) Less(i, j int) bool {
	ri, rj := task.Rank(h[i].task.Priority), task.Rank(h[j].task.Priority)
	if ri != rj {
		return ri < rj
	}
	return h[i].task.CreatedAt.Before(h[j].task.CreatedAt)
}
func (h pendingHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *pendingHeap) Push(x any) {
	item := x.(*pendingItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// Counts summarizes partition sizes.
type Counts struct {
	Pending   int
	Running   int
	Completed int
	Failed    int
}

// Snapshot is the result of list_all(): one slice per partition.
type Snapshot struct {
	Pending   []task.Task
	Running   []task.Task
	Completed []task.Task
	Failed    []task.Task
}

// Queue is the singleton Task Queue actor. Callers
// typically hold one instance per process.
type Queue struct {
	mu sync.Mutex

	pending   pendingHeap
	pendingBy map[string]*pendingItem
	running   map[string]task.Task
	completed []task.Task
	failed    []task.Task
}

// New creates an empty Queue.
func New() *Queue {
	return &Queue{
		pendingBy: make(map[string]*pendingItem),
		running:   make(map[string]task.Task),
	}
}

// ErrNotFound is returned when an operation names an id not present
// in the partition it expects.
var ErrNotFound = fmt.Errorf("task not found")

// Enqueue adds a new pending task.
func (q *Queue) Enqueue(t task.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t.Status = task.StatusPending
	item := &pendingItem{task: t}
	heap.Push(&q.pending, item)
	q.pendingBy[t.ID] = item
}

// DequeueNext pops the highest-priority pending task (ties broken by
// created_at) and removes it from pending, or returns false if pending
// is empty. The task belongs to no partition until the caller passes
// it to Start, which stamps started_at and records it as running.
func (q *Queue) DequeueNext() (task.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending.Len() == 0 {
		return task.Task{}, false
	}
	item := heap.Pop(&q.pending).(*pendingItem)
	delete(q.pendingBy, item.task.ID)
	return item.task, true
}

// Start moves a pending-and-dequeued task into the running partition,
// stamping started_at.
func (q *Queue) Start(t task.Task) task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	t = task.SetStarted(t, time.Now())
	q.running[t.ID] = t
	return t
}

// Complete moves a running task to completed, stamping completed_at.
func (q *Queue) Complete(id string) (task.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.running[id]
	if !ok {
		return task.Task{}, ErrNotFound
	}
	delete(q.running, id)

	t = task.SetCompleted(t, task.StatusCompleted, time.Now())
	q.completed = appendBounded(q.completed, t, retentionLimit)
	return t, nil
}

// Fail moves a running task to failed, stamping completed_at.
func (q *Queue) Fail(id string, reason string) (task.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.running[id]
	if !ok {
		return task.Task{}, ErrNotFound
	}
	delete(q.running, id)

	t = task.SetCompleted(t, task.StatusFailed, time.Now())
	_ = reason // not stored; the queue only needs the terminal state
	q.failed = appendBounded(q.failed, t, retentionLimit)
	return t, nil
}

// Cancel removes a task from pending or running and records it as
// cancelled. A subsequently arriving Complete/Fail for this id fails
// with ErrNotFound: a completion arriving for a
// cancelled id is ignored".
func (q *Queue) Cancel(id string) (task.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if item, ok := q.pendingBy[id]; ok {
		heap.Remove(&q.pending, item.index)
		delete(q.pendingBy, id)
		t := task.SetCompleted(item.task, task.StatusCancelled, time.Now())
		q.failed = appendBounded(q.failed, t, retentionLimit)
		return t, nil
	}
	if t, ok := q.running[id]; ok {
		delete(q.running, id)
		t = task.SetCompleted(t, task.StatusCancelled, time.Now())
		q.failed = appendBounded(q.failed, t, retentionLimit)
		return t, nil
	}
	return task.Task{}, ErrNotFound
}

// UpdatePriority changes a pending task's priority. It
// invariant: priority updates are safe only while the task is
// pending; a running/terminal task returns ErrNotFound.
func (q *Queue) UpdatePriority(id string, priority task.Priority) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.pendingBy[id]
	if !ok {
		return ErrNotFound
	}
	item.task.Priority = priority
	heap.Fix(&q.pending, item.index)
	return nil
}

// GetTask looks up a task by id across all four partitions.
func (q *Queue) GetTask(id string) (task.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if item, ok := q.pendingBy[id]; ok {
		return item.task, true
	}
	if t, ok := q.running[id]; ok {
		return t, true
	}
	for _, t := range q.completed {
		if t.ID == id {
			return t, true
		}
	}
	for _, t := range q.failed {
		if t.ID == id {
			return t, true
		}
	}
	return task.Task{}, false
}

// ListAll returns a snapshot of every partition.
func (q *Queue) ListAll() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := make([]task.Task, 0, len(q.pending))
	for _, item := range q.pending {
		pending = append(pending, item.task)
	}
	running := make([]task.Task, 0, len(q.running))
	for _, t := range q.running {
		running = append(running, t)
	}
	return Snapshot{
		Pending:   pending,
		Running:   running,
		Completed: append([]task.Task(nil), q.completed...),
		Failed:    append([]task.Task(nil), q.failed...),
	}
}

// Status returns partition counts.
func (q *Queue) Status() Counts {
	q.mu.Lock()
	defer q.mu.Unlock()

	return Counts{
		Pending:   q.pending.Len(),
		Running:   len(q.running),
		Completed: len(q.completed),
		Failed:    len(q.failed),
	}
}

func appendBounded(s []task.Task, t task.Task, limit int) []task.Task {
	s = append(s, t)
	if len(s) > limit {
		s = s[len(s)-limit:]
	}
	return s
}
