// Package worker implements the Agent Worker: a stateful
// per-provider actor that executes one task at a time and publishes
// lifecycle events on the Event Bus.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/forgecode/orchestra/internal/bus"
	"github.com/forgecode/orchestra/internal/orcherr"
	"github.com/forgecode/orchestra/internal/provider"
)

// Status is the worker's lifecycle state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusWorking Status = "working"
)

// Worker owns one provider descriptor and executes at most one task
// at a time. A request arriving while working waits on the worker's
// mutex until the current call returns: Execute and ExecuteStreaming
// serialize concurrent callers rather than dropping work, so no two
// calls ever run their adapter concurrently.
type Worker struct {
	descriptor provider.Descriptor
	adapter    provider.Adapter
	events     *bus.Bus
	logger     *zap.Logger

	mu     sync.Mutex
	status Status
}

// New creates a Worker for descriptor, bound to adapter and the
// shared event bus.
func New(descriptor provider.Descriptor, adapter provider.Adapter, events *bus.Bus, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		descriptor: descriptor,
		adapter:    adapter,
		events:     events,
		logger:     logger.With(zap.String("provider", string(descriptor.Name))),
		status:     StatusIdle,
	}
}

// Provider returns the worker's provider identity.
func (w *Worker) Provider() provider.Name { return w.descriptor.Name }

// ValidateCredentials delegates to the underlying adapter's
// reachability/auth check without going through the working/idle
// state machine.
func (w *Worker) ValidateCredentials(ctx context.Context) *orcherr.Error {
	return w.adapter.ValidateCredentials(ctx, w.descriptor)
}

// Status returns the worker's current lifecycle state.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func (w *Worker) topic() string { return bus.Topic(string(w.descriptor.Name)) }

// Execute runs a synchronous (non-streaming) call. It serializes with
// any concurrent Execute/ExecuteStreaming on this worker, transitions
// idle → working → idle, and publishes status_change/complete/error
// events around the call.
func (w *Worker) Execute(ctx context.Context, prompt string, pctx provider.Context) (provider.Result, *orcherr.Error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.enterWorking()
	result, err := w.adapter.Call(ctx, w.descriptor, prompt, pctx)
	w.exitWorking(result, err)
	return result, err
}

// ExecuteStreaming runs a streaming call, with the adapter publishing
// Chunk events on the bus as text arrives; Worker publishes the
// surrounding lifecycle events: status_change(working) strictly
// before the first chunk, complete/error strictly after the last.
func (w *Worker) ExecuteStreaming(ctx context.Context, prompt string, pctx provider.Context) (provider.Result, *orcherr.Error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.enterWorking()
	result, err := w.adapter.CallStreaming(ctx, w.descriptor, prompt, pctx, w.events)
	w.exitWorking(result, err)
	return result, err
}

func (w *Worker) enterWorking() {
	w.status = StatusWorking
	w.logger.Debug("worker entering working state")
	if w.events != nil {
		w.events.Publish(w.topic(), provider.StatusChange{Provider: w.descriptor.Name, Status: string(StatusWorking)})
	}
}

func (w *Worker) exitWorking(result provider.Result, err *orcherr.Error) {
	w.status = StatusIdle
	now := time.Now()
	if err != nil {
		w.logger.Warn("worker call failed", zap.String("code", string(err.Code)), zap.Error(err))
		if w.events != nil {
			w.events.Publish(w.topic(), provider.ErrorEvent{
				Provider:  w.descriptor.Name,
				Kind:      err.Code,
				Message:   err.Message,
				Timestamp: now,
			})
		}
		return
	}
	w.logger.Debug("worker call completed", zap.Int("total_tokens", result.Usage.TotalTokens))
	if w.events != nil {
		w.events.Publish(w.topic(), provider.Complete{
			Provider:  w.descriptor.Name,
			Response:  result.Content,
			Usage:     result.Usage,
			Timestamp: now,
		})
	}
}
