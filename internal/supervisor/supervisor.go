// Package supervisor implements the Agent Supervisor: it
// creates one Worker per configured provider and offers health-gating
// before routing. Workers are created once, in New; the supervisor
// does not watch or restart them.
package supervisor

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/forgecode/orchestra/internal/bus"
	"github.com/forgecode/orchestra/internal/orcherr"
	"github.com/forgecode/orchestra/internal/provider"
	"github.com/forgecode/orchestra/internal/worker"
)

// Supervisor owns every configured Worker and its provider adapter.
type Supervisor struct {
	mu      sync.RWMutex
	workers map[provider.Name]*worker.Worker
	logger  *zap.Logger
}

// New starts one Worker per descriptor/adapter pair in registry,
// keyed by each descriptor's Name.
func New(descriptors []provider.Descriptor, registry provider.Registry, events *bus.Bus, logger *zap.Logger) (*Supervisor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Supervisor{
		workers: make(map[provider.Name]*worker.Worker, len(descriptors)),
		logger:  logger,
	}
	for _, desc := range descriptors {
		adapter, ok := registry.Get(desc.Name)
		if !ok {
			continue
		}
		s.workers[desc.Name] = worker.New(desc, adapter, events, logger)
	}
	return s, nil
}

// ListWorkers returns the providers with a running worker.
func (s *Supervisor) ListWorkers() []provider.Name {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]provider.Name, 0, len(s.workers))
	for name := range s.workers {
		names = append(names, name)
	}
	return names
}

// Worker returns the worker for name, if one is running.
func (s *Supervisor) Worker(name provider.Name) (*worker.Worker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workers[name]
	return w, ok
}

// CheckAllProviders validates credentials/reachability for every
// running worker in parallel and returns each provider's outcome.
// Unhealthy providers should be excluded from fan-out by the caller
// (the CLI / Router); when the resulting set is empty the CLI
// exits with code 2.
func (s *Supervisor) CheckAllProviders(ctx context.Context) map[provider.Name]*orcherr.Error {
	s.mu.RLock()
	workers := make(map[provider.Name]*worker.Worker, len(s.workers))
	for k, v := range s.workers {
		workers[k] = v
	}
	s.mu.RUnlock()

	var mu sync.Mutex
	results := make(map[provider.Name]*orcherr.Error, len(workers))

	g, gctx := errgroup.WithContext(ctx)
	for name, w := range workers {
		name, w := name, w
		g.Go(func() error {
			err := w.ValidateCredentials(gctx)
			mu.Lock()
			results[name] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// HealthyProviders filters descriptors down to the ones CheckAllProviders
// reports as healthy.
func HealthyProviders(checks map[provider.Name]*orcherr.Error) []provider.Name {
	var healthy []provider.Name
	for name, err := range checks {
		if err == nil {
			healthy = append(healthy, name)
		}
	}
	return healthy
}
