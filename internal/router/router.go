// Package router implements the Router strategies:
// all/sequential/dialectical fan-out across a task's assigned
// providers, each call going through the provider's Worker.
package router

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/forgecode/orchestra/internal/contextfmt"
	"github.com/forgecode/orchestra/internal/orcherr"
	"github.com/forgecode/orchestra/internal/provider"
	"github.com/forgecode/orchestra/internal/supervisor"
	"github.com/forgecode/orchestra/internal/worker"
)

// Strategy selects a fan-out policy.
type Strategy string

const (
	StrategyAll         Strategy = "all"
	StrategySequential  Strategy = "sequential"
	StrategyDialectical Strategy = "dialectical"
)

// Outcome is one provider's result or classified error from a fan-out.
type Outcome struct {
	Result provider.Result
	Err    *orcherr.Error
}

// DialecticalResult carries the three phases the dialectical
// strategy produces.
type DialecticalResult struct {
	Thesis     map[provider.Name]Outcome
	Antithesis map[provider.Name]string // provider -> aggregated critique it received
	Synthesis  map[provider.Name]Outcome
}

// Router drives fan-out across a supervisor's workers. With streaming
// enabled, per-provider calls go through the workers' streaming path
// so chunk events reach the live display; either way the router
// collects final content per provider.
type Router struct {
	sup       *supervisor.Supervisor
	streaming bool
	logger    *zap.Logger
}

// New creates a Router bound to sup.
func New(sup *supervisor.Supervisor, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{sup: sup, logger: logger}
}

// UseStreaming switches per-provider calls to the workers' streaming
// path so chunk events reach subscribers while a call is in flight.
func (r *Router) UseStreaming(on bool) { r.streaming = on }

// RouteAll implements the "all" strategy: fan out to
// every provider in parallel and collect a provider→outcome map.
// Cancellation/deadline are propagated via ctx to every child call.
func (r *Router) RouteAll(ctx context.Context, prompt string, providers []provider.Name, pctx provider.Context) map[provider.Name]Outcome {
	results := make(map[provider.Name]Outcome, len(providers))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range providers {
		name := name
		w, ok := r.sup.Worker(name)
		if !ok {
			mu.Lock()
			results[name] = Outcome{Err: orcherr.New(orcherr.ConfigurationError, "no worker for provider").WithProvider(string(name))}
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			outcome := r.callOne(gctx, w, prompt, pctx)
			mu.Lock()
			results[name] = outcome
			mu.Unlock()
			return nil // errors are per-provider outcomes, not fatal to the group
		})
	}
	_ = g.Wait()
	return results
}

// RouteSequential implements the "sequential" strategy: call providers
// in assignment order, feeding each prior result into the next call's
// pctx.PreviousResults.
func (r *Router) RouteSequential(ctx context.Context, prompt string, providers []provider.Name, pctx provider.Context) map[provider.Name]Outcome {
	results := make(map[provider.Name]Outcome, len(providers))
	previous := clonePrevious(pctx.PreviousResults)

	for _, name := range providers {
		select {
		case <-ctx.Done():
			results[name] = Outcome{Err: orcherr.New(orcherr.NetworkError, "cancelled before call").WithCause(ctx.Err())}
			continue
		default:
		}

		w, ok := r.sup.Worker(name)
		if !ok {
			results[name] = Outcome{Err: orcherr.New(orcherr.ConfigurationError, "no worker for provider").WithProvider(string(name))}
			continue
		}
		callCtx := pctx
		callCtx.PreviousResults = previous

		outcome := r.callOne(ctx, w, prompt, callCtx)
		results[name] = outcome
		if outcome.Err == nil {
			previous = clonePrevious(previous)
			previous[name] = outcome.Result.Content
		}
	}
	return results
}

// RouteDialectical implements the three-phase dialectical strategy:
// thesis = "all"; antithesis = each other provider
// critiques every thesis answer; synthesis = providers produce a
// final answer conditioned on the critiques they received.
func (r *Router) RouteDialectical(ctx context.Context, prompt string, providers []provider.Name, pctx provider.Context) DialecticalResult {
	thesis := r.RouteAll(ctx, prompt, providers, pctx)

	antithesis := make(map[provider.Name]string, len(providers))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, subject := range providers {
		subjectOutcome, ok := thesis[subject]
		if !ok || subjectOutcome.Err != nil {
			continue
		}
		critics := otherProviders(providers, subject)
		subject := subject
		subjectAnswer := subjectOutcome.Result.Content

		g.Go(func() error {
			critiquePrompt := fmt.Sprintf("Critique the following solution for correctness and style:\n\n%s", subjectAnswer)
			critiques := r.RouteAll(gctx, critiquePrompt, critics, provider.Context{SystemPrompt: pctx.SystemPrompt})
			aggregated := aggregateCritiques(critiques)
			mu.Lock()
			antithesis[subject] = aggregated
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	synthesis := make(map[provider.Name]Outcome, len(providers))
	var synMu sync.Mutex
	g2, gctx2 := errgroup.WithContext(ctx)
	for _, subject := range providers {
		critique, ok := antithesis[subject]
		if !ok {
			continue
		}
		subject := subject
		w, ok := r.sup.Worker(subject)
		if !ok {
			continue
		}
		g2.Go(func() error {
			synthPrompt := fmt.Sprintf("%s\n\nCritiques from other providers:\n%s\n\nProduce a final, improved answer.", prompt, critique)
			outcome := r.callOne(gctx2, w, synthPrompt, pctx)
			synMu.Lock()
			synthesis[subject] = outcome
			synMu.Unlock()
			return nil
		})
	}
	_ = g2.Wait()

	return DialecticalResult{Thesis: thesis, Antithesis: antithesis, Synthesis: synthesis}
}

func (r *Router) callOne(ctx context.Context, w *worker.Worker, prompt string, pctx provider.Context) Outcome {
	enhanced := contextfmt.BuildEnhancedPrompt(prompt, pctx)
	pctx.SystemPrompt = contextfmt.BuildSystemPrompt(pctx)
	if r.streaming {
		result, err := w.ExecuteStreaming(ctx, enhanced, pctx)
		return Outcome{Result: result, Err: err}
	}
	result, err := w.Execute(ctx, enhanced, pctx)
	return Outcome{Result: result, Err: err}
}

func clonePrevious(m map[provider.Name]string) map[provider.Name]string {
	out := make(map[provider.Name]string, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func otherProviders(all []provider.Name, except provider.Name) []provider.Name {
	var out []provider.Name
	for _, p := range all {
		if p != except {
			out = append(out, p)
		}
	}
	return out
}

func aggregateCritiques(critiques map[provider.Name]Outcome) string {
	names := make([]provider.Name, 0, len(critiques))
	for name := range critiques {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	var out string
	for _, name := range names {
		outcome := critiques[name]
		if outcome.Err != nil {
			continue
		}
		out += fmt.Sprintf("[%s]: %s\n", name, outcome.Result.Content)
	}
	return out
}
