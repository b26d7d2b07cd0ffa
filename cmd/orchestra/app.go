package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/forgecode/orchestra/internal/allocator"
	"github.com/forgecode/orchestra/internal/bus"
	"github.com/forgecode/orchestra/internal/cache"
	"github.com/forgecode/orchestra/internal/config"
	"github.com/forgecode/orchestra/internal/display"
	"github.com/forgecode/orchestra/internal/history"
	"github.com/forgecode/orchestra/internal/learner"
	"github.com/forgecode/orchestra/internal/merge"
	"github.com/forgecode/orchestra/internal/metrics"
	"github.com/forgecode/orchestra/internal/orcherr"
	"github.com/forgecode/orchestra/internal/provider"
	"github.com/forgecode/orchestra/internal/provider/anthropic"
	"github.com/forgecode/orchestra/internal/provider/deepseek"
	"github.com/forgecode/orchestra/internal/provider/local"
	"github.com/forgecode/orchestra/internal/provider/oci"
	"github.com/forgecode/orchestra/internal/provider/openai"
	"github.com/forgecode/orchestra/internal/provider/perplexity"
	"github.com/forgecode/orchestra/internal/queue"
	"github.com/forgecode/orchestra/internal/router"
	"github.com/forgecode/orchestra/internal/session"
	"github.com/forgecode/orchestra/internal/supervisor"
	"github.com/forgecode/orchestra/internal/task"
	"github.com/forgecode/orchestra/internal/tokencount"
	"github.com/forgecode/orchestra/internal/tracker"
)

// app owns the wired component graph for one process.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	events   *bus.Bus
	sup      *supervisor.Supervisor
	router   *router.Router
	disp     *display.Display
	queue    *queue.Queue
	tracker  *tracker.Tracker
	cache    *cache.Cache
	learner  *learner.Learner
	merger   *merge.Engine
	pricer   *tokencount.Pricer
	sessions *session.FileStore
	hist     *history.History

	// Optional durable layers, nil unless enabled in configuration.
	cacheBacking *cache.RedisStore
	sessionDB    *session.SQLStore
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	events := bus.New(logger)
	collector := metrics.NewCollector("orchestra")

	registry := provider.NewRegistry(
		openai.New(logger),
		anthropic.New(logger),
		deepseek.New(logger),
		perplexity.New(logger),
		oci.New(logger),
		local.New(logger),
	)

	sup, err := supervisor.New(cfg.Descriptors(), registry, events, logger)
	if err != nil {
		return nil, err
	}

	r := router.New(sup, logger)
	r.UseStreaming(true)

	analysisCache := cache.New(collector, logger)
	var cacheBacking *cache.RedisStore
	if cfg.Redis.Enabled {
		redisCfg := cache.DefaultRedisConfig()
		redisCfg.Addr = cfg.Redis.Addr
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB

		backing, err := cache.NewRedisStore(redisCfg, logger)
		if err != nil {
			logger.Warn("redis cache backing unavailable, running in-memory only", zap.Error(err))
		} else {
			analysisCache.WithBacking(backing)
			cacheBacking = backing
		}
	}

	patterns := learner.New(logger)
	if cfg.LearnerPath != "" {
		if data, err := os.ReadFile(cfg.LearnerPath); err == nil {
			if err := patterns.Import(data); err != nil {
				logger.Warn("learner state unreadable, starting fresh", zap.Error(err))
			}
		}
	}

	sessions, err := session.NewFileStore(cfg.SessionsDir, logger)
	if err != nil {
		return nil, err
	}

	var sessionDB *session.SQLStore
	if cfg.SessionDB.Enabled {
		sessionDB, err = openSessionDB(cfg.SessionDB.Path, logger)
		if err != nil {
			logger.Warn("session database unavailable, JSON files only", zap.Error(err))
		}
	}

	histPath, err := history.DefaultPath()
	if err != nil {
		return nil, err
	}
	hist, err := history.New(histPath, logger)
	if err != nil {
		return nil, err
	}

	disp := display.New(events, newTerminalRenderer(os.Stdout), cfg.DisplayOptions())

	return &app{
		cfg:      cfg,
		logger:   logger,
		events:   events,
		sup:      sup,
		router:   r,
		disp:     disp,
		queue:    queue.New(),
		tracker:  tracker.New(collector),
		cache:    analysisCache,
		learner:  patterns,
		merger:   merge.New(merge.NewParserRegistry(), analysisCache, patterns, logger),
		pricer:   tokencount.NewPricer(),
		sessions: sessions,
		hist:     hist,

		cacheBacking: cacheBacking,
		sessionDB:    sessionDB,
	}, nil
}

// openSessionDB opens (creating if needed) the SQLite session mirror.
func openSessionDB(path string, logger *zap.Logger) (*session.SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, err
	}
	return session.NewSQLStore(db, logger)
}

// Close flushes learner state and stops background work.
func (a *app) Close() {
	if a.cfg.LearnerPath != "" {
		if data, err := a.learner.Export(); err == nil {
			if err := os.WriteFile(a.cfg.LearnerPath, data, 0o600); err != nil {
				a.logger.Warn("could not persist learner state", zap.Error(err))
			}
		}
	}
	a.cache.Close()
	if a.cacheBacking != nil {
		a.cacheBacking.Close()
	}
	if a.sessionDB != nil {
		a.sessionDB.Close()
	}
}

// healthyProviders checks every configured provider, filters to the
// requested subset, and drops the unhealthy ones with a printed hint.
func (a *app) healthyProviders(ctx context.Context, requested []string) ([]provider.Name, error) {
	subset, err := resolveSubset(a.sup.ListWorkers(), requested)
	if err != nil {
		return nil, err
	}

	checks := a.sup.CheckAllProviders(ctx)
	var healthy []provider.Name
	for _, name := range subset {
		if cerr := checks[name]; cerr != nil {
			fmt.Fprintf(os.Stderr, "%s: %s", name, cerr.Message)
			if hint := orcherr.Hint(cerr.Code); hint != "" {
				fmt.Fprintf(os.Stderr, " (%s)", hint)
			}
			fmt.Fprintln(os.Stderr)
			continue
		}
		healthy = append(healthy, name)
	}
	sort.Slice(healthy, func(i, j int) bool { return healthy[i] < healthy[j] })
	return healthy, nil
}

// runOnce executes a single prompt and prints the per-provider report.
func (a *app) runOnce(ctx context.Context, prompt string, active []provider.Name, opts cliOptions, extra map[string]string) int {
	if err := a.hist.Append(prompt); err != nil {
		a.logger.Debug("history append failed", zap.Error(err))
	}

	assigned := allocator.AutoAllocate(prompt, active)
	t := task.New(prompt, task.Options{})
	t = task.AssignTo(t, assigned)
	a.queue.Enqueue(t)

	queued, ok := a.queue.DequeueNext()
	if !ok {
		return exitInternal
	}
	queued = a.queue.Start(queued)
	// One tracking record per provider leg of the fan-out; chunk and
	// terminal events from the bus drive everything after Start.
	a.tracker.Watch(a.events, assigned)
	defer a.tracker.Stop()
	for _, p := range assigned {
		a.tracker.Start(queued.ID+":"+string(p), p)
	}

	a.disp.Watch(assigned)
	defer a.disp.Stop()

	pctx := provider.Context{RelevantFiles: extra}
	strategy, _ := strategyOf(opts.strategy)

	rep := a.route(ctx, strategy, prompt, assigned, pctx)

	anyOK := false
	for _, p := range assigned {
		if outcome, ok := rep.results[p]; ok && outcome.Err == nil {
			anyOK = true
		}
	}
	if anyOK {
		a.queue.Complete(queued.ID)
	} else {
		a.queue.Fail(queued.ID, "all providers failed")
	}

	a.printReport(rep)

	if opts.mergeWith != "" {
		a.printMerged(ctx, rep, merge.Strategy(opts.mergeWith))
	}

	if opts.output != "" {
		if err := writeTranscript(opts.output, prompt, rep); err != nil {
			fmt.Fprintf(os.Stderr, "could not write transcript: %v\n", err)
			return exitInternal
		}
	}
	if opts.sessionName != "" {
		a.saveSession(ctx, opts.sessionName, prompt, rep)
	}

	if !anyOK {
		return exitInternal
	}
	return exitOK
}

// runInteractive reads prompts line by line until EOF or an empty line.
func (a *app) runInteractive(active []provider.Name, opts cliOptions, extra map[string]string) int {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Println("orchestra interactive mode (empty line or Ctrl-D to exit)")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		prompt := strings.TrimSpace(scanner.Text())
		if prompt == "" {
			break
		}
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeout)
		a.runOnce(ctx, prompt, active, opts, extra)
		cancel()
	}
	return exitOK
}

// report aggregates a run's outcomes regardless of strategy.
type report struct {
	strategy    router.Strategy
	results     map[provider.Name]router.Outcome
	dialectical *router.DialecticalResult
}

func (a *app) route(ctx context.Context, strategy router.Strategy, prompt string, assigned []provider.Name, pctx provider.Context) report {
	switch strategy {
	case router.StrategySequential:
		return report{strategy: strategy, results: a.router.RouteSequential(ctx, prompt, assigned, pctx)}
	case router.StrategyDialectical:
		d := a.router.RouteDialectical(ctx, prompt, assigned, pctx)
		results := make(map[provider.Name]router.Outcome, len(d.Synthesis))
		for p, outcome := range d.Synthesis {
			results[p] = outcome
		}
		// Providers that never reached synthesis fall back to thesis.
		for p, outcome := range d.Thesis {
			if _, ok := results[p]; !ok {
				results[p] = outcome
			}
		}
		return report{strategy: strategy, results: results, dialectical: &d}
	default:
		return report{strategy: router.StrategyAll, results: a.router.RouteAll(ctx, prompt, assigned, pctx)}
	}
}

func (a *app) printReport(rep report) {
	names := make([]provider.Name, 0, len(rep.results))
	for p := range rep.results {
		names = append(names, p)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	for _, p := range names {
		outcome := rep.results[p]
		fmt.Printf("\n=== %s ===\n", p)
		if outcome.Err != nil {
			fmt.Printf("error: %s", outcome.Err.Message)
			if hint := orcherr.Hint(outcome.Err.Code); hint != "" {
				fmt.Printf(" (%s)", hint)
			}
			fmt.Println()
			continue
		}
		fmt.Println(outcome.Result.Content)
		u := outcome.Result.Usage
		cost := a.pricer.Cost(string(p), u.Model, u.InputTokens, u.OutputTokens)
		fmt.Printf("[%d in / %d out tokens, %s]\n",
			u.InputTokens, u.OutputTokens, tokencount.FormatUSD(cost))
	}
}

// printMerged combines the successful provider outputs into one
// artifact, treating each response as a variant of the same file.
func (a *app) printMerged(ctx context.Context, rep report, strategy merge.Strategy) {
	contents := make(map[provider.Name]string)
	var participants []provider.Name
	for p, outcome := range rep.results {
		participants = append(participants, p)
		if outcome.Err == nil {
			contents[p] = outcome.Result.Content
		}
	}
	if len(contents) == 0 {
		return
	}

	// All variants must share one path or they never conflict; guess
	// the language from whichever response we see first.
	var ext string
	for _, content := range contents {
		ext = guessExtension(content)
		break
	}
	var variants []merge.Variant
	for p, content := range contents {
		variants = append(variants, merge.NewVariant("response"+ext, p, content))
	}

	out, err := a.merger.Merge(ctx, variants, merge.Options{
		Strategy:     strategy,
		Participants: participants,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "merge failed: %v\n", err)
		return
	}

	fmt.Printf("\n=== merged (%s) ===\n", strategy)
	for _, content := range out.Merged {
		fmt.Println(content)
	}
	for _, c := range out.Unresolved {
		fmt.Printf("unresolved %s conflict between %v\n", c.Type, c.Providers)
	}
}

// guessExtension picks a parser-friendly extension from response
// content so the semantic strategies can engage.
func guessExtension(content string) string {
	switch {
	case strings.Contains(content, "def "):
		return ".py"
	case strings.Contains(content, "function ") || strings.Contains(content, "=>"):
		return ".js"
	case strings.Contains(content, "func ") || strings.Contains(content, "package "):
		return ".go"
	case strings.Contains(content, "import "):
		return ".py"
	default:
		return ".txt"
	}
}

func (a *app) saveSession(ctx context.Context, name, prompt string, rep report) {
	responses := make(map[provider.Name]string)
	var providers []provider.Name
	for p, outcome := range rep.results {
		providers = append(providers, p)
		if outcome.Err == nil {
			responses[p] = outcome.Result.Content
		}
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })

	sess := session.Session{
		Name:      name,
		Prompt:    prompt,
		Responses: responses,
		Providers: providers,
		Timestamp: time.Now().UTC(),
	}
	if err := a.sessions.Save(ctx, sess); err != nil {
		fmt.Fprintf(os.Stderr, "could not save session %q: %v\n", name, err)
		return
	}
	if a.sessionDB != nil {
		if err := a.sessionDB.Save(ctx, sess); err != nil {
			a.logger.Warn("could not mirror session to database", zap.Error(err))
		}
	}
}

// resolveSubset filters configured workers down to the -p list.
func resolveSubset(configured []provider.Name, requested []string) ([]provider.Name, error) {
	if len(requested) == 0 {
		return configured, nil
	}
	have := make(map[provider.Name]bool, len(configured))
	for _, p := range configured {
		have[p] = true
	}
	var out []provider.Name
	for _, r := range requested {
		name := provider.Name(strings.ToLower(strings.TrimSpace(r)))
		if !have[name] {
			return nil, fmt.Errorf("provider %q is not configured", r)
		}
		out = append(out, name)
	}
	return out, nil
}
