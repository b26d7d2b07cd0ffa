// Package merge combines per-provider file variants into a single
// output tree. It groups variants by path, detects conflicts between
// disagreeing providers, and resolves them with textual or semantic
// strategies, recording every manual decision for future prediction.
package merge

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/forgecode/orchestra/internal/cache"
	"github.com/forgecode/orchestra/internal/provider"
)

// predictionThreshold is the minimum confidence at which a learned
// prediction is applied instead of the auto strategy.
const predictionThreshold = 0.7

// Advisor predicts resolutions from past behavior and records the
// manual choices it learns from.
type Advisor interface {
	// Predict proposes a resolution for c with a confidence in [0,1];
	// ok is false when history is too thin to say anything.
	Predict(c Conflict) (Resolution, float64, bool)

	// RecordManual stores a user's resolution of c.
	RecordManual(c Conflict, chosen Resolution)
}

// Options configures one Merge invocation.
type Options struct {
	Strategy Strategy

	// Participants is the full provider set that took part in the run;
	// a path missing a participant's variant is an addition conflict.
	// Derived from the variants when empty.
	Participants []provider.Name

	// ManualResolver is consulted for StrategyManual. A nil resolver
	// leaves manual conflicts unresolved.
	ManualResolver func(Conflict) Resolution
}

// Output is the result of a Merge call.
type Output struct {
	Merged     map[string]string
	Unresolved []Conflict
}

// Engine implements conflict detection and resolution.
type Engine struct {
	parsers *ParserRegistry
	cache   *cache.Cache
	advisor Advisor
	logger  *zap.Logger
}

// New creates an Engine. cache and advisor may be nil; a nil cache
// parses on every call, a nil advisor disables ml_recommended and
// learning.
func New(parsers *ParserRegistry, c *cache.Cache, advisor Advisor, logger *zap.Logger) *Engine {
	if parsers == nil {
		parsers = NewParserRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{parsers: parsers, cache: c, advisor: advisor, logger: logger}
}

// Merge groups variants by path, detects conflicts, and resolves them
// with opts.Strategy. Paths whose variants agree byte-for-byte merge
// without a conflict.
func (e *Engine) Merge(ctx context.Context, variants []Variant, opts Options) (Output, error) {
	if opts.Strategy == "" {
		opts.Strategy = StrategyAuto
	}
	participants := opts.Participants
	if len(participants) == 0 {
		participants = participantSet(variants)
	}

	byPath := make(map[string][]Variant)
	for _, v := range variants {
		byPath[v.Path] = append(byPath[v.Path], v)
	}
	paths := make([]string, 0, len(byPath))
	for p := range byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := Output{Merged: make(map[string]string)}
	for _, path := range paths {
		group := byPath[path]
		conflict, ok := e.detect(path, group, participants)
		if !ok {
			out.Merged[path] = group[0].Content
			continue
		}

		content, resolved := e.resolve(ctx, conflict, group, opts)
		if !resolved {
			out.Unresolved = append(out.Unresolved, conflict)
			continue
		}
		out.Merged[path] = content
	}

	e.logger.Debug("merge finished",
		zap.Int("paths", len(paths)),
		zap.Int("unresolved", len(out.Unresolved)))
	return out, ctx.Err()
}

// detect reports whether the variants of one path conflict, and
// classifies the conflict when they do.
func (e *Engine) detect(path string, group []Variant, participants []provider.Name) (Conflict, bool) {
	allSame := true
	for _, v := range group[1:] {
		if v.ContentHash != group[0].ContentHash {
			allSame = false
			break
		}
	}
	missing := len(group) < len(participants)
	// A conflict takes two disagreeing providers; a file only one
	// provider produced, or that all producers agree on, merges as-is.
	if len(group) < 2 || (allSame && !missing) {
		return Conflict{}, false
	}

	c := Conflict{
		File:      path,
		Providers: sortedProviders(group),
		Contents:  contentsOf(group),
	}

	if missing {
		c.Type = ConflictAddition
		return c, true
	}

	// Hunk comparison against the alphabetically-first variant.
	ordered := byProviderOrder(group)
	base := ordered[0]
	ranges := make(map[provider.Name][]LineRange)
	computable := true
	for _, v := range ordered[1:] {
		r, ok := changedRanges(base.Content, v.Content)
		if !ok {
			computable = false
			break
		}
		ranges[v.Provider] = r
	}
	if computable && disjointAcross(ranges) {
		c.Type = ConflictLineLevel
		c.LineRanges = ranges
		return c, true
	}
	c.Type = ConflictFileLevel
	return c, true
}

// resolve applies the configured strategy to one conflict. The second
// return is false when the conflict remains unresolved.
func (e *Engine) resolve(ctx context.Context, c Conflict, group []Variant, opts Options) (string, bool) {
	switch opts.Strategy {
	case StrategyUnion:
		return union(group), true
	case StrategyIntersection:
		return intersection(group), true
	case StrategyLastWriteWins:
		return lastWriteWins(group), true
	case StrategyFirstWriteWins:
		return firstWriteWins(group), true
	case StrategySemantic:
		return e.semantic(group), true
	case StrategyVoting:
		return e.voting(group), true
	case StrategyHybrid:
		return e.hybrid(group), true
	case StrategyMLRecommended:
		return e.mlRecommended(ctx, c, group, opts)
	case StrategyManual:
		return e.manual(c, group, opts)
	case StrategyAuto:
		fallthrough
	default:
		return e.auto(c, group), true
	}
}

// auto prefers union for additions and disjoint line-level conflicts,
// semantic merge for structured sources, and deterministic
// last-write-wins otherwise.
func (e *Engine) auto(c Conflict, group []Variant) string {
	switch c.Type {
	case ConflictAddition:
		return union(group)
	case ConflictLineLevel:
		return union(group)
	default:
		if e.parsers.For(c.File) != nil {
			return e.semantic(group)
		}
		return lastWriteWins(group)
	}
}

func (e *Engine) mlRecommended(ctx context.Context, c Conflict, group []Variant, opts Options) (string, bool) {
	if e.advisor != nil {
		if res, confidence, ok := e.advisor.Predict(c); ok && confidence >= predictionThreshold {
			e.logger.Debug("applying predicted resolution",
				zap.String("file", c.File),
				zap.Float64("confidence", confidence))
			return e.apply(c, group, res, opts)
		}
	}
	return e.auto(c, group), true
}

func (e *Engine) manual(c Conflict, group []Variant, opts Options) (string, bool) {
	if opts.ManualResolver == nil {
		return "", false
	}
	res := opts.ManualResolver(c)
	if e.advisor != nil {
		e.advisor.RecordManual(c, res)
	}
	return e.apply(c, group, res, opts)
}

// apply materializes a Resolution against the conflict's variants.
func (e *Engine) apply(c Conflict, group []Variant, res Resolution, opts Options) (string, bool) {
	switch res.Kind {
	case ResolveAccept:
		for _, v := range group {
			if v.Provider == res.Provider {
				return v.Content, true
			}
		}
		return "", false
	case ResolveMerge:
		// Guard against a recorded "merge manual" looping back here.
		if res.Strategy == StrategyManual || res.Strategy == StrategyMLRecommended {
			return e.auto(c, group), true
		}
		inner := opts
		inner.Strategy = res.Strategy
		return e.resolve(context.Background(), c, group, inner)
	case ResolveCustom:
		return res.Content, true
	default:
		return "", false
	}
}

// parseCached parses v through the analysis cache when one is
// present. Parse trees round-trip the cache's durable store as JSON.
func (e *Engine) parseCached(v Variant) (*Structure, error) {
	if e.cache == nil {
		return e.parsers.ParseFile(v.Path, v.Content)
	}
	key := cache.KeyFor(cache.KindAST, v.Content)
	val, err := e.cache.GetOrComputeDecoded(context.Background(), key, time.Hour,
		func(raw []byte) (any, error) {
			var s Structure
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, err
			}
			return &s, nil
		},
		func(value any) ([]byte, error) {
			return json.Marshal(value)
		},
		func(context.Context) (any, error) {
			return e.parsers.ParseFile(v.Path, v.Content)
		})
	if err != nil {
		return nil, err
	}
	s, _ := val.(*Structure)
	return s, nil
}

func participantSet(variants []Variant) []provider.Name {
	seen := make(map[provider.Name]bool)
	var names []provider.Name
	for _, v := range variants {
		if !seen[v.Provider] {
			seen[v.Provider] = true
			names = append(names, v.Provider)
		}
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

func contentsOf(group []Variant) map[provider.Name]string {
	m := make(map[provider.Name]string, len(group))
	for _, v := range group {
		m[v.Provider] = v.Content
	}
	return m
}

func disjointAcross(ranges map[provider.Name][]LineRange) bool {
	names := make([]provider.Name, 0, len(ranges))
	for n := range ranges {
		names = append(names, n)
	}
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if overlaps(ranges[names[i]], ranges[names[j]]) {
				return false
			}
		}
	}
	return true
}
