// Package learner records how users resolve merge conflicts and
// predicts resolutions for new ones. History is a bounded ring of the
// most recent decisions; the preference model keeps per-file-type,
// per-provider and per-conflict-type tallies that survive ring
// eviction. Both serialize to JSON and round-trip losslessly.
package learner

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/forgecode/orchestra/internal/merge"
	"github.com/forgecode/orchestra/internal/provider"
)

const (
	// historySize bounds the resolution ring.
	historySize = 1000

	// minHistory is the fewest recorded resolutions before any
	// prediction is offered.
	minHistory = 5

	// minConfidence is the combined weighted score a prediction must
	// clear to be returned.
	minConfidence = 0.3

	// neighborWindow is how many recent similar conflicts the
	// nearest-neighbour signal examines.
	neighborWindow = 20
)

// Signal weights. They sum to 1.
const (
	weightFileType     = 0.30
	weightConflictType = 0.25
	weightProvider     = 0.25
	weightNeighbor     = 0.20
)

// Record is one remembered resolution.
type Record struct {
	Signature        string    `json:"signature"`
	FilePath         string    `json:"file_path"`
	FileType         string    `json:"file_type"`
	ConflictType     string    `json:"conflict_type"`
	Providers        []string  `json:"providers"`
	ChosenResolution string    `json:"chosen_resolution"`
	ChosenProvider   string    `json:"chosen_provider,omitempty"`
	ChosenContent    string    `json:"chosen_content,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	Context          string    `json:"context,omitempty"`
}

// tally counts resolutions per key: key -> flattened resolution -> n.
type tally map[string]map[string]int

func (t tally) add(key, resolution string) {
	if t[key] == nil {
		t[key] = make(map[string]int)
	}
	t[key][resolution]++
}

// majority returns the most common resolution for key and its share
// of key's total, ties broken alphabetically for determinism.
func (t tally) majority(key string) (string, float64) {
	counts := t[key]
	if len(counts) == 0 {
		return "", 0
	}
	resolutions := make([]string, 0, len(counts))
	for r := range counts {
		resolutions = append(resolutions, r)
	}
	sort.Strings(resolutions)

	best, bestN, total := "", 0, 0
	for _, r := range resolutions {
		n := counts[r]
		total += n
		if n > bestN {
			best, bestN = r, n
		}
	}
	return best, float64(bestN) / float64(total)
}

// Model is the preference model's three views.
type Model struct {
	ByFileType     tally `json:"by_file_type"`
	ByProvider     tally `json:"by_provider"`
	ByConflictType tally `json:"by_conflict_type"`
}

func newModel() Model {
	return Model{
		ByFileType:     make(tally),
		ByProvider:     make(tally),
		ByConflictType: make(tally),
	}
}

// Learner implements merge.Advisor.
type Learner struct {
	mu      sync.RWMutex
	history []Record
	model   Model
	logger  *zap.Logger
}

// New creates an empty Learner.
func New(logger *zap.Logger) *Learner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Learner{model: newModel(), logger: logger}
}

// RecordManual stores the user's resolution of c and updates the
// preference model.
func (l *Learner) RecordManual(c merge.Conflict, chosen merge.Resolution) {
	rec := recordOf(c, chosen)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.history = append(l.history, rec)
	if len(l.history) > historySize {
		l.history = l.history[len(l.history)-historySize:]
	}

	l.model.ByFileType.add(rec.FileType, rec.ChosenResolution)
	l.model.ByConflictType.add(rec.ConflictType, rec.ChosenResolution)
	if rec.ChosenProvider != "" {
		l.model.ByProvider.add(rec.ChosenProvider, rec.ChosenResolution)
	}

	l.logger.Debug("recorded resolution",
		zap.String("file", rec.FilePath),
		zap.String("resolution", rec.ChosenResolution))
}

// Predict combines the file-type, conflict-type, provider and
// nearest-neighbour signals into a weighted vote over flattened
// resolutions. A prediction is offered only once enough history
// exists and the winner clears the confidence floor.
func (l *Learner) Predict(c merge.Conflict) (merge.Resolution, float64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.history) < minHistory {
		return merge.Resolution{}, 0, false
	}

	votes := make(map[string]float64)

	if res, share := l.model.ByFileType.majority(fileType(c.File)); res != "" {
		votes[res] += weightFileType * share
	}
	if res, share := l.model.ByConflictType.majority(string(c.Type)); res != "" {
		votes[res] += weightConflictType * share
	}
	if res, share := l.providerPickRate(c); res != "" {
		votes[res] += weightProvider * share
	}
	if res, share := l.nearestNeighbor(c); res != "" {
		votes[res] += weightNeighbor * share
	}

	best, score := "", 0.0
	keys := make([]string, 0, len(votes))
	for k := range votes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if votes[k] > score {
			best, score = k, votes[k]
		}
	}
	if best == "" || score <= minConfidence {
		return merge.Resolution{}, 0, false
	}
	return decodeResolution(best), score, true
}

// providerPickRate scores accept resolutions by how often each of the
// conflict's providers has historically been the chosen one.
func (l *Learner) providerPickRate(c merge.Conflict) (string, float64) {
	picks := make(map[string]int)
	total := 0
	for _, rec := range l.history {
		if rec.ChosenProvider == "" {
			continue
		}
		total++
		picks[rec.ChosenProvider]++
	}
	if total == 0 {
		return "", 0
	}

	best, bestN := "", 0
	for _, p := range c.Providers {
		if n := picks[string(p)]; n > bestN || (n == bestN && n > 0 && string(p) < best) {
			best, bestN = string(p), n
		}
	}
	if best == "" {
		return "", 0
	}
	return "accept_" + best, float64(bestN) / float64(total)
}

// nearestNeighbor takes the most recent similar conflicts (same file
// type or same conflict type) and returns their majority resolution.
func (l *Learner) nearestNeighbor(c merge.Conflict) (string, float64) {
	ft := fileType(c.File)
	var similar []Record
	for i := len(l.history) - 1; i >= 0 && len(similar) < neighborWindow; i-- {
		rec := l.history[i]
		if rec.FileType == ft || rec.ConflictType == string(c.Type) {
			similar = append(similar, rec)
		}
	}
	if len(similar) == 0 {
		return "", 0
	}

	counts := make(map[string]int)
	for _, rec := range similar {
		counts[rec.ChosenResolution]++
	}
	resolutions := make([]string, 0, len(counts))
	for r := range counts {
		resolutions = append(resolutions, r)
	}
	sort.Strings(resolutions)

	best, bestN := "", 0
	for _, r := range resolutions {
		if counts[r] > bestN {
			best, bestN = r, counts[r]
		}
	}
	return best, float64(bestN) / float64(len(similar))
}

// HistoryLen reports how many resolutions are currently retained.
func (l *Learner) HistoryLen() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.history)
}

func recordOf(c merge.Conflict, chosen merge.Resolution) Record {
	providers := make([]string, 0, len(c.Providers))
	for _, p := range c.Providers {
		providers = append(providers, string(p))
	}
	sort.Strings(providers)

	sig := sha256.Sum256([]byte(string(c.Type) + "|" + c.File + "|" + strings.Join(providers, ",")))

	rec := Record{
		Signature:        hex.EncodeToString(sig[:]),
		FilePath:         c.File,
		FileType:         fileType(c.File),
		ConflictType:     string(c.Type),
		Providers:        providers,
		ChosenResolution: encodeResolution(chosen),
		Timestamp:        time.Now().UTC(),
		Context:          c.Scope,
	}
	switch chosen.Kind {
	case merge.ResolveAccept:
		rec.ChosenProvider = string(chosen.Provider)
	case merge.ResolveCustom:
		rec.ChosenContent = chosen.Content
	}
	return rec
}

// encodeResolution flattens a tagged resolution to its string form:
// accept_<provider>, merge_<strategy>, custom, skip.
func encodeResolution(r merge.Resolution) string {
	switch r.Kind {
	case merge.ResolveAccept:
		return "accept_" + string(r.Provider)
	case merge.ResolveMerge:
		return "merge_" + string(r.Strategy)
	case merge.ResolveCustom:
		return "custom"
	default:
		return "skip"
	}
}

func decodeResolution(s string) merge.Resolution {
	switch {
	case strings.HasPrefix(s, "accept_"):
		return merge.Accept(provider.Name(strings.TrimPrefix(s, "accept_")))
	case strings.HasPrefix(s, "merge_"):
		return merge.Merged(merge.Strategy(strings.TrimPrefix(s, "merge_")))
	case s == "custom":
		return merge.Resolution{Kind: merge.ResolveCustom}
	default:
		return merge.Skip()
	}
}

func fileType(path string) string {
	return strings.TrimPrefix(filepath.Ext(path), ".")
}
