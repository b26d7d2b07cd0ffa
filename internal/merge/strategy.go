package merge

import (
	"fmt"
	"sort"
	"strings"
)

// Strategy names a way of combining a conflict set into one text.
type Strategy string

const (
	StrategyAuto           Strategy = "auto"
	StrategySemantic       Strategy = "semantic"
	StrategyLastWriteWins  Strategy = "last_write_wins"
	StrategyFirstWriteWins Strategy = "first_write_wins"
	StrategyUnion          Strategy = "union"
	StrategyIntersection   Strategy = "intersection"
	StrategyVoting         Strategy = "voting"
	StrategyHybrid         Strategy = "hybrid"
	StrategyMLRecommended  Strategy = "ml_recommended"
	StrategyManual         Strategy = "manual"
)

// union deduplicates lines across variants in alphabetical provider
// order, preserving first-seen order.
func union(variants []Variant) string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range byProviderOrder(variants) {
		for _, line := range strings.Split(v.Content, "\n") {
			if !seen[line] {
				seen[line] = true
				out = append(out, line)
			}
		}
	}
	return strings.Join(out, "\n")
}

// intersection keeps only lines present in every variant, in the
// order of the alphabetically-first variant.
func intersection(variants []Variant) string {
	ordered := byProviderOrder(variants)
	counts := make(map[string]int)
	for _, v := range ordered {
		inThis := make(map[string]bool)
		for _, line := range strings.Split(v.Content, "\n") {
			if !inThis[line] {
				inThis[line] = true
				counts[line]++
			}
		}
	}
	var out []string
	emitted := make(map[string]bool)
	for _, line := range strings.Split(ordered[0].Content, "\n") {
		if counts[line] == len(ordered) && !emitted[line] {
			emitted[line] = true
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func lastWriteWins(variants []Variant) string {
	ordered := byProviderOrder(variants)
	return ordered[len(ordered)-1].Content
}

func firstWriteWins(variants []Variant) string {
	return byProviderOrder(variants)[0].Content
}

// unionWithMarkers is the fallback when semantic parsing fails: each
// variant's full text fenced by conflict markers.
func unionWithMarkers(variants []Variant) string {
	var b strings.Builder
	for i, v := range byProviderOrder(variants) {
		if i > 0 {
			b.WriteString("\n=======\n")
		}
		fmt.Fprintf(&b, "<<<<<<< %s\n%s", v.Provider, v.Content)
	}
	b.WriteString("\n>>>>>>>\n")
	return b.String()
}

// featureProfile summarizes what a variant offers, for hybrid scoring.
type featureProfile struct {
	functions map[string]bool
	imports   map[string]bool
	hasTests  bool
	hasDocs   bool
	hasErrors bool
}

func profileOf(v Variant, s *Structure) featureProfile {
	p := featureProfile{functions: make(map[string]bool), imports: make(map[string]bool)}
	if s != nil && !s.Raw {
		for _, d := range s.Decls {
			if d.Kind == "function" {
				p.functions[d.Signature()] = true
			}
		}
		for _, imp := range s.Imports {
			p.imports[imp] = true
		}
	}
	lower := strings.ToLower(v.Content)
	p.hasTests = strings.Contains(lower, "test_") || strings.Contains(lower, "func test") ||
		strings.Contains(lower, "assert")
	p.hasDocs = strings.Contains(v.Content, `"""`) || strings.Contains(v.Content, "///") ||
		strings.Contains(v.Content, "/**")
	p.hasErrors = strings.Contains(lower, "raise ") || strings.Contains(lower, "try") ||
		strings.Contains(lower, "if err != nil")
	return p
}

func (p featureProfile) size() int {
	n := len(p.functions) + len(p.imports)
	for _, b := range []bool{p.hasTests, p.hasDocs, p.hasErrors} {
		if b {
			n++
		}
	}
	return n
}

// hybrid picks the variant with the largest feature union.
func (e *Engine) hybrid(variants []Variant) string {
	best := byProviderOrder(variants)[0]
	bestSize := -1
	for _, v := range byProviderOrder(variants) {
		s, _ := e.parseCached(v)
		size := profileOf(v, s).size()
		if size > bestSize {
			best, bestSize = v, size
		}
	}
	return best.Content
}

// votingMargin is how far ahead the top variant must score before
// voting trusts it outright.
const votingMargin = 0.2

// voting scores each variant on complexity, structural markers, peer
// similarity and length plausibility; the winner must clear the
// runner-up by votingMargin or the decision falls through to hybrid.
func (e *Engine) voting(variants []Variant) string {
	ordered := byProviderOrder(variants)
	scores := make([]float64, len(ordered))

	var maxComplexity, maxDecls, maxLen float64
	structures := make([]*Structure, len(ordered))
	for i, v := range ordered {
		s, _ := e.parseCached(v)
		structures[i] = s
		if s != nil {
			c := float64(totalComplexity(s))
			if c > maxComplexity {
				maxComplexity = c
			}
			if d := float64(len(s.Decls)); d > maxDecls {
				maxDecls = d
			}
		}
		if l := float64(len(v.Content)); l > maxLen {
			maxLen = l
		}
	}

	var meanLen float64
	for _, v := range ordered {
		meanLen += float64(len(v.Content))
	}
	meanLen /= float64(len(ordered))

	for i, v := range ordered {
		var score float64
		if structures[i] != nil && maxComplexity > 0 {
			score += 0.3 * float64(totalComplexity(structures[i])) / maxComplexity
		}
		if structures[i] != nil && maxDecls > 0 {
			score += 0.25 * float64(len(structures[i].Decls)) / maxDecls
		}
		score += 0.25 * peerSimilarity(v, ordered)
		// Length plausibility: closest to the mean scores highest.
		if meanLen > 0 {
			dev := abs(float64(len(v.Content))-meanLen) / meanLen
			if dev > 1 {
				dev = 1
			}
			score += 0.2 * (1 - dev)
		}
		scores[i] = score
	}

	bestIdx, runnerUp := 0, -1.0
	for i, s := range scores {
		if s > scores[bestIdx] {
			bestIdx = i
		}
	}
	for i, s := range scores {
		if i != bestIdx && s > runnerUp {
			runnerUp = s
		}
	}
	if scores[bestIdx]-runnerUp > votingMargin {
		return ordered[bestIdx].Content
	}
	return e.hybrid(variants)
}

// peerSimilarity is the mean line-set Jaccard similarity between v and
// the other variants.
func peerSimilarity(v Variant, all []Variant) float64 {
	mine := lineSet(v.Content)
	var total float64
	var peers int
	for _, o := range all {
		if o.Provider == v.Provider {
			continue
		}
		peers++
		total += jaccard(mine, lineSet(o.Content))
	}
	if peers == 0 {
		return 0
	}
	return total / float64(peers)
}

func lineSet(content string) map[string]bool {
	set := make(map[string]bool)
	for _, l := range strings.Split(content, "\n") {
		if t := strings.TrimSpace(l); t != "" {
			set[t] = true
		}
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for l := range a {
		if b[l] {
			inter++
		}
	}
	unionSize := len(a) + len(b) - inter
	if unionSize == 0 {
		return 0
	}
	return float64(inter) / float64(unionSize)
}

func totalComplexity(s *Structure) int {
	n := 0
	for _, d := range s.Decls {
		n += d.Complexity
	}
	return n
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// semantic parses every variant, unions the unique top-level
// declarations, keeps the highest-complexity variant on signature
// collisions, and reconstructs source. Any parse failure or raw
// variant falls back to text union with conflict markers.
func (e *Engine) semantic(variants []Variant) string {
	ordered := byProviderOrder(variants)
	structures := make([]*Structure, len(ordered))
	for i, v := range ordered {
		s, err := e.parseCached(v)
		if err != nil || s == nil || s.Raw {
			return unionWithMarkers(variants)
		}
		structures[i] = s
	}

	importSeen := make(map[string]bool)
	var imports []string
	bySig := make(map[string]Decl)
	var order []string

	for _, s := range structures {
		for _, imp := range s.Imports {
			if !importSeen[imp] {
				importSeen[imp] = true
				imports = append(imports, imp)
			}
		}
		for _, d := range s.Decls {
			sig := d.Signature()
			existing, ok := bySig[sig]
			if !ok {
				bySig[sig] = d
				order = append(order, sig)
				continue
			}
			if d.Complexity > existing.Complexity {
				bySig[sig] = d
			}
		}
	}

	sort.Strings(imports)
	var b strings.Builder
	lang := structures[0].Language
	for _, imp := range imports {
		switch lang {
		case "go":
			fmt.Fprintf(&b, "import %q\n", imp)
		default:
			b.WriteString(imp + "\n")
		}
	}
	if len(imports) > 0 {
		b.WriteString("\n")
	}
	for i, sig := range order {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.TrimRight(bySig[sig].Body, "\n"))
	}
	b.WriteString("\n")
	return b.String()
}
