package merge

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/forgecode/orchestra/internal/provider"
)

// Variant is one provider's rendition of a file.
type Variant struct {
	Path        string
	Provider    provider.Name
	Content     string
	ContentHash string
}

// NewVariant computes the content hash for path/content.
func NewVariant(path string, p provider.Name, content string) Variant {
	sum := sha256.Sum256([]byte(content))
	return Variant{
		Path:        path,
		Provider:    p,
		Content:     content,
		ContentHash: hex.EncodeToString(sum[:]),
	}
}

// ConflictType classifies how a set of variants disagrees.
type ConflictType string

const (
	// ConflictAddition: some participating providers produced the file
	// and others did not.
	ConflictAddition ConflictType = "addition"
	// ConflictLineLevel: all providers produced the file and their
	// edits touch disjoint line ranges.
	ConflictLineLevel ConflictType = "line_level"
	// ConflictFileLevel: overlapping or structurally incomparable
	// edits; whole-file resolution is required.
	ConflictFileLevel ConflictType = "file_level"
)

// LineRange is a half-open [Start, End) range of 0-based line indexes.
type LineRange struct {
	Start int
	End   int
}

// Conflict describes a disagreement between two or more providers
// over one file.
type Conflict struct {
	File      string
	Type      ConflictType
	Providers []provider.Name

	// Contents maps each conflicting provider to its full file text.
	Contents map[provider.Name]string
	// LineRanges maps each provider to the ranges it changed relative
	// to the alphabetically-first variant. Populated for line_level
	// conflicts only.
	LineRanges map[provider.Name][]LineRange
	// Scope names the enclosing declaration when the conflict is
	// confined to one, empty otherwise.
	Scope string
}

// ResolutionKind tags the ways a conflict can be settled.
type ResolutionKind string

const (
	ResolveAccept ResolutionKind = "accept"
	ResolveMerge  ResolutionKind = "merge"
	ResolveCustom ResolutionKind = "custom"
	ResolveSkip   ResolutionKind = "skip"
)

// Resolution is the chosen outcome for one conflict.
type Resolution struct {
	Kind ResolutionKind

	// Provider is set for accept resolutions.
	Provider provider.Name
	// Strategy is set for merge resolutions.
	Strategy Strategy
	// Content is set for custom resolutions.
	Content string
}

// Accept resolves in favor of a single provider's variant.
func Accept(p provider.Name) Resolution {
	return Resolution{Kind: ResolveAccept, Provider: p}
}

// Merged resolves by applying a merge strategy.
func Merged(s Strategy) Resolution {
	return Resolution{Kind: ResolveMerge, Strategy: s}
}

// Custom resolves with user-supplied content.
func Custom(content string) Resolution {
	return Resolution{Kind: ResolveCustom, Content: content}
}

// Skip leaves the conflict unresolved.
func Skip() Resolution {
	return Resolution{Kind: ResolveSkip}
}

// sortedProviders returns the variant providers in alphabetical order;
// every deterministic tie-break in this package uses this order.
func sortedProviders(variants []Variant) []provider.Name {
	names := make([]provider.Name, 0, len(variants))
	for _, v := range variants {
		names = append(names, v.Provider)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// byProviderOrder returns variants sorted alphabetically by provider.
func byProviderOrder(variants []Variant) []Variant {
	out := make([]Variant, len(variants))
	copy(out, variants)
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}
