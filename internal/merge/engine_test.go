package merge

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgecode/orchestra/internal/provider"
)

const variantGreetBye = `def greet(name):
    if name:
        return "hello " + name
    return "hello"

def bye():
    return "bye"
`

const variantGreetWave = `def greet(name):
    return "hello " + name

def wave():
    return "wave"
`

func TestIdenticalVariantsMergeWithoutConflict(t *testing.T) {
	e := New(nil, nil, nil, nil)
	variants := []Variant{
		NewVariant("a.py", provider.OpenAI, "x = 1\n"),
		NewVariant("a.py", provider.Anthropic, "x = 1\n"),
	}
	out, err := e.Merge(context.Background(), variants, Options{})
	require.NoError(t, err)
	assert.Empty(t, out.Unresolved)
	assert.Equal(t, "x = 1\n", out.Merged["a.py"])
}

func TestSemanticMergeUnionsFunctions(t *testing.T) {
	e := New(nil, nil, nil, nil)
	variants := []Variant{
		NewVariant("foo.py", provider.OpenAI, variantGreetBye),
		NewVariant("foo.py", provider.Anthropic, variantGreetWave),
	}
	out, err := e.Merge(context.Background(), variants, Options{Strategy: StrategySemantic})
	require.NoError(t, err)
	require.Empty(t, out.Unresolved)

	merged := out.Merged["foo.py"]
	assert.Equal(t, 1, strings.Count(merged, "def greet"))
	assert.Equal(t, 1, strings.Count(merged, "def bye"))
	assert.Equal(t, 1, strings.Count(merged, "def wave"))

	// greet collides on signature; the branching variant is the more
	// complex one and must win.
	assert.Contains(t, merged, "if name:")
}

func TestSemanticMergeDeterministicOrder(t *testing.T) {
	e := New(nil, nil, nil, nil)
	variants := []Variant{
		NewVariant("foo.py", provider.OpenAI, variantGreetBye),
		NewVariant("foo.py", provider.Anthropic, variantGreetWave),
	}
	first, err := e.Merge(context.Background(), variants, Options{Strategy: StrategySemantic})
	require.NoError(t, err)
	// Reversed input order must not change the output.
	second, err := e.Merge(context.Background(), []Variant{variants[1], variants[0]}, Options{Strategy: StrategySemantic})
	require.NoError(t, err)
	assert.Equal(t, first.Merged["foo.py"], second.Merged["foo.py"])
}

func TestAdditionConflictUnionsContent(t *testing.T) {
	e := New(nil, nil, nil, nil)
	variants := []Variant{
		NewVariant("new.txt", provider.OpenAI, "alpha\nbeta"),
		NewVariant("new.txt", provider.Anthropic, "beta\ngamma"),
	}
	participants := []provider.Name{provider.OpenAI, provider.Anthropic, provider.DeepSeek}
	out, err := e.Merge(context.Background(), variants, Options{Participants: participants})
	require.NoError(t, err)
	require.Empty(t, out.Unresolved)
	merged := out.Merged["new.txt"]
	for _, line := range []string{"alpha", "beta", "gamma"} {
		assert.Equal(t, 1, strings.Count(merged, line))
	}
}

func TestSingleProviderFileIsNotAConflict(t *testing.T) {
	e := New(nil, nil, nil, nil)
	variants := []Variant{NewVariant("only.txt", provider.OpenAI, "solo\n")}
	participants := []provider.Name{provider.OpenAI, provider.Anthropic}
	out, err := e.Merge(context.Background(), variants, Options{Participants: participants})
	require.NoError(t, err)
	assert.Empty(t, out.Unresolved)
	assert.Equal(t, "solo\n", out.Merged["only.txt"])
}

func TestUnionDeduplicatesPreservingFirstSeenOrder(t *testing.T) {
	variants := []Variant{
		NewVariant("f", provider.Anthropic, "a\nb\nc"),
		NewVariant("f", provider.OpenAI, "b\nd"),
	}
	// Alphabetical provider order: anthropic before openai.
	assert.Equal(t, "a\nb\nc\nd", union(variants))
}

func TestIntersectionKeepsCommonLines(t *testing.T) {
	variants := []Variant{
		NewVariant("f", provider.Anthropic, "a\nb\nc"),
		NewVariant("f", provider.OpenAI, "c\nb\nz"),
	}
	assert.Equal(t, "b\nc", intersection(variants))
}

func TestLastAndFirstWriteWinsAreAlphabetic(t *testing.T) {
	variants := []Variant{
		NewVariant("f", provider.OpenAI, "from openai"),
		NewVariant("f", provider.Anthropic, "from anthropic"),
	}
	assert.Equal(t, "from openai", lastWriteWins(variants))
	assert.Equal(t, "from anthropic", firstWriteWins(variants))
}

func TestUnknownExtensionFallsBackToTextualResolution(t *testing.T) {
	e := New(nil, nil, nil, nil)
	variants := []Variant{
		NewVariant("notes.xyz", provider.OpenAI, "line one\nshared"),
		NewVariant("notes.xyz", provider.Anthropic, "shared\nline two"),
	}
	out, err := e.Merge(context.Background(), variants, Options{Strategy: StrategyAuto})
	require.NoError(t, err)
	require.Empty(t, out.Unresolved)
	assert.NotEmpty(t, out.Merged["notes.xyz"])
}

func TestManualWithoutResolverLeavesUnresolved(t *testing.T) {
	e := New(nil, nil, nil, nil)
	variants := []Variant{
		NewVariant("f.py", provider.OpenAI, "a = 1\n"),
		NewVariant("f.py", provider.Anthropic, "a = 2\n"),
	}
	out, err := e.Merge(context.Background(), variants, Options{Strategy: StrategyManual})
	require.NoError(t, err)
	assert.Empty(t, out.Merged)
	require.Len(t, out.Unresolved, 1)
	assert.Equal(t, "f.py", out.Unresolved[0].File)
}

type recordingAdvisor struct {
	predicted  Resolution
	confidence float64
	ok         bool
	recorded   []Resolution
}

func (r *recordingAdvisor) Predict(Conflict) (Resolution, float64, bool) {
	return r.predicted, r.confidence, r.ok
}

func (r *recordingAdvisor) RecordManual(_ Conflict, chosen Resolution) {
	r.recorded = append(r.recorded, chosen)
}

func TestManualResolutionIsRecorded(t *testing.T) {
	advisor := &recordingAdvisor{}
	e := New(nil, nil, advisor, nil)
	variants := []Variant{
		NewVariant("f.py", provider.OpenAI, "a = 1\n"),
		NewVariant("f.py", provider.Anthropic, "a = 2\n"),
	}
	opts := Options{
		Strategy: StrategyManual,
		ManualResolver: func(Conflict) Resolution {
			return Accept(provider.Anthropic)
		},
	}
	out, err := e.Merge(context.Background(), variants, opts)
	require.NoError(t, err)
	assert.Equal(t, "a = 2\n", out.Merged["f.py"])
	require.Len(t, advisor.recorded, 1)
	assert.Equal(t, ResolveAccept, advisor.recorded[0].Kind)
}

func TestMLRecommendedAppliesConfidentPrediction(t *testing.T) {
	advisor := &recordingAdvisor{
		predicted:  Accept(provider.OpenAI),
		confidence: 0.9,
		ok:         true,
	}
	e := New(nil, nil, advisor, nil)
	variants := []Variant{
		NewVariant("f.py", provider.OpenAI, "a = 1\n"),
		NewVariant("f.py", provider.Anthropic, "a = 2\n"),
	}
	out, err := e.Merge(context.Background(), variants, Options{Strategy: StrategyMLRecommended})
	require.NoError(t, err)
	assert.Equal(t, "a = 1\n", out.Merged["f.py"])
}

func TestMLRecommendedLowConfidenceDefersToAuto(t *testing.T) {
	advisor := &recordingAdvisor{
		predicted:  Accept(provider.OpenAI),
		confidence: 0.4,
		ok:         true,
	}
	e := New(nil, nil, advisor, nil)
	variants := []Variant{
		NewVariant("foo.py", provider.OpenAI, variantGreetBye),
		NewVariant("foo.py", provider.Anthropic, variantGreetWave),
	}
	out, err := e.Merge(context.Background(), variants, Options{Strategy: StrategyMLRecommended})
	require.NoError(t, err)
	// Auto over a parseable source goes semantic: all functions kept.
	assert.Contains(t, out.Merged["foo.py"], "def wave")
	assert.Contains(t, out.Merged["foo.py"], "def bye")
}

func TestHybridPicksLargestFeatureUnion(t *testing.T) {
	e := New(nil, nil, nil, nil)
	rich := "import os\nimport sys\n\ndef a():\n    pass\n\ndef b():\n    pass\n"
	poor := "def a():\n    pass\n"
	variants := []Variant{
		NewVariant("m.py", provider.OpenAI, rich),
		NewVariant("m.py", provider.Anthropic, poor),
	}
	assert.Equal(t, rich, e.hybrid(variants))
}

func TestVotingFallsThroughToHybridWhenClose(t *testing.T) {
	e := New(nil, nil, nil, nil)
	a := "def f():\n    pass\n"
	variants := []Variant{
		NewVariant("m.py", provider.OpenAI, a),
		NewVariant("m.py", provider.Anthropic, a+"\n"),
	}
	got := e.voting(variants)
	assert.Contains(t, got, "def f()")
}
