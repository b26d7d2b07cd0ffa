package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forgecode/orchestra/internal/display"
	"github.com/forgecode/orchestra/internal/orcherr"
	"github.com/forgecode/orchestra/internal/provider"
	"github.com/forgecode/orchestra/internal/router"
	"github.com/forgecode/orchestra/internal/session"
)

func TestStrategyOfAcceptsKnownStrategies(t *testing.T) {
	for _, s := range []string{"all", "sequential", "dialectical"} {
		got, err := strategyOf(s)
		require.NoError(t, err)
		assert.Equal(t, router.Strategy(s), got)
	}
	_, err := strategyOf("shotgun")
	assert.Error(t, err)
}

func TestParseContextJSON(t *testing.T) {
	m, err := parseContextJSON(`{"main.py": "print('x')"}`)
	require.NoError(t, err)
	assert.Equal(t, "print('x')", m["main.py"])

	_, err = parseContextJSON(`{broken`)
	assert.Error(t, err)

	m, err = parseContextJSON("")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestResolveSubset(t *testing.T) {
	configured := []provider.Name{provider.OpenAI, provider.Anthropic}

	out, err := resolveSubset(configured, []string{"OpenAI"})
	require.NoError(t, err)
	assert.Equal(t, []provider.Name{provider.OpenAI}, out)

	_, err = resolveSubset(configured, []string{"deepseek"})
	assert.Error(t, err)

	out, err = resolveSubset(configured, nil)
	require.NoError(t, err)
	assert.Equal(t, configured, out)
}

func TestBadFlagsExitCode(t *testing.T) {
	assert.Equal(t, exitUserError, run([]string{"--no-such-flag"}))
}

func TestMissingPromptExitCode(t *testing.T) {
	assert.Equal(t, exitUserError, run([]string{}))
}

func TestBadContextJSONExitCode(t *testing.T) {
	assert.Equal(t, exitUserError, run([]string{"-c", "{broken", "do things"}))
}

func TestSetupWritesStarterConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	assert.Equal(t, exitOK, run([]string{"--setup", "--config", path}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "providers:")

	// A second setup must not clobber the file.
	assert.Equal(t, exitInternal, run([]string{"--setup", "--config", path}))
}

func TestNoConfiguredProvidersExitCode(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ORCHESTRA_SESSIONS_DIR", filepath.Join(t.TempDir(), "sessions"))

	empty := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("providers: {}\n"), 0o600))
	assert.Equal(t, exitNoProviders, run([]string{"--config", empty, "write hello"}))
}

func TestRendererShowsErrorAndContent(t *testing.T) {
	var buf bytes.Buffer
	r := newTerminalRenderer(&buf)
	r.Render(display.LayoutStacked, []display.PaneState{
		{Provider: provider.OpenAI, Status: "working", AccumulatedContent: "line1\nline2"},
		{Provider: provider.Anthropic, Status: "idle", Err: "boom"},
	}, display.Config{MaxPaneHeight: 10})

	out := buf.String()
	assert.Contains(t, out, "openai [working]")
	assert.Contains(t, out, "line2")
	assert.Contains(t, out, "error: boom")
}

func TestTailLinesBounded(t *testing.T) {
	got := tailLines("a\nb\nc\nd", 2)
	assert.Equal(t, []string{"c", "d"}, got)
	assert.Nil(t, tailLines("", 5))
}

func TestWriteTranscript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.md")
	rep := report{
		strategy: router.StrategyAll,
		results: map[provider.Name]router.Outcome{
			provider.OpenAI: {Result: provider.Result{
				Content: "def hello()",
				Usage:   provider.Usage{InputTokens: 10, OutputTokens: 5, FormattedCost: "< $0.01"},
			}},
			provider.Anthropic: {Err: orcherr.New(orcherr.AuthenticationError, "bad key")},
		},
	}
	require.NoError(t, writeTranscript(path, "write hello world", rep))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "write hello world")
	assert.Contains(t, text, "def hello()")
	assert.Contains(t, text, "authentication_error")
	assert.True(t, strings.Index(text, "## anthropic") < strings.Index(text, "## openai"))
}

func TestGuessExtension(t *testing.T) {
	assert.Equal(t, ".py", guessExtension("import os\n\ndef main():\n    pass\n"))
	assert.Equal(t, ".go", guessExtension("package main\n\nfunc main() {}\n"))
	assert.Equal(t, ".js", guessExtension("function hello() { return 1 }\n"))
	assert.Equal(t, ".txt", guessExtension("plain prose answer"))
}

func TestOpenSessionDBRoundTrip(t *testing.T) {
	store, err := openSessionDB(filepath.Join(t.TempDir(), "state", "sessions.db"), zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	sess := session.Session{
		Name:      "run-1",
		Prompt:    "write hello world",
		Responses: map[provider.Name]string{provider.OpenAI: "def hello()"},
		Providers: []provider.Name{provider.OpenAI},
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, store.Save(context.Background(), sess))

	loaded, err := store.Load(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "write hello world", loaded.Prompt)
}
