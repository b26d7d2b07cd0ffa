// Command orchestra fans a coding prompt out to the configured LLM
// providers, streams their answers into per-provider panes, and
// reports each provider's result with token usage and cost.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/forgecode/orchestra/internal/config"
	"github.com/forgecode/orchestra/internal/router"
)

// Exit codes.
const (
	exitOK          = 0
	exitUserError   = 1
	exitNoProviders = 2
	exitInternal    = 3
)

type cliOptions struct {
	strategy    string
	providers   []string
	contextJSON string
	output      string
	mergeWith   string
	interactive bool
	setup       bool
	configPath  string
	sessionName string
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("orchestra", pflag.ContinueOnError)
	opts := cliOptions{}

	flags.StringVarP(&opts.strategy, "strategy", "s", "", "routing strategy: all|sequential|dialectical")
	flags.StringSliceVarP(&opts.providers, "providers", "p", nil, "restrict to a comma-separated provider subset")
	flags.StringVarP(&opts.contextJSON, "context", "c", "", "extra context as a JSON map")
	flags.StringVarP(&opts.output, "output", "o", "", "write a formatted transcript to this file")
	flags.StringVarP(&opts.mergeWith, "merge", "m", "", "combine provider outputs with this strategy (auto|semantic|union|voting|...)")
	flags.BoolVarP(&opts.interactive, "interactive", "i", false, "enter the interactive prompt loop")
	flags.BoolVar(&opts.setup, "setup", false, "write a starter configuration file and exit")
	flags.StringVar(&opts.configPath, "config", "config.yaml", "configuration file path")
	flags.StringVar(&opts.sessionName, "session", "", "save the run under this session name")

	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: orchestra [options] <task>\n\n")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return exitOK
		}
		fmt.Fprintln(os.Stderr, err)
		return exitUserError
	}

	if opts.setup {
		if err := writeStarterConfig(opts.configPath); err != nil {
			fmt.Fprintf(os.Stderr, "setup failed: %v\n", err)
			return exitInternal
		}
		fmt.Printf("wrote %s, fill in your API keys and run again\n", opts.configPath)
		return exitOK
	}

	prompt := strings.TrimSpace(strings.Join(flags.Args(), " "))
	if prompt == "" && !opts.interactive {
		flags.Usage()
		return exitUserError
	}

	extraContext, err := parseContextJSON(opts.contextJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad --context JSON: %v\n", err)
		return exitUserError
	}

	cfg, err := config.NewLoader().WithConfigPath(opts.configPath).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitUserError
	}
	if opts.strategy == "" {
		opts.strategy = cfg.DefaultStrategy
	}
	if _, err := strategyOf(opts.strategy); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUserError
	}

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger setup failed: %v\n", err)
		return exitInternal
	}
	defer logger.Sync()

	app, err := newApp(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		return exitInternal
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	active, err := app.healthyProviders(ctx, opts.providers)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUserError
	}
	if len(active) == 0 {
		fmt.Fprintln(os.Stderr, "no healthy providers available")
		return exitNoProviders
	}

	if opts.interactive {
		return app.runInteractive(active, opts, extraContext)
	}
	return app.runOnce(ctx, prompt, active, opts, extraContext)
}

func strategyOf(s string) (router.Strategy, error) {
	switch router.Strategy(s) {
	case router.StrategyAll, router.StrategySequential, router.StrategyDialectical:
		return router.Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown strategy %q (want all, sequential or dialectical)", s)
	}
}

func parseContextJSON(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	out := make(map[string]string)
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func buildLogger(lc config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zc := zap.NewProductionConfig()
	if lc.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

func writeStarterConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	starter := `providers:
  openai:
    model: gpt-4o
    api_key:
      env: OPENAI_API_KEY
    temperature: 0.7
    max_tokens: 4096
  anthropic:
    model: claude-sonnet-4-5
    api_key:
      env: ANTHROPIC_API_KEY
    temperature: 0.7
    max_tokens: 8192
  local:
    model: codellama
    endpoint: http://localhost:11434

default_strategy: all
timeout: 2m

display:
  layout: stacked
  refresh_rate_ms: 100
  show_progress: true

# Optional durable layers:
# redis:
#   enabled: true
#   addr: localhost:6379
# session_db:
#   enabled: true
#   path: sessions/sessions.db
`
	return os.WriteFile(path, []byte(starter), 0o600)
}
