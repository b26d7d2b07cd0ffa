// Package config loads the tool's configuration: the provider table,
// the default routing strategy, timeouts, and the display settings.
// Precedence is defaults, then the YAML file, then environment
// variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/forgecode/orchestra/internal/display"
	"github.com/forgecode/orchestra/internal/provider"
)

// Credential is either a literal secret or a reference to an
// environment variable, written in YAML as a plain string or as
// {env: "NAME"}.
type Credential struct {
	Value  string
	EnvVar string
}

// UnmarshalYAML accepts both the scalar and the {env: NAME} forms.
func (c *Credential) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Decode(&c.Value)
	case yaml.MappingNode:
		var ref struct {
			Env string `yaml:"env"`
		}
		if err := node.Decode(&ref); err != nil {
			return err
		}
		if ref.Env == "" {
			return fmt.Errorf("credential mapping needs an env key")
		}
		c.EnvVar = ref.Env
		return nil
	default:
		return fmt.Errorf("credential must be a string or {env: NAME}")
	}
}

// MarshalYAML writes the form the credential was declared in.
func (c Credential) MarshalYAML() (any, error) {
	if c.EnvVar != "" {
		return map[string]string{"env": c.EnvVar}, nil
	}
	return c.Value, nil
}

// Resolve returns the secret, reading the environment when the
// credential is a reference.
func (c Credential) Resolve() string {
	if c.EnvVar != "" {
		return os.Getenv(c.EnvVar)
	}
	return c.Value
}

// ProviderConfig is one entry in the providers table.
type ProviderConfig struct {
	Model         string     `yaml:"model" env:"MODEL"`
	APIKey        Credential `yaml:"api_key" env:"API_KEY"`
	Endpoint      string     `yaml:"endpoint" env:"ENDPOINT"`
	CompartmentID string     `yaml:"compartment_id" env:"COMPARTMENT_ID"`
	Region        string     `yaml:"region" env:"REGION"`
	Temperature   float64    `yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens     int        `yaml:"max_tokens" env:"MAX_TOKENS"`
}

// DisplayConfig mirrors display.Config in YAML form.
type DisplayConfig struct {
	Layout         string `yaml:"layout" env:"LAYOUT"`
	ShowTimestamps bool   `yaml:"show_timestamps" env:"SHOW_TIMESTAMPS"`
	ShowTokenCount bool   `yaml:"show_token_count" env:"SHOW_TOKEN_COUNT"`
	ColorScheme    string `yaml:"color_scheme" env:"COLOR_SCHEME"`
	MaxPaneHeight  int    `yaml:"max_pane_height" env:"MAX_PANE_HEIGHT"`
	RefreshRateMs  int    `yaml:"refresh_rate_ms" env:"REFRESH_RATE_MS"`
	ShowProgress   bool   `yaml:"show_progress" env:"SHOW_PROGRESS"`
	CompactMode    bool   `yaml:"compact_mode" env:"COMPACT_MODE"`
}

// RedisConfig enables the durable Redis backing store for the
// analysis cache. Disabled by default; the cache runs in-memory only.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

// SessionDBConfig enables the SQLite mirror of saved sessions for
// structured querying. The JSON files remain the primary artifact.
type SessionDBConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" env:"PATH"`
}

// LogConfig controls the zap logger the CLI builds.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// Config is the full tool configuration.
type Config struct {
	Providers       map[string]ProviderConfig `yaml:"providers"`
	DefaultStrategy string                    `yaml:"default_strategy" env:"DEFAULT_STRATEGY"`
	Timeout         time.Duration             `yaml:"timeout" env:"TIMEOUT"`
	Display         DisplayConfig             `yaml:"display" env:"DISPLAY"`
	Redis           RedisConfig               `yaml:"redis" env:"REDIS"`
	SessionDB       SessionDBConfig           `yaml:"session_db" env:"SESSION_DB"`
	Log             LogConfig                 `yaml:"log" env:"LOG"`
	SessionsDir     string                    `yaml:"sessions_dir" env:"SESSIONS_DIR"`
	LearnerPath     string                    `yaml:"learner_path" env:"LEARNER_PATH"`
}

// Default returns the baseline configuration before file and
// environment overrides.
func Default() *Config {
	return &Config{
		Providers:       make(map[string]ProviderConfig),
		DefaultStrategy: "all",
		Timeout:         2 * time.Minute,
		Display: DisplayConfig{
			Layout:        "stacked",
			ColorScheme:   "default",
			MaxPaneHeight: 12,
			RefreshRateMs: 100,
			ShowProgress:  true,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		SessionDB: SessionDBConfig{
			Path: "sessions/sessions.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		SessionsDir: "sessions",
	}
}

// Validate rejects configurations no run can work with.
func (c *Config) Validate() error {
	var errs []string
	for name, pc := range c.Providers {
		if _, ok := providerName(name); !ok {
			errs = append(errs, fmt.Sprintf("unknown provider %q", name))
			continue
		}
		if pc.Model == "" {
			errs = append(errs, fmt.Sprintf("provider %q has no model", name))
		}
		if pc.Temperature < 0 || pc.Temperature > 2 {
			errs = append(errs, fmt.Sprintf("provider %q temperature out of range", name))
		}
	}
	switch c.DefaultStrategy {
	case "all", "sequential", "dialectical":
	default:
		errs = append(errs, fmt.Sprintf("unknown strategy %q", c.DefaultStrategy))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Descriptors materializes the provider table into immutable
// descriptors, resolving credential references.
func (c *Config) Descriptors() []provider.Descriptor {
	var out []provider.Descriptor
	for name, pc := range c.Providers {
		pn, ok := providerName(name)
		if !ok {
			continue
		}
		out = append(out, provider.Descriptor{
			Name:             pn,
			Model:            pc.Model,
			Credentials:      pc.APIKey.Resolve(),
			EndpointOverride: pc.Endpoint,
			Temperature:      pc.Temperature,
			MaxOutputTokens:  pc.MaxTokens,
			CompartmentID:    pc.CompartmentID,
		})
	}
	return out
}

// DisplayOptions converts the YAML display block to the display
// package's runtime form.
func (c *Config) DisplayOptions() display.Config {
	return display.Config{
		Layout:         display.Layout(c.Display.Layout),
		ShowTimestamps: c.Display.ShowTimestamps,
		ShowTokenCount: c.Display.ShowTokenCount,
		ColorScheme:    c.Display.ColorScheme,
		MaxPaneHeight:  c.Display.MaxPaneHeight,
		RefreshRateMs:  c.Display.RefreshRateMs,
		ShowProgress:   c.Display.ShowProgress,
		CompactMode:    c.Display.CompactMode,
	}
}

func providerName(name string) (provider.Name, bool) {
	switch provider.Name(strings.ToLower(name)) {
	case provider.OpenAI:
		return provider.OpenAI, true
	case provider.Anthropic:
		return provider.Anthropic, true
	case provider.DeepSeek:
		return provider.DeepSeek, true
	case provider.Perplexity:
		return provider.Perplexity, true
	case provider.OCI:
		return provider.OCI, true
	case provider.Local:
		return provider.Local, true
	default:
		return "", false
	}
}
