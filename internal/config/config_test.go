package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgecode/orchestra/internal/provider"
)

const sampleYAML = `
providers:
  openai:
    model: gpt-4o
    api_key: sk-direct
    temperature: 0.7
    max_tokens: 4096
  anthropic:
    model: claude-sonnet
    api_key:
      env: ANTHROPIC_KEY
    temperature: 0.5
    max_tokens: 8192
  local:
    model: codellama
    endpoint: http://localhost:11434
default_strategy: sequential
timeout: 90s
display:
  layout: side_by_side
  refresh_rate_ms: 250
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadParsesBothCredentialForms(t *testing.T) {
	t.Setenv("ANTHROPIC_KEY", "sk-from-env")

	cfg, err := NewLoader().WithConfigPath(writeConfig(t, sampleYAML)).Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-direct", cfg.Providers["openai"].APIKey.Resolve())
	assert.Equal(t, "sk-from-env", cfg.Providers["anthropic"].APIKey.Resolve())
	assert.Equal(t, "sequential", cfg.DefaultStrategy)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
	assert.Equal(t, "side_by_side", cfg.Display.Layout)
	assert.Equal(t, 250, cfg.Display.RefreshRateMs)
}

func TestDescriptorsResolveCredentials(t *testing.T) {
	t.Setenv("ANTHROPIC_KEY", "sk-resolved")

	cfg, err := NewLoader().WithConfigPath(writeConfig(t, sampleYAML)).Load()
	require.NoError(t, err)

	descs := cfg.Descriptors()
	byName := make(map[provider.Name]provider.Descriptor)
	for _, d := range descs {
		byName[d.Name] = d
	}
	require.Len(t, byName, 3)
	assert.Equal(t, "sk-resolved", byName[provider.Anthropic].Credentials)
	assert.Equal(t, "http://localhost:11434", byName[provider.Local].EndpointOverride)
}

func TestEnvOverridesFileValues(t *testing.T) {
	t.Setenv("ORCHESTRA_DEFAULT_STRATEGY", "dialectical")
	t.Setenv("ORCHESTRA_TIMEOUT", "30s")
	t.Setenv("ORCHESTRA_OPENAI_API_KEY", "sk-override")

	cfg, err := NewLoader().WithConfigPath(writeConfig(t, sampleYAML)).Load()
	require.NoError(t, err)

	assert.Equal(t, "dialectical", cfg.DefaultStrategy)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "sk-override", cfg.Providers["openai"].APIKey.Resolve())
}

func TestDurableLayersDisabledByDefault(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(writeConfig(t, sampleYAML)).Load()
	require.NoError(t, err)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.False(t, cfg.SessionDB.Enabled)
	assert.Equal(t, "sessions/sessions.db", cfg.SessionDB.Path)
}

func TestDurableLayersParsedFromYAML(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(writeConfig(t, `
redis:
  enabled: true
  addr: redis.internal:6380
  db: 2
session_db:
  enabled: true
  path: /var/lib/orchestra/sessions.db
`)).Load()
	require.NoError(t, err)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.True(t, cfg.SessionDB.Enabled)
	assert.Equal(t, "/var/lib/orchestra/sessions.db", cfg.SessionDB.Path)
}

func TestMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, "all", cfg.DefaultStrategy)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	_, err := NewLoader().WithConfigPath(writeConfig(t, `
providers:
  mysteryai:
    model: whatever
`)).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mysteryai")
}

func TestValidateRejectsUnknownStrategy(t *testing.T) {
	_, err := NewLoader().WithConfigPath(writeConfig(t, `
default_strategy: shotgun
`)).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shotgun")
}
