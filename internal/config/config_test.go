package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(EnvBaseURL, "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000/api/v1", cfg.Backend.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Backend.HealthTimeout)
	assert.Equal(t, 120*time.Second, cfg.Backend.ChatTimeout)
	assert.Equal(t, 60*time.Second, cfg.Backend.IngestTimeout)
	assert.Equal(t, 30*time.Second, cfg.Backend.SearchTimeout)
	assert.Equal(t, 10*time.Second, cfg.Backend.StatsTimeout)
	assert.True(t, cfg.Session.UseKnowledgeBase)
	assert.Equal(t, 5, cfg.Search.DefaultTopK)
	assert.Equal(t, ":memory:", cfg.Knowledge.LedgerPath)
	assert.Equal(t, 30*time.Second, cfg.Knowledge.StatsTTL)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoad_ValidConfig(t *testing.T) {
	t.Setenv(EnvBaseURL, "")

	path := writeConfig(t, `
backend:
  base_url: "http://jarvis.internal:9000/api/v1"
  chat_timeout: "90s"

session:
  use_knowledge_base: false
  category_filter: "manuals"

search:
  default_top_k: 8

connectivity:
  poll_interval: "1m"

knowledge:
  ledger_path: "./ledger.db"
  watch_extensions: [".txt"]
  watch_category: "inbox"
  stats_ttl: "0s"

logging:
  level: "debug"
  format: "text"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://jarvis.internal:9000/api/v1", cfg.Backend.BaseURL)
	assert.Equal(t, 90*time.Second, cfg.Backend.ChatTimeout)
	assert.Equal(t, 5*time.Second, cfg.Backend.HealthTimeout, "unset keys keep defaults")
	assert.False(t, cfg.Session.UseKnowledgeBase)
	assert.Equal(t, "manuals", cfg.Session.CategoryFilter)
	assert.Equal(t, 8, cfg.Search.DefaultTopK)
	assert.Equal(t, time.Minute, cfg.Connectivity.PollInterval)
	assert.Equal(t, []string{".txt"}, cfg.Knowledge.WatchExtensions)
	assert.Equal(t, "inbox", cfg.Knowledge.WatchCategory)
	assert.Zero(t, cfg.Knowledge.StatsTTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, LogFormatText, cfg.Logging.Format)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv(EnvBaseURL, "")
	t.Setenv("JARVIS_TEST_HOST", "kb.example.com")

	path := writeConfig(t, `
backend:
  base_url: "https://${JARVIS_TEST_HOST}/api/v1"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://kb.example.com/api/v1", cfg.Backend.BaseURL)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv(EnvBaseURL, "http://override:9000/api/v1")

	path := writeConfig(t, `
backend:
  base_url: "http://from-file:9000/api/v1"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://override:9000/api/v1", cfg.Backend.BaseURL)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv(EnvBaseURL, "")

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad duration", "backend:\n  chat_timeout: \"soon\"\n", "chat_timeout"},
		{"zero timeout", "backend:\n  health_timeout: \"0s\"\n", "backend.health_timeout must be positive"},
		{"bad scheme", "backend:\n  base_url: \"ftp://host/api\"\n", "http or https"},
		{"top_k range", "search:\n  default_top_k: 50\n", "default_top_k"},
		{"bad level", "logging:\n  level: \"loud\"\n", "logging.level"},
		{"bad format", "logging:\n  format: \"xml\"\n", "logging.format"},
		{"bad yaml", "backend: [\n", "parsing config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("JARVIS_A", "alpha")
	assert.Equal(t, "x-alpha-", expandEnvVars("x-${JARVIS_A}-${JARVIS_UNSET_VAR}"))
}
