package common

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8085, cfg.Server.Port)
	assert.Equal(t, 8000, cfg.Rewrite.MaxChunkSize)
	assert.Equal(t, 400, cfg.Rewrite.OverlapSize)
	assert.Equal(t, 200000, cfg.Rewrite.MaxTotalChars)
	assert.Equal(t, LLMProviderGemini, cfg.LLM.DefaultProvider)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(cfg *Config)
		expectErr string
	}{
		{
			name:      "invalid port",
			mutate:    func(cfg *Config) { cfg.Server.Port = 0 },
			expectErr: "invalid server port",
		},
		{
			name:      "zero chunk size",
			mutate:    func(cfg *Config) { cfg.Rewrite.MaxChunkSize = 0 },
			expectErr: "max_chunk_size",
		},
		{
			name:      "negative overlap",
			mutate:    func(cfg *Config) { cfg.Rewrite.OverlapSize = -1 },
			expectErr: "overlap_size",
		},
		{
			name: "overlap not smaller than chunk size",
			mutate: func(cfg *Config) {
				cfg.Rewrite.MaxChunkSize = 100
				cfg.Rewrite.OverlapSize = 100
			},
			expectErr: "must be smaller than max_chunk_size",
		},
		{
			name: "total smaller than chunk size",
			mutate: func(cfg *Config) {
				cfg.Rewrite.MaxTotalChars = 100
			},
			expectErr: "max_total_chars",
		},
		{
			name:      "zero concurrency",
			mutate:    func(cfg *Config) { cfg.Queue.Concurrency = 0 },
			expectErr: "concurrency",
		},
		{
			name:      "bad poll interval",
			mutate:    func(cfg *Config) { cfg.Queue.PollInterval = "soon" },
			expectErr: "poll_interval",
		},
		{
			name:      "bad visibility timeout",
			mutate:    func(cfg *Config) { cfg.Queue.VisibilityTimeout = "whenever" },
			expectErr: "visibility_timeout",
		},
		{
			name:      "bad stale threshold",
			mutate:    func(cfg *Config) { cfg.Monitor.StaleAfter = "later" },
			expectErr: "stale_after",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectErr)
		})
	}
}

func TestLoadFromFiles_MergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rescribo.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment = "production"

[server]
port = 9090

[rewrite]
max_chunk_size = 4000
`), 0o644))

	cfg, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 4000, cfg.Rewrite.MaxChunkSize)
	// untouched sections keep their defaults
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 400, cfg.Rewrite.OverlapSize)
}

func TestLoadFromFiles_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rescribo.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 9090\n"), 0o644))

	t.Setenv("RESCRIBO_SERVER_PORT", "9191")
	t.Setenv("RESCRIBO_REWRITE_MODEL", "claude-haiku-4-5")

	cfg, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "claude-haiku-4-5", cfg.Rewrite.Model)
}

func TestLoadFromFiles_MissingFile(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := NewDefaultConfig()

	ApplyFlagOverrides(cfg, 7000, "0.0.0.0")
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	// zero values leave the config untouched
	ApplyFlagOverrides(cfg, 0, "")
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestDurationHelpers(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, time.Second, cfg.Queue.PollIntervalDuration())
	assert.Equal(t, 10*time.Minute, cfg.Queue.VisibilityTimeoutDuration())
	assert.Equal(t, 30*time.Minute, cfg.Monitor.StaleAfterDuration())

	cfg.Queue.PollInterval = "250ms"
	assert.Equal(t, 250*time.Millisecond, cfg.Queue.PollIntervalDuration())

	// unparsable values fall back to safe defaults
	cfg.Queue.PollInterval = "garbage"
	assert.Equal(t, time.Second, cfg.Queue.PollIntervalDuration())
}

func TestResolveAPIKey_Precedence(t *testing.T) {
	ctx := context.Background()

	t.Setenv("RESCRIBO_GEMINI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	// config fallback when nothing else is set
	key, err := ResolveAPIKey(ctx, nil, "gemini_api_key", "from-config")
	require.NoError(t, err)
	assert.Equal(t, "from-config", key)

	// environment outranks the fallback
	t.Setenv("GEMINI_API_KEY", "from-env")
	key, err = ResolveAPIKey(ctx, nil, "gemini_api_key", "from-config")
	require.NoError(t, err)
	assert.Equal(t, "from-env", key)

	// the prefixed variable outranks the bare one
	t.Setenv("RESCRIBO_GEMINI_API_KEY", "from-prefixed-env")
	key, err = ResolveAPIKey(ctx, nil, "gemini_api_key", "from-config")
	require.NoError(t, err)
	assert.Equal(t, "from-prefixed-env", key)
}
