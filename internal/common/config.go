package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/veridoc/rescribo/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment string        `toml:"environment"` // "development" or "production"
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Queue       QueueConfig   `toml:"queue"`
	Logging     LoggingConfig `toml:"logging"`
	Rewrite     RewriteConfig `toml:"rewrite"`
	Monitor     MonitorConfig `toml:"monitor"`
	Gemini      GeminiConfig  `toml:"gemini"`
	Claude      ClaudeConfig  `toml:"claude"`
	LLM         LLMConfig     `toml:"llm"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type QueueConfig struct {
	PollInterval      string `toml:"poll_interval"`      // e.g., "1s" - how often workers poll for messages
	Concurrency       int    `toml:"concurrency"`        // Number of concurrent execution workers
	VisibilityTimeout string `toml:"visibility_timeout"` // e.g., "10m" - message visibility timeout for redelivery
	MaxReceive        int    `toml:"max_receive"`        // Max times a message can be received before dead-letter
	QueueName         string `toml:"queue_name"`         // Queue name prefix in Badger
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// RewriteConfig contains the rewrite-pipeline parameters. These used to be
// per-handler globals in early deployments; they are explicit configuration
// so components stay independently testable with fake collaborators.
type RewriteConfig struct {
	MaxChunkSize    int     `toml:"max_chunk_size"`    // Maximum characters per chunk (default: 8000)
	OverlapSize     int     `toml:"overlap_size"`      // Characters shared between consecutive chunks (default: 400)
	MaxTotalChars   int     `toml:"max_total_chars"`   // Maximum input size, enforced before any inference call (default: 200000)
	MaxOutputTokens int     `toml:"max_output_tokens"` // Cap on generated tokens per inference call (default: 8192)
	Temperature     float32 `toml:"temperature"`       // Near-zero to minimize creative drift (default: 0.1)
	Model           string  `toml:"model"`             // Model override; empty uses the default provider's model
}

// MonitorConfig controls the stale-job observer. It reports jobs stuck in
// PROCESSING; it never mutates them.
type MonitorConfig struct {
	Enabled    bool   `toml:"enabled"`
	Schedule   string `toml:"schedule"`    // Cron schedule (default: every 5 minutes)
	StaleAfter string `toml:"stale_after"` // Duration string, e.g. "30m"
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`       // default: "gemini-2.5-flash"
	Timeout     string  `toml:"timeout"`     // per-call timeout as duration string (default: "5m")
	RateLimit   float64 `toml:"rate_limit"`  // calls per second allowed against the API (default: 0.25)
	Temperature float32 `toml:"temperature"` // default when the request does not set one
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"` // default: "claude-haiku-4-5"
	MaxTokens   int     `toml:"max_tokens"`
	Timeout     string  `toml:"timeout"`
	RateLimit   float64 `toml:"rate_limit"`
	Temperature float32 `toml:"temperature"`
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig contains unified configuration for all AI providers
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"` // "gemini" or "claude" (default: "gemini")
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability; only
// user-facing settings need to appear in rescribo.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "localhost",
			Port: 8085,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/rescribo",
				ResetOnStartup: false,
			},
		},
		Queue: QueueConfig{
			PollInterval:      "1s",
			Concurrency:       2,
			VisibilityTimeout: "10m",
			MaxReceive:        3,
			QueueName:         "rewrite",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Rewrite: RewriteConfig{
			MaxChunkSize:    8000,
			OverlapSize:     400,
			MaxTotalChars:   200000,
			MaxOutputTokens: 8192,
			Temperature:     0.1,
		},
		Monitor: MonitorConfig{
			Enabled:    true,
			Schedule:   "*/5 * * * *",
			StaleAfter: "30m",
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.5-flash",
			Timeout:     "5m",
			RateLimit:   0.25,
			Temperature: 0.1,
		},
		Claude: ClaudeConfig{
			Model:       "claude-haiku-4-5",
			MaxTokens:   8192,
			Timeout:     "5m",
			RateLimit:   1,
			Temperature: 0.1,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
		},
	}
}

// LoadFromFiles loads configuration from defaults, then merges each config
// file in order (later files override earlier ones), then applies environment
// variable overrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("RESCRIBO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("RESCRIBO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("RESCRIBO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if badgerPath := os.Getenv("RESCRIBO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if concurrency := os.Getenv("RESCRIBO_QUEUE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Queue.Concurrency = c
		}
	}
	if visibilityTimeout := os.Getenv("RESCRIBO_QUEUE_VISIBILITY_TIMEOUT"); visibilityTimeout != "" {
		config.Queue.VisibilityTimeout = visibilityTimeout
	}

	if level := os.Getenv("RESCRIBO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("RESCRIBO_LOG_OUTPUT"); output != "" {
		var outputs []string
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if maxTotal := os.Getenv("RESCRIBO_REWRITE_MAX_TOTAL_CHARS"); maxTotal != "" {
		if m, err := strconv.Atoi(maxTotal); err == nil {
			config.Rewrite.MaxTotalChars = m
		}
	}
	if model := os.Getenv("RESCRIBO_REWRITE_MODEL"); model != "" {
		config.Rewrite.Model = model
	}
}

// ApplyFlagOverrides applies command-line flag overrides. Flags outrank
// config files and environment variables.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks configuration consistency before startup
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Rewrite.MaxChunkSize < 1 {
		return fmt.Errorf("rewrite.max_chunk_size must be at least 1, got %d", c.Rewrite.MaxChunkSize)
	}
	if c.Rewrite.OverlapSize < 0 {
		return fmt.Errorf("rewrite.overlap_size cannot be negative, got %d", c.Rewrite.OverlapSize)
	}
	if c.Rewrite.OverlapSize >= c.Rewrite.MaxChunkSize {
		return fmt.Errorf("rewrite.overlap_size (%d) must be smaller than max_chunk_size (%d)",
			c.Rewrite.OverlapSize, c.Rewrite.MaxChunkSize)
	}
	if c.Rewrite.MaxTotalChars < c.Rewrite.MaxChunkSize {
		return fmt.Errorf("rewrite.max_total_chars (%d) must be at least max_chunk_size (%d)",
			c.Rewrite.MaxTotalChars, c.Rewrite.MaxChunkSize)
	}
	if c.Queue.Concurrency < 1 {
		return fmt.Errorf("queue.concurrency must be at least 1, got %d", c.Queue.Concurrency)
	}
	if _, err := time.ParseDuration(c.Queue.PollInterval); err != nil {
		return fmt.Errorf("invalid queue.poll_interval %q: %w", c.Queue.PollInterval, err)
	}
	if _, err := time.ParseDuration(c.Queue.VisibilityTimeout); err != nil {
		return fmt.Errorf("invalid queue.visibility_timeout %q: %w", c.Queue.VisibilityTimeout, err)
	}
	if c.Monitor.StaleAfter != "" {
		if _, err := time.ParseDuration(c.Monitor.StaleAfter); err != nil {
			return fmt.Errorf("invalid monitor.stale_after %q: %w", c.Monitor.StaleAfter, err)
		}
	}
	return nil
}

// PollInterval returns the parsed queue poll interval
func (c *QueueConfig) PollIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return time.Second
	}
	return d
}

// VisibilityTimeoutDuration returns the parsed visibility timeout
func (c *QueueConfig) VisibilityTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.VisibilityTimeout)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// StaleAfterDuration returns the parsed staleness threshold
func (c *MonitorConfig) StaleAfterDuration() time.Duration {
	d, err := time.ParseDuration(c.StaleAfter)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// ResolveAPIKey resolves an API key by name with the precedence: environment
// variable, key/value store, config file fallback.
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"gemini_api_key":    {"RESCRIBO_GEMINI_API_KEY", "GEMINI_API_KEY"},
		"anthropic_api_key": {"RESCRIBO_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
	}

	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}
