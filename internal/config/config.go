// Package config loads Phasergun configuration from defaults, an optional
// .phasergun.yaml project file, and environment overrides (highest priority).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the per-project configuration file.
const ConfigFileName = ".phasergun.yaml"

// Config represents the complete Phasergun configuration.
type Config struct {
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	Retrieval RetrievalConfig `yaml:"retrieval" json:"retrieval"`
	Lock      LockConfig      `yaml:"lock" json:"lock"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`

	// Excludes are doublestar patterns excluded from fingerprinting and
	// indexing, in addition to the built-in Context/Prompt exclusion.
	Excludes []string `yaml:"excludes" json:"excludes"`
}

// CacheConfig configures the on-disk cache.
type CacheConfig struct {
	// Enabled toggles all on-disk cache reads and writes.
	// Overridden by the CACHE_ENABLED environment variable.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Dir is the cache root. Defaults to <tmp>/phasergun-cache.
	Dir string `yaml:"dir" json:"dir"`
}

// RetrievalConfig configures query-time retrieval defaults.
type RetrievalConfig struct {
	// TopKProcedures is the number of procedure chunks returned; 0 disables.
	TopKProcedures int `yaml:"top_k_procedures" json:"top_k_procedures"`

	// TopKContext is the number of context chunks returned; 0 disables.
	TopKContext int `yaml:"top_k_context" json:"top_k_context"`

	// IncludeSummaries includes procedure and context summaries in the
	// assembled context.
	IncludeSummaries bool `yaml:"include_summaries" json:"include_summaries"`

	// MaxTokens is the approximate upper bound for assembled context,
	// applied with a 4-characters-per-token heuristic.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`
}

// LockConfig configures the cross-process build lock.
type LockConfig struct {
	// StaleMs is the age in milliseconds after which a lock file is
	// treated as abandoned.
	StaleMs int `yaml:"stale_ms" json:"stale_ms"`

	// MaxRetries is the number of acquisition attempts before failing.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// MinBackoffMs is the minimum randomized backoff between attempts.
	MinBackoffMs int `yaml:"min_backoff_ms" json:"min_backoff_ms"`

	// MaxBackoffMs is the maximum randomized backoff between attempts.
	MaxBackoffMs int `yaml:"max_backoff_ms" json:"max_backoff_ms"`
}

// EmbeddingConfig configures the local embedder.
type EmbeddingConfig struct {
	// BatchSize is the batch size for EmbedBatch.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// LRUSize is the in-memory embedding cache size on top of the disk memo.
	LRUSize int `yaml:"lru_size" json:"lru_size"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Cache: CacheConfig{
			Enabled: true,
			Dir:     filepath.Join(os.TempDir(), "phasergun-cache"),
		},
		Retrieval: RetrievalConfig{
			TopKProcedures:   3,
			TopKContext:      2,
			IncludeSummaries: true,
			MaxTokens:        150000,
		},
		Lock: LockConfig{
			StaleMs:      60000,
			MaxRetries:   10,
			MinBackoffMs: 500,
			MaxBackoffMs: 3000,
		},
		Embedding: EmbeddingConfig{
			BatchSize: 32,
			LRUSize:   1000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the effective configuration for a project root:
// defaults, then .phasergun.yaml if present, then environment overrides.
func Load(projectRoot string) (Config, error) {
	cfg := Default()

	path := filepath.Join(projectRoot, ConfigFileName)
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", ConfigFileName, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("CACHE_ENABLED"); ok {
		cfg.Cache.Enabled = parseBool(v, cfg.Cache.Enabled)
	}
	if v := os.Getenv("PHASERGUN_CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("PHASERGUN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PHASERGUN_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Retrieval.MaxTokens = n
		}
	}
}

// Validate checks configuration invariants.
func (c Config) Validate() error {
	if c.Retrieval.TopKProcedures < 0 {
		return fmt.Errorf("retrieval.top_k_procedures must be >= 0")
	}
	if c.Retrieval.TopKContext < 0 {
		return fmt.Errorf("retrieval.top_k_context must be >= 0")
	}
	if c.Retrieval.MaxTokens <= 0 {
		return fmt.Errorf("retrieval.max_tokens must be > 0")
	}
	if c.Lock.MinBackoffMs > c.Lock.MaxBackoffMs {
		return fmt.Errorf("lock.min_backoff_ms must be <= lock.max_backoff_ms")
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be > 0")
	}
	return nil
}

// parseBool parses common boolean spellings, returning fallback when unclear.
func parseBool(v string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
