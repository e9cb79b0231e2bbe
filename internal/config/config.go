// Package config loads and defaults the indexing pipeline's YAML
// configuration: embedding provider selection, vector store address,
// chunking and concurrency tuning, and per-project overrides.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level indexing configuration. Unknown YAML fields are
// ignored rather than rejected, so older config files keep working as new
// optional fields are added.
type Config struct {
	ProjectRoot string `yaml:"project_root"`
	StateDir    string `yaml:"state_dir"`

	QdrantURL string `yaml:"qdrant_url"`

	EmbeddingProvider string `yaml:"embedding_provider"` // "openai" or "ollama"
	OpenAIKey         string `yaml:"openai_key"`
	OpenAIModel       string `yaml:"openai_model"`
	OllamaURL         string `yaml:"ollama_url"`
	OllamaModel       string `yaml:"ollama_model"`

	Indexing IndexingConfig `yaml:"indexing"`
}

// IndexingConfig tunes chunking and worker concurrency.
type IndexingConfig struct {
	MaxWorkers      int   `yaml:"max_workers"`
	ChunkSize       int   `yaml:"chunk_size"`
	ChunkOverlap    int   `yaml:"chunk_overlap"`
	EmbedCacheSize  int   `yaml:"embed_cache_size"`
	MaxFileSizeByte int64 `yaml:"max_file_size_bytes"`

	// TimestampSafetyBuffer widens an incremental-timestamp run's cutoff
	// backwards, so a file saved right around the previous run's
	// completion is re-scanned instead of missed to filesystem mtime
	// granularity or clock skew between the indexer and the filesystem.
	TimestampSafetyBuffer time.Duration `yaml:"timestamp_safety_buffer"`
}

// DefaultIndexingConfig returns worker/chunk defaults scaled to the
// available CPU cores, the same heuristic the teacher used for its
// file-indexing worker pool.
func DefaultIndexingConfig() IndexingConfig {
	workers := runtime.NumCPU() / 2
	if workers < 3 {
		workers = 3
	}
	if workers > 8 {
		workers = 8
	}

	return IndexingConfig{
		MaxWorkers:            workers,
		ChunkSize:             1000,
		ChunkOverlap:          150,
		EmbedCacheSize:        10000,
		MaxFileSizeByte:       1 << 20,
		TimestampSafetyBuffer: 5 * time.Second,
	}
}

// Default returns a Config with every field set to a usable default except
// ProjectRoot, which the caller must always provide.
func Default() Config {
	return Config{
		StateDir:          ".indexcore",
		QdrantURL:         "localhost:6334",
		EmbeddingProvider: "ollama",
		OllamaURL:         "http://localhost:11434",
		OllamaModel:       "bge-m3",
		OpenAIModel:       "text-embedding-3-small",
		Indexing:          DefaultIndexingConfig(),
	}
}

// Load reads a YAML config file from path, expanding ${VAR} environment
// references before parsing so secrets like api keys don't need to live in
// the file, then fills in any zero-valued field from Default.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.StateDir == "" {
		c.StateDir = d.StateDir
	}
	if c.QdrantURL == "" {
		c.QdrantURL = d.QdrantURL
	}
	if c.EmbeddingProvider == "" {
		c.EmbeddingProvider = d.EmbeddingProvider
	}
	if c.OllamaURL == "" {
		c.OllamaURL = d.OllamaURL
	}
	if c.OllamaModel == "" {
		c.OllamaModel = d.OllamaModel
	}
	if c.OpenAIModel == "" {
		c.OpenAIModel = d.OpenAIModel
	}
	if c.OpenAIKey == "" {
		c.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Indexing.MaxWorkers == 0 {
		c.Indexing = DefaultIndexingConfig()
	}
}

// Validate reports the first missing required field, if any.
func (c *Config) Validate() error {
	if c.ProjectRoot == "" {
		return fmt.Errorf("project_root is required")
	}
	switch c.EmbeddingProvider {
	case "openai":
		if c.OpenAIKey == "" {
			return fmt.Errorf("openai_key is required when embedding_provider is openai (set in config or OPENAI_API_KEY env var)")
		}
	case "ollama":
		// ollama needs no credential; a missing server surfaces as a
		// connection error at provider construction time instead.
	default:
		return fmt.Errorf("embedding_provider must be 'openai' or 'ollama', got %q", c.EmbeddingProvider)
	}
	if c.Indexing.ChunkOverlap >= c.Indexing.ChunkSize {
		return fmt.Errorf("chunk_overlap (%d) must be smaller than chunk_size (%d)", c.Indexing.ChunkOverlap, c.Indexing.ChunkSize)
	}
	return nil
}
