// Package config provides configuration loading and management for the
// comparer service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Embedder EmbedderConfig `yaml:"embedder"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Jobs     JobsConfig     `yaml:"jobs"`
	NATS     NATSConfig     `yaml:"nats"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address (default ":8080").
	Addr string `yaml:"addr"`
}

// EmbedderConfig configures the embedding backends.
type EmbedderConfig struct {
	// Backend selects "auto", "local" or "remote".
	Backend string `yaml:"backend"`
	// Model is the embeddings model id (backend-specific default if empty).
	Model string `yaml:"model"`
	// OllamaEndpoint is the local backend address.
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	// APIBaseURL overrides the remote backend base URL.
	APIBaseURL string `yaml:"api_base_url"`
	// APIKey authenticates the remote backend. Usually supplied via
	// UCC_OPENAI_API_KEY rather than the file.
	APIKey string `yaml:"api_key"`
}

// PipelineConfig carries the default comparison options.
type PipelineConfig struct {
	SimilarityThreshold    float64 `yaml:"similarity_threshold"`
	MaxCandidatesPerClause int     `yaml:"max_candidates_per_clause"`
	ReturnTokenDiffs       bool    `yaml:"return_token_diffs"`
}

// JobsConfig configures the orchestrator and retention.
type JobsConfig struct {
	// Workers is the number of concurrent jobs per process.
	Workers int `yaml:"workers"`
	// MaxRetries caps segment reattempts for transient failures.
	MaxRetries int `yaml:"max_retries"`
	// SegmentSoftTimeout bounds one segment.
	SegmentSoftTimeout time.Duration `yaml:"segment_soft_timeout"`
	// JobHardTimeout bounds a whole job.
	JobHardTimeout time.Duration `yaml:"job_hard_timeout"`
	// TTL is how long terminal jobs are retained.
	TTL time.Duration `yaml:"ttl"`
	// DBPath locates the SQLite job database.
	DBPath string `yaml:"db_path"`
}

// NATSConfig configures the NATS connection backing the progress bus and
// segment store. An empty URL selects the in-process implementations.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Embedder: EmbedderConfig{
			Backend:        "auto",
			OllamaEndpoint: "http://localhost:11434",
		},
		Pipeline: PipelineConfig{
			SimilarityThreshold:    0.72,
			MaxCandidatesPerClause: 2,
			ReturnTokenDiffs:       true,
		},
		Jobs: JobsConfig{
			Workers:            2,
			MaxRetries:         3,
			SegmentSoftTimeout: 540 * time.Second,
			JobHardTimeout:     600 * time.Second,
			TTL:                24 * time.Hour,
			DBPath:             ".data/jobs.db",
		},
		NATS: NATSConfig{
			URL: "",
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Embedder.Backend {
	case "auto", "local", "remote":
	default:
		return fmt.Errorf("embedder.backend must be auto, local or remote: got %q", c.Embedder.Backend)
	}
	if c.Pipeline.SimilarityThreshold < 0 || c.Pipeline.SimilarityThreshold > 1 {
		return fmt.Errorf("pipeline.similarity_threshold must be in [0,1]")
	}
	if c.Pipeline.MaxCandidatesPerClause < 1 || c.Pipeline.MaxCandidatesPerClause > 10 {
		return fmt.Errorf("pipeline.max_candidates_per_clause must be in [1,10]")
	}
	if c.Jobs.Workers < 1 {
		return fmt.Errorf("jobs.workers must be at least 1")
	}
	if c.Jobs.MaxRetries < 0 {
		return fmt.Errorf("jobs.max_retries must not be negative")
	}
	if c.Jobs.JobHardTimeout < c.Jobs.SegmentSoftTimeout {
		return fmt.Errorf("jobs.job_hard_timeout must not be shorter than the segment soft timeout")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration as YAML.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
