package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment variable names recognized by Load.
const (
	EnvEmbedder            = "UCC_EMBEDDER"
	EnvEmbedModel          = "UCC_EMBED_MODEL"
	EnvSimilarityThreshold = "UCC_SIMILARITY_THRESHOLD"
	EnvMaxRetries          = "UCC_MAX_RETRIES"
	EnvJobTTLSeconds       = "UCC_JOB_TTL_SECONDS"
	EnvSegmentSoftTimeout  = "UCC_SEGMENT_SOFT_TIMEOUT"
	EnvJobHardTimeout      = "UCC_JOB_HARD_TIMEOUT"
	EnvWorkers             = "UCC_WORKERS"
	EnvNATSURL             = "UCC_NATS_URL"
	EnvDBPath              = "UCC_DB_PATH"
	EnvListenAddr          = "UCC_LISTEN_ADDR"
	EnvOpenAIAPIKey        = "UCC_OPENAI_API_KEY"
	EnvOpenAIBaseURL       = "UCC_OPENAI_BASE_URL"
	EnvOllamaEndpoint      = "UCC_OLLAMA_ENDPOINT"
)

// Load resolves the effective configuration: defaults, then the optional
// YAML file, then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables onto the configuration.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvEmbedder); v != "" {
		c.Embedder.Backend = v
	}
	if v := os.Getenv(EnvEmbedModel); v != "" {
		c.Embedder.Model = v
	}
	if v := os.Getenv(EnvOpenAIAPIKey); v != "" {
		c.Embedder.APIKey = v
	}
	if v := os.Getenv(EnvOpenAIBaseURL); v != "" {
		c.Embedder.APIBaseURL = v
	}
	if v := os.Getenv(EnvOllamaEndpoint); v != "" {
		c.Embedder.OllamaEndpoint = v
	}
	if v := os.Getenv(EnvSimilarityThreshold); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSimilarityThreshold, err)
		}
		c.Pipeline.SimilarityThreshold = f
	}
	if v := os.Getenv(EnvMaxRetries); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxRetries, err)
		}
		c.Jobs.MaxRetries = n
	}
	if v := os.Getenv(EnvJobTTLSeconds); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvJobTTLSeconds, err)
		}
		c.Jobs.TTL = time.Duration(n) * time.Second
	}
	if v := os.Getenv(EnvSegmentSoftTimeout); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSegmentSoftTimeout, err)
		}
		c.Jobs.SegmentSoftTimeout = d
	}
	if v := os.Getenv(EnvJobHardTimeout); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvJobHardTimeout, err)
		}
		c.Jobs.JobHardTimeout = d
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWorkers, err)
		}
		c.Jobs.Workers = n
	}
	if v := os.Getenv(EnvNATSURL); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		c.Jobs.DBPath = v
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		c.Server.Addr = v
	}
	return nil
}

// parseSeconds accepts either a bare number of seconds or a Go duration
// string.
func parseSeconds(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}
