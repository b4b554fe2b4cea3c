package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "2s" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the underlying time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds the top-level application configuration.
type Config struct {
	DataDir   string                    `yaml:"data_dir"`
	Server    ServerConfig              `yaml:"server"`
	Database  DatabaseConfig            `yaml:"database"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Processor ProcessorConfig           `yaml:"processor"`
	Embedding EmbeddingConfig           `yaml:"embedding"`
	Index     IndexConfig               `yaml:"index"`
}

// ServerConfig holds HTTP status-API settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds state-store connection settings.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// ProviderConfig holds LLM provider settings.
type ProviderConfig struct {
	Type   string `yaml:"type"`    // e.g. "openai"
	URL    string `yaml:"url"`     // base URL
	APIKey string `yaml:"api_key"` // API key
}

// ProcessorConfig holds settings for the LLM process stage.
type ProcessorConfig struct {
	Model          string   `yaml:"model"`           // "provider/model"
	MinInterval    Duration `yaml:"min_interval"`    // rate-limit floor (default 3s)
	MaxRetries     int      `yaml:"max_retries"`     // rate-limit retries (default 5)
	BackoffBase    Duration `yaml:"backoff_base"`    // default 2s
	MaxContentLen  int      `yaml:"max_content_len"` // truncation bound (default 15000)
	BatchSize      int      `yaml:"batch_size"`      // API sub-batch size (default 2)
	RequestTimeout Duration `yaml:"request_timeout"` // per-call timeout (default 120s)
}

// EmbeddingConfig selects and configures the embedding backend.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // "openai", "ollama" or "genai"
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// IndexConfig holds vector-index settings.
type IndexConfig struct {
	Dir  string `yaml:"dir"`  // persistence directory (default <data_dir>/index)
	Kind string `yaml:"kind"` // "flat", "ivf" or "hnsw"
}

// defaults returns a Config populated with sensible default values.
func defaults() *Config {
	return &Config{
		DataDir: "data",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database:  DatabaseConfig{},
		Providers: map[string]ProviderConfig{},
		Processor: ProcessorConfig{
			MinInterval:    Duration(3 * time.Second),
			MaxRetries:     5,
			BackoffBase:    Duration(2 * time.Second),
			MaxContentLen:  15000,
			BatchSize:      2,
			RequestTimeout: Duration(120 * time.Second),
		},
		Embedding: EmbeddingConfig{
			Provider: "openai",
			Model:    "text-embedding-3-small",
		},
		Index: IndexConfig{
			Kind: "flat",
		},
	}
}

// Load reads a YAML configuration file at path and returns a Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Ensure Providers map is never nil even if YAML has "providers: {}" or omits it.
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadDefault tries to load "config.yaml" from the current directory.
// If the file does not exist, it returns sensible defaults (with env
// overrides applied). Any other error is returned.
func LoadDefault() (*Config, error) {
	cfg, err := Load("config.yaml")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = defaults()
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides selected fields from SPMEDGE_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("SPMEDGE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("SPMEDGE_DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("SPMEDGE_MODEL"); v != "" {
		c.Processor.Model = v
	}
	if v := os.Getenv("SPMEDGE_EMBEDDING_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		for name, p := range c.Providers {
			if p.APIKey == "" && p.Type == "openai" {
				p.APIKey = v
				c.Providers[name] = p
			}
		}
	}
}

// IndexDir resolves the vector-index directory relative to the data root.
func (c *Config) IndexDir() string {
	if c.Index.Dir != "" {
		return c.Index.Dir
	}
	return filepath.Join(c.DataDir, "index")
}
