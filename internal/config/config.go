// Package config loads the service configuration from an optional YAML file
// with environment variable overrides. Environment always wins, so deployed
// instances can share one file and differ only in secrets and endpoints.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	LLM      LLMConfig      `yaml:"llm"`
	Redis    RedisConfig    `yaml:"redis"`
	NATS     NATSConfig     `yaml:"nats"`
	Storage  StorageConfig  `yaml:"storage"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Sentry   SentryConfig   `yaml:"sentry"`
	Workflow WorkflowConfig `yaml:"workflow"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LLMConfig selects the language model backend.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// RedisConfig locates the quote and resolver cache. An empty Addr disables
// caching.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// NATSConfig locates the conversation store. An empty URL falls back to the
// in-process store, which loses history on restart.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// StorageConfig enables report archival to blob storage when a connection
// string is present.
type StorageConfig struct {
	ConnectionString string `yaml:"connection_string"`
	Container        string `yaml:"container"`
}

// TracingConfig controls the OTLP trace exporter.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRatio  float64 `yaml:"sample_ratio"`
	Environment  string  `yaml:"environment"`
}

// SentryConfig enables error reporting when a DSN is present.
type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// WorkflowConfig holds the run driver tunables.
type WorkflowConfig struct {
	MaxAttempts      int           `yaml:"max_attempts"`
	BaseDelay        time.Duration `yaml:"base_delay"`
	RunTimeout       time.Duration `yaml:"run_timeout"`
	MaxIterations    int           `yaml:"max_iterations"`
	QualityThreshold float64       `yaml:"quality_threshold"`
}

// Load reads the YAML file at path, applies environment overrides, and fills
// defaults. A missing file is not an error; the environment alone can carry a
// full configuration.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env and defaults
		case err != nil:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	envString(&c.Server.Addr, "MINERVA_ADDR")
	envString(&c.LLM.APIKey, "OPENAI_API_KEY")
	envString(&c.LLM.BaseURL, "OPENAI_API_BASE_URL")
	envString(&c.LLM.Model, "OPENAI_MODEL")
	envString(&c.Redis.Addr, "REDIS_ADDR")
	envString(&c.Redis.Password, "REDIS_PASSWORD")
	envInt(&c.Redis.DB, "REDIS_DB")
	envString(&c.NATS.URL, "NATS_URL")
	envString(&c.Storage.ConnectionString, "AZURE_STORAGE_CONNECTION_STRING")
	envString(&c.Storage.Container, "AZURE_STORAGE_CONTAINER")
	envString(&c.Tracing.OTLPEndpoint, "OTLP_ENDPOINT")
	envString(&c.Sentry.DSN, "SENTRY_DSN")
	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		c.Tracing.Enabled = v == "true" || v == "1"
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Tracing.OTLPEndpoint == "" {
		c.Tracing.OTLPEndpoint = "127.0.0.1:4318"
	}
	if c.Tracing.SampleRatio <= 0 {
		c.Tracing.SampleRatio = 1.0
	}
	if c.Tracing.Environment == "" {
		c.Tracing.Environment = "development"
	}
	if c.Sentry.Environment == "" {
		c.Sentry.Environment = c.Tracing.Environment
	}
	if c.Storage.Container == "" {
		c.Storage.Container = "reports"
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm api key is required (OPENAI_API_KEY)")
	}
	return nil
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
