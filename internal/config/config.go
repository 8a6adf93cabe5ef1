// Package config provides configuration loading and structs for the kotae server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Health    HealthConfig    `yaml:"health"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

// StorageConfig selects the knowledge base backend.
type StorageConfig struct {
	Backend      string `yaml:"backend"` // sqlite or memory
	DatabasePath string `yaml:"database_path"`
}

// EmbeddingConfig selects the embedding provider and tunes the pipeline around it.
type EmbeddingConfig struct {
	Provider       string        `yaml:"provider"`
	Model          string        `yaml:"model"`
	BaseURL        string        `yaml:"base_url"`
	APIKeyEnv      string        `yaml:"api_key_env"`
	Dimensions     int           `yaml:"dimensions"`
	BatchSize      int           `yaml:"batch_size"`
	MaxInputTokens int           `yaml:"max_input_tokens"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	InitTimeout    time.Duration `yaml:"init_timeout"`
	Warmup         bool          `yaml:"warmup"`
	Retry          RetryConfig   `yaml:"retry"`
	Cache          CacheConfig   `yaml:"cache"`
	ONNX           ONNXConfig    `yaml:"onnx"`
}

// RetryConfig bounds retries of transient provider failures.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// CacheConfig selects the embedding cache backend.
type CacheConfig struct {
	Backend     string `yaml:"backend"`
	MaxSize     int    `yaml:"max_size"`
	RedisURL    string `yaml:"redis_url"`
	RedisPrefix string `yaml:"redis_prefix"`
}

// ONNXConfig holds settings for the local ONNX embedder.
type ONNXConfig struct {
	ModelPath string `yaml:"model_path"`
	MaxTokens int    `yaml:"max_tokens"`
}

// SearchConfig holds query defaults.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// HealthConfig holds health probe settings.
type HealthConfig struct {
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// TelemetryConfig points at an optional Langfuse-compatible tracing backend.
type TelemetryConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Host         string        `yaml:"host"`
	PublicKeyEnv string        `yaml:"public_key_env"`
	SecretKeyEnv string        `yaml:"secret_key_env"`
	Timeout      time.Duration `yaml:"timeout"`
}

// APIKey resolves the provider key from the environment.
func (e *EmbeddingConfig) APIKey() string {
	if e.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(e.APIKeyEnv)
}

// Keys resolves the telemetry key pair from the environment.
func (t *TelemetryConfig) Keys() (public, secret string) {
	if t.PublicKeyEnv != "" {
		public = os.Getenv(t.PublicKeyEnv)
	}
	if t.SecretKeyEnv != "" {
		secret = os.Getenv(t.SecretKeyEnv)
	}
	return public, secret
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Embedding.ONNX.ModelPath != "" {
		cfg.Embedding.ONNX.ModelPath = expandPath(cfg.Embedding.ONNX.ModelPath, configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
