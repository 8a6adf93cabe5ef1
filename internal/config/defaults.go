package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 90 * time.Second
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 120 * time.Second
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "sqlite"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kotae/data/knowledge.db"
	}
	applyEmbeddingDefaults(&cfg.Embedding)
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 5
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 50
	}
	if cfg.Health.ProbeTimeout == 0 {
		cfg.Health.ProbeTimeout = 5 * time.Second
	}
	if cfg.Telemetry.PublicKeyEnv == "" {
		cfg.Telemetry.PublicKeyEnv = "LANGFUSE_PUBLIC_KEY"
	}
	if cfg.Telemetry.SecretKeyEnv == "" {
		cfg.Telemetry.SecretKeyEnv = "LANGFUSE_SECRET_KEY"
	}
	if cfg.Telemetry.Host == "" {
		cfg.Telemetry.Host = "https://cloud.langfuse.com"
	}
	if cfg.Telemetry.Timeout == 0 {
		cfg.Telemetry.Timeout = 3 * time.Second
	}
}

func applyEmbeddingDefaults(e *EmbeddingConfig) {
	if e.Provider == "" {
		e.Provider = "openai"
	}
	if e.Model == "" {
		switch e.Provider {
		case "gemini":
			e.Model = "text-embedding-004"
		case "ollama":
			e.Model = "nomic-embed-text"
		case "onnx":
			e.Model = "all-MiniLM-L6-v2"
		default:
			e.Model = "text-embedding-3-small"
		}
	}
	if e.APIKeyEnv == "" {
		switch e.Provider {
		case "openai":
			e.APIKeyEnv = "OPENAI_API_KEY"
		case "gemini":
			e.APIKeyEnv = "GEMINI_API_KEY"
		}
	}
	if e.BaseURL == "" && e.Provider == "ollama" {
		e.BaseURL = "http://localhost:11434"
	}
	if e.Dimensions == 0 && (e.Provider == "onnx" || e.Provider == "hash") {
		e.Dimensions = 384
	}
	if e.BatchSize == 0 {
		e.BatchSize = 100
	}
	if e.MaxInputTokens == 0 {
		e.MaxInputTokens = 8191
	}
	if e.RequestTimeout == 0 {
		e.RequestTimeout = 30 * time.Second
	}
	if e.InitTimeout == 0 {
		e.InitTimeout = 60 * time.Second
	}
	if e.Retry.MaxAttempts == 0 {
		e.Retry.MaxAttempts = 3
	}
	if e.Retry.InitialBackoff == 0 {
		e.Retry.InitialBackoff = 4 * time.Second
	}
	if e.Retry.MaxBackoff == 0 {
		e.Retry.MaxBackoff = 10 * time.Second
	}
	if e.Cache.Backend == "" {
		e.Cache.Backend = "fifo"
	}
	if e.Cache.MaxSize == 0 {
		e.Cache.MaxSize = 2000
	}
	if e.Cache.RedisPrefix == "" {
		e.Cache.RedisPrefix = "kotae:emb:"
	}
	if e.ONNX.MaxTokens == 0 {
		e.ONNX.MaxTokens = 256
	}
}
