// Package config loads and validates engine configuration from YAML files
// and the environment. Every section has SetDefaults and Validate; missing
// provider keys downgrade capability (the provider is simply not registered)
// but never fail startup.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Vector    VectorConfig    `yaml:"vector"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	LLM       LLMConfig       `yaml:"llm"`
	Session   SessionConfig   `yaml:"session"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Golden    GoldenConfig    `yaml:"golden"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port int `yaml:"port"`

	// RequestTimeout bounds a single query request end to end.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DatabaseConfig configures the Postgres gateway.
type DatabaseConfig struct {
	// URL is the Postgres connection string (DATABASE_URL).
	URL string `yaml:"url"`

	MaxConns       int           `yaml:"max_conns"`
	MinConns       int           `yaml:"min_conns"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

// VectorConfig configures the Qdrant gateway.
type VectorConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	UseTLS bool   `yaml:"use_tls"`

	Timeout time.Duration `yaml:"timeout"`
}

// EmbedderConfig selects the embedding provider.
type EmbedderConfig struct {
	// Provider is "openai" or "local".
	Provider string `yaml:"provider"`

	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
}

// LLMConfig configures the fallback ladder.
type LLMConfig struct {
	GeminiAPIKey    string `yaml:"gemini_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`

	// FlashModel and FlashLiteModel are the first two ladder tiers.
	FlashModel     string `yaml:"flash_model"`
	FlashLiteModel string `yaml:"flash_lite_model"`

	// ExternalModel is the last tier (Anthropic chat API).
	ExternalModel string `yaml:"external_model"`

	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`

	// ToolHopLimit bounds the tool-use loop per request.
	ToolHopLimit int `yaml:"tool_hop_limit"`
}

// SessionConfig configures conversation session storage.
type SessionConfig struct {
	// RedisURL enables the Redis store; empty falls back to sqlite.
	RedisURL string `yaml:"redis_url"`

	// SQLitePath is the fallback store location.
	SQLitePath string `yaml:"sqlite_path"`

	TTL         time.Duration `yaml:"ttl"`
	MaxMessages int           `yaml:"max_messages"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	// Workers is the per-file worker pool size.
	Workers int `yaml:"workers"`

	// MaxChunksPerFile caps chunk explosion on reference files.
	MaxChunksPerFile int `yaml:"max_chunks_per_file"`

	// UpsertBatchSize bounds vector store upsert batches.
	UpsertBatchSize int `yaml:"upsert_batch_size"`

	// KGChunks is the number of leading chunks sent to KG extraction.
	KGChunks int `yaml:"kg_chunks"`

	// HydeQuestions is the number of hypothetical questions per chunk.
	HydeQuestions int `yaml:"hyde_questions"`

	// StrictQuality skips the embedding stage for documents scoring
	// below 0.3 and marks them needs_reextract.
	StrictQuality bool `yaml:"strict_quality"`

	// WatchDir, when set, is ingested continuously by `oracle watch`.
	WatchDir string `yaml:"watch_dir"`
}

// RetrievalConfig configures the retrieval engine.
type RetrievalConfig struct {
	DefaultLimit int  `yaml:"default_limit"`
	RerankEnable bool `yaml:"rerank_enable"`

	// RerankMultiplier: rerank input is limit*multiplier candidates.
	RerankMultiplier int `yaml:"rerank_multiplier"`
}

// GoldenConfig configures the golden answer cache.
type GoldenConfig struct {
	// SemanticThreshold is the cosine similarity floor for a semantic hit.
	SemanticThreshold float32 `yaml:"semantic_threshold"`

	// CachePath persists the canonical-query embedding snapshot.
	CachePath string `yaml:"cache_path"`
}

// MetricsConfig configures the Prometheus/OTel meter.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads a YAML config file, expands ${VAR} references and applies
// defaults. A missing path yields a default config built from the
// environment alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		var raw map[string]interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		expanded := ExpandEnvVarsInData(raw)

		out, err := yaml.Marshal(expanded)
		if err != nil {
			return nil, fmt.Errorf("failed to re-encode config: %w", err)
		}
		if err := yaml.Unmarshal(out, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv fills unset fields from well-known environment variables.
func (c *Config) applyEnv() {
	setIfEmpty := func(dst *string, env string) {
		if *dst == "" {
			*dst = os.Getenv(env)
		}
	}
	setIfEmpty(&c.Database.URL, "DATABASE_URL")
	setIfEmpty(&c.Vector.Host, "QDRANT_HOST")
	setIfEmpty(&c.Vector.APIKey, "QDRANT_API_KEY")
	setIfEmpty(&c.Embedder.APIKey, "OPENAI_API_KEY")
	setIfEmpty(&c.LLM.GeminiAPIKey, "GEMINI_API_KEY")
	setIfEmpty(&c.LLM.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setIfEmpty(&c.Session.RedisURL, "REDIS_URL")
}

// SetDefaults applies default values to all sections.
func (c *Config) SetDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 60 * time.Second
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = 1
	}
	if c.Database.AcquireTimeout == 0 {
		c.Database.AcquireTimeout = 5 * time.Second
	}
	if c.Vector.Host == "" {
		c.Vector.Host = "localhost"
	}
	if c.Vector.Port == 0 {
		c.Vector.Port = 6334
	}
	if c.Vector.Timeout == 0 {
		c.Vector.Timeout = 30 * time.Second
	}
	if c.Embedder.Provider == "" {
		if c.Embedder.APIKey != "" {
			c.Embedder.Provider = "openai"
		} else {
			c.Embedder.Provider = "local"
		}
	}
	if c.Embedder.BatchSize == 0 {
		c.Embedder.BatchSize = 100
	}
	if c.LLM.FlashModel == "" {
		c.LLM.FlashModel = "gemini-2.5-flash"
	}
	if c.LLM.FlashLiteModel == "" {
		c.LLM.FlashLiteModel = "gemini-2.5-flash-lite"
	}
	if c.LLM.ExternalModel == "" {
		c.LLM.ExternalModel = "claude-3-5-haiku-20241022"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 4096
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.7
	}
	if c.LLM.ToolHopLimit == 0 {
		c.LLM.ToolHopLimit = 5
	}
	if c.Session.SQLitePath == "" {
		c.Session.SQLitePath = ".oracle/sessions.db"
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = 24 * time.Hour
	}
	if c.Session.MaxMessages == 0 {
		c.Session.MaxMessages = 40
	}
	if c.Ingest.Workers == 0 {
		c.Ingest.Workers = 4
	}
	if c.Ingest.MaxChunksPerFile == 0 {
		c.Ingest.MaxChunksPerFile = 300
	}
	if c.Ingest.UpsertBatchSize == 0 {
		c.Ingest.UpsertBatchSize = 100
	}
	if c.Ingest.KGChunks == 0 {
		c.Ingest.KGChunks = 2
	}
	if c.Ingest.HydeQuestions == 0 {
		c.Ingest.HydeQuestions = 3
	}
	if c.Retrieval.DefaultLimit == 0 {
		c.Retrieval.DefaultLimit = 5
	}
	if c.Retrieval.RerankMultiplier == 0 {
		c.Retrieval.RerankMultiplier = 3
	}
	if c.Golden.SemanticThreshold == 0 {
		c.Golden.SemanticThreshold = 0.85
	}
	if c.Golden.CachePath == "" {
		c.Golden.CachePath = ".oracle/golden"
	}
}

// Validate rejects configurations that cannot possibly work.
func (c *Config) Validate() error {
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("database max_conns (%d) below min_conns (%d)",
			c.Database.MaxConns, c.Database.MinConns)
	}
	if c.Golden.SemanticThreshold < 0 || c.Golden.SemanticThreshold > 1 {
		return fmt.Errorf("golden semantic_threshold must be in [0,1], got %v",
			c.Golden.SemanticThreshold)
	}
	switch c.Embedder.Provider {
	case "openai", "local":
	default:
		return fmt.Errorf("unsupported embedder provider: %s", c.Embedder.Provider)
	}
	return nil
}
