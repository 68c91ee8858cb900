// Package config loads application configuration from file and environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Reranker  RerankerConfig  `mapstructure:"reranker"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Opinions  OpinionsConfig  `mapstructure:"opinions"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text, json
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// DatabaseConfig holds store backend configuration
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // memory, badger, neo4j
	URI      string `mapstructure:"uri"`    // badger path or neo4j bolt uri
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// EmbeddingConfig holds embedding client configuration
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig holds chat model configuration
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// RerankerConfig selects the cross-encoder backend
type RerankerConfig struct {
	Provider string `mapstructure:"provider"` // local, openai
}

// RetrievalConfig holds the tunables of the retrieval core
type RetrievalConfig struct {
	GateCapacity      int           `mapstructure:"gate_capacity"`
	DefaultBudget     int           `mapstructure:"default_budget"`
	DefaultTopK       int           `mapstructure:"default_top_k"`
	EntityThreshold   float64       `mapstructure:"entity_threshold"`
	SemanticThreshold float64       `mapstructure:"semantic_threshold"`
	TemporalWindow    time.Duration `mapstructure:"temporal_window"`
	MMRLambda         float64       `mapstructure:"mmr_lambda"`
	BM25K1            float64       `mapstructure:"bm25_k1"`
	BM25B             float64       `mapstructure:"bm25_b"`
}

// OpinionsConfig holds the background opinion-formation pool configuration
type OpinionsConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

// TelemetryConfig holds telemetry configuration
type TelemetryConfig struct {
	ParquetPath string `mapstructure:"parquet_path"`
}

// Load loads configuration from viper's bound sources and the environment.
func Load() (*Config, error) {
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	overrideWithEnv(config)
	return config, nil
}

func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")

	viper.SetDefault("database.driver", "memory")
	viper.SetDefault("database.uri", "./memora_db")

	viper.SetDefault("embedding.provider", "openai")
	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.dimensions", 1536)

	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.max_tokens", 1024)

	viper.SetDefault("reranker.provider", "local")

	viper.SetDefault("retrieval.gate_capacity", 32)
	viper.SetDefault("retrieval.default_budget", 50)
	viper.SetDefault("retrieval.default_top_k", 10)
	viper.SetDefault("retrieval.entity_threshold", 0.6)
	viper.SetDefault("retrieval.semantic_threshold", 0.7)
	viper.SetDefault("retrieval.temporal_window", "72h")
	viper.SetDefault("retrieval.mmr_lambda", 0.5)
	viper.SetDefault("retrieval.bm25_k1", 1.2)
	viper.SetDefault("retrieval.bm25_b", 0.75)

	viper.SetDefault("opinions.workers", 4)
	viper.SetDefault("opinions.queue_size", 64)

	home, err := os.UserHomeDir()
	if err == nil {
		viper.SetDefault("telemetry.parquet_path", fmt.Sprintf("%s/.memora/telemetry", home))
	}
}

func overrideWithEnv(config *Config) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		if config.Embedding.APIKey == "" {
			config.Embedding.APIKey = apiKey
		}
		if config.LLM.APIKey == "" {
			config.LLM.APIKey = apiKey
		}
	}
	if uri := os.Getenv("MEMORA_DATABASE_URI"); uri != "" {
		config.Database.URI = uri
	}
	if pw := os.Getenv("MEMORA_DATABASE_PASSWORD"); pw != "" {
		config.Database.Password = pw
	}
}
