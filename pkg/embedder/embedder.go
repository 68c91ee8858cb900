// Package embedder produces the vector embeddings behind semantic links and
// semantic retrieval.
package embedder

import (
	"context"
	"fmt"
)

// Provider selects an embedding backend.
type Provider string

const (
	// ProviderOpenAI uses the OpenAI embeddings API, or any compatible
	// endpoint via BaseURL.
	ProviderOpenAI Provider = "openai"
)

// Client embeds text into fixed-dimensionality vectors. Dimensions reports
// the vector length every call returns; stores reject anything else.
type Client interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Close() error
}

// Config holds client construction parameters.
type Config struct {
	Provider   Provider
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// NewClient builds a client for the configured provider.
func NewClient(cfg Config) (Client, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported embedder provider: %s", cfg.Provider)
	}
}

// NewResilientClient builds the configured client wrapped with retry and a
// circuit breaker.
func NewResilientClient(cfg Config) (Client, error) {
	base, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewResilient(base, string(cfg.Provider)), nil
}
