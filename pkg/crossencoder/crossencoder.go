// Package crossencoder scores (query, document) pairs for reranking.
//
// Two implementations are provided: an LLM-backed scorer for quality and a
// local term-overlap scorer that needs no network and gives deterministic
// results for tests and degraded operation.
package crossencoder

import (
	"context"
	"fmt"

	"github.com/memora-ai/memora/pkg/llm"
)

// Provider selects a scoring backend.
type Provider string

const (
	// ProviderOpenAI scores pairs through a chat model.
	ProviderOpenAI Provider = "openai"
	// ProviderLocal scores pairs with local term-frequency similarity.
	ProviderLocal Provider = "local"
)

// Client returns one raw relevance score per document, higher is more
// relevant. Scores are unnormalized; callers squash them as needed.
type Client interface {
	Score(ctx context.Context, query string, docs []string) ([]float64, error)
	Close() error
}

// Config holds client construction parameters.
type Config struct {
	Provider Provider
	// LLM is required for ProviderOpenAI.
	LLM llm.Client
}

// NewClient builds a scorer for the configured provider.
func NewClient(cfg Config) (Client, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.LLM == nil {
			return nil, fmt.Errorf("llm client is required for openai cross-encoder")
		}
		return NewOpenAIClient(cfg.LLM), nil
	case ProviderLocal, "":
		return NewLocalClient(), nil
	default:
		return nil, fmt.Errorf("unsupported cross-encoder provider: %s", cfg.Provider)
	}
}
