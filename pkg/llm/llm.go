// Package llm provides the chat-completion client used for opinion formation
// and answer synthesis, with retry and circuit-breaking wrappers.
package llm

import (
	"context"
	"fmt"
)

// Provider selects a chat backend.
type Provider string

const (
	// ProviderOpenAI talks to the OpenAI chat completions API, or any
	// compatible endpoint via BaseURL.
	ProviderOpenAI Provider = "openai"
)

// Message is one turn of a chat exchange.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Roles accepted by the chat API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Client is the chat contract the rest of the system depends on.
// ChatStructured asks the model for JSON and decodes it into out, repairing
// slightly malformed output before giving up.
type Client interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	ChatStructured(ctx context.Context, messages []Message, out any) error
	Close() error
}

// Config holds client construction parameters.
type Config struct {
	Provider    Provider
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

// NewClient builds a bare client for the configured provider.
func NewClient(cfg Config) (Client, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

// NewResilientClient builds the configured client wrapped with retry and a
// circuit breaker, in that order: the breaker sees each attempt the retrier
// makes, so a persistently failing backend trips it quickly.
func NewResilientClient(cfg Config, retry *RetryConfig) (Client, error) {
	base, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewRetryClient(NewBreakerClient(base, string(cfg.Provider)), retry), nil
}
