package crossencoder

import (
	"context"
	"fmt"
	"strings"

	"github.com/memora-ai/memora/pkg/llm"
)

const scoreSystemPrompt = `You score how relevant each numbered document is to the query.
Return a JSON object of the form {"scores": [..]} with one number per document,
in document order, each between -10 (irrelevant) and 10 (directly answers the query).`

// OpenAIClient scores pairs by asking a chat model for per-document
// relevance numbers in a single call.
type OpenAIClient struct {
	llm llm.Client
}

// NewOpenAIClient creates a scorer over the given chat client.
func NewOpenAIClient(client llm.Client) *OpenAIClient {
	return &OpenAIClient{llm: client}
}

// Score implements Client.
func (c *OpenAIClient) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nDocuments:\n", query)
	for i, d := range docs {
		fmt.Fprintf(&b, "%d. %s\n", i+1, d)
	}

	var out struct {
		Scores []float64 `json:"scores"`
	}
	err := c.llm.ChatStructured(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: scoreSystemPrompt},
		{Role: llm.RoleUser, Content: b.String()},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("score documents: %w", err)
	}
	if len(out.Scores) != len(docs) {
		return nil, fmt.Errorf("score documents: got %d scores for %d documents", len(out.Scores), len(docs))
	}
	return out.Scores, nil
}

// Close implements Client.
func (c *OpenAIClient) Close() error { return c.llm.Close() }
