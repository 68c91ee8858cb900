package crossencoder

import (
	"context"
	"math"
	"strings"
)

// LocalClient scores pairs by cosine similarity of term-frequency vectors.
// It is deterministic and never fails, which makes it the scorer of choice
// for tests and for installs without a model endpoint.
type LocalClient struct{}

// NewLocalClient creates the local scorer.
func NewLocalClient() *LocalClient {
	return &LocalClient{}
}

// Score implements Client. Scores fall in [0, 1].
func (c *LocalClient) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	qv := termFreq(query)
	out := make([]float64, len(docs))
	for i, d := range docs {
		out[i] = tfCosine(qv, termFreq(d))
	}
	return out, nil
}

// Close implements Client.
func (c *LocalClient) Close() error { return nil }

func termFreq(text string) map[string]float64 {
	tf := make(map[string]float64)
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	for _, f := range fields {
		tf[f]++
	}
	return tf
}

func tfCosine(a, b map[string]float64) float64 {
	var dot, na, nb float64
	for t, x := range a {
		na += x * x
		if y, ok := b[t]; ok {
			dot += x * y
		}
	}
	for _, y := range b {
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
