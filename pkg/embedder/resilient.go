package embedder

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/memora-ai/memora/pkg/llm"
)

// Resilient wraps a Client with one bounded retry per call and a circuit
// breaker. Retrieval strategies tolerate an embedder outage by failing soft,
// so the policy here stays small: one retry, then let the breaker shed load.
type Resilient struct {
	client Client
	cb     *gobreaker.CircuitBreaker
	delay  time.Duration
}

// NewResilient wraps client.
func NewResilient(client Client, name string) *Resilient {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
	}
	return &Resilient{
		client: client,
		cb:     gobreaker.NewCircuitBreaker(st),
		delay:  500 * time.Millisecond,
	}
}

// Embed implements Client.
func (r *Resilient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := r.do(ctx, func() (any, error) {
		return r.client.Embed(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	return out.([][]float32), nil
}

// EmbedSingle implements Client.
func (r *Resilient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	out, err := r.do(ctx, func() (any, error) {
		return r.client.EmbedSingle(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return out.([]float32), nil
}

// Dimensions implements Client.
func (r *Resilient) Dimensions() int { return r.client.Dimensions() }

// Close implements Client.
func (r *Resilient) Close() error { return r.client.Close() }

func (r *Resilient) do(ctx context.Context, call func() (any, error)) (any, error) {
	out, err := r.cb.Execute(call)
	if err == nil {
		return out, nil
	}
	if !llm.IsRetryable(err) {
		return nil, err
	}
	select {
	case <-time.After(r.delay):
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
	}
	return r.cb.Execute(call)
}
