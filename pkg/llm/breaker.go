package llm

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerClient wraps a Client with a circuit breaker so a down model
// endpoint sheds load fast instead of queueing timeouts.
type BreakerClient struct {
	client Client
	cb     *gobreaker.CircuitBreaker
}

// NewBreakerClient wraps client with a breaker that trips after repeated
// failures and probes again after a cooldown.
func NewBreakerClient(client Client, name string) *BreakerClient {
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
	return &BreakerClient{client: client, cb: gobreaker.NewCircuitBreaker(st)}
}

// Chat implements Client.
func (c *BreakerClient) Chat(ctx context.Context, messages []Message) (string, error) {
	out, err := c.cb.Execute(func() (interface{}, error) {
		return c.client.Chat(ctx, messages)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// ChatStructured implements Client.
func (c *BreakerClient) ChatStructured(ctx context.Context, messages []Message, target any) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.client.ChatStructured(ctx, messages, target)
	})
	return err
}

// Close implements Client.
func (c *BreakerClient) Close() error { return c.client.Close() }
