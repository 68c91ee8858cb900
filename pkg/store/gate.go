package store

import "context"

// DefaultGateCapacity bounds concurrent in-flight store calls process-wide.
const DefaultGateCapacity = 32

// Gate is a counting semaphore guarding all store access. It is the system's
// backpressure mechanism: callers exceeding capacity block until a slot frees
// up, so fan-out stays bounded regardless of query volume.
type Gate struct {
	slots chan struct{}
}

// NewGate creates a gate with the given capacity. Non-positive capacities
// fall back to DefaultGateCapacity.
func NewGate(capacity int) *Gate {
	if capacity <= 0 {
		capacity = DefaultGateCapacity
	}
	return &Gate{slots: make(chan struct{}, capacity)}
}

// Acquire blocks until a slot is available or ctx is done. Acquisition blocks
// only the calling goroutine.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot acquired with Acquire. Must be called exactly once per
// successful Acquire, on completion or error.
func (g *Gate) Release() {
	<-g.slots
}

// Capacity returns the maximum number of concurrent holders.
func (g *Gate) Capacity() int { return cap(g.slots) }

// InFlight returns the number of currently held slots.
func (g *Gate) InFlight() int { return len(g.slots) }
