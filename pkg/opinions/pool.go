// Package opinions forms opinion memories in the background after think
// operations. Formation is fire-and-forget: it never blocks or fails the
// response path.
package opinions

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Pool defaults.
const (
	DefaultWorkers   = 4
	DefaultQueueSize = 64
	taskTimeout      = 60 * time.Second
)

// Task is one unit of detached background work.
type Task func(ctx context.Context)

// Pool runs tasks on a fixed set of workers over a bounded queue. A full
// queue drops the task rather than blocking the submitter; dropped and
// panicked tasks are logged, never propagated.
type Pool struct {
	queue  chan Task
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewPool starts a pool with the given worker count and queue size,
// defaulting non-positive values.
func NewPool(workers, queueSize int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{queue: make(chan Task, queueSize), logger: logger}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit enqueues a task. It reports false when the pool is closed or the
// queue is full; the caller already returned its response and only needs the
// drop logged.
func (p *Pool) Submit(task Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.queue <- task:
		return true
	default:
		p.logger.Warn("background task dropped, queue full")
		return false
	}
}

// Close stops accepting tasks and waits for queued work to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.queue {
		p.run(task)
	}
}

// run isolates one task: its own timeout, its own panic barrier.
func (p *Pool) run(task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("background task panicked", "panic", r)
		}
	}()
	task(ctx)
}
