// Package dispatch runs relay calls and channel acknowledgments on a bounded
// background worker pool so request handlers never wait on network I/O.
package dispatch

import (
	"context"
	"errors"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Default pool sizing.
const (
	DefaultWorkers   = 10
	DefaultQueueSize = 100
)

// ErrPoolClosed is returned by Submit after Shutdown has started.
var ErrPoolClosed = errors.New("dispatch: pool is shut down")

// Task is one unit of background work. The context is not tied to any inbound request.
type Task func(ctx context.Context)

// Pool is a fixed set of workers draining a bounded queue.
// When the queue is full, Submit blocks until a worker frees a slot; it never drops work.
type Pool struct {
	queue   chan Task
	workers int
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool starts workers goroutines over a queue of queueSize slots.
// workers < 1 uses DefaultWorkers; queueSize < 0 uses DefaultQueueSize (0 is an unbuffered hand-off).
func NewPool(workers, queueSize int) *Pool {
	if workers < 1 {
		workers = DefaultWorkers
	}
	if queueSize < 0 {
		queueSize = DefaultQueueSize
	}
	p := &Pool{
		queue:   make(chan Task, queueSize),
		workers: workers,
	}
	p.registerMetrics()
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Submit enqueues t. It blocks while the queue is full, returning ctx.Err() if ctx ends first,
// or ErrPoolClosed once Shutdown has begun.
func (p *Pool) Submit(ctx context.Context, t Task) error {
	if t == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.queue <- t:
		return nil
	default:
	}
	log.Printf("dispatch: queue full (%d), submitter waiting", cap(p.queue))
	select {
	case p.queue <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting work and waits for queued tasks to finish or ctx to end.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueDepth returns the number of tasks waiting for a worker.
func (p *Pool) QueueDepth() int {
	return len(p.queue)
}

// Workers returns the fixed worker count.
func (p *Pool) Workers() int {
	return p.workers
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.queue {
		p.run(t)
	}
}

func (p *Pool) run(t Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("dispatch: task panicked: %v", r)
		}
	}()
	t(context.Background())
}

func (p *Pool) registerMetrics() {
	meter := otel.Meter("print-relay/dispatch")
	_, err := meter.Int64ObservableGauge("dispatch.queue.depth",
		metric.WithDescription("Tasks waiting for a dispatch worker."),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(len(p.queue)))
			return nil
		}),
	)
	if err != nil {
		log.Printf("dispatch: register queue gauge: %v", err)
	}
	_, err = meter.Int64ObservableGauge("dispatch.workers",
		metric.WithDescription("Configured dispatch worker count."),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(p.workers))
			return nil
		}),
	)
	if err != nil {
		log.Printf("dispatch: register worker gauge: %v", err)
	}
}
