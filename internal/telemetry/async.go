package telemetry

import (
	"context"
	"log"
	"sync"
	"time"

	"print-relay/internal/audit"
	"print-relay/internal/audit/domain"
)

// emitTimeout is the max time allowed for a single async push. Used by AsyncEmitter and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait for in-flight pushes before shutting down telemetry providers.
// Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// AsyncEmitter pushes entries to a Sink in the background so history writes are not slowed by the sink.
type AsyncEmitter struct {
	sink    Sink
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewAsyncEmitter returns an emitter over sink. A nil sink yields a nil emitter.
func NewAsyncEmitter(sink Sink) *AsyncEmitter {
	if sink == nil {
		return nil
	}
	return &AsyncEmitter{sink: sink, timeout: emitTimeout}
}

// EmitEntry starts the push and returns immediately.
// The push uses context.Background() so request cancellation does not abort it.
func (a *AsyncEmitter) EmitEntry(_ context.Context, e *domain.LogEntry) {
	if a == nil || e == nil {
		return
	}
	entry := *e
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.sink.Push(ctx, &entry); err != nil {
			log.Printf("telemetry: async push failed: %v", err)
		}
	}()
}

// Wait blocks until in-flight pushes finish or ctx ends.
func (a *AsyncEmitter) Wait(ctx context.Context) error {
	if a == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ audit.EntryEmitter = (*AsyncEmitter)(nil)
