// Package telemetry mirrors print history entries to external sinks.
package telemetry

import (
	"context"

	"print-relay/internal/audit"
	"print-relay/internal/audit/domain"
)

// Sink pushes one history entry to an external system (e.g. Loki). Errors are logged by the caller.
type Sink interface {
	Push(ctx context.Context, e *domain.LogEntry) error
}

type fanout []audit.EntryEmitter

func (f fanout) EmitEntry(ctx context.Context, e *domain.LogEntry) {
	for _, em := range f {
		em.EmitEntry(ctx, e)
	}
}

// Fanout returns an emitter that forwards each entry to every non-nil emitter.
// Returns nil when none remain, so callers can pass the result straight to audit.NewLogger.
func Fanout(emitters ...audit.EntryEmitter) audit.EntryEmitter {
	var out fanout
	for _, em := range emitters {
		if em != nil {
			out = append(out, em)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}
