package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"print-relay/internal/audit"
	"print-relay/internal/audit/domain"
)

const loggerName = "print-relay/history"

// NewEntryEmitter returns an emitter that writes history entries as OTel log records via provider.
// A nil provider yields a no-op emitter.
func NewEntryEmitter(provider *sdklog.LoggerProvider) audit.EntryEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return NewEntryEmitterWithLogger(provider.Logger(loggerName))
}

// RecordEmitter is the part of otellog.Logger the emitter uses.
type RecordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEntryEmitterWithLogger returns an emitter over an existing OTel logger.
func NewEntryEmitterWithLogger(logger RecordEmitter) audit.EntryEmitter {
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) EmitEntry(context.Context, *domain.LogEntry) {}

type otelEmitter struct {
	logger RecordEmitter
}

// EmitEntry converts e to a log record. Failed deliveries are emitted at WARN.
func (e *otelEmitter) EmitEntry(ctx context.Context, entry *domain.LogEntry) {
	if entry == nil {
		return
	}
	rec := otellog.Record{}
	ts := entry.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetBody(otellog.StringValue(entry.Message))
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetSeverityText("INFO")
	kind := audit.KindOf(entry.Status)
	if kind != audit.KindNone {
		rec.SetSeverity(otellog.SeverityWarn)
		rec.SetSeverityText("WARN")
	}
	rec.AddAttributes(
		otellog.String("entry_id", entry.ID),
		otellog.String("source", entry.Source),
		otellog.String("status", entry.Status),
	)
	if kind != audit.KindNone {
		rec.AddAttributes(otellog.String("failure_kind", kind))
	}
	if code, ok := audit.RelayCode(entry.Status); ok {
		rec.AddAttributes(otellog.Int("relay_status_code", code))
	}
	e.logger.Emit(ctx, rec)
}
