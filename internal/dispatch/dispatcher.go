package dispatch

import (
	"context"
	"errors"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"print-relay/internal/audit"
	"print-relay/internal/relay"
)

// ackTimeout bounds a single channel acknowledgment (SMS send, Slack post).
const ackTimeout = 15 * time.Second

// Outcome classifies a finished relay attempt. All outcomes are terminal; there is no retry.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeRejected Outcome = "rejected"
	OutcomeConnFail Outcome = "conn_fail"
)

// Result describes one relay attempt.
type Result struct {
	Outcome Outcome
	// Status is the history status written for the attempt (SUCCESS, HA_ERR_<code>, CONN_FAIL).
	Status string
	// StatusCode is the relay's HTTP status for OutcomeRejected.
	StatusCode int
	// Err is the transport error for OutcomeConnFail.
	Err error
}

// AckFunc sends the channel-specific follow-up for a finished job. It may be nil.
type AckFunc func(ctx context.Context, res Result) error

// Job is one accepted message. It lives only until the relay attempt and its ack complete.
type Job struct {
	Message string
	Source  string
	Ack     AckFunc
}

// Dispatcher relays jobs on a Pool and records each outcome in the history.
type Dispatcher struct {
	pool   *Pool
	relay  relay.Poster
	audit  audit.AuditLogger
	jobs   metric.Int64Counter
	notify metric.Int64Counter
	tracer trace.Tracer
}

// NewDispatcher wires a pool, a relay client, and the history logger.
func NewDispatcher(pool *Pool, poster relay.Poster, auditLogger audit.AuditLogger) (*Dispatcher, error) {
	if pool == nil {
		return nil, errors.New("dispatch: pool is required")
	}
	if poster == nil {
		return nil, errors.New("dispatch: relay poster is required")
	}
	meter := otel.Meter("print-relay/dispatch")
	jobs, err := meter.Int64Counter("dispatch.jobs", metric.WithDescription("Relay attempts by outcome."))
	if err != nil {
		return nil, err
	}
	notify, err := meter.Int64Counter("dispatch.notifications", metric.WithDescription("Standalone channel replies by result."))
	if err != nil {
		return nil, err
	}
	return &Dispatcher{
		pool:   pool,
		relay:  poster,
		audit:  auditLogger,
		jobs:   jobs,
		notify: notify,
		tracer: otel.Tracer("print-relay/dispatch"),
	}, nil
}

// Submit enqueues job and returns without waiting for the relay call.
func (d *Dispatcher) Submit(ctx context.Context, job Job) error {
	return d.pool.Submit(ctx, func(taskCtx context.Context) {
		res := d.Relay(taskCtx, job.Message, job.Source)
		if job.Ack == nil {
			return
		}
		ackCtx, cancel := context.WithTimeout(taskCtx, ackTimeout)
		defer cancel()
		if err := job.Ack(ackCtx, res); err != nil {
			log.Printf("dispatch: ack for %s failed: %v", job.Source, err)
		}
	})
}

// Notify runs a standalone reply (e.g. an SMS prompt) on the pool. Errors are logged.
func (d *Dispatcher) Notify(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if fn == nil {
		return nil
	}
	return d.pool.Submit(ctx, func(taskCtx context.Context) {
		sendCtx, cancel := context.WithTimeout(taskCtx, ackTimeout)
		defer cancel()
		result := "ok"
		if err := fn(sendCtx); err != nil {
			result = "error"
			log.Printf("dispatch: %s failed: %v", name, err)
		}
		d.notify.Add(taskCtx, 1, metric.WithAttributes(attribute.String("result", result)))
	})
}

// Relay performs one relay call synchronously and logs the outcome.
// Channel handlers that must answer with the outcome (the web form) call it directly.
func (d *Dispatcher) Relay(ctx context.Context, message, source string) Result {
	ctx, span := d.tracer.Start(ctx, "relay.post", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	err := d.relay.Post(ctx, message)
	var res Result
	switch {
	case err == nil:
		res = Result{Outcome: OutcomeSuccess, Status: audit.StatusSuccess}
		d.log(ctx, source, res.Status, message)
	case isRejected(err):
		code, _ := relay.StatusCode(err)
		res = Result{Outcome: OutcomeRejected, Status: audit.RelayStatus(code), StatusCode: code, Err: err}
		d.log(ctx, source, res.Status, message)
	default:
		res = Result{Outcome: OutcomeConnFail, Status: audit.StatusConnFail, Err: err}
		d.log(ctx, source, res.Status, err.Error())
	}
	span.SetAttributes(attribute.String("relay.outcome", string(res.Outcome)))
	if res.Outcome != OutcomeSuccess {
		span.SetStatus(codes.Error, res.Status)
	}
	d.jobs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(res.Outcome))))
	return res
}

// Pool returns the underlying worker pool.
func (d *Dispatcher) Pool() *Pool {
	return d.pool
}

func (d *Dispatcher) log(ctx context.Context, source, status, message string) {
	if d.audit != nil {
		d.audit.Log(ctx, source, status, message)
	}
}

func isRejected(err error) bool {
	_, ok := relay.StatusCode(err)
	return ok
}
