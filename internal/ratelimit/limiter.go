// Package ratelimit implements the per-principal sliding-window limiter used by
// the chat channel. Records live in the document store so limits survive restarts
// and are shared between replicas.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"print-relay/internal/docstore"
	"print-relay/internal/platform/timeutil"
)

// Collection holds one record per principal.
const Collection = "slack_rate_limits"

// Record fields.
const (
	FieldTimestamps   = "timestamps"
	FieldBlockedUntil = "blocked_until"
)

// UnavailableHint is returned when the record store fails; the attempt is denied.
const UnavailableHint = "⚠️ Printing is temporarily unavailable. Please try again later."

// Decision is the outcome of one Check.
type Decision struct {
	Allowed bool
	// RetryHint is a user-facing explanation for a denial.
	RetryHint string
	// BlockedUntil is set while the principal is blocked.
	BlockedUntil time.Time
	// NewlyBlocked is true only for the attempt that set the block.
	NewlyBlocked bool
}

// Limiter allows at most limit attempts per window for each principal.
type Limiter struct {
	store  docstore.KV
	limit  int
	window time.Duration
	nowF   func() time.Time

	locks *keyedMutex

	denials metric.Int64Counter
}

// NewLimiter returns a limiter persisting records in store.
func NewLimiter(store docstore.KV, limit int, window time.Duration) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("ratelimit: store is required")
	}
	if limit < 1 {
		return nil, errors.New("ratelimit: limit must be positive")
	}
	if window <= 0 {
		return nil, errors.New("ratelimit: window must be positive")
	}
	denials, err := otel.Meter("print-relay/ratelimit").Int64Counter("ratelimit.denials",
		metric.WithDescription("Rate limit denials by reason."))
	if err != nil {
		return nil, err
	}
	return &Limiter{
		store:   store,
		limit:   limit,
		window:  window,
		nowF:    time.Now,
		locks:   newKeyedMutex(),
		denials: denials,
	}, nil
}

// Limit returns the configured attempt count.
func (l *Limiter) Limit() int { return l.limit }

// Window returns the configured window.
func (l *Limiter) Window() time.Duration { return l.window }

// Check records an attempt by principal and decides whether it may proceed.
// A store failure denies the attempt.
func (l *Limiter) Check(ctx context.Context, principal string) (Decision, error) {
	unlock := l.locks.Lock(principal)
	defer unlock()

	now := l.nowF().UTC()
	doc, err := l.store.Get(ctx, Collection, principal)
	if err != nil {
		return l.unavailable(ctx, fmt.Errorf("ratelimit: load %s: %w", principal, err))
	}
	timestamps, blockedUntil := decodeRecord(doc)

	if !blockedUntil.IsZero() && now.Before(blockedUntil) {
		l.deny(ctx, "blocked")
		return Decision{
			RetryHint:    blockedHint(blockedUntil.Sub(now)),
			BlockedUntil: blockedUntil,
		}, nil
	}

	cutoff := now.Add(-l.window)
	recent := timestamps[:0]
	for _, t := range timestamps {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.limit {
		until := now.Add(l.window)
		if err := l.store.Set(ctx, Collection, principal, encodeRecord(recent, until)); err != nil {
			return l.unavailable(ctx, fmt.Errorf("ratelimit: save %s: %w", principal, err))
		}
		l.deny(ctx, "limit")
		return Decision{
			RetryHint:    exceededHint(l.limit, l.window),
			BlockedUntil: until,
			NewlyBlocked: true,
		}, nil
	}

	recent = append(recent, now)
	if err := l.store.Set(ctx, Collection, principal, encodeRecord(recent, time.Time{})); err != nil {
		return l.unavailable(ctx, fmt.Errorf("ratelimit: save %s: %w", principal, err))
	}
	return Decision{Allowed: true}, nil
}

func (l *Limiter) unavailable(ctx context.Context, err error) (Decision, error) {
	log.Printf("%v", err)
	l.deny(ctx, "store_error")
	return Decision{RetryHint: UnavailableHint}, err
}

func (l *Limiter) deny(ctx context.Context, reason string) {
	l.denials.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// decodeRecord reads a stored record. Absent or malformed fields read as empty.
func decodeRecord(doc docstore.Document) ([]time.Time, time.Time) {
	if doc == nil {
		return nil, time.Time{}
	}
	timestamps := timeutil.NormalizeList(doc[FieldTimestamps])
	blockedUntil, _ := timeutil.Normalize(doc[FieldBlockedUntil])
	return timestamps, blockedUntil
}

func encodeRecord(timestamps []time.Time, blockedUntil time.Time) docstore.Document {
	ts := make([]any, 0, len(timestamps))
	for _, t := range timestamps {
		ts = append(ts, timeutil.Format(t))
	}
	var blocked any
	if !blockedUntil.IsZero() {
		blocked = timeutil.Format(blockedUntil)
	}
	return docstore.Document{FieldTimestamps: ts, FieldBlockedUntil: blocked}
}

func blockedHint(remaining time.Duration) string {
	return fmt.Sprintf("⛔ You are temporarily blocked from printing. Try again in %s.", humanize(remaining))
}

func exceededHint(limit int, window time.Duration) string {
	return fmt.Sprintf("⛔ Rate limit exceeded (%d messages per %s). You are blocked for %s.",
		limit, humanize(window), humanize(window))
}

// humanize rounds d up to whole seconds, or whole minutes past one minute.
func humanize(d time.Duration) string {
	if d <= 0 {
		return "a moment"
	}
	if d < time.Minute {
		secs := int((d + time.Second - 1) / time.Second)
		if secs == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", secs)
	}
	mins := int((d + time.Minute - 1) / time.Minute)
	if mins == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", mins)
}

// keyedMutex serializes work per key. Entries are dropped when no holder or waiter remains.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

// Lock acquires the lock for key and returns its release func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
