// Package challenge implements the SMS password challenge: an unrecognized
// sender's first message is parked in a per-sender pending slot until the
// sender replies with the shared secret.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"print-relay/internal/docstore"
	"print-relay/internal/platform/timeutil"
)

// Collection holds at most one pending message per sender.
const Collection = "sms_pending"

// Pending document fields. FieldLegacyTimestamp is accepted on read only.
const (
	FieldMessage         = "message"
	FieldCreatedAt       = "created_at"
	FieldLegacyTimestamp = "timestamp"
)

// Action tells the caller what to do after Handle.
type Action int

const (
	// ActionPrompt: the text was stored as pending; ask the sender for the password.
	ActionPrompt Action = iota
	// ActionRelease: the password matched; relay Outcome.Message.
	ActionRelease
	// ActionDeny: the password did not match; Outcome.Message was discarded.
	ActionDeny
)

func (a Action) String() string {
	switch a {
	case ActionPrompt:
		return "prompt"
	case ActionRelease:
		return "release"
	case ActionDeny:
		return "deny"
	default:
		return "unknown"
	}
}

// Outcome is the result of one inbound text.
type Outcome struct {
	Action Action
	// Message is the pending message for ActionRelease and ActionDeny, the stored text for ActionPrompt.
	Message string
}

// Pending is a stored, unconfirmed message.
type Pending struct {
	Message   string
	CreatedAt time.Time
}

// SecretMatcher reports whether text is the shared secret.
type SecretMatcher func(text string) bool

// Machine drives the per-sender challenge. Concurrent texts from one sender race on the slot; last write wins.
type Machine struct {
	store docstore.KV
	match SecretMatcher
	ttl   time.Duration
	nowF  func() time.Time
}

// NewMachine returns a challenge machine over store. A ttl of 0 keeps pending messages until answered.
func NewMachine(store docstore.KV, match SecretMatcher, ttl time.Duration) (*Machine, error) {
	if store == nil {
		return nil, errors.New("challenge: store is required")
	}
	if match == nil {
		return nil, errors.New("challenge: secret matcher is required")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Machine{store: store, match: match, ttl: ttl, nowF: time.Now}, nil
}

// Get returns sender's live pending message, or nil. Expired records read as nil.
func (m *Machine) Get(ctx context.Context, sender string) (*Pending, error) {
	doc, err := m.store.Get(ctx, Collection, sender)
	if err != nil {
		return nil, fmt.Errorf("challenge: load %s: %w", sender, err)
	}
	if doc == nil {
		return nil, nil
	}
	p := &Pending{Message: doc.String(FieldMessage)}
	if v, ok := doc.First(FieldCreatedAt, FieldLegacyTimestamp); ok {
		p.CreatedAt, _ = timeutil.Normalize(v)
	}
	if m.expired(p) {
		return nil, nil
	}
	return p, nil
}

// Handle advances sender's challenge with text. admit is called only when text would become
// a new pending message; if it returns false nothing is stored and the error is ErrNotAdmitted.
func (m *Machine) Handle(ctx context.Context, sender, text string, admit func(message string) bool) (Outcome, error) {
	pending, err := m.Get(ctx, sender)
	if err != nil {
		return Outcome{}, err
	}

	if pending == nil {
		if admit != nil && !admit(text) {
			return Outcome{}, ErrNotAdmitted
		}
		doc := docstore.Document{
			FieldMessage:   text,
			FieldCreatedAt: timeutil.Format(m.nowF()),
		}
		if err := m.store.Set(ctx, Collection, sender, doc); err != nil {
			return Outcome{}, fmt.Errorf("challenge: store %s: %w", sender, err)
		}
		return Outcome{Action: ActionPrompt, Message: text}, nil
	}

	// The slot is consumed whether or not the secret matches.
	out := Outcome{Action: ActionDeny, Message: pending.Message}
	if m.match(text) {
		out.Action = ActionRelease
	}
	if err := m.store.Delete(ctx, Collection, sender); err != nil {
		log.Printf("challenge: clear %s: %v", sender, err)
	}
	return out, nil
}

// ErrNotAdmitted is returned by Handle when admit rejected a new message.
var ErrNotAdmitted = errors.New("challenge: message not admitted")

func (m *Machine) expired(p *Pending) bool {
	if m.ttl <= 0 || p.CreatedAt.IsZero() {
		return false
	}
	return m.nowF().Sub(p.CreatedAt) >= m.ttl
}
