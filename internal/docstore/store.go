// Package docstore is the persistent document store used for pending challenges,
// rate-limit records, and the SMS whitelist. Documents are JSON objects grouped
// into collections and addressed by id.
package docstore

import (
	"context"
	"time"
)

// Document is a decoded JSON object. Readers must tolerate missing and legacy keys.
type Document map[string]any

// KV is the per-key subset of the store: get, set, delete by (collection, id).
type KV interface {
	// Get returns the document, or nil if not found. It returns an error only for backend failures.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Set replaces the document at (collection, id).
	Set(ctx context.Context, collection, id string, doc Document) error
	// Delete removes the document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
}

// Store adds an indexed equality lookup on top of KV.
type Store interface {
	KV
	// FindOne returns the id and document of one match for data[field] == value, or ("", nil, nil) when none match.
	FindOne(ctx context.Context, collection, field, value string) (string, Document, error)
}

// String returns doc[key] as a string, or "" if missing or not a string.
func (d Document) String(key string) string {
	if d == nil {
		return ""
	}
	s, _ := d[key].(string)
	return s
}

// First returns the first present, non-nil value among keys. Used for legacy field names.
func (d Document) First(keys ...string) (any, bool) {
	if d == nil {
		return nil, false
	}
	for _, k := range keys {
		if v, ok := d[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// WithTimeout bounds every call on s by d. A zero or negative d returns s unchanged.
func WithTimeout(s Store, d time.Duration) Store {
	if s == nil || d <= 0 {
		return s
	}
	return &timeoutStore{kv: timeoutKV{next: s, d: d}, find: s}
}

// KVWithTimeout bounds every call on kv by d. A zero or negative d returns kv unchanged.
func KVWithTimeout(kv KV, d time.Duration) KV {
	if kv == nil || d <= 0 {
		return kv
	}
	return timeoutKV{next: kv, d: d}
}

type timeoutKV struct {
	next KV
	d    time.Duration
}

func (t timeoutKV) Get(ctx context.Context, collection, id string) (Document, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.Get(ctx, collection, id)
}

func (t timeoutKV) Set(ctx context.Context, collection, id string, doc Document) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.Set(ctx, collection, id, doc)
}

func (t timeoutKV) Delete(ctx context.Context, collection, id string) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.Delete(ctx, collection, id)
}

type timeoutStore struct {
	kv   timeoutKV
	find Store
}

func (t *timeoutStore) Get(ctx context.Context, collection, id string) (Document, error) {
	return t.kv.Get(ctx, collection, id)
}

func (t *timeoutStore) Set(ctx context.Context, collection, id string, doc Document) error {
	return t.kv.Set(ctx, collection, id, doc)
}

func (t *timeoutStore) Delete(ctx context.Context, collection, id string) error {
	return t.kv.Delete(ctx, collection, id)
}

func (t *timeoutStore) FindOne(ctx context.Context, collection, field, value string) (string, Document, error) {
	ctx, cancel := context.WithTimeout(ctx, t.kv.d)
	defer cancel()
	return t.find.FindOne(ctx, collection, field, value)
}
