package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store. Documents are kept JSON-encoded so reads
// see the same shapes a networked store would return (times become strings).
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewMemoryStore returns an empty in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string][]byte)}
}

// Get returns the document at (collection, id), or nil if absent.
func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	raw, ok := s.data[collection][id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return decode(raw)
}

// Set stores doc at (collection, id).
func (s *MemoryStore) Set(ctx context.Context, collection, id string, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("docstore: encode %s/%s: %w", collection, id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data[collection]
	if !ok {
		c = make(map[string][]byte)
		s.data[collection] = c
	}
	c[id] = raw
	return nil
}

// Delete removes (collection, id) if present.
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[collection], id)
	return nil
}

// FindOne scans the collection in id order and returns the first document whose field equals value.
func (s *MemoryStore) FindOne(ctx context.Context, collection, field, value string) (string, Document, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.data[collection]
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		doc, err := decode(c[id])
		if err != nil {
			return "", nil, err
		}
		if v, ok := doc[field].(string); ok && v == value {
			return id, doc, nil
		}
	}
	return "", nil, nil
}

// Len returns the number of documents in collection.
func (s *MemoryStore) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[collection])
}

func decode(raw []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("docstore: decode: %w", err)
	}
	return doc, nil
}

var _ Store = (*MemoryStore)(nil)
