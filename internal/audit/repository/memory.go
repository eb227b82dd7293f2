package repository

import (
	"context"
	"sort"
	"sync"

	"print-relay/internal/audit/domain"
)

// MemoryRepository keeps the print history in process. Used when no database is configured.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries []domain.LogEntry
}

// NewMemoryRepository returns an empty in-memory history.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(ctx context.Context, e *domain.LogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *e)
	return nil
}

func (r *MemoryRepository) List(ctx context.Context, limit int) ([]*domain.LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	sorted := make([]domain.LogEntry, len(r.entries))
	copy(sorted, r.entries)
	r.mu.RUnlock()

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	out := make([]*domain.LogEntry, len(sorted))
	for i := range sorted {
		out[i] = &sorted[i]
	}
	return out, nil
}

func (r *MemoryRepository) DeleteBatch(ctx context.Context, limit int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sort.SliceStable(r.entries, func(i, j int) bool {
		return r.entries[i].CreatedAt.Before(r.entries[j].CreatedAt)
	})
	n := limit
	if n <= 0 || n > len(r.entries) {
		n = len(r.entries)
	}
	r.entries = append([]domain.LogEntry(nil), r.entries[n:]...)
	return int64(n), nil
}

var _ Repository = (*MemoryRepository)(nil)
