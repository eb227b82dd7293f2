package repository

import (
	"context"

	"print-relay/internal/audit/domain"
)

// ClearBatchSize is the maximum number of entries removed by one DeleteBatch call.
const ClearBatchSize = 500

// Repository defines persistence for the print history.
type Repository interface {
	Create(ctx context.Context, e *domain.LogEntry) error
	// List returns up to limit entries, newest first.
	List(ctx context.Context, limit int) ([]*domain.LogEntry, error)
	// DeleteBatch removes up to limit entries (oldest first) and returns how many were removed.
	DeleteBatch(ctx context.Context, limit int) (int64, error)
}
