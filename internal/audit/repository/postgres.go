package repository

import (
	"context"
	"database/sql"

	"print-relay/internal/audit/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a print history repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const (
	createEntrySQL = `INSERT INTO print_history (id, created_at, source, status, message) VALUES ($1, $2, $3, $4, $5)`
	listEntriesSQL = `SELECT id, created_at, source, status, message FROM print_history ORDER BY created_at DESC, id DESC LIMIT $1`
	deleteBatchSQL = `DELETE FROM print_history WHERE id IN (SELECT id FROM print_history ORDER BY created_at ASC LIMIT $1)`
)

// Create persists the entry. The entry must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.LogEntry) error {
	_, err := r.db.ExecContext(ctx, createEntrySQL, e.ID, e.CreatedAt, e.Source, e.Status, e.Message)
	return err
}

// List returns up to limit entries, newest first.
// Returns (nil, error) only on database errors.
func (r *PostgresRepository) List(ctx context.Context, limit int) ([]*domain.LogEntry, error) {
	rows, err := r.db.QueryContext(ctx, listEntriesSQL, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.LogEntry, 0, limit)
	for rows.Next() {
		var e domain.LogEntry
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.Source, &e.Status, &e.Message); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteBatch removes up to limit of the oldest entries.
func (r *PostgresRepository) DeleteBatch(ctx context.Context, limit int) (int64, error) {
	res, err := r.db.ExecContext(ctx, deleteBatchSQL, limit)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ Repository = (*PostgresRepository)(nil)
