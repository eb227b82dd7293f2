package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresStore keeps documents in the documents table as JSONB.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore returns a document store that uses the given db for persistence.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const (
	getDocumentSQL = `SELECT data FROM documents WHERE collection = $1 AND id = $2`
	setDocumentSQL = `INSERT INTO documents (collection, id, data, updated_at)
VALUES ($1, $2, $3::jsonb, now())
ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
	deleteDocumentSQL = `DELETE FROM documents WHERE collection = $1 AND id = $2`
	findDocumentSQL   = `SELECT id, data FROM documents WHERE collection = $1 AND data ->> $2 = $3 ORDER BY id LIMIT 1`
)

// Get returns the document, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, getDocumentSQL, collection, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("docstore: get %s/%s: %w", collection, id, err)
	}
	return decode(raw)
}

// Set upserts the document.
func (s *PostgresStore) Set(ctx context.Context, collection, id string, doc Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("docstore: encode %s/%s: %w", collection, id, err)
	}
	if _, err := s.db.ExecContext(ctx, setDocumentSQL, collection, id, string(raw)); err != nil {
		return fmt.Errorf("docstore: set %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete removes the document by (collection, id).
func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.ExecContext(ctx, deleteDocumentSQL, collection, id); err != nil {
		return fmt.Errorf("docstore: delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// FindOne returns one document whose top-level field equals value.
func (s *PostgresStore) FindOne(ctx context.Context, collection, field, value string) (string, Document, error) {
	var (
		id  string
		raw []byte
	)
	err := s.db.QueryRowContext(ctx, findDocumentSQL, collection, field, value).Scan(&id, &raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil, nil
		}
		return "", nil, fmt.Errorf("docstore: find %s.%s: %w", collection, field, err)
	}
	doc, err := decode(raw)
	if err != nil {
		return "", nil, err
	}
	return id, doc, nil
}

var _ Store = (*PostgresStore)(nil)
