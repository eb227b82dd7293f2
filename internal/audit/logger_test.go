package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"print-relay/internal/audit/domain"
)

// mockAuditRepo implements the history repository interface for tests.
type mockAuditRepo struct {
	entries   []*domain.LogEntry
	createErr error
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *domain.LogEntry) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) List(ctx context.Context, limit int) ([]*domain.LogEntry, error) {
	return m.entries, nil
}

func (m *mockAuditRepo) DeleteBatch(ctx context.Context, limit int) (int64, error) {
	return 0, nil
}

type recordingEmitter struct {
	entries []*domain.LogEntry
}

func (r *recordingEmitter) EmitEntry(ctx context.Context, e *domain.LogEntry) {
	r.entries = append(r.entries, e)
}

func TestLogger_Log_Success(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, nil)
	fixed := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	logger.nowF = func() time.Time { return fixed }

	logger.Log(context.Background(), "SMS: +15550001111", StatusSuccess, "Pizza")

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.Source != "SMS: +15550001111" {
		t.Errorf("source = %q, want %q", entry.Source, "SMS: +15550001111")
	}
	if entry.Status != StatusSuccess {
		t.Errorf("status = %q, want %q", entry.Status, StatusSuccess)
	}
	if entry.Message != "Pizza" {
		t.Errorf("message = %q, want %q", entry.Message, "Pizza")
	}
	if entry.ID == "" {
		t.Error("entry ID should be set")
	}
	if !entry.CreatedAt.Equal(fixed) {
		t.Errorf("created_at = %v, want %v", entry.CreatedAt, fixed)
	}
}

func TestLogger_Log_EmptySource(t *testing.T) {
	repo := &mockAuditRepo{}
	NewLogger(repo, nil).Log(context.Background(), "", StatusDenied, "x")
	if len(repo.entries) != 1 || repo.entries[0].Source != UnknownSource {
		t.Fatalf("entries = %+v, want one entry with source %q", repo.entries, UnknownSource)
	}
}

func TestLogger_Log_MirrorsToEmitter(t *testing.T) {
	repo := &mockAuditRepo{}
	emitter := &recordingEmitter{}
	NewLogger(repo, emitter).Log(context.Background(), "1.2.3.4", StatusConnFail, "dial tcp: refused")
	if len(emitter.entries) != 1 {
		t.Fatalf("emitter got %d entries, want 1", len(emitter.entries))
	}
	if emitter.entries[0] != repo.entries[0] {
		t.Error("emitter should receive the persisted entry")
	}
}

func TestLogger_Log_RepositoryError(t *testing.T) {
	repo := &mockAuditRepo{createErr: errors.New("database error")}
	emitter := &recordingEmitter{}
	// Best-effort: no panic, no error, and the emitter still sees the entry.
	NewLogger(repo, emitter).Log(context.Background(), "src", StatusSuccess, "msg")
	if len(emitter.entries) != 1 {
		t.Errorf("emitter got %d entries, want 1", len(emitter.entries))
	}
}

func TestLogger_Log_NilRepo(t *testing.T) {
	NewLogger(nil, nil).Log(context.Background(), "src", StatusSuccess, "msg")
	var nilLogger *Logger
	nilLogger.Log(context.Background(), "src", StatusSuccess, "msg")
}
