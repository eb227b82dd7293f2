package handler

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"print-relay/internal/audit/domain"
	auditrepo "print-relay/internal/audit/repository"
)

type failingRepo struct{}

func (failingRepo) Create(ctx context.Context, e *domain.LogEntry) error { return errors.New("down") }
func (failingRepo) List(ctx context.Context, limit int) ([]*domain.LogEntry, error) {
	return nil, errors.New("down")
}
func (failingRepo) DeleteBatch(ctx context.Context, limit int) (int64, error) {
	return 0, errors.New("down")
}

func seeded(t *testing.T, n int) *auditrepo.MemoryRepository {
	t.Helper()
	repo := auditrepo.NewMemoryRepository()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		e := &domain.LogEntry{
			ID:        fmt.Sprintf("id-%d", i),
			Source:    "+15551234567",
			Status:    "SUCCESS",
			Message:   fmt.Sprintf("msg %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := repo.Create(context.Background(), e); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	return repo
}

func TestList_NewestFirstAndPaged(t *testing.T) {
	h := NewHandler(seeded(t, 5), 3)
	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/admin/history", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp HistoryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(resp.Entries))
	}
	if resp.Entries[0].Message != "msg 4" {
		t.Errorf("first entry = %q, want %q", resp.Entries[0].Message, "msg 4")
	}
	if resp.Entries[0].Time != "2026-03-01 12:00:04" {
		t.Errorf("Time = %q, want %q", resp.Entries[0].Time, "2026-03-01 12:00:04")
	}
}

func TestExportCSV(t *testing.T) {
	repo := seeded(t, 2)
	_ = repo.Create(context.Background(), &domain.LogEntry{ID: "x", Message: "hi, \"there\"", CreatedAt: time.Time{}})
	h := NewHandler(repo, 0)
	rec := httptest.NewRecorder()
	h.ExportCSV(rec, httptest.NewRequest(http.MethodGet, "/admin/history.csv", nil))

	if got := rec.Header().Get("Content-Disposition"); got != "attachment; filename=history.csv" {
		t.Errorf("Content-Disposition = %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/csv" {
		t.Errorf("Content-Type = %q, want text/csv", got)
	}
	rows, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4 (header + 3)", len(rows))
	}
	want := []string{"Time", "Source", "Status", "Message"}
	for i, col := range want {
		if rows[0][i] != col {
			t.Errorf("header[%d] = %q, want %q", i, rows[0][i], col)
		}
	}
	last := rows[3]
	if last[0] != "Just now" || last[1] != "Unknown" || last[2] != "ERROR" || last[3] != "hi, \"there\"" {
		t.Errorf("zero-value row = %v", last)
	}
}

func TestClear_RemovesOneBatch(t *testing.T) {
	repo := seeded(t, auditrepo.ClearBatchSize+20)
	h := NewHandler(repo, 0)

	rec := httptest.NewRecorder()
	h.Clear(rec, httptest.NewRequest(http.MethodDelete, "/admin/history", nil))
	var resp ClearResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Deleted != auditrepo.ClearBatchSize {
		t.Errorf("Deleted = %d, want %d", resp.Deleted, auditrepo.ClearBatchSize)
	}
	left, _ := repo.List(context.Background(), 0)
	if len(left) != 20 {
		t.Errorf("remaining = %d, want 20", len(left))
	}
}

func TestHandler_RepositoryErrors(t *testing.T) {
	h := NewHandler(failingRepo{}, 10)
	calls := []struct {
		name string
		fn   http.HandlerFunc
	}{
		{"list", h.List},
		{"csv", h.ExportCSV},
		{"clear", h.Clear},
	}
	for _, c := range calls {
		t.Run(c.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c.fn(rec, httptest.NewRequest(http.MethodGet, "/admin/history", nil))
			if rec.Code != http.StatusInternalServerError {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
			}
		})
	}
}
