// Package handler serves the print history to authenticated admins.
package handler

import (
	"encoding/csv"
	"log"
	"net/http"
	"time"

	"print-relay/internal/audit/domain"
	auditrepo "print-relay/internal/audit/repository"
	"print-relay/internal/platform/httpx"
)

// DisplayTimeLayout formats entry times for the history views.
const DisplayTimeLayout = "2006-01-02 15:04:05"

// CSVFilename is the attachment name for the CSV export.
const CSVFilename = "history.csv"

// EntryView is one history row as returned to admins.
type EntryView struct {
	ID        string    `json:"id"`
	Time      string    `json:"time"`
	Source    string    `json:"source"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryResponse is the JSON history page.
type HistoryResponse struct {
	Entries []EntryView `json:"entries"`
}

// ClearResponse reports how many entries one clear call removed.
type ClearResponse struct {
	Deleted int64 `json:"deleted"`
}

// Handler serves the history endpoints. Authentication is applied by the router.
type Handler struct {
	repo      auditrepo.Repository
	pageLimit int
}

// NewHandler returns the history handler. pageLimit <= 0 returns every entry.
func NewHandler(repo auditrepo.Repository, pageLimit int) *Handler {
	return &Handler{repo: repo, pageLimit: pageLimit}
}

// List answers GET /admin/history, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.repo.List(r.Context(), h.pageLimit)
	if err != nil {
		log.Printf("audit: list history: %v", err)
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not load history"})
		return
	}
	resp := HistoryResponse{Entries: make([]EntryView, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, toView(e))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// ExportCSV answers GET /admin/history.csv with the same rows as List.
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	entries, err := h.repo.List(r.Context(), h.pageLimit)
	if err != nil {
		log.Printf("audit: export history: %v", err)
		httpx.WriteText(w, http.StatusInternalServerError, "could not load history")
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+CSVFilename)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"Time", "Source", "Status", "Message"})
	for _, e := range entries {
		v := toView(e)
		_ = cw.Write([]string{v.Time, v.Source, v.Status, v.Message})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		log.Printf("audit: write csv: %v", err)
	}
}

// Clear answers DELETE /admin/history. One call removes at most ClearBatchSize entries.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	n, err := h.repo.DeleteBatch(r.Context(), auditrepo.ClearBatchSize)
	if err != nil {
		log.Printf("audit: clear history: %v", err)
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not clear history"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, ClearResponse{Deleted: n})
}

func toView(e *domain.LogEntry) EntryView {
	v := EntryView{
		ID:        e.ID,
		Source:    e.Source,
		Status:    e.Status,
		Message:   e.Message,
		CreatedAt: e.CreatedAt,
		Time:      "Just now",
	}
	if v.Source == "" {
		v.Source = "Unknown"
	}
	if v.Status == "" {
		v.Status = "ERROR"
	}
	if !e.CreatedAt.IsZero() {
		v.Time = e.CreatedAt.UTC().Format(DisplayTimeLayout)
	}
	return v
}
