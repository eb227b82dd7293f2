package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"print-relay/internal/audit/domain"
	auditrepo "print-relay/internal/audit/repository"
)

// UnknownSource is recorded when the caller cannot identify the sender.
const UnknownSource = "Unknown"

// EntryEmitter mirrors history entries to an external sink (e.g. OTel logs). Best-effort.
type EntryEmitter interface {
	EmitEntry(ctx context.Context, e *domain.LogEntry)
}

// AuditLogger writes one history entry per delivery attempt.
// Log is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	Log(ctx context.Context, source, status, message string)
}

// Logger implements AuditLogger using the history repository and an optional emitter.
type Logger struct {
	repo    auditrepo.Repository
	emitter EntryEmitter
	nowF    func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo and mirrors entries to emitter.
// emitter may be nil.
func NewLogger(repo auditrepo.Repository, emitter EntryEmitter) *Logger {
	return &Logger{
		repo:    repo,
		emitter: emitter,
		nowF:    func() time.Time { return time.Now().UTC() },
	}
}

// Log writes one history entry. Best-effort: errors are logged and not returned.
func (l *Logger) Log(ctx context.Context, source, status, message string) {
	if l == nil || l.repo == nil {
		return
	}
	if source == "" {
		source = UnknownSource
	}
	entry := &domain.LogEntry{
		ID:        uuid.New().String(),
		Source:    source,
		Status:    status,
		Message:   message,
		CreatedAt: l.nowF(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log %s from %s: %v", status, source, err)
	}
	if l.emitter != nil {
		l.emitter.EmitEntry(ctx, entry)
	}
}
