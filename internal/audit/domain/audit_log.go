package domain

import "time"

// LogEntry records one delivery attempt. Entries are append-only and never mutated after creation.
type LogEntry struct {
	ID        string
	Source    string
	Status    string
	Message   string
	CreatedAt time.Time
}
