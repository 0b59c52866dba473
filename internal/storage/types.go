package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file backend
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one guardian event.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At             time.Time `json:"at"`
	SessionID      string    `json:"session_id"`
	Event          string    `json:"event"`
	Phase          string    `json:"phase,omitempty"`
	Speaker        string    `json:"speaker,omitempty"`
	Source         string    `json:"source,omitempty"`
	Command        string    `json:"command,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Text           string    `json:"text,omitempty"`
	Error          string    `json:"error,omitempty"`
	NextShutdownAt time.Time `json:"next_shutdown_at,omitempty"`
}
