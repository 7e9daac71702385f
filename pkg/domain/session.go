package domain

import "time"

// SessionID uniquely identifies a conversation/task session.
type SessionID = string

// SessionInfo is the summary view of a session exposed to callers (API,
// CLI). The snapshot history itself stays inside the store.
type SessionInfo struct {
	ID           SessionID `json:"id"`
	Version      uint64    `json:"version"`
	Cursor       string    `json:"cursor,omitempty"`
	Messages     int       `json:"messages"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}
