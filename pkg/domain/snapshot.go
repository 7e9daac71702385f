package domain

import (
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversational turn entry carried in session state.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Vars is the variable space of a snapshot: scalars, tabular frames, or
// step-produced artifacts keyed by name.
type Vars map[string]any

// Snapshot is the immutable state value produced by one orchestration step.
// Snapshots form an append-only, totally ordered history per session:
// snapshot[n] is derived solely from snapshot[n-1] plus external-call
// results. Mutating a Snapshot in place is a bug; use Next.
type Snapshot struct {
	SessionID string    `json:"session_id"`
	Version   uint64    `json:"version"`
	Cursor    string    `json:"cursor"` // next step to execute; empty when idle/terminal
	Vars      Vars      `json:"vars"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
}

// NewSnapshot creates the genesis snapshot for a session.
func NewSnapshot(sessionID string) *Snapshot {
	return &Snapshot{
		SessionID: sessionID,
		Version:   1,
		Vars:      make(Vars),
		CreatedAt: time.Now().UTC(),
	}
}

// Delta is the state change produced by a step's transition function. It is
// merged into the predecessor snapshot to form the successor.
type Delta struct {
	Set      map[string]any
	Messages []Message
}

// Next derives the successor snapshot: a deep-enough copy of the variable
// space with the delta merged, the cursor advanced, and the version
// incremented. The receiver is left untouched.
func (s *Snapshot) Next(cursor string, delta Delta) *Snapshot {
	next := &Snapshot{
		SessionID: s.SessionID,
		Version:   s.Version + 1,
		Cursor:    cursor,
		Vars:      make(Vars, len(s.Vars)+len(delta.Set)),
		Messages:  make([]Message, 0, len(s.Messages)+len(delta.Messages)),
		CreatedAt: time.Now().UTC(),
	}
	for k, v := range s.Vars {
		next.Vars[k] = v
	}
	for k, v := range delta.Set {
		next.Vars[k] = v
	}
	next.Messages = append(next.Messages, s.Messages...)
	next.Messages = append(next.Messages, delta.Messages...)
	return next
}

// Clone returns a copy safe for the caller to hold while the store advances.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Vars = make(Vars, len(s.Vars))
	for k, v := range s.Vars {
		cp.Vars[k] = v
	}
	cp.Messages = append([]Message(nil), s.Messages...)
	return &cp
}

// String returns a value from the variable space as a string, or "" when
// absent or of another type.
func (s *Snapshot) String(key string) string {
	if v, ok := s.Vars[key].(string); ok {
		return v
	}
	return ""
}
