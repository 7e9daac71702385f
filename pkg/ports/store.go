package ports

import (
	"context"
	"time"

	"github.com/pennywise-ai/pennywise/pkg/domain"
)

// SnapshotStore persists per-session snapshot histories. Histories are
// append-only and totally ordered by version; appends use optimistic
// concurrency so that concurrent turns for the same session serialize.
type SnapshotStore interface {
	// Create allocates a new session with its genesis snapshot.
	Create(ctx context.Context) (domain.SessionID, error)

	// Latest returns the newest committed snapshot.
	// Returns domain.ErrSessionNotFound if the session is absent or expired.
	Latest(ctx context.Context, id domain.SessionID) (*domain.Snapshot, error)

	// Append commits snap as the new latest. snap.Version must be exactly
	// one past the current latest, otherwise domain.ErrConflict is returned
	// and the store is left unchanged.
	Append(ctx context.Context, id domain.SessionID, snap *domain.Snapshot) error

	// History returns the full ordered snapshot history.
	History(ctx context.Context, id domain.SessionID) ([]*domain.Snapshot, error)

	// Info returns the summary view of a session.
	Info(ctx context.Context, id domain.SessionID) (*domain.SessionInfo, error)

	// List returns the IDs of live sessions.
	List(ctx context.Context) ([]domain.SessionID, error)

	// ExpireIfStale removes the session if it has been inactive beyond ttl.
	// Idempotent: expiring an absent session is not an error.
	ExpireIfStale(ctx context.Context, id domain.SessionID, ttl time.Duration) error

	// Delete removes the session unconditionally.
	Delete(ctx context.Context, id domain.SessionID) error
}
