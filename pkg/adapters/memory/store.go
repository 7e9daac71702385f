// Package memory implements the snapshot store and call cache in process
// memory. Safe for concurrent use; the default backend for development and
// tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pennywise-ai/pennywise/pkg/domain"
)

type sessionRecord struct {
	snapshots    []*domain.Snapshot
	createdAt    time.Time
	lastActivity time.Time
}

// Store implements ports.SnapshotStore in memory.
type Store struct {
	mu   sync.RWMutex
	data map[domain.SessionID]*sessionRecord
}

// NewStore creates a new in-memory snapshot store.
func NewStore() *Store {
	return &Store{
		data: make(map[domain.SessionID]*sessionRecord),
	}
}

// Create allocates a session with its genesis snapshot.
func (s *Store) Create(ctx context.Context) (domain.SessionID, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = &sessionRecord{
		snapshots:    []*domain.Snapshot{domain.NewSnapshot(id)},
		createdAt:    now,
		lastActivity: now,
	}
	return id, nil
}

// Latest returns a copy of the newest committed snapshot.
func (s *Store) Latest(ctx context.Context, id domain.SessionID) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return rec.snapshots[len(rec.snapshots)-1].Clone(), nil
}

// Append commits snap as the new latest under optimistic concurrency.
func (s *Store) Append(ctx context.Context, id domain.SessionID, snap *domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if snap.Version != uint64(len(rec.snapshots))+1 {
		return domain.ErrConflict
	}
	rec.snapshots = append(rec.snapshots, snap.Clone())
	rec.lastActivity = time.Now().UTC()
	return nil
}

// History returns copies of the full ordered snapshot history.
func (s *Store) History(ctx context.Context, id domain.SessionID) ([]*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	out := make([]*domain.Snapshot, len(rec.snapshots))
	for i, snap := range rec.snapshots {
		out[i] = snap.Clone()
	}
	return out, nil
}

// Info returns the session summary.
func (s *Store) Info(ctx context.Context, id domain.SessionID) (*domain.SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	latest := rec.snapshots[len(rec.snapshots)-1]
	return &domain.SessionInfo{
		ID:           id,
		Version:      latest.Version,
		Cursor:       latest.Cursor,
		Messages:     len(latest.Messages),
		CreatedAt:    rec.createdAt,
		LastActivity: rec.lastActivity,
	}, nil
}

// List returns the IDs of live sessions.
func (s *Store) List(ctx context.Context) ([]domain.SessionID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]domain.SessionID, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids, nil
}

// ExpireIfStale removes the session if inactive beyond ttl. Idempotent.
func (s *Store) ExpireIfStale(ctx context.Context, id domain.SessionID, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data[id]
	if !ok {
		return nil
	}
	if ttl <= 0 || time.Since(rec.lastActivity) >= ttl {
		delete(s.data, id)
	}
	return nil
}

// Delete removes the session unconditionally.
func (s *Store) Delete(ctx context.Context, id domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}
