package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/pennywise-ai/pennywise/internal/logging"
	"github.com/pennywise-ai/pennywise/pkg/domain"
	"github.com/pennywise-ai/pennywise/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock may outlive a crashed
// holder before Redis reclaims it.
const DefaultLockTTL = 90 * time.Second

// lockEntry holds the per-session mutex and its reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager coordinates access to sessions. Within a process it serializes
// turns per session with reference-counted mutexes; across replicas it can
// additionally hold a distributed lock. The store's optimistic append stays
// the correctness backstop either way.
type Manager struct {
	store ports.SnapshotStore

	mu    sync.Mutex
	locks map[domain.SessionID]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking for multi-replica deployments.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides the distributed lock TTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a session Manager over the given snapshot store.
func NewManager(store ports.SnapshotStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[domain.SessionID]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must Lock entry.mu and pair this with release.
func (m *Manager) acquire(id domain.SessionID) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		entry = &lockEntry{}
		m.locks[id] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and drops the entry at zero.
func (m *Manager) release(id domain.SessionID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, id)
	}
}

// Create starts a new session and returns its ID.
func (m *Manager) Create(ctx context.Context) (domain.SessionID, error) {
	return m.store.Create(ctx)
}

// Latest returns the current snapshot of a session.
func (m *Manager) Latest(ctx context.Context, id domain.SessionID) (*domain.Snapshot, error) {
	return m.store.Latest(ctx, id)
}

// History returns the full snapshot chain of a session.
func (m *Manager) History(ctx context.Context, id domain.SessionID) ([]*domain.Snapshot, error) {
	return m.store.History(ctx, id)
}

// Info returns session metadata without the full history.
func (m *Manager) Info(ctx context.Context, id domain.SessionID) (*domain.SessionInfo, error) {
	return m.store.Info(ctx, id)
}

// List returns the IDs of all live sessions.
func (m *Manager) List(ctx context.Context) ([]domain.SessionID, error) {
	return m.store.List(ctx)
}

// Delete removes the session under its lock so an in-flight turn cannot
// race the removal.
func (m *Manager) Delete(ctx context.Context, id domain.SessionID) error {
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		return m.store.Delete(ctx, id)
	})
}

// Store returns the underlying snapshot store.
func (m *Manager) Store() ports.SnapshotStore {
	return m.store
}

// WithLock executes fn while holding the session's lock, acquiring the
// distributed lock first when one is configured.
func (m *Manager) WithLock(ctx context.Context, id domain.SessionID, fn func(context.Context) error) error {
	entry := m.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(id)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, string(id), m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("failed to release distributed lock, it will expire via TTL",
					"session_id", id,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
