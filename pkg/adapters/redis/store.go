// Package redis implements the snapshot store, the global call cache, and
// the distributed session lock on Redis, for multi-replica deployments.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"

	"github.com/pennywise-ai/pennywise/pkg/domain"
)

// appendScript performs the optimistic append atomically: the new snapshot
// is pushed only when its version is exactly one past the current history
// length.
//
// KEYS[1] = history list, ARGV[1] = expected version, ARGV[2] = snapshot JSON
// Returns -1 when the session is gone, 0 on version conflict, 1 on success.
var appendScript = backend.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
if redis.call("LLEN", KEYS[1]) + 1 ~= tonumber(ARGV[1]) then
	return 0
end
redis.call("RPUSH", KEYS[1], ARGV[2])
return 1
`)

// Store implements ports.SnapshotStore on Redis. Each session keeps its
// ordered snapshot history in a list; a ZSET indexes sessions by last
// activity for staleness sweeps.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures the store.
type Option func(*Store)

// WithTTL sets a hard Redis-level expiration refreshed on every append, as
// a safety net under the engine's own staleness sweeps.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithPrefix sets the key prefix for session data.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// New creates a Redis store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	return NewFromClient(backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	}), opts...)
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "pennywise:session:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(id domain.SessionID) string { return s.prefix + id }
func (s *Store) metaKey(id domain.SessionID) string {
	return s.prefix + id + ":meta"
}
func (s *Store) indexKey() string { return s.prefix + "index" }

// Create allocates a session with its genesis snapshot.
func (s *Store) Create(ctx context.Context) (domain.SessionID, error) {
	id := uuid.NewString()
	genesis := domain.NewSnapshot(id)
	data, err := json.Marshal(genesis)
	if err != nil {
		return "", fmt.Errorf("failed to marshal genesis snapshot: %w", err)
	}

	now := time.Now().UTC()
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.key(id), data)
	pipe.HSet(ctx, s.metaKey(id), "created_at", now.Format(time.RFC3339Nano))
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: float64(now.Unix()), Member: id})
	s.applyTTL(ctx, pipe, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to create session in redis: %w", err)
	}
	return id, nil
}

// Latest returns the newest committed snapshot.
func (s *Store) Latest(ctx context.Context, id domain.SessionID) (*domain.Snapshot, error) {
	val, err := s.client.LIndex(ctx, s.key(id), -1).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read latest snapshot: %w", err)
	}
	return unmarshalSnapshot(val)
}

// Append commits snap atomically; see appendScript for the version check.
func (s *Store) Append(ctx context.Context, id domain.SessionID, snap *domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	res, err := appendScript.Run(ctx, s.client, []string{s.key(id)}, snap.Version, data).Int()
	if err != nil {
		return fmt.Errorf("failed to append snapshot: %w", err)
	}
	switch res {
	case -1:
		return domain.ErrSessionNotFound
	case 0:
		return domain.ErrConflict
	}

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: float64(time.Now().Unix()), Member: id})
	s.applyTTL(ctx, pipe, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to touch session index: %w", err)
	}
	return nil
}

// History returns the full ordered snapshot history.
func (s *Store) History(ctx context.Context, id domain.SessionID) ([]*domain.Snapshot, error) {
	vals, err := s.client.LRange(ctx, s.key(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	if len(vals) == 0 {
		return nil, domain.ErrSessionNotFound
	}
	out := make([]*domain.Snapshot, len(vals))
	for i, val := range vals {
		if out[i], err = unmarshalSnapshot(val); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Info returns the session summary.
func (s *Store) Info(ctx context.Context, id domain.SessionID) (*domain.SessionInfo, error) {
	latest, err := s.Latest(ctx, id)
	if err != nil {
		return nil, err
	}

	info := &domain.SessionInfo{
		ID:       id,
		Version:  latest.Version,
		Cursor:   latest.Cursor,
		Messages: len(latest.Messages),
	}
	if created, err := s.client.HGet(ctx, s.metaKey(id), "created_at").Result(); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			info.CreatedAt = t
		}
	}
	if score, err := s.client.ZScore(ctx, s.indexKey(), id).Result(); err == nil {
		info.LastActivity = time.Unix(int64(score), 0).UTC()
	}
	return info, nil
}

// List returns live session IDs, lazily pruning index entries whose data
// was expired by the Redis-level TTL.
func (s *Store) List(ctx context.Context) ([]domain.SessionID, error) {
	members, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	live := make([]domain.SessionID, 0, len(members))
	for _, id := range members {
		exists, err := s.client.Exists(ctx, s.key(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check session %s: %w", id, err)
		}
		if exists == 0 {
			s.client.ZRem(ctx, s.indexKey(), id)
			continue
		}
		live = append(live, id)
	}
	return live, nil
}

// ExpireIfStale removes the session if inactive beyond ttl. Idempotent.
func (s *Store) ExpireIfStale(ctx context.Context, id domain.SessionID, ttl time.Duration) error {
	score, err := s.client.ZScore(ctx, s.indexKey(), id).Result()
	if err != nil {
		if err == backend.Nil {
			return nil
		}
		return fmt.Errorf("failed to read session activity: %w", err)
	}

	last := time.Unix(int64(score), 0)
	if ttl > 0 && time.Since(last) < ttl {
		return nil
	}
	return s.Delete(ctx, id)
}

// Delete removes the session unconditionally.
func (s *Store) Delete(ctx context.Context, id domain.SessionID) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(id), s.metaKey(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	_, err := pipe.Exec(ctx)
	return err
}

// Close closes the underlying client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) applyTTL(ctx context.Context, pipe backend.Pipeliner, id domain.SessionID) {
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key(id), s.ttl)
		pipe.Expire(ctx, s.metaKey(id), s.ttl)
	}
}

func unmarshalSnapshot(val string) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}
