package session

import (
	"context"
	"errors"
	"time"

	"github.com/pennywise-ai/pennywise/pkg/domain"
)

// DefaultSweepInterval is how often the sweeper scans for idle sessions.
const DefaultSweepInterval = 5 * time.Minute

// Sweep expires every session idle for longer than ttl. It returns the
// number of sessions removed. Sessions deleted concurrently are skipped.
func (m *Manager) Sweep(ctx context.Context, ttl time.Duration) (int, error) {
	ids, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range ids {
		err := m.WithLock(ctx, id, func(ctx context.Context) error {
			return m.store.ExpireIfStale(ctx, id, ttl)
		})
		if errors.Is(err, domain.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return removed, err
		}
		if _, err := m.store.Latest(ctx, id); errors.Is(err, domain.ErrSessionNotFound) {
			removed++
		}
	}
	return removed, nil
}

// StartSweeper runs Sweep on a fixed interval until the context is
// canceled. It is meant to run in its own goroutine for the lifetime of
// the process.
func (m *Manager) StartSweeper(ctx context.Context, ttl, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := m.Sweep(ctx, ttl)
			if err != nil {
				m.logger.Warn("session sweep failed", "err", err)
				continue
			}
			if removed > 0 {
				m.logger.Info("expired idle sessions", "count", removed)
			}
		}
	}
}
