// Package storetest provides a reusable contract suite that verifies a
// SnapshotStore implementation against the semantics the engine relies on.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywise-ai/pennywise/pkg/domain"
	"github.com/pennywise-ai/pennywise/pkg/ports"
)

// Run exercises the SnapshotStore contract against store.
func Run(t *testing.T, store ports.SnapshotStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("CreateAndLatest", func(t *testing.T) {
		id, err := store.Create(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, id)

		snap, err := store.Latest(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), snap.Version)
		assert.Equal(t, id, snap.SessionID)
	})

	t.Run("LatestNotFound", func(t *testing.T) {
		_, err := store.Latest(ctx, "no-such-session")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("AppendAdvancesVersion", func(t *testing.T) {
		id, err := store.Create(ctx)
		require.NoError(t, err)

		snap, err := store.Latest(ctx, id)
		require.NoError(t, err)

		next := snap.Next("classify", domain.Delta{Set: map[string]any{"q": "hello"}})
		require.NoError(t, store.Append(ctx, id, next))

		got, err := store.Latest(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), got.Version)
		assert.Equal(t, "hello", got.String("q"))

		history, err := store.History(ctx, id)
		require.NoError(t, err)
		require.Len(t, history, 2)
		for i, s := range history {
			assert.Equal(t, uint64(i+1), s.Version)
		}
	})

	t.Run("AppendStaleVersionConflicts", func(t *testing.T) {
		id, err := store.Create(ctx)
		require.NoError(t, err)

		base, err := store.Latest(ctx, id)
		require.NoError(t, err)

		require.NoError(t, store.Append(ctx, id, base.Next("a", domain.Delta{})))
		// Second append derived from the same predecessor must lose.
		err = store.Append(ctx, id, base.Next("b", domain.Delta{}))
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("ConcurrentAppendsExactlyOneWins", func(t *testing.T) {
		id, err := store.Create(ctx)
		require.NoError(t, err)
		base, err := store.Latest(ctx, id)
		require.NoError(t, err)

		const writers = 8
		var wg sync.WaitGroup
		errs := make([]error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = store.Append(ctx, id, base.Next("race", domain.Delta{}))
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
			} else {
				assert.ErrorIs(t, err, domain.ErrConflict)
			}
		}
		assert.Equal(t, 1, wins, "exactly one concurrent append must succeed")
	})

	t.Run("ExpireIfStale", func(t *testing.T) {
		id, err := store.Create(ctx)
		require.NoError(t, err)

		// Fresh session survives a generous TTL.
		require.NoError(t, store.ExpireIfStale(ctx, id, time.Hour))
		_, err = store.Latest(ctx, id)
		require.NoError(t, err)

		// Zero TTL expires everything; repeating it stays idempotent.
		require.NoError(t, store.ExpireIfStale(ctx, id, 0))
		require.NoError(t, store.ExpireIfStale(ctx, id, 0))
		_, err = store.Latest(ctx, id)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("DeleteAndList", func(t *testing.T) {
		id, err := store.Create(ctx)
		require.NoError(t, err)

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id)

		require.NoError(t, store.Delete(ctx, id))
		_, err = store.Latest(ctx, id)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})
}
