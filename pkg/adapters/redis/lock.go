package redis

import (
	"context"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/pennywise-ai/pennywise/pkg/ports"
)

// unlockScript releases the lock only when the holder's token still
// matches, so an expired-and-reacquired lock is never released by the
// previous holder.
var unlockScript = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Locker implements ports.DistributedLocker using Redis SET NX PX. It
// serializes turns for a session across replicas; the store's optimistic
// append remains the correctness backstop.
type Locker struct {
	client *backend.Client
	prefix string
}

// NewLocker creates a Redis locker.
func NewLocker(client *backend.Client, prefix string) *Locker {
	if prefix == "" {
		prefix = "pennywise:"
	}
	return &Locker{client: client, prefix: prefix}
}

// Lock acquires the lock for key, polling with a short interval until the
// context is canceled.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	lockKey := l.prefix + "lock:" + key
	token := fmt.Sprintf("%d", time.Now().UnixNano())

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis error acquiring lock: %w", err)
		}
		if ok {
			return func(ctx context.Context) error {
				return unlockScript.Run(ctx, l.client, []string{lockKey}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
