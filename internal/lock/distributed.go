package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the lock key only if it still holds the token this
// instance set, so one holder never releases a lock it no longer owns
// (e.g. after its TTL expired and another instance acquired it).
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// DistributedGate is the optional Redis-backed Concurrency Gate used when
// the service is scaled to multiple instances (§4.6 EXPANSION, §9 design
// notes): a per-tenant SET NX PX lock with a Lua-scripted, token-checked
// unlock, in the same go-redis idiom this codebase's rate limiter uses for
// its own Redis-backed counters.
type DistributedGate struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

// NewDistributedGate builds a DistributedGate. ttl bounds how long a lock
// survives a crashed holder; retry is the polling interval while waiting for
// a held lock.
func NewDistributedGate(client *redis.Client, ttl time.Duration) *DistributedGate {
	return &DistributedGate{client: client, ttl: ttl, retry: 25 * time.Millisecond}
}

func lockKey(key string) string {
	return "kvpair:lock:" + key
}

// Lock blocks (polling at g.retry) until key's Redis lock is acquired or ctx
// is done, and returns a function that releases it.
func (g *DistributedGate) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	token := uuid.NewString()
	rk := lockKey(key)

	ticker := time.NewTicker(g.retry)
	defer ticker.Stop()

	for {
		ok, err := g.client.SetNX(ctx, rk, token, g.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock: redis SETNX failed: %w", err)
		}
		if ok {
			return func(unlockCtx context.Context) error {
				return unlockScript.Run(unlockCtx, g.client, []string{rk}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
