// internal/cache/lock.go
package cache

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

//go:embed lua/release_lock.lua
var luaReleaseLock string

// RedisLocker is a single-owner lease lock shared by every replica.
type RedisLocker struct {
	rdb        redis.UniversalClient
	releaseScr *redis.Script
	prefix     string
}

func NewRedisLocker(rdb redis.UniversalClient) *RedisLocker {
	return &RedisLocker{
		rdb:        rdb,
		releaseScr: redis.NewScript(luaReleaseLock),
		prefix:     "lock:",
	}
}

// Acquire takes the named lock for ttl. ok is false when another owner holds it.
// The returned release only deletes the key if this owner still holds it.
func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error) {
	key := l.prefix + name
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		if err := l.releaseScr.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("release lock %s: %w", name, err)
		}
		return nil
	}
	return release, true, nil
}
