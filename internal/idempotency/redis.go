package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "leadflow/pkg/errors"
)

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

type RedisGuard struct {
	client *redis.Client
	prefix string
}

func NewRedisGuard(client *redis.Client, prefix string) *RedisGuard {
	return &RedisGuard{client: client, prefix: prefix}
}

func (g *RedisGuard) key(k string) string {
	return g.prefix + k
}

func (g *RedisGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, Status, error) {
	lease := newLease(key)
	ok, err := g.client.SetNX(ctx, g.key(key), lease.Token, ttl).Result()
	if err != nil {
		return Lease{}, InProgress, apperrors.TransientStorage(fmt.Errorf("redis SetNX failed: %w", err))
	}
	if ok {
		return lease, Acquired, nil
	}

	current, err := g.client.Get(ctx, g.key(key)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Lease expired between the two calls; the next attempt will win it.
		return Lease{}, InProgress, nil
	case err != nil:
		return Lease{}, InProgress, apperrors.TransientStorage(fmt.Errorf("redis Get failed: %w", err))
	case current == valueDone:
		return Lease{}, AlreadyDone, nil
	}
	return Lease{}, InProgress, nil
}

func (g *RedisGuard) Complete(ctx context.Context, lease Lease, ttl time.Duration) error {
	if err := g.client.Set(ctx, g.key(lease.Key), valueDone, ttl).Err(); err != nil {
		return apperrors.TransientStorage(fmt.Errorf("redis Set failed: %w", err))
	}
	return nil
}

func (g *RedisGuard) Release(ctx context.Context, lease Lease) error {
	if lease.Token == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, g.client, []string{g.key(lease.Key)}, lease.Token).Err(); err != nil {
		return apperrors.TransientStorage(fmt.Errorf("redis release failed: %w", err))
	}
	return nil
}
