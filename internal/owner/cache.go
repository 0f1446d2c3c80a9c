package owner

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"leadflow/internal/constants"
	"leadflow/internal/logger"
	"leadflow/pkg/models"
)

// CachedResolver keeps found owners in Redis for a short TTL. Misses are not
// cached so that a newly assigned owner is picked up on the next retry. Cache
// failures fall through to the wrapped resolver.
type CachedResolver struct {
	next   Resolver
	client *redis.Client
	ttl    time.Duration
	log    logger.Logger
}

func NewCachedResolver(next Resolver, client *redis.Client, ttl time.Duration, log logger.Logger) *CachedResolver {
	return &CachedResolver{next: next, client: client, ttl: ttl, log: log}
}

func cacheKey(leadID string) string {
	return constants.CacheKeyPrefixOwner + leadID
}

func (r *CachedResolver) Resolve(ctx context.Context, leadID string) (*models.OwnerRecord, error) {
	val, err := r.client.Get(ctx, cacheKey(leadID)).Result()
	switch {
	case err == nil:
		var rec models.OwnerRecord
		if jsonErr := json.Unmarshal([]byte(val), &rec); jsonErr == nil {
			return &rec, nil
		}
	case !errors.Is(err, redis.Nil):
		r.log.WarnwCtx(ctx, "Owner cache read failed", "lead_id", leadID, "error", err)
	}

	rec, err := r.next.Resolve(ctx, leadID)
	if err != nil || rec == nil {
		return rec, err
	}

	if data, jsonErr := json.Marshal(rec); jsonErr == nil {
		if setErr := r.client.Set(ctx, cacheKey(leadID), data, r.ttl).Err(); setErr != nil {
			r.log.WarnwCtx(ctx, "Owner cache write failed", "lead_id", leadID, "error", setErr)
		}
	}
	return rec, nil
}
