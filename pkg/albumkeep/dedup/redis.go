package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "albumkeep:processed:"

// Redis is a Store backed by redis, for deployments where multiple
// consumer replicas share de-duplication state.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a redis-backed store whose entries expire after ttl.
func NewRedis(addr string, ttl time.Duration) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

// IsProcessed reports whether messageID has an unexpired entry.
func (r *Redis) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	n, err := r.client.Exists(ctx, redisKeyPrefix+messageID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkProcessed records messageID with the configured TTL.
func (r *Redis) MarkProcessed(ctx context.Context, messageID string) error {
	return r.client.Set(ctx, redisKeyPrefix+messageID, 1, r.ttl).Err()
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
