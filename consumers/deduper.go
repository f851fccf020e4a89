package consumers

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers event ids a consumer has already processed so redelivery
// of the same event becomes a no-op.
type Deduper interface {
	// Add records the key and returns true if it was newly recorded.
	Add(ctx context.Context, consumer, key string) (bool, error)
	// Remove forgets a previously added key, used when processing fails
	// after the key was recorded so a redelivery gets handled.
	Remove(ctx context.Context, consumer, key string) error
}

// RedisDeduper stores processed event ids in Redis so every instance of a
// consumer shares one dedup window.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(consumer, key string) string {
	return fmt.Sprintf("%s:seen:%s", consumer, key)
}

func (r *RedisDeduper) Add(ctx context.Context, consumer, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(consumer, key), 1, r.ttl).Result()
}

func (r *RedisDeduper) Remove(ctx context.Context, consumer, key string) error {
	return r.client.Del(ctx, r.key(consumer, key)).Err()
}
