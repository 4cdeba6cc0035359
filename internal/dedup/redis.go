package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "newspipe:fp:"

// RedisStore shares the fingerprint set between crawler instances. SetNX
// gives the same exactly-once insert semantics as the local index.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to the Redis at addr. A zero ttl keeps
// fingerprints forever; otherwise they expire and articles can be
// re-emitted after the window passes.
func NewRedisStore(addr string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

// Ping verifies the connection before the run starts.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) CheckAndInsert(ctx context.Context, fingerprint string) (bool, error) {
	isNew, err := s.client.SetNX(ctx, redisKeyPrefix+fingerprint, 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return isNew, nil
}

func (s *RedisStore) Close(context.Context) error { return s.client.Close() }
