package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter is the part of a redis client the sequence needs.
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisSequence hands out counters with INCR. Values are not returned on
// rollback, so numbers are unique but may have gaps.
type RedisSequence struct {
	client Counter
	ttl    time.Duration
}

// NewRedisSequence creates a sequence over client. Keys expire after ttl.
func NewRedisSequence(client Counter, ttl time.Duration) *RedisSequence {
	return &RedisSequence{client: client, ttl: ttl}
}

// Next returns the next value for prefix on day, starting at 1.
func (s *RedisSequence) Next(ctx context.Context, prefix string, day time.Time) (int64, error) {
	key := fmt.Sprintf("seq:%s:%s", prefix, day.Format("20060102"))

	next, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	if next == 1 && s.ttl > 0 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			return 0, fmt.Errorf("failed to set expiry on %s: %w", key, err)
		}
	}
	return next, nil
}
