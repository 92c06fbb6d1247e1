package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper suppresses repeated provider callbacks before they reach the database.
type Deduper interface {
	// FirstSeen marks key as seen and reports whether it was new.
	FirstSeen(ctx context.Context, key string) (bool, error)
	// Forget clears key so a redelivery is processed again.
	Forget(ctx context.Context, key string) error
}

// RedisDeduper keeps seen keys in Redis with a TTL.
type RedisDeduper struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisDeduper(rdb redis.Cmdable, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduper{rdb: rdb, ttl: ttl}
}

func (d *RedisDeduper) FirstSeen(ctx context.Context, key string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe set %s: %w", key, err)
	}
	return ok, nil
}

func (d *RedisDeduper) Forget(ctx context.Context, key string) error {
	if err := d.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("dedupe forget %s: %w", key, err)
	}
	return nil
}
