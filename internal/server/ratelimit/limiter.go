// Package ratelimit implements a fixed-window request limiter backed by
// redis, shared by every server instance.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter allows Limit hits per key within each Window.
type Limiter struct {
	rdb    redis.Cmdable
	prefix string
	limit  int
	window time.Duration
}

func NewLimiter(rdb redis.Cmdable, prefix string, limit int, window time.Duration) *Limiter {
	return &Limiter{rdb: rdb, prefix: prefix, limit: limit, window: window}
}

// Allow records one hit for key and reports whether it is within the limit.
// The window starts at the first hit. The counter and its expiry are set in
// one MULTI/EXEC, and a key found without a TTL gets one on the next hit.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)

	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.ExpireNX(ctx, redisKey, l.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rate limiter: %w", err)
	}

	return incr.Val() <= int64(l.limit), nil
}
