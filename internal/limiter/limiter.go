// Package limiter throttles repeated logins per identity. Counters live in
// Redis with a fixed window that starts at the first attempt; a successful
// login resets them.
package limiter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "auth_session:login_attempts:"

type RedisLimiter struct {
	client      redis.UniversalClient
	maxAttempts int64
	window      time.Duration
}

func NewRedisLimiter(client redis.UniversalClient, maxAttempts int, window time.Duration) (*RedisLimiter, error) {
	const op = "limiter.NewRedisLimiter"

	if maxAttempts <= 0 {
		return nil, fmt.Errorf("%s: max attempts must be positive", op)
	}
	if window <= 0 {
		return nil, fmt.Errorf("%s: window must be positive", op)
	}

	return &RedisLimiter{
		client:      client,
		maxAttempts: int64(maxAttempts),
		window:      window,
	}, nil
}

// Reserve counts one login attempt for identity and reports whether it is
// within the limit. The count and the window expiry are written in a single
// MULTI/EXEC, so concurrent attempts can never exceed maxAttempts and a
// counter can never be left without a TTL. The window starts at the first
// attempt and is not extended by later ones.
func (l *RedisLimiter) Reserve(ctx context.Context, identity string) (bool, error) {
	const op = "limiter.Reserve"

	k := key(identity)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, l.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return incr.Val() <= l.maxAttempts, nil
}

func (l *RedisLimiter) Reset(ctx context.Context, identity string) error {
	const op = "limiter.Reset"

	if err := l.client.Del(ctx, key(identity)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func key(identity string) string {
	return keyPrefix + strings.ToLower(strings.TrimSpace(identity))
}
