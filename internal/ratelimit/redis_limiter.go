package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript counts a hit and returns {count, remaining ttl in ms}.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {count, redis.call("PTTL", KEYS[1])}
`)

const defaultRedisPrefix = "contactbox:ratelimit"

// RedisLimiter is a fixed-window limiter shared by every process that talks
// to the same Redis. The window starts at an IP's first hit.
type RedisLimiter struct {
	client  *redis.Client
	prefix  string
	limit   int
	window  time.Duration
	timeout time.Duration
}

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(addr, password, prefix string, limit int, window time.Duration) (*RedisLimiter, error) {
	if err := validate(limit, window); err != nil {
		return nil, err
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisLimiter{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		prefix:  prefix,
		limit:   limit,
		window:  window,
		timeout: 2 * time.Second,
	}, nil
}

// Allow implements Limiter. Redis failures are returned as errors, so the
// caller fails closed.
func (l *RedisLimiter) Allow(ctx context.Context, ip string) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	key := fmt.Sprintf("%s:%s", l.prefix, normalizeKey(ip))
	res, err := fixedWindowScript.Run(ctx, l.client, []string{key}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return fmt.Errorf("redis rate limit: %w", err)
	}
	if len(res) != 2 {
		return fmt.Errorf("redis rate limit: unexpected reply %v", res)
	}

	if res[0] <= int64(l.limit) {
		return nil
	}
	retry := time.Duration(res[1]) * time.Millisecond
	if retry <= 0 {
		retry = l.window
	}
	return &LimitedError{Limit: l.limit, Window: l.window, RetryAfter: retry}
}

// Ping checks connectivity.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close releases the Redis connection pool.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
