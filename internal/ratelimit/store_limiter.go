package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Counter is the read the store limiter needs from the submission store.
type Counter interface {
	CountByIPSince(ctx context.Context, ip string, since time.Time) (int64, *time.Time, error)
}

// StoreLimiter counts an IP's submissions already persisted in the trailing
// window. It keeps no state of its own.
//
// The check and the later insert are not atomic: concurrent submissions from
// the same IP can briefly exceed the limit.
type StoreLimiter struct {
	counter Counter
	limit   int
	window  time.Duration
	now     func() time.Time
}

// NewStoreLimiter creates a limiter over the store's own timestamps.
func NewStoreLimiter(counter Counter, limit int, window time.Duration) (*StoreLimiter, error) {
	if counter == nil {
		return nil, fmt.Errorf("rate limiter requires a counter")
	}
	if err := validate(limit, window); err != nil {
		return nil, err
	}
	return &StoreLimiter{counter: counter, limit: limit, window: window, now: time.Now}, nil
}

// WithClock overrides the limiter's time source.
func (l *StoreLimiter) WithClock(now func() time.Time) *StoreLimiter {
	l.now = now
	return l
}

// Allow implements Limiter.
func (l *StoreLimiter) Allow(ctx context.Context, ip string) error {
	now := l.now()
	count, oldest, err := l.counter.CountByIPSince(ctx, normalizeKey(ip), now.Add(-l.window))
	if err != nil {
		return fmt.Errorf("count recent submissions: %w", err)
	}
	if count < int64(l.limit) {
		return nil
	}

	retry := l.window
	if oldest != nil {
		retry = oldest.Add(l.window).Sub(now)
	}
	if retry <= 0 {
		retry = time.Second
	}
	return &LimitedError{Limit: l.limit, Window: l.window, RetryAfter: retry}
}
