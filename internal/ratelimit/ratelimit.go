// Package ratelimit throttles submissions per client IP over a trailing window.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultLimit is the number of submissions one IP may make per window.
	DefaultLimit = 5
	// DefaultWindow is the trailing rate window.
	DefaultWindow = time.Minute
)

// Limiter decides whether ip may submit now.
// It returns nil when allowed, a *LimitedError when throttled, and any other
// error when the backing state could not be read.
type Limiter interface {
	Allow(ctx context.Context, ip string) error
}

// LimitedError reports that the caller exceeded the limit.
type LimitedError struct {
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *LimitedError) Error() string {
	return fmt.Sprintf("rate limited: %d submissions per %s, retry after %s", e.Limit, e.Window, e.RetryAfter)
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1.
func (e *LimitedError) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// AsLimited extracts a *LimitedError from err.
func AsLimited(err error) (*LimitedError, bool) {
	var le *LimitedError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

func validate(limit int, window time.Duration) error {
	if limit <= 0 || window <= 0 {
		return errors.New("rate limiter requires positive limit and window")
	}
	return nil
}

func normalizeKey(ip string) string {
	if ip == "" {
		return "unknown"
	}
	return ip
}

// Noop allows everything.
type Noop struct{}

// Allow always returns nil.
func (Noop) Allow(context.Context, string) error { return nil }
