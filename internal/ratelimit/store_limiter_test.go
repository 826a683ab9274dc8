package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hyperengineering/contactbox/internal/store"
	"github.com/hyperengineering/contactbox/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCounter struct {
	count  int64
	oldest *time.Time
	err    error
	since  time.Time
	ip     string
}

func (s *stubCounter) CountByIPSince(_ context.Context, ip string, since time.Time) (int64, *time.Time, error) {
	s.ip = ip
	s.since = since
	return s.count, s.oldest, s.err
}

func TestStoreLimiter_UnderLimit(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	counter := &stubCounter{count: 4}
	l, err := NewStoreLimiter(counter, 5, time.Minute)
	require.NoError(t, err)
	l.WithClock(func() time.Time { return now })

	assert.NoError(t, l.Allow(context.Background(), "10.0.0.1"))
	assert.Equal(t, "10.0.0.1", counter.ip)
	assert.True(t, counter.since.Equal(now.Add(-time.Minute)))
}

func TestStoreLimiter_AtLimitReportsRetryAfter(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	oldest := now.Add(-45 * time.Second)
	l, err := NewStoreLimiter(&stubCounter{count: 5, oldest: &oldest}, 5, time.Minute)
	require.NoError(t, err)
	l.WithClock(func() time.Time { return now })

	err = l.Allow(context.Background(), "10.0.0.1")
	le, ok := AsLimited(err)
	require.True(t, ok, "error = %v, want *LimitedError", err)
	assert.Equal(t, 15*time.Second, le.RetryAfter)
	assert.Equal(t, 15, le.RetryAfterSeconds())
	assert.Equal(t, 5, le.Limit)
}

func TestStoreLimiter_CounterFailurePropagates(t *testing.T) {
	boom := errors.New("disk I/O error")
	l, err := NewStoreLimiter(&stubCounter{err: boom}, 5, time.Minute)
	require.NoError(t, err)

	err = l.Allow(context.Background(), "10.0.0.1")
	assert.ErrorIs(t, err, boom)
	_, limited := AsLimited(err)
	assert.False(t, limited)
}

func TestStoreLimiter_EmptyIPUsesUnknownKey(t *testing.T) {
	counter := &stubCounter{}
	l, err := NewStoreLimiter(counter, 5, time.Minute)
	require.NoError(t, err)
	require.NoError(t, l.Allow(context.Background(), ""))
	assert.Equal(t, "unknown", counter.ip)
}

func TestNewStoreLimiter_RejectsBadConfig(t *testing.T) {
	_, err := NewStoreLimiter(&stubCounter{}, 0, time.Minute)
	assert.Error(t, err)
	_, err = NewStoreLimiter(&stubCounter{}, 5, 0)
	assert.Error(t, err)
	_, err = NewStoreLimiter(nil, 5, time.Minute)
	assert.Error(t, err)
}

// N+1 submissions inside the window fail; once the window passes, one succeeds.
func TestStoreLimiter_WindowAgainstRealStore(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	s, err := store.NewSQLiteStore(":memory:", store.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	l, err := NewStoreLimiter(s, DefaultLimit, DefaultWindow)
	require.NoError(t, err)
	l.WithClock(clock)

	ctx := context.Background()
	submit := func() error {
		if err := l.Allow(ctx, "203.0.113.9"); err != nil {
			return err
		}
		_, err := s.CreateSubmission(ctx, types.Draft{
			Name: "Ada", Email: "ada@example.com", Message: "hello there", IPAddress: "203.0.113.9",
		})
		return err
	}

	for i := 0; i < DefaultLimit; i++ {
		require.NoError(t, submit(), "submission %d", i+1)
		now = now.Add(time.Second)
	}

	err = submit()
	le, ok := AsLimited(err)
	require.True(t, ok, "submission %d error = %v, want RateLimited", DefaultLimit+1, err)
	assert.Greater(t, le.RetryAfter, time.Duration(0))

	// Another IP is unaffected.
	assert.NoError(t, l.Allow(ctx, "198.51.100.1"))

	now = now.Add(DefaultWindow)
	assert.NoError(t, submit())
}
