// Package analytics aggregates read-only counters and trends over stored submissions.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperengineering/contactbox/internal/types"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTrendDays   = 30
	DefaultHourlyHours = 24
	dateLayout         = "2006-01-02"
)

// Reader is the subset of the submission store analytics depends on.
type Reader interface {
	CountSubmissions(ctx context.Context) (int64, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
	CountUniqueEmails(ctx context.Context) (int64, error)
	StatusCounts(ctx context.Context) (map[types.Status]int64, error)
	PriorityCounts(ctx context.Context) (map[types.Priority]int64, error)
	SubmissionStampsSince(ctx context.Context, since time.Time) ([]types.SubmissionStamp, error)
	NotificationStats(ctx context.Context) ([]types.NotificationStat, error)
}

// Service computes aggregates as of call time. Nothing is cached.
type Service struct {
	reader      Reader
	loc         *time.Location
	now         func() time.Time
	trendDays   int
	hourlyHours int
}

// Option configures a Service.
type Option func(*Service)

// WithLocation sets the zone used for "today" and calendar-day buckets.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithWindows sets the summary's trend length in days and hourly window in hours.
func WithWindows(trendDays, hourlyHours int) Option {
	return func(s *Service) {
		if trendDays > 0 {
			s.trendDays = trendDays
		}
		if hourlyHours > 0 {
			s.hourlyHours = hourlyHours
		}
	}
}

// NewService creates an analytics service over reader.
func NewService(reader Reader, opts ...Option) *Service {
	s := &Service{
		reader:      reader,
		loc:         time.UTC,
		now:         time.Now,
		trendDays:   DefaultTrendDays,
		hourlyHours: DefaultHourlyHours,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TotalCount returns the number of stored submissions.
func (s *Service) TotalCount(ctx context.Context) (int64, error) {
	return s.reader.CountSubmissions(ctx)
}

// CountSince returns the number of submissions at or after since.
func (s *Service) CountSince(ctx context.Context, since time.Time) (int64, error) {
	return s.reader.CountSince(ctx, since)
}

// TodayCount counts submissions since local midnight.
func (s *Service) TodayCount(ctx context.Context) (int64, error) {
	return s.reader.CountSince(ctx, s.startOfDay(s.now()))
}

// WeekCount counts submissions in the rolling last 7 days.
func (s *Service) WeekCount(ctx context.Context) (int64, error) {
	return s.reader.CountSince(ctx, s.now().Add(-7*24*time.Hour))
}

// UniqueSenderCount returns the number of distinct email addresses.
func (s *Service) UniqueSenderCount(ctx context.Context) (int64, error) {
	return s.reader.CountUniqueEmails(ctx)
}

// StatusDistribution maps every status to its count, zero-filled.
func (s *Service) StatusDistribution(ctx context.Context) (map[string]int64, error) {
	counts, err := s.reader.StatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(types.Statuses))
	for _, st := range types.Statuses {
		out[string(st)] = counts[st]
	}
	return out, nil
}

// PriorityDistribution maps every priority to its count, zero-filled.
func (s *Service) PriorityDistribution(ctx context.Context) (map[string]int64, error) {
	counts, err := s.reader.PriorityCounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(types.Priorities))
	for _, p := range types.Priorities {
		out[string(p)] = counts[p]
	}
	return out, nil
}

// DailyTrend returns exactly daysBack calendar days ending with today,
// oldest first, zero-filled.
func (s *Service) DailyTrend(ctx context.Context, daysBack int) ([]types.DailyCount, error) {
	if daysBack <= 0 {
		return []types.DailyCount{}, nil
	}

	today := s.startOfDay(s.now())
	start := today.AddDate(0, 0, -(daysBack - 1))

	stamps, err := s.reader.SubmissionStampsSince(ctx, start)
	if err != nil {
		return nil, err
	}

	type bucket struct {
		count  int64
		emails map[string]struct{}
	}
	buckets := make(map[string]*bucket, daysBack)
	for _, st := range stamps {
		key := st.SubmittedAt.In(s.loc).Format(dateLayout)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{emails: make(map[string]struct{})}
			buckets[key] = b
		}
		b.count++
		b.emails[st.Email] = struct{}{}
	}

	trend := make([]types.DailyCount, 0, daysBack)
	for i := 0; i < daysBack; i++ {
		key := start.AddDate(0, 0, i).Format(dateLayout)
		dc := types.DailyCount{Date: key}
		if b, ok := buckets[key]; ok {
			dc.Count = b.count
			dc.UniqueEmails = int64(len(b.emails))
		}
		trend = append(trend, dc)
	}
	return trend, nil
}

// HourlyDistribution maps hour of day "00".."23" to the number of
// submissions over the trailing hoursBack hours.
func (s *Service) HourlyDistribution(ctx context.Context, hoursBack int) (map[string]int64, error) {
	out := make(map[string]int64, 24)
	for h := 0; h < 24; h++ {
		out[hourKey(h)] = 0
	}
	if hoursBack <= 0 {
		return out, nil
	}

	stamps, err := s.reader.SubmissionStampsSince(ctx, s.now().Add(-time.Duration(hoursBack)*time.Hour))
	if err != nil {
		return nil, err
	}
	for _, st := range stamps {
		out[hourKey(st.SubmittedAt.In(s.loc).Hour())]++
	}
	return out, nil
}

// Summary gathers every aggregate concurrently. Any failed read fails the summary.
func (s *Service) Summary(ctx context.Context) (*types.AnalyticsSummary, error) {
	summary := &types.AnalyticsSummary{GeneratedAt: s.now().UTC()}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		summary.Submissions.Total, err = s.TotalCount(ctx)
		return wrap("total", err)
	})
	g.Go(func() (err error) {
		summary.Submissions.Today, err = s.TodayCount(ctx)
		return wrap("today", err)
	})
	g.Go(func() (err error) {
		summary.Submissions.ThisWeek, err = s.WeekCount(ctx)
		return wrap("this week", err)
	})
	g.Go(func() (err error) {
		summary.Submissions.UniqueEmails, err = s.UniqueSenderCount(ctx)
		return wrap("unique emails", err)
	})
	g.Go(func() (err error) {
		summary.StatusDistribution, err = s.StatusDistribution(ctx)
		return wrap("status distribution", err)
	})
	g.Go(func() (err error) {
		summary.PriorityDistribution, err = s.PriorityDistribution(ctx)
		return wrap("priority distribution", err)
	})
	g.Go(func() (err error) {
		summary.DailyTrend, err = s.DailyTrend(ctx, s.trendDays)
		return wrap("daily trend", err)
	})
	g.Go(func() (err error) {
		summary.HourlyDistribution, err = s.HourlyDistribution(ctx, s.hourlyHours)
		return wrap("hourly distribution", err)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summary, nil
}

// Advanced returns the 30-day trend together with notification outcomes.
func (s *Service) Advanced(ctx context.Context) (*types.AdvancedAnalytics, error) {
	trend, err := s.DailyTrend(ctx, DefaultTrendDays)
	if err != nil {
		return nil, wrap("daily trend", err)
	}
	perf, err := s.reader.NotificationStats(ctx)
	if err != nil {
		return nil, wrap("email performance", err)
	}
	return &types.AdvancedAnalytics{DailyTrends: trend, EmailPerformance: perf}, nil
}

// HealthMetrics returns the counters shown by the health endpoint.
func (s *Service) HealthMetrics(ctx context.Context) (types.HealthMetrics, error) {
	var m types.HealthMetrics
	var err error
	if m.TotalSubmissions, err = s.TotalCount(ctx); err != nil {
		return m, wrap("total", err)
	}
	if m.TodaySubmissions, err = s.TodayCount(ctx); err != nil {
		return m, wrap("today", err)
	}
	statuses, err := s.reader.StatusCounts(ctx)
	if err != nil {
		return m, wrap("status counts", err)
	}
	m.PendingSubmissions = statuses[types.StatusNew]
	return m, nil
}

func (s *Service) startOfDay(t time.Time) time.Time {
	local := t.In(s.loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

func hourKey(h int) string {
	return fmt.Sprintf("%02d", h)
}

func wrap(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("analytics %s: %w", what, err)
}
