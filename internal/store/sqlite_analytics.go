package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hyperengineering/contactbox/internal/types"
)

// CountSubmissions returns the number of stored submissions.
func (s *SQLiteStore) CountSubmissions(ctx context.Context) (int64, error) {
	return s.count(ctx, "count submissions", `SELECT COUNT(*) FROM submissions`)
}

// CountSince returns the number of submissions at or after since.
func (s *SQLiteStore) CountSince(ctx context.Context, since time.Time) (int64, error) {
	return s.count(ctx, "count since", `SELECT COUNT(*) FROM submissions WHERE submitted_at >= ?`, formatTime(since))
}

// CountUniqueEmails returns the number of distinct sender addresses.
func (s *SQLiteStore) CountUniqueEmails(ctx context.Context) (int64, error) {
	return s.count(ctx, "count unique emails", `SELECT COUNT(DISTINCT email) FROM submissions`)
}

// CountByIPSince returns how many submissions came from ip at or after since,
// and the timestamp of the oldest of them (nil when the count is zero).
func (s *SQLiteStore) CountByIPSince(ctx context.Context, ip string, since time.Time) (int64, *time.Time, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var count int64
	var oldest sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(submitted_at)
		FROM submissions
		WHERE ip_address = ? AND submitted_at >= ?
	`, ip, formatTime(since)).Scan(&count, &oldest)
	if err != nil {
		return 0, nil, storageErr("count by ip", err)
	}

	if !oldest.Valid {
		return count, nil, nil
	}
	t, err := parseTime(oldest.String)
	if err != nil {
		return 0, nil, storageErr("count by ip", err)
	}
	return count, &t, nil
}

// StatusCounts returns the number of submissions per status, zero-filled.
func (s *SQLiteStore) StatusCounts(ctx context.Context) (map[types.Status]int64, error) {
	grouped, err := s.groupCount(ctx, "status counts", `SELECT status, COUNT(*) FROM submissions GROUP BY status`)
	if err != nil {
		return nil, err
	}
	out := make(map[types.Status]int64, len(types.Statuses))
	for _, st := range types.Statuses {
		out[st] = grouped[string(st)]
	}
	return out, nil
}

// PriorityCounts returns the number of submissions per priority, zero-filled.
func (s *SQLiteStore) PriorityCounts(ctx context.Context) (map[types.Priority]int64, error) {
	grouped, err := s.groupCount(ctx, "priority counts", `SELECT priority, COUNT(*) FROM submissions GROUP BY priority`)
	if err != nil {
		return nil, err
	}
	out := make(map[types.Priority]int64, len(types.Priorities))
	for _, p := range types.Priorities {
		out[p] = grouped[string(p)]
	}
	return out, nil
}

// SubmissionStampsSince returns (email, submitted_at) for every submission at
// or after since, oldest first. Bucketing happens in the caller's time zone.
func (s *SQLiteStore) SubmissionStampsSince(ctx context.Context, since time.Time) ([]types.SubmissionStamp, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT email, submitted_at
		FROM submissions
		WHERE submitted_at >= ?
		ORDER BY submitted_at ASC
	`, formatTime(since))
	if err != nil {
		return nil, storageErr("submission stamps", err)
	}
	defer rows.Close()

	var stamps []types.SubmissionStamp
	for rows.Next() {
		var email, submittedAt string
		if err := rows.Scan(&email, &submittedAt); err != nil {
			return nil, storageErr("submission stamps", fmt.Errorf("scan row: %w", err))
		}
		t, err := parseTime(submittedAt)
		if err != nil {
			return nil, storageErr("submission stamps", err)
		}
		stamps = append(stamps, types.SubmissionStamp{Email: email, SubmittedAt: t})
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("submission stamps", fmt.Errorf("iterate rows: %w", err))
	}
	return stamps, nil
}

func (s *SQLiteStore) count(ctx context.Context, op, query string, args ...any) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, storageErr(op, err)
	}
	return n, nil
}

func (s *SQLiteStore) groupCount(ctx context.Context, op, query string) (map[string]int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, storageErr(op, fmt.Errorf("scan row: %w", err))
		}
		out[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, fmt.Errorf("iterate rows: %w", err))
	}
	return out, nil
}
