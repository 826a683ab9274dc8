package store

import (
	"context"
	"time"

	"github.com/hyperengineering/contactbox/internal/types"
)

// Store defines the interface contract for all submission storage operations.
// It is the single source of truth; callers never hold a private copy across a write.
type Store interface {
	CreateSubmission(ctx context.Context, draft types.Draft) (*types.Submission, error)
	GetSubmission(ctx context.Context, id int64) (*types.Submission, error)
	ListSubmissions(ctx context.Context, filter types.ListFilter, limit, offset int) (*types.ListResult, error)
	EachSubmission(ctx context.Context, fn func(types.Submission) error) error

	UpdateStatus(ctx context.Context, id int64, status types.Status) error
	UpdatePriority(ctx context.Context, id int64, priority types.Priority) error
	UpdateTags(ctx context.Context, id int64, tags []string) error
	DeleteSubmission(ctx context.Context, id int64) error
	BulkUpdateStatus(ctx context.Context, ids []int64, status types.Status) (int64, error)
	BulkDelete(ctx context.Context, ids []int64) (int64, error)

	CountSubmissions(ctx context.Context) (int64, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
	CountByIPSince(ctx context.Context, ip string, since time.Time) (int64, *time.Time, error)
	CountUniqueEmails(ctx context.Context) (int64, error)
	StatusCounts(ctx context.Context) (map[types.Status]int64, error)
	PriorityCounts(ctx context.Context) (map[types.Priority]int64, error)
	SubmissionStampsSince(ctx context.Context, since time.Time) ([]types.SubmissionStamp, error)

	RecordAuditEvent(ctx context.Context, eventType, ip string, payload any) error
	RecentAuditEvents(ctx context.Context, limit int) ([]types.AuditEvent, error)
	RecordNotification(ctx context.Context, rec types.NotificationRecord) error
	NotificationStats(ctx context.Context) ([]types.NotificationStat, error)

	Ping(ctx context.Context) error
	Close() error
}
