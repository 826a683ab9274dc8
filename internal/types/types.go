package types

import (
	"encoding/json"
	"time"
)

// Status is the triage state of a submission.
type Status string

const (
	StatusNew      Status = "new"
	StatusRead     Status = "read"
	StatusReplied  Status = "replied"
	StatusArchived Status = "archived"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusNew, StatusRead, StatusReplied, StatusArchived}

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Priority is the urgency assigned to a submission, independent of status.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists every priority in ascending urgency.
var Priorities = []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent}

// Valid reports whether p is one of the enumerated priorities.
func (p Priority) Valid() bool {
	for _, v := range Priorities {
		if p == v {
			return true
		}
	}
	return false
}

// StatusStrings returns the status values as plain strings.
func StatusStrings() []string {
	out := make([]string, len(Statuses))
	for i, s := range Statuses {
		out[i] = string(s)
	}
	return out
}

// PriorityStrings returns the priority values as plain strings.
func PriorityStrings() []string {
	out := make([]string, len(Priorities))
	for i, p := range Priorities {
		out[i] = string(p)
	}
	return out
}

// Submission is one contact-form entry.
type Submission struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Message     string    `json:"message"`
	IPAddress   string    `json:"ip_address"`
	UserAgent   string    `json:"user_agent,omitempty"`
	Status      Status    `json:"status"`
	Priority    Priority  `json:"priority"`
	Tags        []string  `json:"tags"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// MarshalJSON ensures nil tags marshal as [] not null.
func (s Submission) MarshalJSON() ([]byte, error) {
	if s.Tags == nil {
		s.Tags = []string{}
	}
	type Alias Submission
	return json.Marshal(Alias(s))
}

// RawSubmission is the unvalidated body of a contact-form post.
type RawSubmission struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Draft is a validated, normalized submission that has not been persisted.
type Draft struct {
	Name      string
	Email     string
	Message   string
	IPAddress string
	UserAgent string
}

// ListFilter narrows a listing. Zero values match everything.
type ListFilter struct {
	Status   Status
	Priority Priority
}

// ListResult is one page of submissions plus the total matching count.
type ListResult struct {
	Submissions []Submission `json:"submissions"`
	Total       int64        `json:"total"`
	Limit       int          `json:"limit"`
	Offset      int          `json:"offset"`
	HasMore     bool         `json:"has_more"`
}

// MarshalJSON ensures nil slices in ListResult marshal as [] not null.
func (r ListResult) MarshalJSON() ([]byte, error) {
	if r.Submissions == nil {
		r.Submissions = []Submission{}
	}
	type Alias ListResult
	return json.Marshal(Alias(r))
}

// SubmissionPatch is the body of PATCH /submissions/{id}. Nil fields are left unchanged.
type SubmissionPatch struct {
	Status   *string   `json:"status,omitempty"`
	Priority *string   `json:"priority,omitempty"`
	Tags     *[]string `json:"tags,omitempty"`
}

// BulkActionDelete removes the listed submissions.
const BulkActionDelete = "delete"

// BulkActions lists every action accepted by POST /submissions/bulk. Bulk
// updates cannot move submissions back to new.
var BulkActions = []string{BulkActionDelete, string(StatusRead), string(StatusReplied), string(StatusArchived)}

// BulkRequest is the body of POST /submissions/bulk.
type BulkRequest struct {
	IDs    []int64 `json:"ids"`
	Action string  `json:"action"`
}

// BulkResult reports how many rows a bulk action touched.
type BulkResult struct {
	Action   string `json:"action"`
	Affected int64  `json:"affected"`
}

// CreatedResponse is returned by POST /submissions.
type CreatedResponse struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

// SubmissionStamp is the minimal projection used for time-bucketed analytics.
type SubmissionStamp struct {
	Email       string
	SubmittedAt time.Time
}

// SubmissionCounts are the headline counters of the analytics summary.
type SubmissionCounts struct {
	Total        int64 `json:"total"`
	Today        int64 `json:"today"`
	ThisWeek     int64 `json:"this_week"`
	UniqueEmails int64 `json:"unique_emails"`
}

// DailyCount is one calendar day in a trend series.
type DailyCount struct {
	Date         string `json:"date"`
	Count        int64  `json:"count"`
	UniqueEmails int64  `json:"unique_emails"`
}

// AnalyticsSummary is the body of GET /analytics.
type AnalyticsSummary struct {
	Submissions          SubmissionCounts `json:"submissions"`
	StatusDistribution   map[string]int64 `json:"status_distribution"`
	PriorityDistribution map[string]int64 `json:"priority_distribution"`
	DailyTrend           []DailyCount     `json:"daily_trend"`
	HourlyDistribution   map[string]int64 `json:"hourly_distribution"`
	GeneratedAt          time.Time        `json:"generated_at"`
}

// NotificationStat groups notification outcomes for reporting.
type NotificationStat struct {
	EmailType string `json:"email_type"`
	Status    string `json:"status"`
	Count     int64  `json:"count"`
}

// AdvancedAnalytics is the body of GET /analytics/advanced.
type AdvancedAnalytics struct {
	DailyTrends      []DailyCount       `json:"daily_trends"`
	EmailPerformance []NotificationStat `json:"email_performance"`
}

// MarshalJSON ensures nil slices in AdvancedAnalytics marshal as [] not null.
func (a AdvancedAnalytics) MarshalJSON() ([]byte, error) {
	if a.DailyTrends == nil {
		a.DailyTrends = []DailyCount{}
	}
	if a.EmailPerformance == nil {
		a.EmailPerformance = []NotificationStat{}
	}
	type Alias AdvancedAnalytics
	return json.Marshal(Alias(a))
}

// Audit event types recorded by the service.
const (
	EventSubmissionCreated = "submission_created"
	EventSubmissionUpdated = "submission_updated"
	EventSubmissionDeleted = "submission_deleted"
	EventBulkAction        = "bulk_action"
	EventExportDownloaded  = "export_downloaded"
	EventExportArchived    = "export_archived"
	EventRateLimited       = "rate_limited"
	EventValidationFailed  = "validation_failed"
)

// AuditEvent is an append-only diagnostic record.
type AuditEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"action"`
	Payload   json.RawMessage `json:"details"`
	IPAddress string          `json:"ip_address"`
	CreatedAt time.Time       `json:"timestamp"`
}

// Notification outcomes.
const (
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
	NotificationSkipped = "skipped"

	EmailTypeAdminAlert = "admin_alert"
)

// NotificationRecord is one attempt to deliver a submission to the notification sink.
type NotificationRecord struct {
	ID           string    `json:"id"`
	SubmissionID int64     `json:"submission_id"`
	EmailType    string    `json:"email_type"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// HealthMetrics are the submission counters reported by the health endpoint.
type HealthMetrics struct {
	TotalSubmissions   int64 `json:"total_submissions"`
	TodaySubmissions   int64 `json:"today_submissions"`
	PendingSubmissions int64 `json:"pending_submissions"`
}

// HealthServices reports the state of external collaborators.
type HealthServices struct {
	Database     string `json:"database"`
	EmailService string `json:"email_service"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status   string         `json:"status"`
	Version  string         `json:"version"`
	Metrics  HealthMetrics  `json:"metrics"`
	Services HealthServices `json:"services"`
}

// ArchiveResponse is returned after an export archive is uploaded.
type ArchiveResponse struct {
	Object    string    `json:"object"`
	Rows      int       `json:"rows"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
