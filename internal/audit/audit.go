// Package audit records append-only diagnostic events. Recording never fails
// the caller: errors are logged and dropped.
package audit

import (
	"context"
	"log/slog"
)

// Appender persists one audit event.
type Appender interface {
	RecordAuditEvent(ctx context.Context, eventType, ip string, payload any) error
}

// Recorder writes audit events through an Appender.
type Recorder struct {
	appender Appender
	logger   *slog.Logger
}

// NewRecorder creates a Recorder. A nil logger uses slog.Default().
func NewRecorder(appender Appender, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{appender: appender, logger: logger}
}

// Record appends an event. A nil Recorder or Appender is a no-op.
func (r *Recorder) Record(ctx context.Context, eventType, ip string, payload any) {
	if r == nil || r.appender == nil {
		return
	}
	if err := r.appender.RecordAuditEvent(ctx, eventType, ip, payload); err != nil {
		r.logger.Warn("audit event dropped",
			"component", "audit",
			"action", "record_failed",
			"event_type", eventType,
			"error", err,
		)
	}
}
