package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hyperengineering/contactbox/internal/types"
	"github.com/oklog/ulid/v2"
)

// RecordAuditEvent appends a diagnostic event. Events are never mutated or deleted.
func (s *SQLiteStore) RecordAuditEvent(ctx context.Context, eventType, ip string, payload any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, event_type, payload, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, ulid.Make().String(), eventType, string(data), ip, formatTime(s.now()))
	return storageErr("record audit event", err)
}

// RecentAuditEvents returns up to limit events, newest first.
func (s *SQLiteStore) RecentAuditEvents(ctx context.Context, limit int) ([]types.AuditEvent, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, payload, ip_address, created_at
		FROM audit_events
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, storageErr("recent audit events", err)
	}
	defer rows.Close()

	events := []types.AuditEvent{}
	for rows.Next() {
		var ev types.AuditEvent
		var payload, createdAt string
		if err := rows.Scan(&ev.ID, &ev.EventType, &payload, &ev.IPAddress, &createdAt); err != nil {
			return nil, storageErr("recent audit events", fmt.Errorf("scan row: %w", err))
		}
		ev.Payload = json.RawMessage(payload)
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, storageErr("recent audit events", err)
		}
		ev.CreatedAt = t
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("recent audit events", fmt.Errorf("iterate rows: %w", err))
	}
	return events, nil
}

// RecordNotification appends one notification attempt to the log.
func (s *SQLiteStore) RecordNotification(ctx context.Context, rec types.NotificationRecord) error {
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_log (id, submission_id, email_type, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.SubmissionID, rec.EmailType, rec.Status, rec.Error, formatTime(rec.CreatedAt))
	return storageErr("record notification", err)
}

// NotificationStats groups the notification log by email type and status.
func (s *SQLiteStore) NotificationStats(ctx context.Context) ([]types.NotificationStat, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT email_type, status, COUNT(*)
		FROM notification_log
		GROUP BY email_type, status
		ORDER BY email_type, status
	`)
	if err != nil {
		return nil, storageErr("notification stats", err)
	}
	defer rows.Close()

	stats := []types.NotificationStat{}
	for rows.Next() {
		var st types.NotificationStat
		if err := rows.Scan(&st.EmailType, &st.Status, &st.Count); err != nil {
			return nil, storageErr("notification stats", fmt.Errorf("scan row: %w", err))
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("notification stats", fmt.Errorf("iterate rows: %w", err))
	}
	return stats, nil
}
