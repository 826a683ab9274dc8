// Package worker runs background jobs alongside the HTTP server.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hyperengineering/contactbox/internal/types"
)

// Archiver produces one export archive per call.
type Archiver interface {
	Archive(ctx context.Context) (*types.ArchiveResponse, error)
}

// AuditRecorder records archive events. It may be nil.
type AuditRecorder interface {
	Record(ctx context.Context, eventType, ip string, payload any)
}

// ExportCoordinator archives the full submission export on an interval.
type ExportCoordinator struct {
	archiver Archiver
	audit    AuditRecorder
	interval time.Duration
	logger   *slog.Logger
}

// NewExportCoordinator creates a coordinator that calls archiver every interval.
func NewExportCoordinator(archiver Archiver, interval time.Duration, audit AuditRecorder, logger *slog.Logger) *ExportCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportCoordinator{
		archiver: archiver,
		audit:    audit,
		interval: interval,
		logger:   logger.With("component", "worker", "worker", "export-coordinator"),
	}
}

// Run archives immediately, then on every tick until ctx is cancelled.
func (c *ExportCoordinator) Run(ctx context.Context) {
	c.logger.Info("worker started",
		"action", "worker_started",
		"interval", c.interval.String(),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.archiveOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("worker stopped",
				"action", "worker_stopped",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.archiveOnce(ctx)
		}
	}
}

// archiveOnce runs a single archive. Failures are logged; the next tick retries.
func (c *ExportCoordinator) archiveOnce(ctx context.Context) bool {
	start := time.Now()
	res, err := c.archiver.Archive(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		c.logger.Warn("export archive failed",
			"action", "archive_failed",
			"error", err,
		)
		return false
	}

	c.logger.Info("export archived",
		"action", "archive_complete",
		"object", res.Object,
		"rows", res.Rows,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if c.audit != nil {
		c.audit.Record(ctx, types.EventExportArchived, "", map[string]any{
			"object":  res.Object,
			"rows":    res.Rows,
			"trigger": "scheduled",
		})
	}
	return true
}
