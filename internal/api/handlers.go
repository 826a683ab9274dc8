// Package api exposes the contact-form service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/contactbox/internal/audit"
	"github.com/hyperengineering/contactbox/internal/export"
	"github.com/hyperengineering/contactbox/internal/lifecycle"
	"github.com/hyperengineering/contactbox/internal/submission"
	"github.com/hyperengineering/contactbox/internal/types"
	"github.com/hyperengineering/contactbox/internal/validation"
)

const (
	maxBodyBytes   = 64 << 10
	defaultLogSize = 50
	maxLogSize     = 200
)

// Intake accepts new submissions.
type Intake interface {
	Submit(ctx context.Context, raw types.RawSubmission, client submission.Client) (*types.Submission, error)
}

// Reader is the read side of the submission store used by the handlers.
type Reader interface {
	GetSubmission(ctx context.Context, id int64) (*types.Submission, error)
	ListSubmissions(ctx context.Context, filter types.ListFilter, limit, offset int) (*types.ListResult, error)
	EachSubmission(ctx context.Context, fn func(types.Submission) error) error
	RecentAuditEvents(ctx context.Context, limit int) ([]types.AuditEvent, error)
	Ping(ctx context.Context) error
}

// Mutator changes submission lifecycle state.
type Mutator interface {
	Apply(ctx context.Context, id int64, patch types.SubmissionPatch) (lifecycle.Result, error)
	Delete(ctx context.Context, id int64) (lifecycle.Result, error)
	Bulk(ctx context.Context, req types.BulkRequest) (lifecycle.Result, error)
}

// Analytics produces the reporting views.
type Analytics interface {
	Summary(ctx context.Context) (*types.AnalyticsSummary, error)
	Advanced(ctx context.Context) (*types.AdvancedAnalytics, error)
	HealthMetrics(ctx context.Context) (types.HealthMetrics, error)
}

// Archiver uploads full exports to object storage.
type Archiver interface {
	Configured() bool
	Archive(ctx context.Context) (*types.ArchiveResponse, error)
}

// Deps wires a Handler. Archiver and Audit may be nil.
type Deps struct {
	Intake           Intake
	Store            Reader
	Mutator          Mutator
	Analytics        Analytics
	Archiver         Archiver
	Audit            *audit.Recorder
	NotifyConfigured bool
	Version          string
}

// Handler implements the API handlers
type Handler struct {
	intake           Intake
	store            Reader
	mutator          Mutator
	analytics        Analytics
	archiver         Archiver
	audit            *audit.Recorder
	notifyConfigured bool
	version          string
	now              func() time.Time
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		intake:           d.Intake,
		store:            d.Store,
		mutator:          d.Mutator,
		analytics:        d.Analytics,
		archiver:         d.Archiver,
		audit:            d.Audit,
		notifyConfigured: d.NotifyConfigured,
		version:          d.Version,
		now:              time.Now,
	}
}

// Envelope wraps every JSON response that is not a problem document.
type Envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(Envelope{Success: status < http.StatusBadRequest, Data: data}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// decodeJSON reads a bounded JSON body into dst, writing a problem on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteProblem(w, r, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return false
	}
	return true
}

// parseID reads the {id} path parameter.
func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		WriteProblemWithErrors(w, r, "Invalid submission id", []validation.ValidationError{{
			Field:   "id",
			Reason:  validation.ReasonInvalidValue,
			Message: "must be a positive integer",
		}})
		return 0, false
	}
	return id, true
}

// writeResult maps a lifecycle outcome to a response. ok is called only on success.
func writeResult(w http.ResponseWriter, r *http.Request, res lifecycle.Result, err error, ok func()) {
	if err != nil {
		MapError(w, r, err)
		return
	}
	switch res.Outcome {
	case lifecycle.NotFound:
		WriteProblem(w, r, http.StatusNotFound, "Submission not found")
	case lifecycle.InvalidValue:
		WriteProblemWithErrors(w, r, "Request contains invalid fields", res.Errors)
	default:
		ok()
	}
}

// CreateSubmission handles POST /api/submissions
func (h *Handler) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	var raw types.RawSubmission
	if !decodeJSON(w, r, &raw) {
		return
	}

	sub, err := h.intake.Submit(r.Context(), raw, ClientFromContext(r.Context()))
	if err != nil {
		MapError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, types.CreatedResponse{
		ID:      sub.ID,
		Message: "Thank you for your message. We'll get back to you soon!",
	})
}

// ListSubmissions handles GET /api/submissions
func (h *Handler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	filter, limit, offset, errs := parseListQuery(r)
	if len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Invalid query parameters", errs)
		return
	}

	page, err := h.store.ListSubmissions(r.Context(), filter, limit, offset)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetSubmission handles GET /api/submissions/{id}
func (h *Handler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	sub, err := h.store.GetSubmission(r.Context(), id)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// UpdateSubmission handles PATCH /api/submissions/{id}
func (h *Handler) UpdateSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var patch types.SubmissionPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	res, err := h.mutator.Apply(r.Context(), id, patch)
	writeResult(w, r, res, err, func() {
		h.audit.Record(r.Context(), types.EventSubmissionUpdated, ClientFromContext(r.Context()).IP, map[string]any{
			"submission_id": id,
			"fields":        patchFields(patch),
		})
		writeJSON(w, http.StatusOK, res.Submission)
	})
}

// DeleteSubmission handles DELETE /api/submissions/{id}
func (h *Handler) DeleteSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	res, err := h.mutator.Delete(r.Context(), id)
	writeResult(w, r, res, err, func() {
		h.audit.Record(r.Context(), types.EventSubmissionDeleted, ClientFromContext(r.Context()).IP, map[string]any{
			"submission_id": id,
		})
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
	})
}

// BulkAction handles POST /api/submissions/bulk
func (h *Handler) BulkAction(w http.ResponseWriter, r *http.Request) {
	var req types.BulkRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.mutator.Bulk(r.Context(), req)
	writeResult(w, r, res, err, func() {
		h.audit.Record(r.Context(), types.EventBulkAction, ClientFromContext(r.Context()).IP, map[string]any{
			"action":    req.Action,
			"requested": len(req.IDs),
			"affected":  res.Affected,
		})
		writeJSON(w, http.StatusOK, types.BulkResult{Action: req.Action, Affected: res.Affected})
	})
}

// ExportCSV handles GET /api/submissions/export
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	filename := fmt.Sprintf("submissions-%s.csv", h.now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	tw := &trackingWriter{ResponseWriter: w}
	rows, err := export.WriteCSV(r.Context(), tw, h.store)
	if err != nil {
		if !tw.written {
			w.Header().Del("Content-Disposition")
			MapError(w, r, err)
			return
		}
		// Headers are gone; the client sees a truncated file.
		slog.Error("export stream aborted",
			"component", "api",
			"action", "export_failed",
			"rows", rows,
			"request_id", requestID(r),
			"error", err,
		)
		return
	}

	h.audit.Record(r.Context(), types.EventExportDownloaded, ClientFromContext(r.Context()).IP, map[string]any{
		"rows": rows,
	})
}

// ArchiveExport handles POST /api/submissions/export/archive
func (h *Handler) ArchiveExport(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil || !h.archiver.Configured() {
		MapError(w, r, export.ErrNotConfigured)
		return
	}

	res, err := h.archiver.Archive(r.Context())
	if err != nil {
		MapError(w, r, err)
		return
	}

	h.audit.Record(r.Context(), types.EventExportArchived, ClientFromContext(r.Context()).IP, map[string]any{
		"object":  res.Object,
		"rows":    res.Rows,
		"trigger": "manual",
	})
	writeJSON(w, http.StatusOK, res)
}

// Analytics handles GET /api/analytics
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	summary, err := h.analytics.Summary(r.Context())
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// AdvancedAnalytics handles GET /api/analytics/advanced
func (h *Handler) AdvancedAnalytics(w http.ResponseWriter, r *http.Request) {
	adv, err := h.analytics.Advanced(r.Context())
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adv)
}

// Health handles GET /api/system/health. A database failure answers 503
// with the same body shape so monitors can read it.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := types.HealthResponse{
		Status:  "healthy",
		Version: h.version,
		Services: types.HealthServices{
			Database:     "connected",
			EmailService: "not_configured",
		},
	}
	if h.notifyConfigured {
		resp.Services.EmailService = "configured"
	}

	status := http.StatusOK
	if err := h.store.Ping(r.Context()); err != nil {
		slog.Warn("health check failed",
			"component", "api",
			"action", "health_degraded",
			"error", err,
		)
		resp.Status = "unhealthy"
		resp.Services.Database = "unavailable"
		status = http.StatusServiceUnavailable
	} else if m, err := h.analytics.HealthMetrics(r.Context()); err != nil {
		slog.Warn("health metrics unavailable",
			"component", "api",
			"action", "health_degraded",
			"error", err,
		)
		resp.Status = "degraded"
	} else {
		resp.Metrics = m
	}

	writeJSON(w, status, resp)
}

// Logs handles GET /api/system/logs
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogSize
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			WriteProblemWithErrors(w, r, "Invalid query parameters", []validation.ValidationError{{
				Field:   "limit",
				Reason:  validation.ReasonInvalidValue,
				Message: "must be a positive integer",
			}})
			return
		}
		limit = min(n, maxLogSize)
	}

	events, err := h.store.RecentAuditEvents(r.Context(), limit)
	if err != nil {
		MapError(w, r, err)
		return
	}
	if events == nil {
		events = []types.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// parseListQuery reads status, priority, limit and offset.
// "all" or an empty value disables a filter; limit 0 means the default page.
func parseListQuery(r *http.Request) (types.ListFilter, int, int, []validation.ValidationError) {
	q := r.URL.Query()
	var c validation.Collector
	var filter types.ListFilter

	if v := q.Get("status"); v != "" && v != "all" {
		c.Add(validation.ValidateEnum("status", v, types.StatusStrings()))
		filter.Status = types.Status(v)
	}
	if v := q.Get("priority"); v != "" && v != "all" {
		c.Add(validation.ValidateEnum("priority", v, types.PriorityStrings()))
		filter.Priority = types.Priority(v)
	}

	limit, lerr := intParam(q.Get("limit"), "limit")
	c.Add(lerr)
	offset, oerr := intParam(q.Get("offset"), "offset")
	c.Add(oerr)

	return filter, limit, offset, c.Errors()
}

func intParam(v, field string) (int, *validation.ValidationError) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, &validation.ValidationError{
			Field:   field,
			Reason:  validation.ReasonInvalidValue,
			Message: "must be a non-negative integer",
		}
	}
	return n, nil
}

func patchFields(p types.SubmissionPatch) []string {
	var fields []string
	if p.Status != nil {
		fields = append(fields, "status")
	}
	if p.Priority != nil {
		fields = append(fields, "priority")
	}
	if p.Tags != nil {
		fields = append(fields, "tags")
	}
	return fields
}

// trackingWriter notes whether any body bytes reached the client.
type trackingWriter struct {
	http.ResponseWriter
	written bool
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	t.written = true
	return t.ResponseWriter.Write(b)
}
