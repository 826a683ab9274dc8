package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/hyperengineering/contactbox/internal/analytics"
	"github.com/hyperengineering/contactbox/internal/audit"
	"github.com/hyperengineering/contactbox/internal/export"
	"github.com/hyperengineering/contactbox/internal/lifecycle"
	"github.com/hyperengineering/contactbox/internal/notify"
	"github.com/hyperengineering/contactbox/internal/ratelimit"
	"github.com/hyperengineering/contactbox/internal/store"
	"github.com/hyperengineering/contactbox/internal/submission"
	"github.com/hyperengineering/contactbox/internal/types"
)

const testAdminKey = "test-admin-key-12345"

// fakeArchiver stands in for object storage.
type fakeArchiver struct {
	configured bool
	err        error
	calls      int
}

func (f *fakeArchiver) Configured() bool { return f.configured }

func (f *fakeArchiver) Archive(ctx context.Context) (*types.ArchiveResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &types.ArchiveResponse{
		Object:    "exports/submissions-20260101T000000Z.csv",
		Rows:      2,
		URL:       "https://s3.example.com/exports/x.csv",
		ExpiresAt: time.Date(2026, 1, 1, 0, 15, 0, 0, time.UTC),
	}, nil
}

type testEnv struct {
	store    *store.SQLiteStore
	archiver *fakeArchiver
	router   http.Handler
}

type envOption func(*RouterOptions, *Deps)

func withAdminKey(key string) envOption {
	return func(o *RouterOptions, _ *Deps) { o.AdminAPIKey = key }
}

func withTrustedProxies(n int) envOption {
	return func(o *RouterOptions, _ *Deps) { o.TrustedProxies = n }
}

func withArchiver(a Archiver) envOption {
	return func(_ *RouterOptions, d *Deps) { d.Archiver = a }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	limiter, err := ratelimit.NewStoreLimiter(s, ratelimit.DefaultLimit, ratelimit.DefaultWindow)
	if err != nil {
		t.Fatalf("NewStoreLimiter() error = %v", err)
	}
	dispatcher := notify.NewDispatcher(notify.Noop{}, s, logger, time.Second)
	t.Cleanup(dispatcher.Close)

	recorder := audit.NewRecorder(s, logger)
	archiver := &fakeArchiver{}
	deps := Deps{
		Intake: submission.NewService(submission.Config{
			Store:    s,
			Limiter:  limiter,
			Notifier: dispatcher,
			Audit:    recorder,
			Logger:   logger,
		}),
		Store:            s,
		Mutator:          lifecycle.NewMutator(s),
		Analytics:        analytics.NewService(s),
		Archiver:         archiver,
		Audit:            recorder,
		NotifyConfigured: dispatcher.Configured(),
		Version:          "test",
	}
	var ro RouterOptions
	for _, o := range opts {
		o(&ro, &deps)
	}

	return &testEnv{
		store:    s,
		archiver: archiver,
		router:   NewRouter(NewHandler(deps), ro),
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	return e.doFrom(t, "", method, path, body, headers...)
}

// doFrom sends the request from remoteAddr; empty keeps the httptest default.
func (e *testEnv) doFrom(t *testing.T, remoteAddr, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) seed(t *testing.T, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		sub, err := e.store.CreateSubmission(context.Background(), types.Draft{
			Name:      fmt.Sprintf("Sender %d", i),
			Email:     fmt.Sprintf("sender%d@example.com", i),
			Message:   "Hello there, this is a message.",
			IPAddress: "10.0.0.1",
		})
		if err != nil {
			t.Fatalf("CreateSubmission() error = %v", err)
		}
		ids = append(ids, sub.ID)
	}
	return ids
}

// decodeData unwraps the success envelope into dst.
func decodeData(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if !env.Success {
		t.Fatalf("success = false, body data = %s", env.Data)
	}
	if dst != nil {
		if err := json.Unmarshal(env.Data, dst); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) ProblemWithErrors {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q, want application/problem+json", ct)
	}
	var p ProblemWithErrors
	if err := json.NewDecoder(w.Body).Decode(&p); err != nil {
		t.Fatalf("decode problem: %v", err)
	}
	return p
}

const validBody = `{"name":"  Ada Lovelace ","email":"ada@example.com","message":"I would like to discuss engines."}`

func TestCreateSubmission_Created(t *testing.T) {
	env := newTestEnv(t, withTrustedProxies(1))

	w := env.doFrom(t, "10.0.0.254:40000", http.MethodPost, "/api/submissions", validBody,
		"X-Forwarded-For", "203.0.113.9",
		"User-Agent", "contact-form/1.0",
	)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body = %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var created types.CreatedResponse
	decodeData(t, w, &created)
	if created.ID <= 0 {
		t.Fatalf("id = %d, want positive", created.ID)
	}

	sub, err := env.store.GetSubmission(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetSubmission() error = %v", err)
	}
	if sub.Name != "Ada Lovelace" {
		t.Errorf("Name = %q, want trimmed", sub.Name)
	}
	if sub.IPAddress != "203.0.113.9" {
		t.Errorf("IPAddress = %q, want 203.0.113.9", sub.IPAddress)
	}
	if sub.UserAgent != "contact-form/1.0" {
		t.Errorf("UserAgent = %q", sub.UserAgent)
	}
	if sub.Status != types.StatusNew || sub.Priority != types.PriorityNormal {
		t.Errorf("Status/Priority = %s/%s, want new/normal", sub.Status, sub.Priority)
	}
}

func TestCreateSubmission_InvalidEmail(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/submissions",
		`{"name":"Ada","email":"ada-at-example","message":"Long enough message"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	p := decodeProblem(t, w)
	if len(p.Errors) != 1 || p.Errors[0].Field != "email" || p.Errors[0].Reason != "InvalidEmail" {
		t.Errorf("errors = %+v, want one InvalidEmail on email", p.Errors)
	}

	total, _ := env.store.CountSubmissions(context.Background())
	if total != 0 {
		t.Errorf("persisted %d rows, want 0", total)
	}
}

func TestCreateSubmission_MessageBoundary(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/submissions", `{"name":"A","email":"a@b.co","message":"12345678"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("8 chars: status = %d, want 400", w.Code)
	}
	if p := decodeProblem(t, w); p.Errors[0].Reason != "MessageTooShort" {
		t.Errorf("reason = %q, want MessageTooShort", p.Errors[0].Reason)
	}

	w = env.do(t, http.MethodPost, "/api/submissions", `{"name":"A","email":"a@b.co","message":"1234567890"}`)
	if w.Code != http.StatusCreated {
		t.Errorf("10 chars: status = %d, want 201", w.Code)
	}
}

func TestCreateSubmission_MalformedJSON(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/submissions", `{"name":`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreateSubmission_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t)

	big := `{"name":"A","email":"a@b.co","message":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	w := env.do(t, http.MethodPost, "/api/submissions", big)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}
}

func TestCreateSubmission_RateLimited(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < ratelimit.DefaultLimit; i++ {
		w := env.do(t, http.MethodPost, "/api/submissions", validBody)
		if w.Code != http.StatusCreated {
			t.Fatalf("submission %d: status = %d, want 201", i+1, w.Code)
		}
	}

	w := env.do(t, http.MethodPost, "/api/submissions", validBody)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retry < 1 || retry > 60 {
		t.Errorf("Retry-After = %q, want 1..60", w.Header().Get("Retry-After"))
	}
	var p RateLimitProblem
	if err := json.NewDecoder(w.Body).Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.RetryAfter != retry {
		t.Errorf("retry_after = %d, want %d", p.RetryAfter, retry)
	}

	// A different client is unaffected.
	w = env.doFrom(t, "198.51.100.7:1234", http.MethodPost, "/api/submissions", validBody)
	if w.Code != http.StatusCreated {
		t.Errorf("other ip: status = %d, want 201", w.Code)
	}
}

func TestCreateSubmission_RateLimitIgnoresForwardedHeaders(t *testing.T) {
	env := newTestEnv(t)

	accepted := 0
	for i := 0; i < 20; i++ {
		w := env.doFrom(t, "192.0.2.50:5000", http.MethodPost, "/api/submissions", validBody,
			"X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i),
			"X-Real-IP", fmt.Sprintf("203.0.113.%d", i),
		)
		switch w.Code {
		case http.StatusCreated:
			accepted++
		case http.StatusTooManyRequests:
		default:
			t.Fatalf("request %d: status = %d", i, w.Code)
		}
	}
	if accepted != ratelimit.DefaultLimit {
		t.Errorf("accepted = %d, want %d", accepted, ratelimit.DefaultLimit)
	}
}

func TestCreateSubmission_RateLimitBehindTrustedProxy(t *testing.T) {
	env := newTestEnv(t, withTrustedProxies(1))
	const proxy = "10.0.0.254:40000"

	// The client controls everything left of the proxy's own entry.
	for i := 0; i < ratelimit.DefaultLimit; i++ {
		w := env.doFrom(t, proxy, http.MethodPost, "/api/submissions", validBody,
			"X-Forwarded-For", fmt.Sprintf("198.51.100.%d, 203.0.113.9", i))
		if w.Code != http.StatusCreated {
			t.Fatalf("submission %d: status = %d, want 201", i+1, w.Code)
		}
	}
	w := env.doFrom(t, proxy, http.MethodPost, "/api/submissions", validBody,
		"X-Forwarded-For", "198.51.100.99, 203.0.113.9")
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}

	// Another real client behind the same proxy is unaffected.
	w = env.doFrom(t, proxy, http.MethodPost, "/api/submissions", validBody,
		"X-Forwarded-For", "203.0.113.10")
	if w.Code != http.StatusCreated {
		t.Errorf("other client: status = %d, want 201", w.Code)
	}
}

func TestListSubmissions_Filters(t *testing.T) {
	env := newTestEnv(t)
	ids := env.seed(t, 4)
	ctx := context.Background()
	env.store.UpdateStatus(ctx, ids[0], types.StatusArchived)
	env.store.UpdateStatus(ctx, ids[2], types.StatusArchived)

	tests := []struct {
		query     string
		wantTotal int64
	}{
		{"", 4},
		{"?status=all&priority=all", 4},
		{"?status=archived", 2},
		{"?status=new", 2},
		{"?priority=urgent", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/submissions"+tt.query, "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			var page types.ListResult
			decodeData(t, w, &page)
			if page.Total != tt.wantTotal {
				t.Errorf("total = %d, want %d", page.Total, tt.wantTotal)
			}
			if len(page.Submissions) != int(tt.wantTotal) {
				t.Errorf("len = %d, want %d", len(page.Submissions), tt.wantTotal)
			}
		})
	}
}

func TestListSubmissions_Pagination(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, 5)

	w := env.do(t, http.MethodGet, "/api/submissions?limit=2&offset=2", "")
	var page types.ListResult
	decodeData(t, w, &page)

	if page.Limit != 2 || page.Offset != 2 {
		t.Errorf("limit/offset = %d/%d, want 2/2", page.Limit, page.Offset)
	}
	if len(page.Submissions) != 2 || !page.HasMore {
		t.Errorf("len = %d has_more = %v, want 2 true", len(page.Submissions), page.HasMore)
	}
}

func TestListSubmissions_InvalidQuery(t *testing.T) {
	env := newTestEnv(t)

	for _, q := range []string{"?status=spam", "?priority=meh", "?limit=-1", "?offset=abc"} {
		w := env.do(t, http.MethodGet, "/api/submissions"+q, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, w.Code)
		}
	}
}

func TestGetSubmission(t *testing.T) {
	env := newTestEnv(t)
	ids := env.seed(t, 1)

	w := env.do(t, http.MethodGet, fmt.Sprintf("/api/submissions/%d", ids[0]), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var sub types.Submission
	decodeData(t, w, &sub)
	if sub.ID != ids[0] || sub.Tags == nil {
		t.Errorf("got %+v", sub)
	}

	if w := env.do(t, http.MethodGet, "/api/submissions/999", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing: status = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/submissions/abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", w.Code)
	}
}

func TestUpdateSubmission(t *testing.T) {
	env := newTestEnv(t)
	ids := env.seed(t, 1)
	path := fmt.Sprintf("/api/submissions/%d", ids[0])

	w := env.do(t, http.MethodPatch, path, `{"status":"replied","priority":"high","tags":[" sales ","sales",""]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", w.Code, w.Body.String())
	}
	var sub types.Submission
	decodeData(t, w, &sub)
	if sub.Status != types.StatusReplied || sub.Priority != types.PriorityHigh {
		t.Errorf("status/priority = %s/%s", sub.Status, sub.Priority)
	}
	if len(sub.Tags) != 1 || sub.Tags[0] != "sales" {
		t.Errorf("tags = %v, want [sales]", sub.Tags)
	}

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"invalid status", path, `{"status":"spam"}`, http.StatusBadRequest},
		{"empty patch", path, `{}`, http.StatusBadRequest},
		{"missing row", "/api/submissions/999", `{"status":"read"}`, http.StatusNotFound},
		{"bad json", path, `not-json`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(t, http.MethodPatch, tt.path, tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestDeleteSubmission(t *testing.T) {
	env := newTestEnv(t)
	ids := env.seed(t, 1)
	path := fmt.Sprintf("/api/submissions/%d", ids[0])

	if w := env.do(t, http.MethodDelete, path, ""); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w := env.do(t, http.MethodDelete, path, ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want 404", w.Code)
	}
}

func TestBulkAction(t *testing.T) {
	env := newTestEnv(t)
	ids := env.seed(t, 3)

	body := fmt.Sprintf(`{"ids":[%d,%d,999],"action":"archived"}`, ids[0], ids[1])
	w := env.do(t, http.MethodPost, "/api/submissions/bulk", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var res types.BulkResult
	decodeData(t, w, &res)
	if res.Affected != 2 {
		t.Errorf("affected = %d, want 2", res.Affected)
	}

	body = fmt.Sprintf(`{"ids":[%d,%d,999],"action":"delete"}`, ids[0], ids[1])
	w = env.do(t, http.MethodPost, "/api/submissions/bulk", body)
	decodeData(t, w, &res)
	if res.Affected != 2 {
		t.Errorf("delete affected = %d, want 2", res.Affected)
	}
	total, _ := env.store.CountSubmissions(context.Background())
	if total != 1 {
		t.Errorf("remaining = %d, want 1", total)
	}

	for _, bad := range []string{`{"ids":[],"action":"delete"}`, `{"ids":[1],"action":"explode"}`} {
		if w := env.do(t, http.MethodPost, "/api/submissions/bulk", bad); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", bad, w.Code)
		}
	}
}

func TestExportCSV(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, 3)

	w := env.do(t, http.MethodGet, "/api/submissions/export", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	body := w.Body.String()
	if !strings.HasPrefix(body, "id,name,email,message,ip_address,status,submitted_at\n") {
		t.Errorf("missing header row: %q", body)
	}
	rows, err := export.ReadCSV(bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("rows = %d, want 3", len(rows))
	}

	events, _ := env.store.RecentAuditEvents(context.Background(), 1)
	if len(events) != 1 || events[0].EventType != types.EventExportDownloaded {
		t.Errorf("latest audit event = %+v, want export_downloaded", events)
	}
}

func TestArchiveExport(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/submissions/export/archive", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("unconfigured: status = %d, want 503", w.Code)
	}

	env.archiver.configured = true
	w = env.do(t, http.MethodPost, "/api/submissions/export/archive", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var res types.ArchiveResponse
	decodeData(t, w, &res)
	if res.Rows != 2 || res.URL == "" {
		t.Errorf("archive = %+v", res)
	}

	env.archiver.err = errors.New("bucket gone")
	w = env.do(t, http.MethodPost, "/api/submissions/export/archive", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("failure: status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "bucket gone") {
		t.Error("internal error text leaked to client")
	}
}

func TestArchiveExport_NilArchiver(t *testing.T) {
	env := newTestEnv(t, withArchiver(nil))

	if w := env.do(t, http.MethodPost, "/api/submissions/export/archive", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestAnalytics(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, 3)

	w := env.do(t, http.MethodGet, "/api/analytics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var summary types.AnalyticsSummary
	decodeData(t, w, &summary)
	if summary.Submissions.Total != 3 || summary.Submissions.Today != 3 {
		t.Errorf("counts = %+v", summary.Submissions)
	}
	if summary.StatusDistribution["new"] != 3 || summary.StatusDistribution["archived"] != 0 {
		t.Errorf("status distribution = %v", summary.StatusDistribution)
	}
	if len(summary.DailyTrend) != analytics.DefaultTrendDays {
		t.Errorf("trend days = %d, want %d", len(summary.DailyTrend), analytics.DefaultTrendDays)
	}
	if len(summary.HourlyDistribution) != 24 {
		t.Errorf("hourly keys = %d, want 24", len(summary.HourlyDistribution))
	}
}

func TestAdvancedAnalytics(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/analytics/advanced", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var adv struct {
		DailyTrends      []types.DailyCount       `json:"daily_trends"`
		EmailPerformance []types.NotificationStat `json:"email_performance"`
	}
	decodeData(t, w, &adv)
	if len(adv.DailyTrends) != 30 {
		t.Errorf("daily_trends = %d, want 30", len(adv.DailyTrends))
	}
	if adv.EmailPerformance == nil {
		t.Error("email_performance should be [] not null")
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, 2)

	w := env.do(t, http.MethodGet, "/api/system/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var health types.HealthResponse
	decodeData(t, w, &health)
	if health.Status != "healthy" || health.Version != "test" {
		t.Errorf("health = %+v", health)
	}
	if health.Metrics.TotalSubmissions != 2 || health.Metrics.PendingSubmissions != 2 {
		t.Errorf("metrics = %+v", health.Metrics)
	}
	if health.Services.EmailService != "not_configured" {
		t.Errorf("email_service = %q, want not_configured", health.Services.EmailService)
	}

	env.store.Close()
	w = env.do(t, http.MethodGet, "/api/system/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("closed store: status = %d, want 503", w.Code)
	}
}

func TestLogs(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		env.do(t, http.MethodPost, "/api/submissions", `{"name":"A","email":"bad","message":"short"}`)
	}

	w := env.do(t, http.MethodGet, "/api/system/logs?limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var events []types.AuditEvent
	decodeData(t, w, &events)
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].EventType != types.EventValidationFailed {
		t.Errorf("action = %q, want validation_failed", events[0].EventType)
	}

	if w := env.do(t, http.MethodGet, "/api/system/logs?limit=zero", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d, want 400", w.Code)
	}
}

func TestStorageFailure_Returns500WithoutDetail(t *testing.T) {
	env := newTestEnv(t)
	env.store.Close()

	w := env.do(t, http.MethodGet, "/api/submissions", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	p := decodeProblem(t, w)
	if p.Detail != "Internal Server Error" {
		t.Errorf("detail = %q, want generic message", p.Detail)
	}
}

func TestAdminRoutes_RequireKey(t *testing.T) {
	env := newTestEnv(t, withAdminKey(testAdminKey))

	if w := env.do(t, http.MethodGet, "/api/submissions", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no key: status = %d, want 401", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/submissions", "", "Authorization", "Bearer wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/submissions", "", "Authorization", "Bearer "+testAdminKey); w.Code != http.StatusOK {
		t.Errorf("bearer: status = %d, want 200", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/analytics", "", "X-API-Key", testAdminKey); w.Code != http.StatusOK {
		t.Errorf("x-api-key: status = %d, want 200", w.Code)
	}

	// Intake and health stay public.
	if w := env.do(t, http.MethodPost, "/api/submissions", validBody); w.Code != http.StatusCreated {
		t.Errorf("public submit: status = %d, want 201", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/system/health", ""); w.Code != http.StatusOK {
		t.Errorf("public health: status = %d, want 200", w.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodOptions, "/api/submissions", "",
		"Origin", "https://site.example",
		"Access-Control-Request-Method", http.MethodPost,
	)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}
