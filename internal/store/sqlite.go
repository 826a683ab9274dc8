package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperengineering/contactbox/internal/types"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so that lexical order of stored timestamps is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const (
	DefaultPageSize         = 50
	DefaultMaxPageSize      = 100
	DefaultStatementTimeout = 5 * time.Second
)

const submissionColumns = `id, name, email, message, ip_address, user_agent, status, priority, tags, submitted_at`

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore represents the SQLite-backed submission database.
type SQLiteStore struct {
	db          *sql.DB
	timeout     time.Duration
	pageSize    int
	maxPageSize int
	now         func() time.Time
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithStatementTimeout bounds every statement; zero disables the bound.
func WithStatementTimeout(d time.Duration) Option {
	return func(s *SQLiteStore) { s.timeout = d }
}

// WithPageSizes sets the default and maximum list page size.
func WithPageSizes(def, max int) Option {
	return func(s *SQLiteStore) {
		if max > 0 {
			s.maxPageSize = max
		}
		if def > 0 {
			s.pageSize = def
		}
		if s.pageSize > s.maxPageSize {
			s.pageSize = s.maxPageSize
		}
	}
}

// WithClock overrides the time source used to stamp new rows.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

// NewSQLiteStore creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every pooled connection to :memory: would be a separate empty database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return newSQLiteStore(db, opts...), nil
}

// newSQLiteStore wraps an already-migrated database handle.
func newSQLiteStore(db *sql.DB, opts ...Option) *SQLiteStore {
	s := &SQLiteStore{
		db:          db,
		timeout:     DefaultStatementTimeout,
		pageSize:    DefaultPageSize,
		maxPageSize: DefaultMaxPageSize,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return storageErr("ping", s.db.PingContext(ctx))
}

// SchemaVersion returns the applied migration version.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int64, error) {
	return SchemaVersion(ctx, s.db)
}

// PageSizes returns the default and maximum list page size.
func (s *SQLiteStore) PageSizes() (def, max int) {
	return s.pageSize, s.maxPageSize
}

func (s *SQLiteStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// CreateSubmission assigns id and submitted_at and persists the draft.
func (s *SQLiteStore) CreateSubmission(ctx context.Context, draft types.Draft) (*types.Submission, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.now().UTC()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO submissions (name, email, message, ip_address, user_agent, status, priority, tags, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, '[]', ?)
	`, draft.Name, draft.Email, draft.Message, draft.IPAddress, draft.UserAgent,
		string(types.StatusNew), string(types.PriorityNormal), now.Format(timeLayout))
	if err != nil {
		return nil, storageErr("create submission", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, storageErr("create submission", fmt.Errorf("last insert id: %w", err))
	}

	return &types.Submission{
		ID:          id,
		Name:        draft.Name,
		Email:       draft.Email,
		Message:     draft.Message,
		IPAddress:   draft.IPAddress,
		UserAgent:   draft.UserAgent,
		Status:      types.StatusNew,
		Priority:    types.PriorityNormal,
		Tags:        []string{},
		SubmittedAt: now,
	}, nil
}

// GetSubmission retrieves a submission by ID.
func (s *SQLiteStore) GetSubmission(ctx context.Context, id int64) (*types.Submission, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)

	sub, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get submission", err)
	}
	return sub, nil
}

// ListSubmissions returns one page ordered newest first plus the filtered total.
// A non-positive limit means the default page size; limits above the maximum are capped.
func (s *SQLiteStore) ListSubmissions(ctx context.Context, filter types.ListFilter, limit, offset int) (*types.ListResult, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	if filter.Priority != "" && !filter.Priority.Valid() {
		return nil, ErrInvalidPriority
	}

	limit = s.clampLimit(limit)
	if offset < 0 {
		offset = 0
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	where, args := filterClause(filter)

	// Count and page read from one snapshot.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("list submissions", fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	var total int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions`+where, args...).Scan(&total); err != nil {
		return nil, storageErr("list submissions", fmt.Errorf("count: %w", err))
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions`+where+
			` ORDER BY submitted_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, storageErr("list submissions", err)
	}
	defer rows.Close()

	subs := make([]types.Submission, 0, limit)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, storageErr("list submissions", fmt.Errorf("scan row: %w", err))
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list submissions", fmt.Errorf("iterate rows: %w", err))
	}

	return &types.ListResult{
		Submissions: subs,
		Total:       total,
		Limit:       limit,
		Offset:      offset,
		HasMore:     int64(offset+len(subs)) < total,
	}, nil
}

// EachSubmission streams every submission, newest first, to fn.
// fn must not call back into the store.
func (s *SQLiteStore) EachSubmission(ctx context.Context, fn func(types.Submission) error) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions ORDER BY submitted_at DESC, id DESC`)
	if err != nil {
		return storageErr("iterate submissions", err)
	}
	defer rows.Close()

	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return storageErr("iterate submissions", fmt.Errorf("scan row: %w", err))
		}
		if err := fn(*sub); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return storageErr("iterate submissions", fmt.Errorf("iterate rows: %w", err))
	}
	return nil
}

func (s *SQLiteStore) clampLimit(limit int) int {
	if limit <= 0 {
		return s.pageSize
	}
	if limit > s.maxPageSize {
		return s.maxPageSize
	}
	return limit
}

// filterClause builds a WHERE clause for the non-empty filter fields.
func filterClause(f types.ListFilter) (string, []any) {
	var conds []string
	var args []any
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Priority != "" {
		conds = append(conds, "priority = ?")
		args = append(args, string(f.Priority))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// scanSubmission scans a row into a Submission, handling tag JSON and timestamps.
func scanSubmission(scanner interface{ Scan(...any) error }) (*types.Submission, error) {
	var sub types.Submission
	var status, priority, tagsJSON, submittedAt string

	err := scanner.Scan(
		&sub.ID,
		&sub.Name,
		&sub.Email,
		&sub.Message,
		&sub.IPAddress,
		&sub.UserAgent,
		&status,
		&priority,
		&tagsJSON,
		&submittedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.Status = types.Status(status)
	sub.Priority = types.Priority(priority)

	sub.Tags = []string{}
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &sub.Tags); err != nil {
			return nil, fmt.Errorf("parse tags JSON: %w", err)
		}
	}

	t, err := parseTime(submittedAt)
	if err != nil {
		return nil, err
	}
	sub.SubmittedAt = t

	return &sub, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
