package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hyperengineering/contactbox/internal/types"
)

// UpdateStatus sets the status of one submission.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id int64, status types.Status) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	return s.updateColumn(ctx, "update status", `UPDATE submissions SET status = ? WHERE id = ?`, string(status), id)
}

// UpdatePriority sets the priority of one submission.
func (s *SQLiteStore) UpdatePriority(ctx context.Context, id int64, priority types.Priority) error {
	if !priority.Valid() {
		return ErrInvalidPriority
	}
	return s.updateColumn(ctx, "update priority", `UPDATE submissions SET priority = ? WHERE id = ?`, string(priority), id)
}

// UpdateTags replaces the tag set of one submission.
func (s *SQLiteStore) UpdateTags(ctx context.Context, id int64, tags []string) error {
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	return s.updateColumn(ctx, "update tags", `UPDATE submissions SET tags = ? WHERE id = ?`, string(tagsJSON), id)
}

// DeleteSubmission permanently removes one submission.
func (s *SQLiteStore) DeleteSubmission(ctx context.Context, id int64) error {
	return s.updateColumn(ctx, "delete submission", `DELETE FROM submissions WHERE id = ?`, id)
}

func (s *SQLiteStore) updateColumn(ctx context.Context, op, query string, args ...any) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storageErr(op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageErr(op, fmt.Errorf("get rows affected: %w", err))
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// BulkUpdateStatus sets status on every listed id that exists, in one transaction.
// Missing ids are not an error; they are simply not counted.
func (s *SQLiteStore) BulkUpdateStatus(ctx context.Context, ids []int64, status types.Status) (int64, error) {
	if !status.Valid() {
		return 0, ErrInvalidStatus
	}
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	return s.bulkExec(ctx, "bulk update status",
		`UPDATE submissions SET status = ? WHERE id IN (`+placeholders(len(ids))+`)`,
		append([]any{string(status)}, idArgs(ids)...))
}

// BulkDelete removes every listed id that exists, in one transaction.
func (s *SQLiteStore) BulkDelete(ctx context.Context, ids []int64) (int64, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	return s.bulkExec(ctx, "bulk delete",
		`DELETE FROM submissions WHERE id IN (`+placeholders(len(ids))+`)`,
		idArgs(ids))
}

// bulkExec runs query inside a transaction; on any failure nothing is applied.
func (s *SQLiteStore) bulkExec(ctx context.Context, op, query string, args []any) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr(op, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	affected, err := execAffected(ctx, tx, query, args)
	if err != nil {
		return 0, storageErr(op, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, storageErr(op, fmt.Errorf("commit transaction: %w", err))
	}
	return affected, nil
}

func execAffected(ctx context.Context, tx *sql.Tx, query string, args []any) (int64, error) {
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
