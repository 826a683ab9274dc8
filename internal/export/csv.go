// Package export streams submissions as CSV and archives exports to
// S3-compatible storage.
package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/hyperengineering/contactbox/internal/types"
)

// Header is the first row of every export.
var Header = []string{"id", "name", "email", "message", "ip_address", "status", "submitted_at"}

// Source yields every submission, newest first.
type Source interface {
	EachSubmission(ctx context.Context, fn func(types.Submission) error) error
}

// Row is one parsed export line.
type Row struct {
	ID          int64
	Name        string
	Email       string
	Message     string
	IPAddress   string
	Status      types.Status
	SubmittedAt time.Time
}

// WriteCSV writes the header and one row per submission to w.
// It returns the number of data rows written.
func WriteCSV(ctx context.Context, w io.Writer, src Source) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}

	rows := 0
	err := src.EachSubmission(ctx, func(s types.Submission) error {
		if err := cw.Write(record(s)); err != nil {
			return err
		}
		rows++
		// Flush periodically so large exports reach the client incrementally.
		if rows%100 == 0 {
			cw.Flush()
			return cw.Error()
		}
		return nil
	})
	if err != nil {
		return rows, fmt.Errorf("write csv rows: %w", err)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return rows, fmt.Errorf("flush csv: %w", err)
	}
	return rows, nil
}

// ReadCSV parses an export produced by WriteCSV.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty export")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i, col := range Header {
		if head[i] != col {
			return nil, fmt.Errorf("unexpected column %d: got %q, want %q", i, head[i], col)
		}
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		row, err := parseRecord(rec)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

func record(s types.Submission) []string {
	return []string{
		strconv.FormatInt(s.ID, 10),
		s.Name,
		s.Email,
		s.Message,
		s.IPAddress,
		string(s.Status),
		s.SubmittedAt.UTC().Format(time.RFC3339Nano),
	}
}

func parseRecord(rec []string) (Row, error) {
	id, err := strconv.ParseInt(rec[0], 10, 64)
	if err != nil {
		return Row{}, fmt.Errorf("parse id %q: %w", rec[0], err)
	}
	at, err := time.Parse(time.RFC3339Nano, rec[6])
	if err != nil {
		return Row{}, fmt.Errorf("parse submitted_at %q: %w", rec[6], err)
	}
	return Row{
		ID:          id,
		Name:        rec[1],
		Email:       rec[2],
		Message:     rec[3],
		IPAddress:   rec[4],
		Status:      types.Status(rec[5]),
		SubmittedAt: at,
	}, nil
}
