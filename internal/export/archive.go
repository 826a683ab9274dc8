package export

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hyperengineering/contactbox/internal/types"
)

// Archiver writes a full export to a temporary file, uploads it and
// returns a pre-signed link to the uploaded object.
type Archiver struct {
	src      Source
	uploader Uploader
	prefix   string
	now      func() time.Time
}

// NewArchiver creates an Archiver. A nil uploader disables archiving.
func NewArchiver(src Source, uploader Uploader, prefix string) *Archiver {
	if uploader == nil {
		uploader = NoopUploader{}
	}
	return &Archiver{src: src, uploader: uploader, prefix: prefix, now: time.Now}
}

// Configured reports whether archives have somewhere to go.
func (a *Archiver) Configured() bool {
	return Configured(a.uploader)
}

// Archive exports every submission and uploads the result.
// Returns ErrNotConfigured when no bucket is configured.
func (a *Archiver) Archive(ctx context.Context) (*types.ArchiveResponse, error) {
	if !a.Configured() {
		return nil, ErrNotConfigured
	}

	f, err := os.CreateTemp("", "contactbox-export-*.csv")
	if err != nil {
		return nil, fmt.Errorf("create export file: %w", err)
	}
	defer os.Remove(f.Name())

	rows, err := WriteCSV(ctx, f, a.src)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close export file: %w", closeErr)
	}
	if err != nil {
		return nil, err
	}

	key := ObjectKey(a.prefix, a.now())
	if err := a.uploader.Upload(ctx, key, f.Name()); err != nil {
		return nil, err
	}
	link, expiry, err := a.uploader.PresignedURL(ctx, key)
	if err != nil {
		return nil, err
	}

	return &types.ArchiveResponse{
		Object:    key,
		Rows:      rows,
		URL:       link,
		ExpiresAt: expiry,
	}, nil
}
