package export

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hyperengineering/contactbox/internal/config"
)

// ErrNotConfigured is returned when no archive bucket is configured.
var ErrNotConfigured = errors.New("export archive storage not configured")

const defaultURLExpiry = 15 * time.Minute

// Uploader stores export files and hands out download links for them.
type Uploader interface {
	Upload(ctx context.Context, key, filePath string) error
	PresignedURL(ctx context.Context, key string) (url string, expiry time.Time, err error)
}

// s3Client is the subset of *minio.Client the S3Uploader needs.
type s3Client interface {
	FPutObject(ctx context.Context, bucket, objectName, filePath, contentType string) error
	PresignedGetObject(ctx context.Context, bucket, objectName string, expiry time.Duration) (*url.URL, error)
}

type minioClientWrapper struct {
	client *minio.Client
}

func (w *minioClientWrapper) FPutObject(ctx context.Context, bucket, objectName, filePath, contentType string) error {
	_, err := w.client.FPutObject(ctx, bucket, objectName, filePath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (w *minioClientWrapper) PresignedGetObject(ctx context.Context, bucket, objectName string, expiry time.Duration) (*url.URL, error) {
	reqParams := url.Values{}
	reqParams.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", path.Base(objectName)))
	return w.client.PresignedGetObject(ctx, bucket, objectName, expiry, reqParams)
}

// S3Uploader writes exports to an S3-compatible bucket.
type S3Uploader struct {
	client    s3Client
	bucket    string
	urlExpiry time.Duration
	now       func() time.Time
}

// Upload puts the CSV file at filePath under key.
func (u *S3Uploader) Upload(ctx context.Context, key, filePath string) error {
	if err := u.client.FPutObject(ctx, u.bucket, key, filePath, "text/csv"); err != nil {
		return fmt.Errorf("upload export to S3: %w", err)
	}
	return nil
}

// PresignedURL returns a time-limited GET URL for key.
func (u *S3Uploader) PresignedURL(ctx context.Context, key string) (string, time.Time, error) {
	presigned, err := u.client.PresignedGetObject(ctx, u.bucket, key, u.urlExpiry)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate pre-signed URL: %w", err)
	}
	return presigned.String(), u.now().Add(u.urlExpiry), nil
}

// NoopUploader is used when archiving is disabled. Every call returns ErrNotConfigured.
type NoopUploader struct{}

func (NoopUploader) Upload(context.Context, string, string) error { return ErrNotConfigured }

func (NoopUploader) PresignedURL(context.Context, string) (string, time.Time, error) {
	return "", time.Time{}, ErrNotConfigured
}

// NewUploader returns a NoopUploader when no bucket is set and an
// S3Uploader otherwise. UseSSL defaults to true.
func NewUploader(cfg config.ExportConfig) (Uploader, error) {
	if cfg.Bucket == "" {
		return NoopUploader{}, nil
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	expiry := time.Duration(cfg.URLExpiry)
	if expiry <= 0 {
		expiry = defaultURLExpiry
	}
	return &S3Uploader{
		client:    &minioClientWrapper{client: client},
		bucket:    cfg.Bucket,
		urlExpiry: expiry,
		now:       time.Now,
	}, nil
}

// Configured reports whether u writes to real storage.
func Configured(u Uploader) bool {
	if u == nil {
		return false
	}
	_, noop := u.(NoopUploader)
	return !noop
}

// ObjectKey names an export taken at t: {prefix}/submissions-20060102T150405Z.csv
func ObjectKey(prefix string, t time.Time) string {
	name := "submissions-" + t.UTC().Format("20060102T150405Z") + ".csv"
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
