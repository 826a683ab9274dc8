package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("submission not found")
	ErrInvalidStatus   = errors.New("invalid submission status")
	ErrInvalidPriority = errors.New("invalid submission priority")
)

// StorageError wraps a failure of the underlying database, including
// statement timeouts. It is the only store error treated as a server fault.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the statement exceeded its deadline.
func (e *StorageError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// IsStorageError reports whether err wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
