package model

import (
	"errors"
	"fmt"
)

var (
	ErrMissingOwner         = errors.New("missing userid")
	ErrUnsupportedMediaType = errors.New("content type must be application/json")
	ErrInvalidPayload       = errors.New("body is not valid JSON")
	ErrInvalidIdentifier    = errors.New("identifier is not a safe path segment")
	ErrAlreadyExists        = errors.New("document already exists")
	ErrNotFound             = errors.New("no content stored for owner")
	ErrPartialFailure       = errors.New("owner content was only partially deleted")
	ErrStorageFailure       = errors.New("storage failure")
)

// StorageError wraps a filesystem failure. It matches ErrStorageFailure with
// errors.Is and still unwraps to the underlying cause.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorageFailure, e.Err}
}

// IsClientError reports whether err was caused by caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMissingOwner) ||
		errors.Is(err, ErrUnsupportedMediaType) ||
		errors.Is(err, ErrInvalidPayload) ||
		errors.Is(err, ErrInvalidIdentifier)
}
