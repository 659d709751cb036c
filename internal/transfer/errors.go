package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/italolelis/gumroad_downloader/internal/page"
)

// NetworkError represents connection failures, timeouts and non-success HTTP statuses.
type NetworkError struct {
	Operation  string // The operation that failed (e.g. "fetch_page", "stream_file")
	StatusCode int    // HTTP status code, 0 for transport errors
	APIMessage string
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network error during %s (HTTP %d): %s", e.Operation, e.StatusCode, e.APIMessage)
	}

	return fmt.Sprintf("network error during %s: %s", e.Operation, e.APIMessage)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// AuthenticationError means the session cookies were rejected: a 401/403, or a redirect to the login page.
type AuthenticationError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed during %s (HTTP %d)", e.Operation, e.StatusCode)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// FilesystemError represents failures creating directories or writing destination files.
type FilesystemError struct {
	Path   string
	Reason string
	Err    error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("filesystem error for '%s': %s", e.Path, e.Reason)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}

// ErrorKind buckets a task failure.
type ErrorKind string

const (
	KindNone       ErrorKind = ""
	KindNetwork    ErrorKind = "network"
	KindAuth       ErrorKind = "authentication"
	KindDecode     ErrorKind = "decode"
	KindFilesystem ErrorKind = "filesystem"
	KindStore      ErrorKind = "store"
	KindCanceled   ErrorKind = "canceled"
	KindUnknown    ErrorKind = "unknown"
)

// StoreError wraps catalog store failures met while processing a task.
type StoreError struct {
	Operation string
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("catalog store error during %s: %v", e.Operation, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Classify maps err to its ErrorKind.
func Classify(err error) ErrorKind {
	var (
		authErr   *AuthenticationError
		netErr    *NetworkError
		decodeErr *page.DecodeError
		fsErr     *FilesystemError
		storeErr  *StoreError
	)

	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.As(err, &authErr):
		return KindAuth
	case errors.As(err, &netErr):
		return KindNetwork
	case errors.As(err, &decodeErr):
		return KindDecode
	case errors.As(err, &fsErr):
		return KindFilesystem
	case errors.As(err, &storeErr):
		return KindStore
	default:
		return KindUnknown
	}
}
