package generation

import (
	"errors"
	"fmt"
)

// Error taxonomy for the generation pipeline. Sentinels cover the
// conditions callers branch on with errors.Is; the struct types carry
// per-occurrence detail and are matched with errors.As.

var (
	// ErrMissingCredential means no API key could be resolved. Raised
	// before any network attempt, never retried.
	ErrMissingCredential = errors.New("no API key: pass one explicitly or set it in the environment")

	// ErrEmptyRequest means the assembled message list came out empty,
	// which indicates a caller-side defect.
	ErrEmptyRequest = errors.New("request has no system prompt, user text, content items or extra messages")

	// ErrInvalidResponse means the model output did not start with the
	// expected document declaration.
	ErrInvalidResponse = errors.New("model output is not a well-formed HTML document")
)

// NotFoundError reports a referenced file path that does not exist.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("file does not exist: %s", e.Path)
}

// FileProcessingError reports a file that was found but could not be
// decoded or normalized.
type FileProcessingError struct {
	Path string
	Err  error
}

func (e *FileProcessingError) Error() string {
	return fmt.Sprintf("could not process file %s: %v", e.Path, e.Err)
}

func (e *FileProcessingError) Unwrap() error { return e.Err }

// APIError is a terminal response from the completion API. Status 0
// marks connection-level failures without an HTTP status.
type APIError struct {
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("api connection error: %v", e.Err)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// Retryable reports whether re-attempting the identical request may
// succeed: rate limiting, server-side failures, and connection-level
// errors qualify; deterministic rejections do not.
func (e *APIError) Retryable() bool {
	return e.Status == 0 || e.Status == 429 || e.Status >= 500
}

// IsRetryable reports whether err is a transient transport failure.
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable()
}
