package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidHandle       = errors.New("invalid handle or user not found")
	ErrUpstreamUnavailable = errors.New("codeforces API temporarily unavailable")
	ErrStudentNotFound     = errors.New("student not found")
	ErrDuplicateStudent    = errors.New("student with this handle already exists")
	ErrInvalidFileFormat   = errors.New("invalid file format")
	ErrSchemaValidation    = errors.New("schema validation failed")
	ErrQueueStopped        = errors.New("request queue stopped")
)

type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s",
		e.Field, e.Value, e.Message)
}

type RetryableError struct {
	Err     error
	Message string
}

func (e RetryableError) Error() string {
	return fmt.Sprintf("retryable error: %s - %s", e.Message, e.Err.Error())
}

func (e RetryableError) Unwrap() error {
	return e.Err
}

func NewRetryableError(err error, message string) error {
	return RetryableError{
		Err:     err,
		Message: message,
	}
}

// IsRetryable reports whether err, or anything it wraps, is a RetryableError.
func IsRetryable(err error) bool {
	var re RetryableError
	return errors.As(err, &re)
}

// UpstreamRejectedError is a non-OK response envelope that is neither a bad
// handle nor an outage.
type UpstreamRejectedError struct {
	Message string
}

func (e UpstreamRejectedError) Error() string {
	return fmt.Sprintf("codeforces API rejected request: %s", e.Message)
}

type TransportError struct {
	Err error
}

func (e TransportError) Error() string {
	return fmt.Sprintf("transport error: %s", e.Err.Error())
}

func (e TransportError) Unwrap() error {
	return e.Err
}

// SyncFailure is returned when any mandatory fetch of a student sync fails.
type SyncFailure struct {
	StudentID string
	Err       error
}

func (e SyncFailure) Error() string {
	return fmt.Sprintf("sync failed for student %s: %s", e.StudentID, e.Err.Error())
}

func (e SyncFailure) Unwrap() error {
	return e.Err
}
