// Package errors provides coded errors for the offline core. Codes are
// what the UI layer keys degraded-mode indicators off; raw error text
// is never shown to a technician in the field.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies a failure for display purposes.
type ErrorCode string

const (
	// Store errors
	ErrStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrMigrationFailed  ErrorCode = "MIGRATION_FAILED"
	ErrNotFound         ErrorCode = "NOT_FOUND"

	// Sync errors. Remote rejections and connectivity failures share
	// SYNC_FAILED: the queue retains and retries both identically.
	ErrSyncInProgress ErrorCode = "SYNC_IN_PROGRESS"
	ErrSyncOffline    ErrorCode = "SYNC_OFFLINE"
	ErrSyncFailed     ErrorCode = "SYNC_FAILED"

	// Request errors
	ErrInvalid ErrorCode = "INVALID_INPUT"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error carries a specific code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
