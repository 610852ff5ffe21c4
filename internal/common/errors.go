// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Storage errors.
	ErrNotFound          = errors.New("not found")
	ErrDatabaseCorrupted = errors.New("database corrupted")
	ErrPersistenceWrite  = errors.New("persistence write failed")

	// Image source and recognition errors.
	ErrPermissionDenied = errors.New("permission denied")
	ErrDecode           = errors.New("image decode failed")
	ErrRecognition      = errors.New("text recognition failed")
	ErrDelete           = errors.New("image delete failed")

	// Pattern and search domain errors.
	ErrInvalidExpression = errors.New("invalid pattern expression")
	ErrBuiltIn           = errors.New("built-in entries cannot be deleted")

	// Processing errors.
	ErrBatchActive = errors.New("a batch is already running")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsItemError reports whether err only affects a single item of a batch.
// Item errors are logged and skipped; they never abort a run.
func IsItemError(err error) bool {
	return errors.Is(err, ErrDecode) || errors.Is(err, ErrRecognition)
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
