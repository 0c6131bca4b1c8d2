package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrInvalidScope
	ErrAlreadyExists
	ErrVersionConflict
	ErrInternal
)

// VersionConflictError is returned when an optimistic-concurrency check
// fails on update. The caller must re-read and resubmit.
type VersionConflictError struct {
	Key      string
	Expected int
	Actual   int
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict for %q: expected %d, actual %d", e.Key, e.Expected, e.Actual)
}

// Error constructors
func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func InvalidScope(message string) *AppError {
	return &AppError{
		Code:    ErrInvalidScope,
		Message: message,
	}
}

func AlreadyExists(key string) *AppError {
	return &AppError{
		Code:    ErrAlreadyExists,
		Message: fmt.Sprintf("active configuration already exists for key %q", key),
	}
}

func VersionConflict(key string, expected, actual int) *AppError {
	return &AppError{
		Code:    ErrVersionConflict,
		Message: fmt.Sprintf("version conflict for key %q", key),
		Err:     &VersionConflictError{Key: key, Expected: expected, Actual: actual},
	}
}

func Internal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// Code extracts the application error code, defaulting to ErrInternal.
func Code(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// IsNotFound reports whether err is a not-found application error.
func IsNotFound(err error) bool {
	return Code(err) == ErrNotFound
}
