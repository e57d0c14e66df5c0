package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/nahidhasan98/icon-sync/internal/reconcile"
	"github.com/nahidhasan98/icon-sync/internal/store"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Client errors
	ErrCodeInvalidRequest   ErrorCode = "INVALID_REQUEST"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeTooManyRequests  ErrorCode = "TOO_MANY_REQUESTS"

	// Sync errors
	ErrCodeStoreReadFailed   ErrorCode = "STORE_READ_FAILED"
	ErrCodeStoreWriteFailed  ErrorCode = "STORE_WRITE_FAILED"
	ErrCodeRefConflict       ErrorCode = "REF_CONFLICT"
	ErrCodeBasenameCollision ErrorCode = "BASENAME_COLLISION"
	ErrCodeTimeout           ErrorCode = "TIMEOUT"

	// Server errors
	ErrCodeInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeDatabaseError      ErrorCode = "DATABASE_ERROR"
)

// AppError represents an application error with additional context
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"-"`
	Err        error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new application error
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: getStatusCodeForError(code),
	}
}

// Wrap wraps an existing error with application context
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: getStatusCodeForError(code),
		Err:        err,
	}
}

// Wrapf wraps an existing error with formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// WithDetails sets the details shown to the client
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// getStatusCodeForError maps error codes to HTTP status codes
func getStatusCodeForError(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidRequest, ErrCodeValidationFailed:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeTooManyRequests:
		return http.StatusTooManyRequests
	case ErrCodeRefConflict:
		return http.StatusConflict
	case ErrCodeBasenameCollision:
		return http.StatusUnprocessableEntity
	case ErrCodeStoreReadFailed, ErrCodeStoreWriteFailed:
		return http.StatusBadGateway
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromSync classifies an error returned by a reconciliation
func FromSync(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	var collision *reconcile.CollisionError
	if stderrors.As(err, &collision) {
		return Wrapf(err, ErrCodeBasenameCollision, "Source paths collide on %s", collision.Target).
			WithDetails(err.Error())
	}

	if stderrors.Is(err, store.ErrRefConflict) {
		return Wrap(err, ErrCodeRefConflict, "Target branch moved during sync, push again to retry").
			WithDetails(err.Error())
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, ErrCodeTimeout, "Sync timed out")
	}

	var stage *reconcile.StageError
	if stderrors.As(err, &stage) {
		if stage.IsWrite() {
			return Wrapf(err, ErrCodeStoreWriteFailed, "Failed to write to target repository (%s)", stage.Op).
				WithDetails(err.Error())
		}
		return Wrapf(err, ErrCodeStoreReadFailed, "Failed to read from repository (%s)", stage.Op).
			WithDetails(err.Error())
	}

	return InternalError(err)
}

// Common error constructors for convenience

// ValidationError creates a validation error
func ValidationError(message string) *AppError {
	return New(ErrCodeValidationFailed, message)
}

// InvalidRequest creates an invalid request error
func InvalidRequest(message string) *AppError {
	return New(ErrCodeInvalidRequest, message)
}

// Unauthorized creates an unauthorized error
func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

// NotFound creates a not found error
func NotFound(message string) *AppError {
	return New(ErrCodeNotFound, message)
}

// InternalError creates an internal server error
func InternalError(err error) *AppError {
	return Wrap(err, ErrCodeInternalError, "Internal server error")
}

// DatabaseError creates a database error
func DatabaseError(err error) *AppError {
	return Wrap(err, ErrCodeDatabaseError, "Database operation failed")
}
