package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
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

// Is matches on the error code so callers can compare against the sentinels below.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// StatusCode maps the code to the HTTP status used at the API boundary.
func (e *AppError) StatusCode() int {
	switch e.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrBadRequest, ErrValidation, ErrPastDate, ErrLockout:
		return http.StatusBadRequest
	case ErrConflict, ErrCoverage, ErrInvalidTransition:
		return http.StatusConflict
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrValidation
	ErrPastDate
	ErrConflict
	ErrCoverage
	ErrLockout
	ErrInvalidTransition
	ErrDataIntegrity
)

// Sentinels for errors.Is checks.
var (
	NotFoundError          = &AppError{Code: ErrNotFound}
	ValidationError        = &AppError{Code: ErrValidation}
	PastDateError          = &AppError{Code: ErrPastDate}
	ConflictError          = &AppError{Code: ErrConflict}
	CoverageError          = &AppError{Code: ErrCoverage}
	LockoutError           = &AppError{Code: ErrLockout}
	InvalidTransitionError = &AppError{Code: ErrInvalidTransition}
	DataIntegrityError     = &AppError{Code: ErrDataIntegrity}
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{Code: ErrForbidden, Message: message}
}

func Validation(message string, err error) *AppError {
	return &AppError{Code: ErrValidation, Message: message, Err: err}
}

func PastDate(message string) *AppError {
	return &AppError{Code: ErrPastDate, Message: message}
}

func Conflict(message string, err error) *AppError {
	return &AppError{Code: ErrConflict, Message: message, Err: err}
}

func Coverage(message string) *AppError {
	return &AppError{Code: ErrCoverage, Message: message}
}

func Lockout(message string) *AppError {
	return &AppError{Code: ErrLockout, Message: message}
}

func InvalidTransition(message string) *AppError {
	return &AppError{Code: ErrInvalidTransition, Message: message}
}

func DataIntegrity(message string, err error) *AppError {
	return &AppError{Code: ErrDataIntegrity, Message: message, Err: err}
}

// CodeOf returns the code of the first AppError in the chain, or ErrInternal.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// As is re-exported so callers do not need both errors packages.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Is is re-exported so callers do not need both errors packages.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}
