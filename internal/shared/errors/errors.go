package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal error")
	ErrValidation   = errors.New("validation error")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
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

// IsCode reports whether err is an AppError carrying the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// NotFound creates a not found error
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Code:       "NOT_FOUND",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

// Unauthorized creates an unauthorized error
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       "UNAUTHORIZED",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Message:    message,
		Code:       "BAD_REQUEST",
		HTTPStatus: http.StatusBadRequest,
	}
}

// Validation creates a validation error with field details
func Validation(message string, details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Message:    message,
		Code:       "VALIDATION_ERROR",
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// Conflict creates a conflict error
func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Message:    message,
		Code:       "CONFLICT",
		HTTPStatus: http.StatusConflict,
	}
}

// Internal creates an internal error
func Internal(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "internal server error",
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) *AppError {
	if appErr, ok := err.(*AppError); ok {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// --- Domain error kinds ---
//
// Every state-changing service returns one of these when a business
// precondition fails. The web layer maps them straight to HTTP.

const (
	CodeAlreadyProcessed    = "ALREADY_PROCESSED"
	CodeInstitutionClosed   = "INSTITUTION_CLOSED"
	CodeProgramNotActive    = "PROGRAM_NOT_ACTIVE"
	CodeQuotaExceeded       = "QUOTA_EXCEEDED"
	CodeIllegalTransition   = "ILLEGAL_TRANSITION"
	CodeMissingPrecondition = "MISSING_PRECONDITION"
	CodeMissingReason       = "MISSING_REASON"
	CodePermissionDenied    = "PERMISSION_DENIED"
)

// AlreadyProcessed signals an operation on a referral or case that is no
// longer in the state the operation requires.
func AlreadyProcessed(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Message:    message,
		Code:       CodeAlreadyProcessed,
		HTTPStatus: http.StatusConflict,
	}
}

// InstitutionClosed signals admission blocked by a global institutional closure.
func InstitutionClosed(message string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Message:    message,
		Code:       CodeInstitutionClosed,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// ProgramNotActive signals admission blocked by program-level state.
func ProgramNotActive(message string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Message:    message,
		Code:       CodeProgramNotActive,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// QuotaExceeded signals a capacity constraint violation with overflow disallowed.
func QuotaExceeded(message string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Message:    message,
		Code:       CodeQuotaExceeded,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// IllegalTransition signals a state-machine rejection of a source→target pair.
func IllegalTransition(from, to string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Message:    fmt.Sprintf("cannot transition from %s to %s", from, to),
		Code:       CodeIllegalTransition,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]string{"from": from, "to": to},
	}
}

// MissingPrecondition signals an absent or incomplete related record.
func MissingPrecondition(message string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Message:    message,
		Code:       CodeMissingPrecondition,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// MissingReason signals a required free-text justification that was not supplied.
func MissingReason(message string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Message:    message,
		Code:       CodeMissingReason,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// PermissionDenied signals a capability check failure for the acting user.
func PermissionDenied(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Message:    message,
		Code:       CodePermissionDenied,
		HTTPStatus: http.StatusForbidden,
	}
}
