package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All components MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationEmptyEvent   ErrorCode = "validation_empty_event"
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"
	ErrCodeValidationBatchSize    ErrorCode = "validation_batch_size_exceeded"
	ErrCodeValidationInvalidParam ErrorCode = "validation_invalid_parameter"

	// Configuration (fatal, startup-time)
	ErrCodeConfigDuplicateDefinition ErrorCode = "configuration_duplicate_definition"
	ErrCodeConfigDuplicateChannel    ErrorCode = "configuration_duplicate_channel"
	ErrCodeConfigDuplicatePolicy     ErrorCode = "configuration_duplicate_policy"
	ErrCodeConfigDuplicateTemplate   ErrorCode = "configuration_duplicate_template"
	ErrCodeConfigUnknownReference    ErrorCode = "configuration_unknown_reference"
	ErrCodeConfigInvalidChannel      ErrorCode = "configuration_invalid_channel"
	ErrCodeConfigInvalidCron         ErrorCode = "configuration_invalid_cron"
	ErrCodeConfigInvalidTemplate     ErrorCode = "configuration_invalid_template"

	// Not Found (404)
	ErrCodeNotFoundDefinition  ErrorCode = "not_found_definition"
	ErrCodeNotFoundChannel     ErrorCode = "not_found_channel"
	ErrCodeNotFoundTemplate    ErrorCode = "not_found_template"
	ErrCodeNotFoundDedupPolicy ErrorCode = "not_found_dedup_policy"
	ErrCodeNotFoundEvent       ErrorCode = "not_found_event"

	// Per-attempt, isolated (recorded on the attempt, never unwound past Ingest)
	ErrCodeRenderMissingVariable ErrorCode = "render_missing_variable"
	ErrCodeRenderFailure         ErrorCode = "render_failure"
	ErrCodeDispatchFailed        ErrorCode = "dispatch_failed"

	// Internal (500)
	ErrCodeInternalStore      ErrorCode = "internal_store_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the API layer to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "configuration_"):
		return http.StatusConflict // 409
	case strings.HasPrefix(s, "render_"), s == string(ErrCodeDispatchFailed):
		return http.StatusUnprocessableEntity // 422
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type used throughout the service.
// All domain errors should be expressed as AppError to enable consistent error
// formatting, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
// This is useful for adding context without mutating the original error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// IsConfiguration reports whether err is an AppError carrying a startup-time
// configuration code. Configuration errors are fatal: the process must refuse
// to start with the offending registration active.
func IsConfiguration(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return strings.HasPrefix(string(appErr.Code), "configuration_")
}

// IsNotFound reports whether err is an AppError carrying a not_found_* code.
func IsNotFound(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return strings.HasPrefix(string(appErr.Code), "not_found_")
}
