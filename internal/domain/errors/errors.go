package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies an AppError for transport mapping
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeInternal    ErrorType = "internal"
	ErrorTypeExternal    ErrorType = "external"
	ErrorTypeRateLimited ErrorType = "rate_limited"
	ErrorTypeUnavailable ErrorType = "unavailable"
)

// AppError represents a structured application error.
//
// The forecast engine itself never returns errors; AppError covers the
// surfaces around it (configuration, history stores, the HTTP API).
type AppError struct {
	Type       ErrorType      `json:"type"`
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	Cause      error          `json:"-"`
	Retryable  bool           `json:"retryable"`
	StatusCode int            `json:"status_code"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches AppErrors by code so sentinel comparisons survive WithCause copies
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// WithDetails returns a copy carrying details
func (e *AppError) WithDetails(details map[string]any) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// WithCause returns a copy wrapping cause
func (e *AppError) WithCause(cause error) *AppError {
	cp := *e
	cp.Cause = cause
	return &cp
}

// Error constructors
func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: http.StatusBadRequest,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Retryable:  true,
		StatusCode: http.StatusInternalServerError,
	}
}

func NewExternalError(service, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       "EXTERNAL_SERVICE_ERROR",
		Message:    fmt.Sprintf("%s service error: %s", service, message),
		Retryable:  true,
		StatusCode: http.StatusBadGateway,
		Details:    map[string]any{"service": service},
	}
}

func NewRateLimitError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeRateLimited,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    message,
		Retryable:  true,
		StatusCode: http.StatusTooManyRequests,
	}
}

func NewUnavailableError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeUnavailable,
		Code:       "SERVICE_UNAVAILABLE",
		Message:    message,
		Retryable:  true,
		StatusCode: http.StatusServiceUnavailable,
	}
}

// Predefined common errors
var (
	ErrInvalidInput   = NewValidationError("INVALID_INPUT", "Invalid input provided")
	ErrInvalidTenant  = NewValidationError("INVALID_TENANT", "Tenant id must be a UUID")
	ErrInvalidContext = NewValidationError("INVALID_SIGNAL_CONTEXT", "Signal context is malformed")
	ErrInvalidTables  = NewValidationError("INVALID_FORECAST_TABLES", "Forecast tables are inconsistent")
	ErrUnknownDomain  = NewValidationError("UNKNOWN_DOMAIN", "Unknown risk domain")
	ErrHistoryStore   = withCode(NewExternalError("history", "history store unavailable"), "HISTORY_STORE_ERROR")
	ErrInternal       = NewInternalError("An internal error occurred")

	ErrUnsupportedMediaType = withStatus(
		NewValidationError("UNSUPPORTED_MEDIA_TYPE", "Content-Type must be application/json"),
		http.StatusUnsupportedMediaType)
	ErrBodyTooLarge = withStatus(
		NewValidationError("BODY_TOO_LARGE", "Request body too large"),
		http.StatusRequestEntityTooLarge)
)

func withCode(e *AppError, code string) *AppError {
	e.Code = code
	return e
}

func withStatus(e *AppError, status int) *AppError {
	e.StatusCode = status
	return e
}

// Wrap wraps an error with a message using fmt.Errorf with %w
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// GetStatusCode extracts HTTP status code from error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// As returns the AppError in err's chain, if any
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
