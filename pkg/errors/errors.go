// Package errors provides a structured error system for page state management with error codes, categories, and context.
package errors

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a structured error code.
type ErrorCode string

const (
	// Configuration Errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigSave       ErrorCode = "CONFIG_SAVE"
	ErrCodeInvalidBound     ErrorCode = "INVALID_BOUND"

	// Storage Errors
	ErrCodeStorageRead          ErrorCode = "STORAGE_READ"
	ErrCodeStorageWrite         ErrorCode = "STORAGE_WRITE"
	ErrCodeSerializationFailed  ErrorCode = "SERIALIZATION_FAILED"
	ErrCodeDeserializationError ErrorCode = "DESERIALIZATION_FAILED"
	ErrCodeDataStoreUnavailable ErrorCode = "DATA_STORE_UNAVAILABLE"

	// Version Management Errors
	ErrCodeNoActiveVersion   ErrorCode = "NO_ACTIVE_VERSION"
	ErrCodeVersionInProgress ErrorCode = "VERSION_IN_PROGRESS"
	ErrCodeUndoInconsistent  ErrorCode = "UNDO_INCONSISTENT"
	ErrCodeInvalidChange     ErrorCode = "INVALID_CHANGE"

	// State Errors
	ErrCodeSessionClosed  ErrorCode = "SESSION_CLOSED"
	ErrCodeNotInitialized ErrorCode = "NOT_INITIALIZED"
	ErrCodeAlreadyStarted ErrorCode = "ALREADY_STARTED"

	// Operation Errors
	ErrCodeRenderFailed      ErrorCode = "RENDER_FAILED"
	ErrCodeOperationTimeout  ErrorCode = "OPERATION_TIMEOUT"
	ErrCodeOperationCanceled ErrorCode = "OPERATION_CANCELED"
	ErrCodeRetryExhausted    ErrorCode = "RETRY_EXHAUSTED"
	ErrCodeNetworkError      ErrorCode = "NETWORK_ERROR"

	// Internal System Errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrCodeUnknownError  ErrorCode = "UNKNOWN_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryStorage       ErrorCategory = "storage"
	CategoryVersion       ErrorCategory = "version"
	CategoryState         ErrorCategory = "state"
	CategoryOperation     ErrorCategory = "operation"
	CategoryInternal      ErrorCategory = "internal"
)

// Sentinels for errors.Is. Matching is by code only.
var (
	ErrInvalidBound     = &PageStateError{Code: ErrCodeInvalidBound}
	ErrNoActiveVersion  = &PageStateError{Code: ErrCodeNoActiveVersion}
	ErrVersionActive    = &PageStateError{Code: ErrCodeVersionInProgress}
	ErrUndoInconsistent = &PageStateError{Code: ErrCodeUndoInconsistent}
	ErrSessionClosed    = &PageStateError{Code: ErrCodeSessionClosed}
	ErrSerialization    = &PageStateError{Code: ErrCodeSerializationFailed}
	ErrUnavailable      = &PageStateError{Code: ErrCodeDataStoreUnavailable}
)

// PageStateError represents a structured error with context and metadata.
type PageStateError struct {
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`

	Component string `json:"component"`
	Operation string `json:"operation,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	Retryable  bool `json:"retryable"`
	HTTPStatus int  `json:"http_status,omitempty"`
}

// Error implements the error interface.
func (e *PageStateError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Component != "" {
		if e.Operation != "" {
			msg = fmt.Sprintf("[%s:%s] %s", e.Component, e.Operation, msg)
		} else {
			msg = fmt.Sprintf("[%s] %s", e.Component, msg)
		}
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *PageStateError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *PageStateError) Is(target error) bool {
	if t, ok := target.(*PageStateError); ok {
		return e.Code == t.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *PageStateError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if e.SessionID != "" {
		parts = append(parts, fmt.Sprintf("SessionID=%s", e.SessionID))
	}
	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}
	if len(e.Details) > 0 {
		details, _ := json.Marshal(e.Details)
		parts = append(parts, fmt.Sprintf("Details=%s", details))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("PageStateError{%s}", strings.Join(parts, ", "))
}

// NewError creates a new error with default values for the code.
func NewError(code ErrorCode, message string) *PageStateError {
	return &PageStateError{
		Code:       code,
		Category:   GetCategory(code),
		Message:    message,
		Timestamp:  time.Now(),
		Details:    make(map[string]interface{}),
		Retryable:  IsRetryableByDefault(code),
		HTTPStatus: GetDefaultHTTPStatus(code),
	}
}

// Newf creates a new error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *PageStateError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// Wrap wraps cause with a new error of the given code.
func Wrap(cause error, code ErrorCode, message string) *PageStateError {
	return NewError(code, message).WithCause(cause)
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeInvalidConfig, ErrCodeConfigValidation, ErrCodeConfigLoad, ErrCodeConfigSave, ErrCodeInvalidBound:
		return CategoryConfiguration
	case ErrCodeStorageRead, ErrCodeStorageWrite, ErrCodeSerializationFailed, ErrCodeDeserializationError,
		ErrCodeDataStoreUnavailable:
		return CategoryStorage
	case ErrCodeNoActiveVersion, ErrCodeVersionInProgress, ErrCodeUndoInconsistent, ErrCodeInvalidChange:
		return CategoryVersion
	case ErrCodeSessionClosed, ErrCodeNotInitialized, ErrCodeAlreadyStarted:
		return CategoryState
	case ErrCodeRenderFailed, ErrCodeOperationTimeout, ErrCodeOperationCanceled,
		ErrCodeRetryExhausted, ErrCodeNetworkError:
		return CategoryOperation
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault determines if an error is retryable by default.
func IsRetryableByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeStorageRead, ErrCodeStorageWrite, ErrCodeNetworkError, ErrCodeOperationTimeout:
		return true
	default:
		return false
	}
}

// GetDefaultHTTPStatus returns the default HTTP status for an error code.
func GetDefaultHTTPStatus(code ErrorCode) int {
	statusMap := map[ErrorCode]int{
		ErrCodeInvalidConfig:        400,
		ErrCodeConfigValidation:     400,
		ErrCodeInvalidBound:         400,
		ErrCodeSessionClosed:        410, // Gone
		ErrCodeVersionInProgress:    409,
		ErrCodeAlreadyStarted:       409,
		ErrCodeOperationTimeout:     504,
		ErrCodeNetworkError:         502,
		ErrCodeDataStoreUnavailable: 503,
	}

	if status, ok := statusMap[code]; ok {
		return status
	}
	return 500
}

// WithDetail adds detailed information to an error
func (e *PageStateError) WithDetail(key string, value interface{}) *PageStateError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *PageStateError) WithComponent(component string) *PageStateError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *PageStateError) WithOperation(operation string) *PageStateError {
	e.Operation = operation
	return e
}

// WithSession sets the session the error occurred in
func (e *PageStateError) WithSession(sessionID string) *PageStateError {
	e.SessionID = sessionID
	return e
}

// WithCause sets the underlying cause
func (e *PageStateError) WithCause(cause error) *PageStateError {
	e.Cause = cause
	return e
}

// CodeOf returns the code of the first PageStateError in err's chain, or
// ErrCodeUnknownError.
func CodeOf(err error) ErrorCode {
	for err != nil {
		if pe, ok := err.(*PageStateError); ok {
			return pe.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ErrCodeUnknownError
}
