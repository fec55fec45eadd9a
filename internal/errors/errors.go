package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode represents a structured error code for the logwarden project.
// Codes follow the format E<CATEGORY>-<NUMBER>.
type ErrorCode string

const (
	// Validation errors (EVAL-xxx)
	ErrValidation   ErrorCode = "EVAL-001"
	ErrInvalidInput ErrorCode = "EVAL-002"
	ErrMissingParam ErrorCode = "EVAL-003"

	// Auth errors (EAUTH-xxx)
	ErrAuth         ErrorCode = "EAUTH-001"
	ErrInvalidCreds ErrorCode = "EAUTH-002"
	ErrTokenExpired ErrorCode = "EAUTH-003"
	ErrLockout      ErrorCode = "EAUTH-004"
	ErrForbidden    ErrorCode = "EAUTH-005"

	// Storage errors (ESTO-xxx)
	ErrStorage      ErrorCode = "ESTO-001"
	ErrNotFound     ErrorCode = "ESTO-002"
	ErrConflict     ErrorCode = "ESTO-003"
	ErrDBConnection ErrorCode = "ESTO-004"

	// Rule / engine errors (ERULE-xxx)
	ErrRule         ErrorCode = "ERULE-001"
	ErrRuleQuery    ErrorCode = "ERULE-002"
	ErrMergeFailed  ErrorCode = "ERULE-003"

	// Configuration errors (ECFG-xxx)
	ErrConfig        ErrorCode = "ECFG-001"
	ErrConfigInvalid ErrorCode = "ECFG-002"
)

// Error is the base error type with structured error codes. It carries a
// machine-readable ErrorCode, a human-readable Message, an optional wrapped
// Cause, and arbitrary key-value Details for context.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	Details map[string]interface{}
}

// Error returns the string representation in "[CODE] message" format.
// If a Cause is present it is appended after a colon separator.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying Cause so that errors.Is / errors.As
// can walk the error chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetails adds a key-value pair of contextual information to the
// error and returns the same pointer for convenient chaining.
func (e *Error) WithDetails(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new Error that wraps an existing error as its Cause.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Is reports whether any error in err's chain carries the given ErrorCode.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		var le *Error
		if errors.As(err, &le) {
			if le.Code == code {
				return true
			}
		}
		err = errors.Unwrap(err)
	}
	return false
}

// GetCode extracts the ErrorCode from the first Error found in err's chain.
// If none is found it returns an empty ErrorCode.
func GetCode(err error) ErrorCode {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// ---------------------------------------------------------------------------
// HTTP status mapping
// ---------------------------------------------------------------------------

// ToHTTPStatus maps an ErrorCode to the most appropriate HTTP status code.
// Unknown codes default to 500 Internal Server Error.
func ToHTTPStatus(code ErrorCode) int {
	if status, ok := codeToHTTPStatus[code]; ok {
		return status
	}

	// Fall back to the error category prefix so that new codes in a known
	// category still get a reasonable default.
	prefix := string(code)
	if idx := strings.Index(prefix, "-"); idx != -1 {
		prefix = prefix[:idx]
	}
	if status, ok := prefixToHTTPStatus[prefix]; ok {
		return status
	}

	return http.StatusInternalServerError
}

var codeToHTTPStatus = map[ErrorCode]int{
	ErrValidation:   http.StatusBadRequest,
	ErrInvalidInput: http.StatusBadRequest,
	ErrMissingParam: http.StatusBadRequest,

	ErrAuth:         http.StatusUnauthorized,
	ErrInvalidCreds: http.StatusUnauthorized,
	ErrTokenExpired: http.StatusUnauthorized,
	ErrLockout:      http.StatusTooManyRequests,
	ErrForbidden:    http.StatusForbidden,

	ErrStorage:      http.StatusInternalServerError,
	ErrNotFound:     http.StatusNotFound,
	ErrConflict:     http.StatusConflict,
	ErrDBConnection: http.StatusServiceUnavailable,

	ErrRule:        http.StatusInternalServerError,
	ErrRuleQuery:   http.StatusInternalServerError,
	ErrMergeFailed: http.StatusConflict,

	ErrConfig:        http.StatusInternalServerError,
	ErrConfigInvalid: http.StatusBadRequest,
}

var prefixToHTTPStatus = map[string]int{
	"EVAL":  http.StatusBadRequest,
	"EAUTH": http.StatusUnauthorized,
	"ESTO":  http.StatusInternalServerError,
	"ERULE": http.StatusInternalServerError,
	"ECFG":  http.StatusInternalServerError,
}
