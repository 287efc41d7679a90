// Package errors provides structured error handling for route1 connectors
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"

	"google.golang.org/api/googleapi"
)

// ErrorType classifies an error so callers can branch on it without
// parsing vendor messages.
type ErrorType string

const (
	ErrorTypeInternal       ErrorType = "internal"
	ErrorTypeValidation     ErrorType = "validation" // bad arguments to a connector call
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeTimeout        ErrorType = "timeout"
	ErrorTypeConnection     ErrorType = "connection"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypePermission     ErrorType = "permission"
	ErrorTypeConfig         ErrorType = "config"
	ErrorTypeData           ErrorType = "data" // malformed vendor payload or local file
	ErrorTypeFile           ErrorType = "file"
	ErrorTypeExternal       ErrorType = "external" // vendor error of no other type
)

// Error is the error type returned by every package of this module.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame is one caller recorded when the error was created.
type StackFrame struct {
	Function string
	File     string
	Line     int
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail records a key/value pair on e and returns e.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New returns an error of errType with no cause.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf is New with a format string.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context.
// It returns nil when err is nil, so only call it after checking err.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	e := &Error{Type: errType, Message: message, Cause: err}
	var inner *Error
	if errors.As(err, &inner) {
		e.Stack = inner.Stack
	} else {
		e.Stack = captureStack(2)
	}
	return e
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return Wrap(err, errType, fmt.Sprintf(format, args...))
}

// WrapVendor wraps err with the type inferred from it. Google API errors and
// HTTP status errors keep their classification, anything else is external.
func WrapVendor(err error, message string) *Error {
	if err == nil {
		return nil
	}
	return Wrap(err, GetType(FromGoogleAPI(err)), message)
}

// IsRetryable reports whether err is worth retrying: rate limits, timeouts
// and connection failures.
func IsRetryable(err error) bool {
	switch GetType(err) {
	case ErrorTypeRateLimit, ErrorTypeTimeout, ErrorTypeConnection:
		return true
	default:
		return false
	}
}

// IsType reports whether the outermost *Error in err's chain has errType.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// GetType returns the type of the outermost *Error in the chain, or
// ErrorTypeExternal when err carries none.
func GetType(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeExternal
	}
	return e.Type
}

// TypeForStatus maps an HTTP status code to an ErrorType.
func TypeForStatus(status int) ErrorType {
	switch {
	case status == http.StatusUnauthorized:
		return ErrorTypeAuthentication
	case status == http.StatusForbidden:
		return ErrorTypePermission
	case status == http.StatusNotFound:
		return ErrorTypeNotFound
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrorTypeTimeout
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return ErrorTypeValidation
	case status >= 500:
		return ErrorTypeConnection
	default:
		return ErrorTypeExternal
	}
}

// FromHTTPStatus builds an error for a non-2xx vendor response. The body is
// trimmed and kept as the message so the vendor's own explanation survives.
func FromHTTPStatus(status int, body []byte) *Error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512] + "..."
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	e := New(TypeForStatus(status), fmt.Sprintf("unexpected status %d: %s", status, msg))
	e.Stack = captureStack(2)
	return e.WithDetail("status", status)
}

// FromGoogleAPI classifies a *googleapi.Error. Other errors are returned
// unchanged.
func FromGoogleAPI(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	return Wrap(err, TypeForStatus(gerr.Code), "google api request failed").
		WithDetail("status", gerr.Code)
}

func captureStack(skip int) []StackFrame {
	var pcs [32]uintptr
	n := runtime.Callers(skip+1, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	out := make([]StackFrame, 0, n)
	if n == 0 {
		return out
	}
	for {
		f, more := frames.Next()
		out = append(out, StackFrame{Function: f.Function, File: f.File, Line: f.Line})
		if !more {
			return out
		}
	}
}
