// Package errors defines the stable error codes used across the tracker.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// CommitNotFound indicates a revision that does not resolve to a commit
	CommitNotFound ErrorCode = "COMMIT_NOT_FOUND"
	// BlobNotFound indicates the path does not exist at the commit
	BlobNotFound ErrorCode = "BLOB_NOT_FOUND"
	// ParseError indicates the parser rejected a revision of a file
	ParseError ErrorCode = "PARSE_ERROR"
	// UnsupportedLanguage indicates no parser is registered for a path
	UnsupportedLanguage ErrorCode = "UNSUPPORTED_LANGUAGE"
	// Timeout indicates a backend or parser call exceeded its deadline
	Timeout ErrorCode = "TIMEOUT"
	// HistoryGap indicates a revision that could not be examined
	HistoryGap ErrorCode = "HISTORY_GAP"
	// Ambiguous indicates several candidates scored the same
	Ambiguous ErrorCode = "AMBIGUOUS"
	// CacheSchemaMismatch indicates a persisted cache written by another schema version
	CacheSchemaMismatch ErrorCode = "CACHE_SCHEMA_MISMATCH"
	// ElementNotFound indicates the element key does not exist in the snapshot
	ElementNotFound ErrorCode = "ELEMENT_NOT_FOUND"
	// InvalidElementKey indicates an element key that cannot be parsed
	InvalidElementKey ErrorCode = "INVALID_ELEMENT_KEY"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// TrackerError carries a stable code, a message and an optional cause.
type TrackerError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error
}

// New creates a new TrackerError
func New(code ErrorCode, message string, cause error) *TrackerError {
	return &TrackerError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Newf creates a TrackerError with a formatted message and no cause.
func Newf(code ErrorCode, format string, args ...interface{}) *TrackerError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Error implements the error interface
func (e *TrackerError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *TrackerError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a TrackerError with the same code.
func (e *TrackerError) Is(target error) bool {
	t, ok := target.(*TrackerError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

// WithDetails adds details to the error
func (e *TrackerError) WithDetails(details interface{}) *TrackerError {
	e.Details = details
	return e
}

// Sentinel returns a code-only error usable with errors.Is.
func Sentinel(code ErrorCode) error {
	return &TrackerError{Code: code}
}

// CodeOf returns the code of the outermost TrackerError in err's chain,
// or InternalError when there is none.
func CodeOf(err error) ErrorCode {
	var te *TrackerError
	if stderrors.As(err, &te) {
		return te.Code
	}
	return InternalError
}

// IsCode reports whether any TrackerError in err's chain carries code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		var te *TrackerError
		if !stderrors.As(err, &te) {
			return false
		}
		if te.Code == code {
			return true
		}
		err = te.cause
	}
	return false
}

// IsRecoverable reports whether err describes a repository irregularity
// that should become a history gap rather than abort a request.
func IsRecoverable(err error) bool {
	switch CodeOf(err) {
	case BlobNotFound, ParseError, Timeout, HistoryGap, UnsupportedLanguage:
		return true
	default:
		return false
	}
}
