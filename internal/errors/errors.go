package errors

import (
	"fmt"
)

// Error is the structured error type for Phasergun.
// It provides rich context for error handling, logging, and user presentation.
type Error struct {
	// Code is the unique error code (e.g., "ERR_301_LOCK_TIMEOUT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Lock, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with Error.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// New creates a new Error with the given code and message.
// Category and severity are derived from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Wrap creates an Error from an existing error.
// The error's message becomes the Error message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// IOError creates an I/O-related error.
func IOError(message string, cause error) *Error {
	return New(ErrCodeFileNotFound, message, cause)
}

// ParseError creates a document-parse error; build paths log and skip these.
func ParseError(message string, cause error) *Error {
	return New(ErrCodeParseFailed, message, cause)
}

// EmbedderUnavailable creates the fatal embedder-load error.
func EmbedderUnavailable(message string, cause error) *Error {
	return New(ErrCodeEmbedderUnavailable, message, cause)
}

// LockAcquisitionError creates the lock-timeout error surfaced after retries.
func LockAcquisitionError(message string, cause error) *Error {
	return New(ErrCodeLockTimeout, message, cause).
		WithSuggestion("inspect the cache lock directory for stale lock files")
}

// CacheCorrupt creates the corrupt-cache error; callers rebuild on it.
func CacheCorrupt(message string, cause error) *Error {
	return New(ErrCodeCacheCorrupt, message, cause)
}

// GeneratorError creates a text-generation provider error.
func GeneratorError(message string, cause error) *Error {
	return New(ErrCodeGeneratorFailed, message, cause)
}

// IsFatal checks if an error has fatal severity.
// Fatal errors abort the current request.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if pe, ok := err.(*Error); ok {
		return pe.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from an Error.
// Returns empty string if not an Error.
func GetCode(err error) string {
	if pe, ok := err.(*Error); ok {
		return pe.Code
	}
	return ""
}

// GetCategory extracts the category from an Error.
// Returns empty string if not an Error.
func GetCategory(err error) Category {
	if pe, ok := err.(*Error); ok {
		return pe.Category
	}
	return ""
}
