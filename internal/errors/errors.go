package errors

import (
	"fmt"
)

// DocuError is the structured error type for docuchat.
// It carries classification metadata for logging and HTTP mapping.
type DocuError struct {
	// Code is the unique error code (e.g., "ERR_403_QUERY_EMPTY").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Collaborator, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *DocuError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *DocuError) Unwrap() error {
	return e.Cause
}

// Is matches by code so errors.Is works across wrapped instances.
func (e *DocuError) Is(target error) bool {
	if t, ok := target.(*DocuError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *DocuError) WithDetail(key, value string) *DocuError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new DocuError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *DocuError {
	return &DocuError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a DocuError from an existing error.
// The error's message becomes the DocuError message.
func Wrap(code string, err error) *DocuError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *DocuError {
	return New(ErrCodeInvalidInput, message, cause)
}

// CollaboratorError creates an external-collaborator error.
// Collaborator errors are retryable.
func CollaboratorError(message string, cause error) *DocuError {
	return New(ErrCodeEmbedUnavailable, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *DocuError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if de, ok := err.(*DocuError); ok {
		return de.Retryable
	}
	return false
}

// GetCode extracts the error code from a DocuError.
// Returns empty string if not a DocuError.
func GetCode(err error) string {
	if de, ok := err.(*DocuError); ok {
		return de.Code
	}
	return ""
}
