package errors

import (
	"fmt"
)

// CoreError is the structured error type for the helpdesk core.
// It provides context for error handling, logging, and alerting.
type CoreError struct {
	// Code is the unique error code (e.g., "ERR_202_INDEX_BUILD").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Index, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if a later run of the operation can succeed.
	Retryable bool
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *CoreError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with CoreError.
func (e *CoreError) Is(target error) bool {
	if t, ok := target.(*CoreError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *CoreError) WithDetail(key, value string) *CoreError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new CoreError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *CoreError {
	return &CoreError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a CoreError from an existing error.
// The error's message becomes the CoreError message.
func Wrap(code string, err error) *CoreError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// BuildError creates an index build error.
func BuildError(message string, cause error) *CoreError {
	return New(ErrCodeIndexBuild, message, cause)
}

// LoadError creates an index load error.
func LoadError(message string, cause error) *CoreError {
	return New(ErrCodeIndexLoad, message, cause)
}

// FetchError creates a document fetch error.
// Fetch errors are retryable on the next trigger.
func FetchError(message string, cause error) *CoreError {
	return New(ErrCodeFetchFailed, message, cause)
}

// RetrieveError creates a passage retrieval error.
func RetrieveError(message string, cause error) *CoreError {
	return New(ErrCodeRetrieveFailed, message, cause)
}

// ModelError creates a language-model invocation error.
func ModelError(message string, cause error) *CoreError {
	return New(ErrCodeModelFailed, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *CoreError {
	return New(ErrCodeInvalidInput, message, cause)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *CoreError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *CoreError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a CoreError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ce, ok := err.(*CoreError); ok {
		return ce.Retryable
	}
	return false
}

// GetCode extracts the error code from a CoreError.
// Returns empty string if not a CoreError.
func GetCode(err error) string {
	if ce, ok := err.(*CoreError); ok {
		return ce.Code
	}
	return ""
}

// GetCategory extracts the category from a CoreError.
// Returns empty string if not a CoreError.
func GetCategory(err error) Category {
	if ce, ok := err.(*CoreError); ok {
		return ce.Category
	}
	return ""
}

// Kind returns a short lowercase label for an error, suitable for
// error counters (e.g. "index", "network", "model").
func Kind(err error) string {
	if err == nil {
		return ""
	}
	if ce, ok := err.(*CoreError); ok {
		switch ce.Category {
		case CategoryConfig:
			return "config"
		case CategoryIndex:
			return "index"
		case CategoryNetwork:
			return "network"
		case CategoryValidation:
			return "validation"
		}
		if ce.Code == ErrCodeModelFailed {
			return "model"
		}
		if ce.Code == ErrCodeRetrieveFailed {
			return "retrieve"
		}
		return "internal"
	}
	return "internal"
}
