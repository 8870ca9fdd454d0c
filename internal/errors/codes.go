// Package errors provides structured error handling for the helpdesk core.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Index errors (build, load, persist)
//   - 3XX: Network errors (document fetch, webhook delivery)
//   - 4XX: Validation errors
//   - 5XX: Internal errors (retrieval, model invocation)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIndex indicates index lifecycle errors.
	CategoryIndex Category = "INDEX"
	// CategoryNetwork indicates network-related errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Index errors (200-299)
	ErrCodeIndexUnavailable = "ERR_201_INDEX_UNAVAILABLE"
	ErrCodeIndexBuild       = "ERR_202_INDEX_BUILD"
	ErrCodeIndexLoad        = "ERR_203_INDEX_LOAD"
	ErrCodeIndexPersist     = "ERR_204_INDEX_PERSIST"
	ErrCodeIndexCorrupt     = "ERR_205_INDEX_CORRUPT"

	// Network errors (300-399)
	ErrCodeFetchTimeout  = "ERR_301_FETCH_TIMEOUT"
	ErrCodeFetchFailed   = "ERR_302_FETCH_FAILED"
	ErrCodeAlertDelivery = "ERR_303_ALERT_DELIVERY"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty   = "ERR_402_QUERY_EMPTY"

	// Internal errors (500-599)
	ErrCodeInternal       = "ERR_501_INTERNAL"
	ErrCodeRetrieveFailed = "ERR_502_RETRIEVE_FAILED"
	ErrCodeModelFailed    = "ERR_503_MODEL_FAILED"
	ErrCodeJobBusy        = "ERR_504_JOB_BUSY"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "201" from "ERR_201_INDEX_UNAVAILABLE")
	numStr := code[4:7]
	if len(numStr) < 1 {
		return CategoryInternal
	}

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIndex
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	// Degraded-but-valid conditions: the service keeps answering.
	switch code {
	case ErrCodeIndexUnavailable, ErrCodeIndexPersist, ErrCodeAlertDelivery, ErrCodeJobBusy:
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Retryable means "the next scheduled or manual trigger may succeed";
// nothing in the core retries automatically within the same run.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeFetchTimeout, ErrCodeFetchFailed, ErrCodeAlertDelivery:
		return true
	default:
		return false
	}
}
