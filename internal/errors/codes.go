// Package errors provides structured error handling for docuchat.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (blob store, chat database)
//   - 3XX: Collaborator errors (embedder, vector search)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates blob and database storage errors.
	CategoryStorage Category = "STORAGE"
	// CategoryCollaborator indicates failures of external collaborators.
	CategoryCollaborator Category = "COLLABORATOR"
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
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeBlobWrite    = "ERR_201_BLOB_WRITE"
	ErrCodeBlobNotFound = "ERR_202_BLOB_NOT_FOUND"
	ErrCodeDataDirLock  = "ERR_203_DATA_DIR_LOCK"
	ErrCodeChatStorage  = "ERR_204_CHAT_STORAGE"
	ErrCodeCorruptIndex = "ERR_205_CORRUPT_INDEX"

	// Collaborator errors (300-399)
	ErrCodeEmbedTimeout      = "ERR_301_EMBED_TIMEOUT"
	ErrCodeEmbedUnavailable  = "ERR_302_EMBED_UNAVAILABLE"
	ErrCodeVectorUnavailable = "ERR_303_VECTOR_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeQueryEmpty        = "ERR_403_QUERY_EMPTY"
	ErrCodeSessionMissing    = "ERR_404_SESSION_MISSING"

	// Internal errors (500-599)
	ErrCodeInternal             = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed      = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed         = "ERR_503_SEARCH_FAILED"
	ErrCodeChunkingFailed       = "ERR_504_CHUNKING_FAILED"
	ErrCodeIndexFailed          = "ERR_505_INDEX_FAILED"
	ErrCodeRetrievalUnavailable = "ERR_506_RETRIEVAL_UNAVAILABLE"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryCollaborator
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeDataDirLock:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Collaborator timeouts and outages are transient; everything else is not.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbedTimeout, ErrCodeEmbedUnavailable, ErrCodeVectorUnavailable:
		return true
	}
	return false
}
