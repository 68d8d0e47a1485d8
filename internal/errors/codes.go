// Package errors provides structured error handling for Phasergun.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO and cache errors (file, disk, parse)
//   - 3XX: Lock and coordination errors
//   - 4XX: Validation errors
//   - 5XX: Internal and provider errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file, disk, and cache I/O errors.
	CategoryIO Category = "IO"
	// CategoryLock indicates lock acquisition and coordination errors.
	CategoryLock Category = "LOCK"
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

	// IO and cache errors (200-299)
	ErrCodeFileNotFound = "ERR_201_FILE_NOT_FOUND"
	ErrCodeDirNotFound  = "ERR_202_DIR_NOT_FOUND"
	ErrCodeWriteFailed  = "ERR_203_WRITE_FAILED"
	ErrCodeWalkFailed   = "ERR_204_WALK_FAILED"
	ErrCodeParseFailed  = "ERR_205_PARSE_FAILED"
	ErrCodeCacheCorrupt = "ERR_206_CACHE_CORRUPT"

	// Lock errors (300-399)
	ErrCodeLockTimeout = "ERR_301_LOCK_TIMEOUT"
	ErrCodeLockFailed  = "ERR_302_LOCK_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeInvalidPath       = "ERR_403_INVALID_PATH"

	// Internal and provider errors (500-599)
	ErrCodeInternal            = "ERR_501_INTERNAL"
	ErrCodeEmbedderUnavailable = "ERR_502_EMBEDDER_UNAVAILABLE"
	ErrCodeGeneratorFailed     = "ERR_503_GENERATOR_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract the leading digit of the numeric portion (e.g., "2" from "ERR_206_...")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryLock
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeEmbedderUnavailable, ErrCodeLockTimeout:
		return SeverityFatal
	case ErrCodeParseFailed, ErrCodeCacheCorrupt:
		// Per-file parse failures are skipped; corrupt caches are rebuilt.
		return SeverityWarning
	}
	return SeverityError
}
