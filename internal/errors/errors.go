// Package errors consolidates error definitions for the plantwatch project.
//
// This package provides:
// - Sentinel errors for all error conditions
// - Error category checking functions
// - Error wrapping utilities
// - A ValidationErrors collector for configuration checks
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Not found errors
	ErrNotFound     = errors.New("not found")
	ErrUnitNotFound = errors.New("unit not found")
	ErrFileNotFound = errors.New("file not found")
	ErrTagNotFound  = errors.New("tag not found")
	ErrNoUnits      = errors.New("no units discoverable")

	// Fetch errors
	ErrFetchTimeout     = errors.New("fetch timed out")
	ErrFetchFailed      = errors.New("fetch failed")
	ErrEmptyResult      = errors.New("fetch returned no records")
	ErrConnectionFailed = errors.New("connection failed")

	// Resource errors
	ErrLowMemory = errors.New("available memory below floor")

	// Merge errors
	ErrMergeDegraded = errors.New("merge degraded to lossy strategy")
	ErrMergeFailed   = errors.New("merge failed")

	// Storage errors
	ErrWriteFailed   = errors.New("write failed")
	ErrReaderClosed  = errors.New("reader is closed")
	ErrWriterClosed  = errors.New("writer is closed")
	ErrHandleClosed  = errors.New("store handle is closed")
	ErrCorruptedFile = errors.New("corrupted parquet file")

	// Validation errors
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrInvalidUnit     = errors.New("invalid unit name")
	ErrInvalidInterval = errors.New("invalid interval")
	ErrMissingField    = errors.New("missing required field")

	// Internal errors
	ErrInternal = errors.New("internal error")
	ErrDatabase = errors.New("database error")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnitNotFound) ||
		errors.Is(err, ErrFileNotFound) ||
		errors.Is(err, ErrTagNotFound)
}

// IsFetchError returns true if err is a fetch-related error.
func IsFetchError(err error) bool {
	return errors.Is(err, ErrFetchTimeout) ||
		errors.Is(err, ErrFetchFailed) ||
		errors.Is(err, ErrEmptyResult) ||
		errors.Is(err, ErrConnectionFailed)
}

// IsDegraded returns true if err signals a degraded (but usable) outcome.
func IsDegraded(err error) bool {
	return errors.Is(err, ErrMergeDegraded)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrInvalidUnit) ||
		errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrMissingField)
}

// IsRetriable returns true if the error is potentially retriable.
// Low memory and fetch timeouts clear on their own; a later pass may succeed.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrFetchTimeout) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrLowMemory) ||
		errors.Is(err, ErrEmptyResult)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewNotFound creates a not-found error with context.
func NewNotFound(entityType, identifier string) error {
	return fmt.Errorf("%s '%s': %w", entityType, identifier, ErrNotFound)
}

// NewFetchTimeout creates a fetch-timeout error for a unit.
func NewFetchTimeout(unit string, seconds float64) error {
	return fmt.Errorf("unit '%s' after %.0fs: %w", unit, seconds, ErrFetchTimeout)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidValue creates an invalid value error.
func NewInvalidValue(field string, value interface{}, reason string) error {
	return fmt.Errorf("invalid %s '%v': %s: %w", field, value, reason, ErrInvalidConfig)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the first error for errors.Is/As support.
func (v *ValidationErrors) Unwrap() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v.Errors[0]
}
