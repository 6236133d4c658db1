// Package errors holds the sentinel errors shared by every sensorlog
// component, plus helpers for classifying and wrapping them.
//
// This file provides:
// - Sentinel errors for all error conditions
// - Error category checking functions
// - Error wrapping utilities
// - A collector for validation errors

package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Schema errors (reported at declare time)
	ErrSchemaMismatch   = errors.New("column name and column type counts differ")
	ErrInvalidName      = errors.New("invalid identifier")
	ErrInvalidType      = errors.New("invalid column type")
	ErrMissingTimestamp = errors.New("first column must be a timestamp")
	ErrDuplicateColumn  = errors.New("duplicate column name")

	// Query errors
	ErrTableNotFound  = errors.New("table not found")
	ErrColumnNotFound = errors.New("column not found")
	ErrInvalidCount   = errors.New("count must be positive")
	ErrEmptyColumns   = errors.New("column list is empty")
	ErrInvalidRange   = errors.New("invalid time range")

	// Write errors
	ErrWriteFailed   = errors.New("write failed")
	ErrStoreClosed   = errors.New("store is closed")
	ErrWidthMismatch = errors.New("value count does not match table width")

	// Sampling errors
	ErrInvalidInterval = errors.New("invalid interval")
	ErrNoSource        = errors.New("no reading source")

	// Configuration errors
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrMissingField    = errors.New("missing required field")
	ErrUnsupportedType = errors.New("unsupported type")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// New is a convenience wrapper for errors.New
var New = errors.New

// IsSchemaError returns true if err was raised while validating a table declaration.
func IsSchemaError(err error) bool {
	return errors.Is(err, ErrSchemaMismatch) ||
		errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrInvalidType) ||
		errors.Is(err, ErrMissingTimestamp) ||
		errors.Is(err, ErrDuplicateColumn)
}

// IsQueryError returns true if err is a malformed read request.
func IsQueryError(err error) bool {
	return errors.Is(err, ErrTableNotFound) ||
		errors.Is(err, ErrColumnNotFound) ||
		errors.Is(err, ErrInvalidCount) ||
		errors.Is(err, ErrEmptyColumns) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidName)
}

// IsValidation returns true if err is a configuration validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrUnsupportedType)
}

// IsRetriable returns true if a failed write may succeed when attempted again.
// Schema and width problems never fix themselves.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	return !IsSchemaError(err) &&
		!errors.Is(err, ErrWidthMismatch) &&
		!errors.Is(err, ErrStoreClosed) &&
		!errors.Is(err, ErrTableNotFound)
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

// NewTableNotFound creates a table-not-found error with context.
func NewTableNotFound(table string) error {
	return fmt.Errorf("table '%s': %w", table, ErrTableNotFound)
}

// NewColumnNotFound creates a column-not-found error with context.
func NewColumnNotFound(table, column string) error {
	return fmt.Errorf("column '%s' in table '%s': %w", column, table, ErrColumnNotFound)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
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

// Unwrap exposes every collected error to errors.Is/As.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
