// LOCATION: internal/errors/errors.go
//
// This file provides:
// - Wire error codes for serialized failures
// - Sentinel errors for every rejection the stream engine can produce
// - Error category checking functions
// - Error wrapping utilities

package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Wire error codes - carried next to a message when a failure is serialized
// ============================================================================

const (
	CodeUnknown         int32 = 1
	CodeInvalidArgument int32 = 2
	CodeInvalidState    int32 = 3
	CodeInternal        int32 = 4
)

// CodeName returns a human-readable name for an error code.
func CodeName(code int32) string {
	switch code {
	case CodeUnknown:
		return "Unknown"
	case CodeInvalidArgument:
		return "InvalidArgument"
	case CodeInvalidState:
		return "InvalidState"
	case CodeInternal:
		return "Internal"
	default:
		return fmt.Sprintf("Code(%d)", code)
	}
}

// ============================================================================
// Root categories
// ============================================================================

var (
	// ErrInvalidArgument is the root of every rejection caused by the
	// arguments of a call (malformed input, unknown stream, overlap).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidState is the root of every rejection caused by the state the
	// callee is in (closed deployment, duplicate configuration, sync order).
	ErrInvalidState = errors.New("invalid state")

	// ErrInternal marks failures that are not the caller's fault.
	ErrInternal = errors.New("internal error")
)

// category attaches a root category to a specific sentinel so that both
// errors.Is(err, specific) and errors.Is(err, root) hold.
type category struct {
	msg  string
	root error
}

func (c *category) Error() string { return c.msg }

func (c *category) Unwrap() error { return c.root }

func invalidArgument(msg string) error { return &category{msg: msg, root: ErrInvalidArgument} }

func invalidState(msg string) error { return &category{msg: msg, root: ErrInvalidState} }

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Model validation
	ErrInvalidMeasurement = invalidArgument("invalid measurement")
	ErrInvalidSequence    = invalidArgument("invalid sequence")
	ErrDataTypeMismatch   = invalidArgument("data type does not match stream")
	ErrInvalidStreamID    = invalidArgument("invalid stream id")
	ErrInvalidRange       = invalidArgument("invalid sequence id range")
	ErrIndexCapacity      = invalidArgument("range exceeds index capacity")
	ErrInvalidConfig      = invalidArgument("invalid configuration")
	ErrMissingField       = invalidArgument("missing required field")

	// Ordering
	ErrOutOfOrder       = invalidArgument("sequence overlaps previously appended data")
	ErrNonMonotonicSync = invalidState("sync point precedes the last stored sync point")
	ErrNotFollowing     = invalidArgument("sequence does not immediately follow")

	// Service registry
	ErrDeploymentNotConfigured = invalidArgument("no data streams configured for deployment")
	ErrStreamNotConfigured     = invalidArgument("data stream not configured")
	ErrDeploymentMismatch      = invalidArgument("data stream belongs to a different deployment")
	ErrStreamsNotConfigured    = invalidState("data streams not opened for deployment")
	ErrAlreadyConfigured       = invalidState("data streams already configured for deployment")
	ErrStreamsClosed           = invalidState("data streams are closed")

	// Serialization
	ErrCorruptSnapshot = fmt.Errorf("corrupt snapshot: %w", ErrInternal)
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// New is a convenience wrapper for errors.New
var New = errors.New

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// IsInvalidArgument returns true if err was caused by the call's arguments.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsInvalidState returns true if err was caused by the callee's state.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsOrdering returns true if err rejected an append because of sequence id
// or sync point ordering.
func IsOrdering(err error) bool {
	return errors.Is(err, ErrOutOfOrder) || errors.Is(err, ErrNonMonotonicSync)
}

// ============================================================================
// Error to wire code mapping
// ============================================================================

// ErrorToCode maps an error to its wire code.
func ErrorToCode(err error) int32 {
	switch {
	case err == nil:
		return CodeUnknown
	case IsInvalidArgument(err):
		return CodeInvalidArgument
	case IsInvalidState(err):
		return CodeInvalidState
	default:
		return CodeInternal
	}
}

// CodeToError maps a wire code to a root sentinel.
func CodeToError(code int32) error {
	switch code {
	case CodeInvalidArgument:
		return ErrInvalidArgument
	case CodeInvalidState:
		return ErrInvalidState
	default:
		return ErrInternal
	}
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

// Unwrap returns all collected errors for errors.Is/As support.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
