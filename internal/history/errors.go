package history

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a lookup exhausts every tier without a match.
var ErrNotFound = errors.New("owner not found")

// ErrInvalidName is returned when a candidate name cannot be stored as a bare
// identifier. See Engine.ValidName.
var ErrInvalidName = errors.New("invalid candidate name")

// ErrDuplicate marks store errors caused by a unique constraint. Stores wrap
// their driver error with it so the engine can classify the failure without
// knowing the driver.
var ErrDuplicate = errors.New("duplicate identifier")

// Error is a classified engine failure.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// CodeConfiguration indicates an invalid engine setup. Fatal at startup.
	CodeConfiguration ErrorCode = "CONFIGURATION"

	// CodeUnknownType indicates an owner type missing from the TypeRegistry.
	CodeUnknownType ErrorCode = "UNKNOWN_TYPE"

	// CodeUniqueViolation indicates a concurrent writer claimed the same
	// identifier first. Fatal to the current save; the caller may retry it.
	CodeUniqueViolation ErrorCode = "UNIQUE_VIOLATION"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func configError(format string, args ...any) *Error {
	return &Error{Code: CodeConfiguration, Message: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err means no owner matched.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConfigurationError reports whether err is a setup-time configuration error.
func IsConfigurationError(err error) bool {
	return hasCode(err, CodeConfiguration)
}

// IsUnknownType reports whether err was caused by an undeclared owner type.
func IsUnknownType(err error) bool {
	return hasCode(err, CodeUnknownType)
}

// IsUniqueViolation reports whether err was caused by a unique constraint,
// either classified by the engine or marked by a store with ErrDuplicate.
func IsUniqueViolation(err error) bool {
	return hasCode(err, CodeUniqueViolation) || errors.Is(err, ErrDuplicate)
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
