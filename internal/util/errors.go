// Package util provides utility functions and types shared across the
// dispatch library.
//
// # Error Conventions
//
// This project follows a standardized error pattern across all packages:
//
//   - Sentinel errors (errors.New) for well-known, stable conditions
//     that callers check with errors.Is(). Example: ErrNoHandler.
//   - Structured error types for context-rich errors that carry
//     additional fields (e.g., AmbiguousMatchError). Each type
//     implements Error(), Unwrap() (if wrapping), and Is().
//   - fmt.Errorf with %w for ad-hoc wrapping that adds context to an
//     existing error without introducing a new type.
package util

import (
	"errors"
	"fmt"
)

// Common sentinel errors.
var (
	ErrNoHandler        = errors.New("no handler found")
	ErrAmbiguousMatch   = errors.New("ambiguous handler match")
	ErrDuplicateMapping = errors.New("duplicate mapping")
	ErrConfigInvalid    = errors.New("invalid configuration")
)

// AmbiguousMappingError is returned by registration when an equal mapping
// is already bound to a different handler.
type AmbiguousMappingError struct {
	Mapping  string
	Existing string
	Incoming string
}

// Error implements the error interface.
func (e *AmbiguousMappingError) Error() string {
	return fmt.Sprintf("ambiguous mapping: cannot register %s to %s, %s is already mapped",
		e.Incoming, e.Mapping, e.Existing)
}

// Is checks if the error matches the target.
func (e *AmbiguousMappingError) Is(target error) bool {
	if target == ErrDuplicateMapping {
		return true
	}
	_, ok := target.(*AmbiguousMappingError)
	return ok
}

// NewAmbiguousMappingError creates a new AmbiguousMappingError.
func NewAmbiguousMappingError(mapping, existing, incoming string) *AmbiguousMappingError {
	return &AmbiguousMappingError{Mapping: mapping, Existing: existing, Incoming: incoming}
}

// AmbiguousMatchError is returned by resolution when the two best-ranked
// candidates compare equal for a request.
type AmbiguousMatchError struct {
	Path   string
	First  string
	Second string
}

// Error implements the error interface.
func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("ambiguous handler methods mapped for path %q: {%s, %s}",
		e.Path, e.First, e.Second)
}

// Is checks if the error matches the target.
func (e *AmbiguousMatchError) Is(target error) bool {
	if target == ErrAmbiguousMatch {
		return true
	}
	_, ok := target.(*AmbiguousMatchError)
	return ok
}

// NewAmbiguousMatchError creates a new AmbiguousMatchError.
func NewAmbiguousMatchError(path, first, second string) *AmbiguousMatchError {
	return &AmbiguousMatchError{Path: path, First: first, Second: second}
}

// NoHandlerError is returned when no registered mapping matches a request.
type NoHandlerError struct {
	Path   string
	Method string
}

// Error implements the error interface.
func (e *NoHandlerError) Error() string {
	return fmt.Sprintf("no handler found for %s %s", e.Method, e.Path)
}

// Is checks if the error matches the target.
func (e *NoHandlerError) Is(target error) bool {
	if target == ErrNoHandler {
		return true
	}
	_, ok := target.(*NoHandlerError)
	return ok
}

// NewNoHandlerError creates a new NoHandlerError.
func NewNoHandlerError(method, path string) *NoHandlerError {
	return &NoHandlerError{Path: path, Method: method}
}

// ConfigError represents a configuration-related error.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error at %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ConfigError) Is(target error) bool {
	if target == ErrConfigInvalid {
		return true
	}
	_, ok := target.(*ConfigError)
	return ok || errors.Is(e.Cause, target)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewConfigErrorWithCause creates a new ConfigError with a cause.
func NewConfigErrorWithCause(field, message string, cause error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Cause: cause}
}
