// Package shared contains error kinds and numeric helpers used by every
// analytics domain package.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds that can be used for error checking with errors.Is().
var (
	// ErrConfiguration marks a malformed grading policy or threshold set.
	// It is the only kind allowed to escape the engine boundary.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrInvalidRecord marks a score record that cannot take part in aggregation.
	ErrInvalidRecord = errors.New("invalid score record")

	// ErrInsufficientData marks a series too short for the requested analysis.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrCacheMiss is returned by cache tiers when a key is absent or expired.
	ErrCacheMiss = errors.New("cache miss")

	// ErrBackendUnavailable marks a shared cache backend failure.
	ErrBackendUnavailable = errors.New("cache backend unavailable")

	// ErrSourceUnavailable marks a failure of the score record source.
	ErrSourceUnavailable = errors.New("score source unavailable")

	// ErrInvalidInput marks a caller supplied argument that is out of range.
	ErrInvalidInput = errors.New("invalid input")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "grading", "trend", "cache"
	Op      string // Operation that failed, e.g., "NewScale", "Load"
	Kind    error  // Base error kind for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching against both the kind and the cause.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// ConfigError builds a configuration error for the given domain and operation.
func ConfigError(domain, op, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, ErrConfiguration, fmt.Sprintf(format, args...))
}

// IsConfiguration checks if the error is a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsInvalidRecord checks if the error describes a rejected score record.
func IsInvalidRecord(err error) bool {
	return errors.Is(err, ErrInvalidRecord)
}

// IsCacheMiss checks if the error is a cache miss.
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}
