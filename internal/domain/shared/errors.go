// Package shared contains common domain types, errors and events that are
// used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the lifecycle engine and the query
// facade matches exactly one of these through errors.Is().
var (
	// ErrValidation marks malformed or missing input the caller can fix.
	ErrValidation = errors.New("validation error")

	// ErrForbidden marks a role mismatch.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound marks a missing entity, or one the actor may not see.
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidState marks a transition that is not legal from the current status.
	ErrInvalidState = errors.New("invalid state")

	// ErrStorageFailure marks an unavailable or failing boundary store.
	ErrStorageFailure = errors.New("storage failure")

	// ErrUnauthenticated marks a request without a usable identity.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g. "achievement", "review"
	Op      string // Operation that failed, e.g. "Submit", "Review"
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

// Is implements errors.Is() matching against the kind.
func (e *DomainError) Is(target error) bool {
	return e.Kind != nil && errors.Is(e.Kind, target)
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

// Validation builds a validation error for op.
func Validation(domain, op, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, ErrValidation, fmt.Sprintf(format, args...))
}

// KindOf returns the error kind err carries, or nil when it carries none.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrValidation,
		ErrForbidden,
		ErrNotFound,
		ErrInvalidState,
		ErrUnauthenticated,
		ErrStorageFailure,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsForbidden checks if the error is a role mismatch.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsInvalidState checks if the error is an illegal transition.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsStorageFailure checks if the error came from the boundary store.
func IsStorageFailure(err error) bool {
	return errors.Is(err, ErrStorageFailure)
}
