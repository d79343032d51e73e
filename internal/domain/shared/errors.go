// Package shared contains common domain types and errors used across all
// domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState = errors.New("invalid state")
	ErrExpired      = errors.New("expired")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "badge", "journey", "tracker"
	Op      string // Operation that failed, e.g., "Grant", "Increment"
	Kind    error  // Base error type for errors.Is() checking
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

// Is implements errors.Is() matching.
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

// Identity domain errors
var (
	ErrEmptyIdentifier = NewDomainError("identity", "Validate", ErrEmptyValue, "identifier cannot be empty")
)

// Tracker domain errors
var (
	ErrTrackerNotFound  = NewDomainError("tracker", "Load", ErrNotFound, "tracker not found")
	ErrMixedValueKinds  = NewDomainError("tracker", "Validate", ErrInvalidInput, "numeric and string values in one update")
	ErrUnknownValueKind = NewDomainError("tracker", "Decode", ErrInvalidFormat, "unknown tracker value kind")
)

// Badge domain errors
var (
	ErrBadgeNotFound     = NewDomainError("badge", "Find", ErrNotFound, "badge not defined")
	ErrGrantNotFound     = NewDomainError("badge", "FindGrant", ErrNotFound, "badge not granted")
	ErrBadgeNotExplicit  = NewDomainError("badge", "Grant", ErrInvalidState, "badge has no progress function and must be granted explicitly")
	ErrInvalidProgress   = NewDomainError("badge", "Evaluate", ErrValueOutOfRange, "progress outside [0,1]")
	ErrMissingProgressFn = NewDomainError("badge", "Evaluate", ErrInvalidState, "badge has no progress function")
)

// Journey domain errors
var (
	ErrUnknownJourneyType = NewDomainError("journey", "Validate", ErrInvalidInput, "unknown journey type")
	ErrJourneyNotFound    = NewDomainError("journey", "Find", ErrNotFound, "journey not found")
)

// Points domain errors
var (
	ErrNegativeBalance = NewDomainError("points", "Set", ErrNegativeValue, "balance cannot be negative")
	ErrMalformedAmount = NewDomainError("points", "Parse", ErrInvalidFormat, "malformed points amount")
)

// Leaderboard domain errors
var (
	ErrLeaderboardUnavailable = NewDomainError("leaderboard", "Build", ErrServiceUnavailable, "leaderboard scan failed")
)

// Administrative errors
var (
	ErrBadAuthorityToken = NewDomainError("admin", "Authorize", ErrUnauthorized, "authority token rejected")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsUnauthorized checks if the error is an authorization failure.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
