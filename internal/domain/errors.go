package domain

import (
	"errors"
	"fmt"
)

// ValidationError marks malformed input: a bad classifier reply, an
// invalid guide payload, or illegal order parameters. It is fatal to the
// stage that raises it and is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation: %s", e.Message)
}

// NewValidationError creates a ValidationError for the given field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ServiceError marks a failed call to an external collaborator
// (market data, search, classifier, broker). Code is provider-specific
// ("timeout", "network_error", "http_error"); HTTPStatus and Raw carry
// whatever the provider returned, for the audit trail.
type ServiceError struct {
	Provider   string
	Code       string
	Message    string
	HTTPStatus int
	Raw        []byte
	Err        error
}

func (e *ServiceError) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("%s: %s (%d): %s", e.Provider, e.Code, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a ServiceError wrapping the underlying cause
func NewServiceError(provider, code, message string, err error) *ServiceError {
	return &ServiceError{Provider: provider, Code: code, Message: message, Err: err}
}

// InvariantViolation marks a state transition that must never happen,
// such as mutating an audit record. It is fatal and must never be
// swallowed.
type InvariantViolation struct {
	Message string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.Message
}

// NewInvariantViolation creates an InvariantViolation
func NewInvariantViolation(message string) *InvariantViolation {
	return &InvariantViolation{Message: message}
}

// IsValidationError reports whether err is (or wraps) a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsServiceError reports whether err is (or wraps) a ServiceError
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}

// IsInvariantViolation reports whether err is (or wraps) an InvariantViolation
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolation
	return errors.As(err, &iv)
}
