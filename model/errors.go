package model

import (
	"context"
	"errors"
	"fmt"
)

// Error codes surfaced to views. Every failure reaching a store is classified
// into exactly one of these.
const (
	ErrNotAuthenticated   = "NOT_AUTHENTICATED"
	ErrNotFound           = "NOT_FOUND"
	ErrValidationRejected = "VALIDATION_REJECTED"
	ErrNetworkUnavailable = "NETWORK_UNAVAILABLE"
	ErrUnknown            = "UNKNOWN"
)

// ErrorEnvelope is the structured last-error value kept by every store.
// It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Status  int          `json:"status,omitempty"`
	Details []FieldError `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is an ErrorEnvelope with the same code, so
// errors.Is(err, model.NewNotFoundError("")) matches any NOT_FOUND error.
func (e *ErrorEnvelope) Is(target error) bool {
	t, ok := target.(*ErrorEnvelope)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// FieldError describes a field-level validation error reported by the backend.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewNotAuthenticatedError returns a NOT_AUTHENTICATED error.
func NewNotAuthenticatedError(msg string) *ErrorEnvelope {
	if msg == "" {
		msg = "Authentication required"
	}
	return &ErrorEnvelope{Code: ErrNotAuthenticated, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	if msg == "" {
		msg = "Resource not found"
	}
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewValidationRejectedError returns a VALIDATION_REJECTED error carrying the
// backend's message verbatim.
func NewValidationRejectedError(msg string, details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrValidationRejected, Message: msg, Details: details}
}

// NewNetworkUnavailableError returns a NETWORK_UNAVAILABLE error.
func NewNetworkUnavailableError(msg string) *ErrorEnvelope {
	if msg == "" {
		msg = "The backend service is unreachable"
	}
	return &ErrorEnvelope{Code: ErrNetworkUnavailable, Message: msg}
}

// NewUnknownError returns an UNKNOWN error.
func NewUnknownError(msg string) *ErrorEnvelope {
	if msg == "" {
		msg = "An unexpected error occurred"
	}
	return &ErrorEnvelope{Code: ErrUnknown, Message: msg}
}

// AsEnvelope classifies any error into an ErrorEnvelope. Context
// cancellation and deadlines are reported as NETWORK_UNAVAILABLE since
// timeouts are delegated to the transport.
func AsEnvelope(err error) *ErrorEnvelope {
	if err == nil {
		return nil
	}
	var ee *ErrorEnvelope
	if errors.As(err, &ee) {
		return ee
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewNetworkUnavailableError("The backend service did not respond in time")
	}
	return NewUnknownError(err.Error())
}

// CodeOf returns the taxonomy code for err, or "" when err is nil.
func CodeOf(err error) string {
	if ee := AsEnvelope(err); ee != nil {
		return ee.Code
	}
	return ""
}
