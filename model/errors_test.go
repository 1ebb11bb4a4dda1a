package model

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorEnvelope_Error(t *testing.T) {
	e := &ErrorEnvelope{Code: ErrNotFound, Message: "Order not found"}
	want := "NOT_FOUND: Order not found"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorEnvelope_implements_error(t *testing.T) {
	var _ error = (*ErrorEnvelope)(nil)
}

func TestConstructors_defaultMessages(t *testing.T) {
	tests := []struct {
		name string
		err  *ErrorEnvelope
		code string
	}{
		{"not authenticated", NewNotAuthenticatedError(""), ErrNotAuthenticated},
		{"not found", NewNotFoundError(""), ErrNotFound},
		{"network", NewNetworkUnavailableError(""), ErrNetworkUnavailable},
		{"unknown", NewUnknownError(""), ErrUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
			if tt.err.Message == "" {
				t.Error("Message is empty, want default message")
			}
		})
	}
}

func TestNewValidationRejectedError_keepsMessageVerbatim(t *testing.T) {
	details := []FieldError{{Field: "price", Message: "must be positive"}}
	e := NewValidationRejectedError("Price must be positive", details)
	if e.Code != ErrValidationRejected {
		t.Errorf("Code = %q, want %q", e.Code, ErrValidationRejected)
	}
	if e.Message != "Price must be positive" {
		t.Errorf("Message = %q, want verbatim server message", e.Message)
	}
	if len(e.Details) != 1 || e.Details[0].Field != "price" {
		t.Errorf("Details = %+v, want one price detail", e.Details)
	}
}

func TestErrorEnvelope_Is(t *testing.T) {
	wrapped := fmt.Errorf("load orders: %w", NewNotFoundError("gone"))
	if !errors.Is(wrapped, NewNotFoundError("")) {
		t.Error("errors.Is(NOT_FOUND) = false, want true")
	}
	if errors.Is(wrapped, NewUnknownError("")) {
		t.Error("errors.Is(UNKNOWN) = true, want false")
	}
}

func TestAsEnvelope(t *testing.T) {
	if AsEnvelope(nil) != nil {
		t.Error("AsEnvelope(nil) should be nil")
	}

	orig := NewNotAuthenticatedError("expired")
	if got := AsEnvelope(fmt.Errorf("wrap: %w", orig)); got != orig {
		t.Errorf("AsEnvelope unwrapped = %v, want original envelope", got)
	}

	if got := AsEnvelope(context.DeadlineExceeded); got.Code != ErrNetworkUnavailable {
		t.Errorf("deadline code = %q, want %q", got.Code, ErrNetworkUnavailable)
	}

	got := AsEnvelope(errors.New("boom"))
	if got.Code != ErrUnknown || got.Message != "boom" {
		t.Errorf("plain error = %+v, want UNKNOWN boom", got)
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(nil); got != "" {
		t.Errorf("CodeOf(nil) = %q, want empty", got)
	}
	if got := CodeOf(NewNotFoundError("")); got != ErrNotFound {
		t.Errorf("CodeOf = %q, want %q", got, ErrNotFound)
	}
}
