package errors

import (
	stderrors "errors"
	"fmt"

	"talkback/internal/domain"
)

// Error is a structured failure carrying a code the UI can route on.
type Error struct {
	Code     domain.ErrorCode
	Message  string
	Provider string
	Details  map[string]any
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewSetupRequired reports that the capture permission is missing.
func NewSetupRequired(msg string) *Error {
	if msg == "" {
		msg = "audio capture permission is required"
	}
	return &Error{Code: domain.ErrorCodeSetupRequired, Message: msg}
}

// NewCaptureDevice wraps a device failure that ends the session.
func NewCaptureDevice(err error) *Error {
	msg := "audio device failed"
	if err != nil {
		msg = err.Error()
	}
	return &Error{Code: domain.ErrorCodeCaptureDevice, Message: msg, Err: err}
}

// NewBusy reports a single-flight violation.
func NewBusy(operation string) *Error {
	return &Error{
		Code:    domain.ErrorCodeBusy,
		Message: fmt.Sprintf("%s already in flight", operation),
		Details: map[string]any{"operation": operation},
	}
}

// NewProvider wraps a transcription or AI provider failure.
func NewProvider(provider string, err error) *Error {
	msg := "provider request failed"
	if err != nil {
		msg = err.Error()
	}
	return &Error{Code: domain.ErrorCodeProvider, Provider: provider, Message: msg, Err: err}
}

// NewDuplicateLabel reports a quick-action naming conflict.
func NewDuplicateLabel(label string) *Error {
	return &Error{
		Code:    domain.ErrorCodeDuplicate,
		Message: fmt.Sprintf("quick action with label %q already exists", label),
		Details: map[string]any{"label": label},
	}
}

// NewValidation reports rejected configuration or input.
func NewValidation(msg string) *Error {
	return &Error{Code: domain.ErrorCodeValidation, Message: msg}
}

// NewValidationf formats a validation message.
func NewValidationf(format string, args ...any) *Error {
	return NewValidation(fmt.Sprintf(format, args...))
}

// NewNotFound reports a missing conversation or quick action.
func NewNotFound(kind, id string) *Error {
	return &Error{
		Code:    domain.ErrorCodeNotFound,
		Message: fmt.Sprintf("%s not found: %s", kind, id),
		Details: map[string]any{"kind": kind, "id": id},
	}
}

// NewNoActiveSession reports an operation that needs a capturing session.
func NewNoActiveSession() *Error {
	return &Error{Code: domain.ErrorCodeNoSession, Message: "no active capture session"}
}

// NewInternal wraps an unexpected failure.
func NewInternal(err error) *Error {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &Error{Code: domain.ErrorCodeInternal, Message: msg, Err: err}
}

// Is reports whether any error in the chain carries the given code.
func Is(err error, code domain.ErrorCode) bool {
	var target *Error
	if stderrors.As(err, &target) {
		return target.Code == code
	}
	return false
}

// CodeOf returns the code of the first structured error in the chain.
func CodeOf(err error) domain.ErrorCode {
	var target *Error
	if stderrors.As(err, &target) {
		return target.Code
	}
	return domain.ErrorCodeInternal
}
