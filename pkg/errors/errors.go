package errors

import (
	"errors"
	"fmt"
)

// Kind categorizes an error for callers that map outcomes to responses.
type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindAlreadyExists     Kind = "ALREADY_EXISTS"
	KindConflict          Kind = "CONFLICT"
	KindInvalidTransition Kind = "INVALID_TRANSITION"
	KindTruncated         Kind = "TRUNCATED"
	KindValidation        Kind = "VALIDATION"
	KindInternal          Kind = "INTERNAL"
)

// AppError is the custom error type for the application.
type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is and errors.As to work.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFound creates a not found error.
func NewNotFound(message string) error {
	return &AppError{Kind: KindNotFound, Message: message}
}

// NewNotFoundf creates a not found error with a formatted message.
func NewNotFoundf(format string, args ...any) error {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewAlreadyExists creates a uniqueness-violation error.
func NewAlreadyExists(message string) error {
	return &AppError{Kind: KindAlreadyExists, Message: message}
}

// NewConflict creates a version-mismatch error for compare-and-swap writes.
func NewConflict(message string) error {
	return &AppError{Kind: KindConflict, Message: message}
}

// NewInvalidTransition creates a business-rule violation error.
func NewInvalidTransition(message string) error {
	return &AppError{Kind: KindInvalidTransition, Message: message}
}

// NewTruncated creates a non-fatal data-shortened-on-write error.
func NewTruncated(message string) error {
	return &AppError{Kind: KindTruncated, Message: message}
}

// NewValidation creates a validation error.
func NewValidation(message string) error {
	return &AppError{Kind: KindValidation, Message: message}
}

// NewInternal creates an internal error.
func NewInternal(message string, err error) error {
	return &AppError{Kind: KindInternal, Message: message, Err: err}
}

// Wrap wraps an error with additional context, preserving its kind.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Kind:    appErr.Kind,
			Message: fmt.Sprintf("%s: %s", message, appErr.Message),
			Err:     appErr.Err,
		}
	}
	return &AppError{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the kind of an error, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func is(err error, kind Kind) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool { return is(err, KindNotFound) }

// IsAlreadyExists checks if an error is a uniqueness-violation error.
func IsAlreadyExists(err error) bool { return is(err, KindAlreadyExists) }

// IsConflict checks if an error is a compare-and-swap conflict.
func IsConflict(err error) bool { return is(err, KindConflict) }

// IsInvalidTransition checks if an error is a business-rule violation.
func IsInvalidTransition(err error) bool { return is(err, KindInvalidTransition) }

// IsTruncated checks if an error reports shortened data.
func IsTruncated(err error) bool { return is(err, KindTruncated) }

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool { return is(err, KindValidation) }
