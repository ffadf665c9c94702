package errors

import (
	stdErrors "errors"
	"fmt"
)

type Code string

const (
	// CodeDependency marks transient failures coming back from the payment
	// gateway or the shipping carrier (network, rate limit, 5xx).
	CodeDependency Code = "DEPENDENCY_ERROR"
	// CodeStorage marks persistence failures.
	CodeStorage Code = "STORAGE_ERROR"
	// CodeMissingInput marks an order that lacks a field the reconciliation
	// pipeline requires (e.g. a ticket id).
	CodeMissingInput Code = "MISSING_INPUT"
	// CodeInternal is the catch-all for everything else.
	CodeInternal Code = "INTERNAL_ERROR"
)

var retryableByCode = map[Code]bool{
	CodeDependency:   true,
	CodeStorage:      false,
	CodeMissingInput: false,
	CodeInternal:     false,
}

// Retryable reports whether errors carrying the code are worth another attempt.
func Retryable(code Code) bool {
	return retryableByCode[code]
}

type Error struct {
	code    Code
	message string
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// CodeOf extracts the operational code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var coded *Error
	if stdErrors.As(err, &coded) {
		return coded.Code()
	}
	return CodeInternal
}

// IsRetryable reports whether err carries a retryable code.
func IsRetryable(err error) bool {
	return Retryable(CodeOf(err))
}

// Is re-exports errors.Is so callers don't need two imports.
func Is(err, target error) bool {
	return stdErrors.Is(err, target)
}

// As re-exports errors.As.
func As(err error, target any) bool {
	return stdErrors.As(err, target)
}
