package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies a failure.
type ErrorCode string

const (
	// ErrCodeDuplicateKey indicates a registration for a key that already exists.
	ErrCodeDuplicateKey ErrorCode = "DUPLICATE_KEY"
	// ErrCodeUnknownKey indicates a lookup for a key that was never registered.
	ErrCodeUnknownKey ErrorCode = "UNKNOWN_KEY"
	// ErrCodeContractViolation indicates a factory that cannot produce a
	// value honouring the capability contract.
	ErrCodeContractViolation ErrorCode = "CONTRACT_VIOLATION"
	// ErrCodeIllegalConstruction indicates construction of a managed resource
	// outside its singleton manager.
	ErrCodeIllegalConstruction ErrorCode = "ILLEGAL_CONSTRUCTION"
	// ErrCodeInvalidRequest indicates malformed input.
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	// ErrCodeSealed indicates a write to a registry that no longer accepts them.
	ErrCodeSealed ErrorCode = "SEALED"
	// ErrCodeRateLimited indicates the dispatcher could not obtain a token
	// before the context ended.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	// ErrCodeInternal indicates an unexpected failure.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Sentinels for errors.Is. They compare by code only.
var (
	ErrDuplicateKey        = New(ErrCodeDuplicateKey, "duplicate key")
	ErrUnknownKey          = New(ErrCodeUnknownKey, "unknown key")
	ErrContractViolation   = New(ErrCodeContractViolation, "contract violation")
	ErrIllegalConstruction = New(ErrCodeIllegalConstruction, "illegal construction")
	ErrInvalidRequest      = New(ErrCodeInvalidRequest, "invalid request")
	ErrSealed              = New(ErrCodeSealed, "sealed")
	ErrRateLimited         = New(ErrCodeRateLimited, "rate limited")
)

// StructuredError carries an error code, a human-readable message, the
// underlying cause and optional context for logging.
type StructuredError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is and errors.As support.
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a StructuredError with the same code.
func (e *StructuredError) Is(target error) bool {
	t, ok := target.(*StructuredError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates a new StructuredError with the given code and message.
func New(code ErrorCode, message string) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
	}
}

// NewWithContext creates a new StructuredError with context information.
func NewWithContext(code ErrorCode, message string, context map[string]any) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Context: context,
	}
}

// Wrap wraps an existing error with a code and message.
func Wrap(code ErrorCode, message string, cause error) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapWithContext wraps an error with additional context information.
func WrapWithContext(code ErrorCode, message string, cause error, context map[string]any) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: context,
	}
}

// CodeOf returns the code of the first StructuredError in err's chain,
// or the empty code when there is none.
func CodeOf(err error) ErrorCode {
	var se *StructuredError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}

// HasCode reports whether err's chain contains a StructuredError with code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }
