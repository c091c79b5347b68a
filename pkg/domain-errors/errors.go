// Package domainerrors defines coded errors that cross layer boundaries.
// Codes, not types, drive HTTP status mapping and audit reasons, so services
// return these instead of transport-specific errors.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies an error category. Hard-block codes double as the reason
// strings recorded in audit entries.
type Code string

const (
	CodeInternal     Code = "internal"
	CodeBadRequest   Code = "bad_request"
	CodeValidation   Code = "validation"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeUnauthorized Code = "unauthorized"

	CodeInvalidAmount   Code = "invalid_amount"
	CodePendingNotFound Code = "pending_not_found"

	// Hard-block codes: the four conditions that abort a transfer outright.
	CodeExceedsPerTxLimit   Code = "exceeds_per_tx_limit"
	CodeExceedsDailyLimit   Code = "exceeds_daily_limit"
	CodeRecipientDenylisted Code = "recipient_denylisted"
	CodeInsufficientBalance Code = "insufficient_balance"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. Returns nil when
// err is nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// CodeOf returns the code of the outermost coded error in the chain, or
// CodeInternal when none is present.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether any coded error in the chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Unwrap()
	}
	return false
}

// Is re-exports errors.Is so callers need only one errors import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
