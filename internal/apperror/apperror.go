// Package apperror carries the error taxonomy shared by services and handlers.
package apperror

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeValidation   Code = "validation"
	CodeConflict     Code = "conflict"
	CodeInsufficient Code = "insufficient_resource"
	CodeGateway      Code = "external_gateway"
	CodeNotFound     Code = "not_found"
)

type Error struct {
	Code      Code
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// Retry marks a conflict the caller may safely retry, e.g. a lock timeout.
func Retry(err error, msg string) *Error {
	return &Error{Code: CodeConflict, Message: msg, Err: err, Retryable: true}
}

func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

func IsRetryable(err error) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Retryable
}

func Validation(msg string) *Error   { return New(CodeValidation, msg) }
func Conflict(msg string) *Error     { return New(CodeConflict, msg) }
func Insufficient(msg string) *Error { return New(CodeInsufficient, msg) }
func NotFound(msg string) *Error     { return New(CodeNotFound, msg) }
