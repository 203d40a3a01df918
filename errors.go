package jwthelper

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrorCode represents helper error categories.
type ErrorCode string

const (
	ErrCodeConfig            ErrorCode = "config_error"
	ErrCodeKeyMaterial       ErrorCode = "key_material_error"
	ErrCodeSigning           ErrorCode = "signing_error"
	ErrCodeMalformedToken    ErrorCode = "malformed_token"
	ErrCodeAlgorithmMismatch ErrorCode = "algorithm_mismatch"
	ErrCodeInvalidSignature  ErrorCode = "invalid_signature"
	ErrCodeExpired           ErrorCode = "token_expired"
)

var errorMessages = map[ErrorCode]string{
	ErrCodeConfig:            "Helper not configured",
	ErrCodeKeyMaterial:       "Invalid key material",
	ErrCodeSigning:           "Signing failed",
	ErrCodeMalformedToken:    "Malformed token",
	ErrCodeAlgorithmMismatch: "Algorithm mismatch",
	ErrCodeInvalidSignature:  "Invalid signature",
	ErrCodeExpired:           "Token expired",
}

// Error wraps helper errors with a stable code and message.
//
// Messages never carry key material, passphrases or token contents.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	base := e.Message
	if base == "" {
		base = string(e.Code)
	}
	if e.Err == nil {
		return base
	}
	return fmt.Sprintf("%s: %v", base, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error carrying the same code, so callers
// can write errors.Is(err, &jwthelper.Error{Code: jwthelper.ErrCodeExpired}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code of the first *Error in err's chain, or "" when err
// did not originate from this package.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func newError(code ErrorCode, err error) error {
	msg, ok := errorMessages[code]
	if !ok {
		msg = string(code)
	}
	return &Error{Code: code, Message: msg, Err: err}
}
