// Package auth - errors.go defines the typed failures raised by login, step-up,
// session and role operations. Handlers map a Kind to an HTTP status.
package auth

import (
	"errors"
	"fmt"
)

// Kind classifies an Error
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidCredentials
	KindAccountDisabled
	KindTwoFactorRequired
	KindTwoFactorInvalid
	KindPermissionDenied
	KindResourceInUse
	KindNotFound
	KindValidation
	KindTransactionFailure
	KindLoggingFailure
)

var kindNames = map[Kind]string{
	KindInternal:           "internal",
	KindInvalidCredentials: "invalid_credentials",
	KindAccountDisabled:    "account_disabled",
	KindTwoFactorRequired:  "two_factor_required",
	KindTwoFactorInvalid:   "two_factor_invalid",
	KindPermissionDenied:   "permission_denied",
	KindResourceInUse:      "resource_in_use",
	KindNotFound:           "not_found",
	KindValidation:         "validation",
	KindTransactionFailure: "transaction_failure",
	KindLoggingFailure:     "logging_failure",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified failure. Message is safe to show to the caller; Err
// carries the internal cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// NewError creates an Error
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-safe message of err, or fallback when err is not an *Error.
func MessageOf(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}
