// Package temperr defines the error taxonomy shared by the lifecycle engine and
// the command facade. Errors carry a Kind so callers can branch on the class of
// failure without string matching, and wrap causes for logging.
package temperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation    Kind = "VALIDATION"
	KindAuthorization Kind = "AUTHORIZATION"
	KindRateLimit     Kind = "RATE_LIMIT"
	KindState         Kind = "STATE"
	KindPlatform      Kind = "PLATFORM"
)

type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is match on Kind: temperr.Validation("x") matches any
// *Error with KindValidation.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Kind == e.Kind
	}
	return false
}

func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(msg string) error    { return New(KindValidation, msg) }
func Authorization(msg string) error { return New(KindAuthorization, msg) }
func RateLimit(msg string) error     { return New(KindRateLimit, msg) }
func State(msg string) error         { return New(KindState, msg) }
func Platform(msg string, cause error) error {
	return Wrap(KindPlatform, msg, cause)
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, else "".
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }
