package apperrors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation   Kind = "validation"
	KindAuthRequired Kind = "auth_required"
	KindAuthExpired  Kind = "auth_expired"
	KindServer       Kind = "server"
	KindNetwork      Kind = "network"
	KindTimeout      Kind = "timeout"
	KindDataShape    Kind = "data_shape"
)

// Error is the single error type surfaced to the user. Message is what gets
// shown; Err keeps the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Status  int
	Err     error
}

var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrAuthRequired = &Error{Kind: KindAuthRequired}
	ErrAuthExpired  = &Error{Kind: KindAuthExpired}
	ErrServer       = &Error{Kind: KindServer}
	ErrNetwork      = &Error{Kind: KindNetwork}
	ErrTimeout      = &Error{Kind: KindTimeout}
	ErrDataShape    = &Error{Kind: KindDataShape}
)

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so callers can write
// errors.Is(err, apperrors.ErrAuthExpired).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func AuthRequired(msg string) *Error {
	return &Error{Kind: KindAuthRequired, Message: msg}
}

func AuthExpired(msg string, status int) *Error {
	return &Error{Kind: KindAuthExpired, Message: msg, Status: status}
}

func Server(msg string, status int) *Error {
	return &Error{Kind: KindServer, Message: msg, Status: status}
}

func Network(err error) *Error {
	return &Error{Kind: KindNetwork, Message: "unable to reach the server, check your connection", Err: err}
}

func Timeout(err error) *Error {
	return &Error{Kind: KindTimeout, Message: "the server took too long to respond", Err: err}
}

func DataShape(what string, err error) *Error {
	return &Error{Kind: KindDataShape, Message: "received malformed data for " + what, Err: err}
}

// KindOf reports the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
