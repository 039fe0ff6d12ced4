package dataset

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the constructors in this package wraps
// exactly one of these, so callers can branch with errors.Is.
var (
	ErrParse                = errors.New("malformed definition string")
	ErrSchema               = errors.New("invalid definition record")
	ErrType                 = errors.New("value is not an integer")
	ErrUnsupportedGenerator = errors.New("unsupported generator")
	ErrUnsupportedFunction  = errors.New("unsupported classification function")
	ErrArity                = errors.New("classification function and drift count mismatch")
	ErrOrdering             = errors.New("drift points not strictly increasing")
	ErrWidth                = errors.New("drift width below 1")
	ErrRange                = errors.New("drift area outside sample range")
	ErrOverlap              = errors.New("drift areas overlap")
	ErrSampleCount          = errors.New("number of samples must be positive")
)

// Error is a construction or validation failure for a single definition.
type Error struct {
	Kind    error
	Field   string
	Message string
	// Input is the offending definition string, when the spec was parsed from one.
	Input string
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Input != "" || e.Kind == ErrParse {
		msg = fmt.Sprintf("%q: %s", e.Input, msg)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, field, format string, args ...any) *Error {
	return &Error{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)}
}

// withInput attaches the source string to a dataset error, leaving other
// errors untouched.
func withInput(err error, input string) error {
	var de *Error
	if errors.As(err, &de) && de.Input == "" {
		cp := *de
		cp.Input = input
		return &cp
	}
	return err
}
