package http

import (
	"errors"
	"fmt"
)

// Errors used for protocol control flow.
var (
	ErrBadRequest         = errors.New("bad request")
	ErrLimitExceeded      = errors.New("limit exceeded")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrUnauthorized       = errors.New("unauthorized")
)

// Error is used to carry additional error information reported back to
// clients.
type Error struct {
	Err     error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func wrapError(err error, msg string) *Error {
	return &Error{
		Err:     err,
		Message: fmt.Sprintf("%s: %s", err.Error(), msg),
	}
}

func unwrapError(err error) error {
	switch e := err.(type) {
	case *Error:
		return e.Err
	}

	return err
}
