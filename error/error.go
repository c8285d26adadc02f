package error

import (
	"errors"
	"fmt"
)

const errFmt = "%s: %s"

// General-purpose errors.
var (
	ErrNotFound = errors.New("not found")
)

// Admission errors.
var (
	ErrAddressBlocked   = errors.New("address blocked")
	ErrBreakerOpen      = errors.New("circuit breaker open")
	ErrInvalidRule      = errors.New("invalid rule")
	ErrLimitExceeded    = errors.New("limit exceeded")
	ErrPlanExceeded     = errors.New("plan quota exceeded")
	ErrStoreUnavailable = errors.New("counter store unavailable")
	ErrUnknownDimension = errors.New("unknown dimension")
	ErrUnknownOperation = errors.New("unknown operation")
)

// Error wrapper.
type Error struct {
	err error
	msg string
}

func (e Error) Error() string {
	return e.msg
}

// IsAddressBlocked indicates if err is ErrAddressBlocked.
func IsAddressBlocked(err error) bool {
	return unwrapError(err) == ErrAddressBlocked
}

// IsBreakerOpen indicates if err is ErrBreakerOpen.
func IsBreakerOpen(err error) bool {
	return unwrapError(err) == ErrBreakerOpen
}

// IsInvalidRule indicates if err is ErrInvalidRule.
func IsInvalidRule(err error) bool {
	return unwrapError(err) == ErrInvalidRule
}

// IsLimitExceeded indicates if err is ErrLimitExceeded.
func IsLimitExceeded(err error) bool {
	return unwrapError(err) == ErrLimitExceeded
}

// IsNotFound indicates if err is ErrNotFound.
func IsNotFound(err error) bool {
	return unwrapError(err) == ErrNotFound
}

// IsPlanExceeded indicates if err is ErrPlanExceeded.
func IsPlanExceeded(err error) bool {
	return unwrapError(err) == ErrPlanExceeded
}

// IsStoreUnavailable indicates if err is ErrStoreUnavailable.
func IsStoreUnavailable(err error) bool {
	return unwrapError(err) == ErrStoreUnavailable
}

// IsUnknownDimension indicates if err is ErrUnknownDimension.
func IsUnknownDimension(err error) bool {
	return unwrapError(err) == ErrUnknownDimension
}

// IsUnknownOperation indicates if err is ErrUnknownOperation.
func IsUnknownOperation(err error) bool {
	return unwrapError(err) == ErrUnknownOperation
}

// Wrap constructs an Error with proper messaging.
func Wrap(err error, format string, args ...interface{}) error {
	return &Error{
		err: err,
		msg: fmt.Sprintf(
			errFmt,
			err, fmt.Sprintf(format, args...),
		),
	}
}

func unwrapError(err error) error {
	switch e := err.(type) {
	case *Error:
		return e.err
	}

	return err
}
