package counter

import (
	"errors"
	"fmt"
)

// Common errors for counter operations.
var (
	ErrKeyNotFound = errors.New("key not found")
)

// Error wrapper.
type Error struct {
	err error
	msg string
}

func (e *Error) Error() string {
	return e.msg
}

// IsKeyNotFound indicates if err is ErrKeyNotFound.
func IsKeyNotFound(err error) bool {
	return unwrapError(err) == ErrKeyNotFound
}

func unwrapError(err error) error {
	switch e := err.(type) {
	case *Error:
		return e.err
	}

	return err
}

func wrapError(err error, format string, args ...interface{}) error {
	return &Error{
		err: err,
		msg: fmt.Sprintf("%s: %s", err, fmt.Sprintf(format, args...)),
	}
}
