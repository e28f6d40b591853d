package driver

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUnavailable   = errors.New("browser runtime unavailable")
	ErrSessionClosed = errors.New("browser session closed")
	ErrTimeout       = errors.New("driver operation timeout")
)

// Error wraps a failure from the underlying automation runtime with the
// operation that produced it.
type Error struct {
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("driver %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("driver %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a driver error without an underlying cause.
func NewError(op, message string) *Error {
	return &Error{Op: op, Message: message}
}

// WrapError wraps an underlying runtime failure.
func WrapError(op, message string, err error) *Error {
	return &Error{Op: op, Message: message, Err: err}
}

// IsDriverError reports whether err originated from a driver call.
func IsDriverError(err error) bool {
	var de *Error
	return errors.As(err, &de)
}

// IsTimeout reports whether err was caused by an expired deadline.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
