package errors

import (
	"errors"
	"fmt"
)

var (
	ErrIndexNotFound   = errors.New("index files not found")
	ErrCorruptIndex    = errors.New("corrupt index")
	ErrNotDirectory    = errors.New("not a directory")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidQuery    = errors.New("invalid query")
	ErrRequestTooLarge = errors.New("request too large")
	ErrLocked          = errors.New("index is locked by another process")
)

// AppError pairs a sentinel with a detail message. Message is never sent to
// clients; WireMessage decides what a client sees.
type AppError struct {
	Err     error
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// WireMessage returns the error string the query server puts in the "error"
// field of a response.
func WireMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidQuery):
		return "Invalid query"
	case errors.Is(err, ErrRequestTooLarge):
		return "request too large"
	case errors.Is(err, ErrInvalidInput):
		return "invalid request"
	default:
		return "internal error"
	}
}
