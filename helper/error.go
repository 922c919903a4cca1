package helper

import "fmt"

// Error wraps an error with the operation that produced it
type Error struct {
	Operation string
	Err       error
}

// NewError creates a new error for the given operation.
// The wrapped error stays reachable through errors.Is and errors.As.
func NewError(operation string, err error) error {
	return &Error{
		Operation: operation,
		Err:       err,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}
