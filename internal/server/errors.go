package server

import "fmt"

// bindError signals that the configured listener could not be bound.
// It is fatal to Start and leaves the server Stopped.
type bindError struct {
	addr string
	err  error
}

func (e bindError) Error() string { return fmt.Sprintf("bind %s: %v", e.addr, e.err) }

func (e bindError) Unwrap() error { return e.err }

// ErrBind constructs a bindError.
func ErrBind(addr string, err error) error { return bindError{addr: addr, err: err} }

// IsBindError reports whether err indicates a listener bind failure.
func IsBindError(err error) bool {
	_, ok := err.(bindError)
	return ok
}
