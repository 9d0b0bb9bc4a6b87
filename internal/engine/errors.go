package engine

// unavailableError signals a missing runtime dependency (e.g. a build
// without llama support) so callers can fail startup fast.
type unavailableError struct{ msg string }

func (e unavailableError) Error() string { return e.msg }

// ErrUnavailable constructs an unavailableError.
func ErrUnavailable(msg string) error { return unavailableError{msg: msg} }

// IsUnavailable reports whether err indicates a missing/failed runtime
// dependency.
func IsUnavailable(err error) bool {
	_, ok := err.(unavailableError)
	return ok
}
