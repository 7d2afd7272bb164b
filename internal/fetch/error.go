package fetch

import "fmt"

// Error is a per-request failure whose message is relayed verbatim to the
// user through an error response. Anything else that goes wrong is reported
// as a plain "internal error".
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Errorf builds a user-facing Error.
func Errorf(format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

func errTooBig(size, max int64) *Error {
	return Errorf("file is too big: %d bytes (> %d bytes of maximum allowed)", size, max)
}
