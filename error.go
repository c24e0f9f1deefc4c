package replnet

import "fmt"

// FramingError reports a malformed or truncated message on the wire.
// The connection that produced it cannot be resynchronized and must be
// closed.
type FramingError struct {
	Reason string
	Cause  error
}

// Error returns the error message.
func (e *FramingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("framing error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("framing error: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *FramingError) Unwrap() error { return e.Cause }

// NewFramingError creates a new framing error.
func NewFramingError(reason string, cause error) *FramingError {
	return &FramingError{Reason: reason, Cause: cause}
}
