package replnet

import "time"

// Recognized message keys. The set is open: unknown keys round-trip
// through the codec untouched.
const (
	KeyID        = "id"
	KeyCode      = "code"
	KeyIn        = "in"
	KeyNS        = "ns"
	KeyTimeout   = "timeout"
	KeySessionID = "session-id"
	KeyStatus    = "status"
	KeyValue     = "value"
	KeyOut       = "out"
	KeyErr       = "err"
	KeyError     = "error"
)

// Response statuses. Done, Timeout, Interrupted and ServerFailure are
// terminal: the last message emitted for a request id. StatusError is
// not terminal; the driver recovers and continues with the next form.
const (
	StatusDone          = "done"
	StatusError         = "error"
	StatusInterrupted   = "interrupted"
	StatusTimeout       = "timeout"
	StatusServerFailure = "server-failure"
)

// DefaultTimeout bounds an evaluation when the request carries no
// timeout field.
const DefaultTimeout = 60 * time.Second

// DefaultHost is used by the client when no host is given.
const DefaultHost = "localhost"
