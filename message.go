package replnet

import (
	"time"

	"github.com/goccy/go-json"
)

// Message is one framed unit on the wire: a mapping from short string
// keys to values. The value domain the codec round-trips is string,
// int64, bool, nil, Sym, []any and map[string]any; nested collections
// may mix those freely.
type Message map[string]any

// Sym is an opaque readable token: a value that was neither a quoted
// string, an integer, a boolean nor nil. It is re-emitted verbatim.
type Sym string

// Str returns the string value under key, or "" when the key is absent
// or not a string.
func (m Message) Str(key string) string {
	s, _ := m[key].(string)
	return s
}

// Int returns the integer value under key.
func (m Message) Int(key string) (int64, bool) {
	v, ok := m[key].(int64)
	return v, ok
}

// ID returns the request id echoed on every response.
func (m Message) ID() string { return m.Str(KeyID) }

// Status returns the response status, or "".
func (m Message) Status() string { return m.Str(KeyStatus) }

// Terminal reports whether the message carries a terminal status.
func (m Message) Terminal() bool {
	switch m.Status() {
	case StatusDone, StatusTimeout, StatusInterrupted, StatusServerFailure:
		return true
	}
	return false
}

// Timeout returns the request's evaluation deadline, falling back to
// DefaultTimeout when the field is absent or non-positive.
func (m Message) Timeout() time.Duration {
	if ms, ok := m.Int(KeyTimeout); ok && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return DefaultTimeout
}

// Clone returns a shallow copy of the message.
func (m Message) Clone() Message {
	ret := make(Message, len(m))
	for k, v := range m {
		ret[k] = v
	}
	return ret
}

// String renders the message as a single JSON line. Used by debug
// tracing only; the wire representation is produced by Encoder.
func (m Message) String() string {
	data, err := json.Marshal(map[string]any(m))
	if err != nil {
		return "<unprintable message>"
	}
	return string(data)
}
