package server

import (
	"bytes"
	"io"
	"sync"

	"github.com/replnet/replnet"
)

// EmitFunc hands one response message to the connection's serialized
// writer. The dispatcher attaches the request id.
type EmitFunc func(replnet.Message)

// OutStream is the capturing sink the evaluator writes to in place of
// a real stdout or stderr. Writes accumulate in a buffer; Flush swaps
// the buffer out and, when non-empty, emits it as a single response
// chunk under the stream's key ("out" or "err"). The swap and emit run
// under one lock so concurrent writes never interleave or get lost.
type OutStream struct {
	mu     sync.Mutex
	key    string
	buf    bytes.Buffer
	emit   EmitFunc
	closed bool
}

// NewOutStream creates a sink emitting chunks under key.
func NewOutStream(key string, emit EmitFunc) *OutStream {
	return &OutStream{key: key, emit: emit}
}

// Write implements io.Writer.
func (o *OutStream) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return 0, io.ErrClosedPipe
	}
	return o.buf.Write(p)
}

// Flush emits the buffered text, if any, as one response chunk.
func (o *OutStream) Flush() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flushLocked()
}

func (o *OutStream) flushLocked() {
	if o.buf.Len() == 0 {
		return
	}
	text := o.buf.String()
	o.buf.Reset()
	o.emit(replnet.Message{o.key: text})
}

// Close flushes and rejects further writes.
func (o *OutStream) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flushLocked()
	o.closed = true
	return nil
}
