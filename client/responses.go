package client

import (
	"fmt"
	"time"

	"github.com/replnet/replnet"
)

// Responses yields successive response messages for one request id.
// It carries the strong reference to the request's queue: once every
// copy of the handle is dropped, the client stops retaining responses
// for the id.
type Responses struct {
	id     string
	client *Client
	record *outstanding
}

// ID returns the request id.
func (r *Responses) ID() string { return r.id }

// Next blocks up to timeout for the next response. A non-positive
// timeout means the 60 s default. The second result is false when the
// timeout elapsed or the connection is gone.
func (r *Responses) Next(timeout time.Duration) (replnet.Message, bool) {
	if timeout <= 0 {
		timeout = replnet.DefaultTimeout
	}
	return r.record.queue.Poll(timeout)
}

// Interrupt sends a separate request that invokes the server-side
// interrupt operation for this request's id and blocks until that
// request completes or timeout elapses.
func (r *Responses) Interrupt(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = replnet.DefaultTimeout
	}
	responses, err := r.client.Send(fmt.Sprintf(r.client.interruptFormat, r.id))
	if err != nil {
		return fmt.Errorf("failed to send interrupt for %s: %w", r.id, err)
	}
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("interrupt for %s not acknowledged within %v", r.id, timeout)
		}
		msg, ok := responses.Next(remaining)
		if !ok {
			return fmt.Errorf("interrupt for %s not acknowledged within %v", r.id, timeout)
		}
		if msg.Terminal() {
			return nil
		}
	}
}

// Drain collects responses until the first done, timeout or
// interrupted status, or until the overall timeout elapses. A
// non-positive timeout means the 60 s default.
func (r *Responses) Drain(timeout time.Duration) []replnet.Message {
	if timeout <= 0 {
		timeout = replnet.DefaultTimeout
	}
	deadline := time.Now().Add(timeout)
	var collected []replnet.Message
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return collected
		}
		msg, ok := r.Next(remaining)
		if !ok {
			return collected
		}
		collected = append(collected, msg)
		switch msg.Status() {
		case replnet.StatusDone, replnet.StatusTimeout, replnet.StatusInterrupted:
			return collected
		}
	}
}
