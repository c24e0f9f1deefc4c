package client

import (
	"time"

	"github.com/replnet/replnet"
	"github.com/sirupsen/logrus"
)

// Option represents a functional option for configuring the client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(log *logrus.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithInterruptFormat overrides the one-liner sent to interrupt a
// request; it must contain one %q verb for the request id.
func WithInterruptFormat(format string) Option {
	return func(c *Client) {
		c.interruptFormat = format
	}
}

// RequestOption customizes one evaluation request.
type RequestOption func(replnet.Message)

// WithNamespace evaluates the request inside the named namespace.
func WithNamespace(ns string) RequestOption {
	return func(m replnet.Message) {
		m[replnet.KeyNS] = ns
	}
}

// WithTimeout bounds the evaluation on the server side.
func WithTimeout(timeout time.Duration) RequestOption {
	return func(m replnet.Message) {
		m[replnet.KeyTimeout] = timeout.Milliseconds()
	}
}

// WithSessionID attaches the request to a retained session.
func WithSessionID(id string) RequestOption {
	return func(m replnet.Message) {
		m[replnet.KeySessionID] = id
	}
}

// WithStdin exposes text as the evaluator's standard input.
func WithStdin(in string) RequestOption {
	return func(m replnet.Message) {
		m[replnet.KeyIn] = in
	}
}
