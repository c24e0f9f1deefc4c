package server

import "github.com/sirupsen/logrus"

// Option represents a functional option for configuring the server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(log *logrus.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithMaxConnections caps the number of concurrently accepted
// connections.
func WithMaxConnections(n int) Option {
	return func(s *Server) {
		s.maxConns = n
	}
}

// WithAckFormat overrides the one-liner evaluated on the ack server;
// it must contain one %d verb for the bound port.
func WithAckFormat(format string) Option {
	return func(s *Server) {
		s.ackFormat = format
	}
}
