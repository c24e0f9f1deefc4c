package server

import (
	"sync"

	"github.com/replnet/replnet/runtime"
)

// Session is the retainable set of evaluation bindings associated with
// a logical user: current namespace, the last three printed values,
// the last caught exception and the printer toggles. A fresh session is
// owned by the connection that created it; once retained it is shared
// through the Store and may be rebound by any connection.
type Session struct {
	mu        sync.Mutex
	id        string
	ns        string
	v1        any
	v2        any
	v3        any
	lastError error
	options   runtime.Options
}

// NewSession creates a session starting in namespace ns.
func NewSession(ns string) *Session {
	return &Session{ns: ns}
}

// ID returns the session's opaque id, or "" while unretained.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Apply copies the session's bindings into an evaluation context.
func (s *Session) Apply(ec *runtime.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ec.Namespace = s.ns
	ec.V1, ec.V2, ec.V3 = s.v1, s.v2, s.v3
	ec.LastError = s.lastError
	ec.Options = s.options
}

// Rotate records one printed evaluation result: v3 takes v2, v2 takes
// v1, v1 takes the new value; the namespace follows the evaluation.
func (s *Session) Rotate(value any, ns string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v3, s.v2, s.v1 = s.v2, s.v1, value
	s.ns = ns
}

// RecordError stores the last caught exception.
func (s *Session) RecordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = err
}

// LastError returns the last caught exception.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Values returns the last three printed values.
func (s *Session) Values() (v1, v2, v3 any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v1, s.v2, s.v3
}

// Namespace returns the session's current namespace.
func (s *Session) Namespace() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ns
}

// Options returns the printer toggles.
func (s *Session) Options() runtime.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options
}

// SetOptions replaces the printer toggles.
func (s *Session) SetOptions(opts runtime.Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.options = opts
}
