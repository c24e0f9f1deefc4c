package server

import (
	"github.com/google/uuid"
	"github.com/replnet/replnet/internal/collection"
)

// Store tracks retained sessions by opaque id. A retained session is
// referenced under exactly one id until released.
type Store struct {
	sessions *collection.SyncMap[string, *Session]
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{sessions: collection.NewSyncMap[string, *Session]()}
}

// Retain installs the session under a fresh uuid and returns the id.
// Retaining an already retained session returns the existing id.
func (s *Store) Retain(session *Session) string {
	session.mu.Lock()
	if session.id == "" {
		session.id = uuid.NewString()
	}
	id := session.id
	session.mu.Unlock()
	s.sessions.Put(id, session)
	return id
}

// Release removes the session and reports whether it was retained.
func (s *Store) Release(session *Session) bool {
	session.mu.Lock()
	id := session.id
	session.id = ""
	session.mu.Unlock()
	if id == "" {
		return false
	}
	return s.sessions.Delete(id)
}

// Lookup returns the session retained under id.
func (s *Store) Lookup(id string) (*Session, bool) {
	return s.sessions.Get(id)
}

// Len returns the number of retained sessions.
func (s *Store) Len() int {
	return s.sessions.Size()
}
