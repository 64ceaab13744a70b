package session

import (
	"fmt"
	"sync"
)

// Store is the session registry, keyed by session id. It implements the
// AppendNotice collaborator contract used by the recovery layer.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Open returns the session with the given id, creating it if needed. An
// empty id gets a generated one.
func (st *Store) Open(id string) *Session {
	if id == "" {
		id = GenerateID()
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok {
		s = NewSession(id)
		st.sessions[id] = s
	}
	return s
}

// Get returns the session with the given id, or nil when unknown.
func (st *Store) Get(id string) *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sessions[id]
}

// Close removes the session from the store.
func (st *Store) Close(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

// Count returns the number of open sessions.
func (st *Store) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// AppendNotice appends a system-role notice to the session's history.
// Returns an error for unknown sessions so the caller can log the miss.
func (st *Store) AppendNotice(sessionID, text string) error {
	s := st.Get(sessionID)
	if s == nil {
		return fmt.Errorf("session %s not found", sessionID)
	}
	s.AddMessage(&Message{Role: "system", Content: text})
	return nil
}
