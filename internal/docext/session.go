package docext

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// defaultSessionCap bounds how many documents stay loaded at once.
const defaultSessionCap = 32

// SessionStore holds loaded documents keyed by opaque session IDs.
// Every operation takes the session ID explicitly; there is no notion
// of a "current" document, so concurrent sessions never interfere.
type SessionStore struct {
	mu   sync.Mutex
	docs map[string]*Document
	cap  int
}

// NewSessionStore creates a store holding at most cap documents
// (a default cap when cap <= 0).
func NewSessionStore(cap int) *SessionStore {
	if cap <= 0 {
		cap = defaultSessionCap
	}
	return &SessionStore{
		docs: make(map[string]*Document),
		cap:  cap,
	}
}

// Put stores a document and returns its new session ID.
func (s *SessionStore) Put(doc *Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.docs) >= s.cap {
		return "", fmt.Errorf("session limit reached (%d); close a session first", s.cap)
	}

	id := uuid.NewString()
	doc.ID = id
	s.docs[id] = doc
	return id, nil
}

// Get returns the document for a session ID.
func (s *SessionStore) Get(id string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("unknown session %q", id)
	}
	return doc, nil
}

// Close removes a session.
func (s *SessionStore) Close(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("unknown session %q", id)
	}
	delete(s.docs, id)
	return nil
}

// Len reports how many sessions are open.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}
