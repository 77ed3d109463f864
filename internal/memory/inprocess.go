package memory

import (
	"context"
	"sync"
)

type sessionState struct {
	mu      sync.Mutex
	entries []Entry
	handle  *Session
}

// InProcessStore keeps transcripts in process memory. Contents are lost when
// the process exits.
type InProcessStore struct {
	mu         sync.RWMutex
	sessions   map[string]*sessionState
	maxEntries int
}

// NewInProcessStore creates an empty store. maxEntries caps each transcript
// to its most recent entries; zero or less keeps everything.
func NewInProcessStore(maxEntries int) *InProcessStore {
	return &InProcessStore{
		sessions:   make(map[string]*sessionState),
		maxEntries: maxEntries,
	}
}

// lookup returns the state for id. When create is false an unknown id yields nil.
func (s *InProcessStore) lookup(id string, create bool) *sessionState {
	s.mu.RLock()
	st, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok || !create {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another caller may have created it between the two locks.
	if st, ok := s.sessions[id]; ok {
		return st
	}
	st = &sessionState{}
	st.handle = NewSession(id, s)
	s.sessions[id] = st
	return st
}

// GetOrCreate returns the single handle for sessionID.
func (s *InProcessStore) GetOrCreate(sessionID string) *Session {
	return s.lookup(sessionID, true).handle
}

// Append adds entry under the session's own lock.
func (s *InProcessStore) Append(_ context.Context, sessionID string, entry Entry) error {
	st := s.lookup(sessionID, true)

	st.mu.Lock()
	defer st.mu.Unlock()
	st.entries = append(st.entries, entry)
	if s.maxEntries > 0 && len(st.entries) > s.maxEntries {
		trimmed := make([]Entry, s.maxEntries)
		copy(trimmed, st.entries[len(st.entries)-s.maxEntries:])
		st.entries = trimmed
	}
	return nil
}

// Entries returns a snapshot of the transcript.
func (s *InProcessStore) Entries(_ context.Context, sessionID string) ([]Entry, error) {
	st := s.lookup(sessionID, false)
	if st == nil {
		return []Entry{}, nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]Entry, len(st.entries))
	copy(out, st.entries)
	return out, nil
}

// Clear empties the transcript if the session exists.
func (s *InProcessStore) Clear(_ context.Context, sessionID string) error {
	st := s.lookup(sessionID, false)
	if st == nil {
		return nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.entries = nil
	return nil
}

// SessionCount returns the number of sessions seen since start.
func (s *InProcessStore) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close drops every transcript.
func (s *InProcessStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*sessionState)
}
