// Package memory holds per-session conversation transcripts.
//
// A transcript is keyed by session identifier (the authenticated user's ID) and
// records one Entry per successful answer, in insertion order. Stores serialize
// access per session: operations on different sessions never wait on each
// other, and no store operation is held across a provider call.
package memory

import (
	"context"
	"strings"
	"time"
)

// Store is the session memory contract consumed by the conversation pipeline.
type Store interface {
	// GetOrCreate returns the handle for sessionID, creating an empty
	// transcript on first use. It never fails.
	GetOrCreate(sessionID string) *Session

	// Append adds entry to the end of the session's transcript, creating the
	// transcript if needed.
	Append(ctx context.Context, sessionID string, entry Entry) error

	// Entries returns a copy of the session's transcript in insertion order.
	// Unknown sessions yield an empty slice.
	Entries(ctx context.Context, sessionID string) ([]Entry, error)

	// Clear truncates the transcript. Clearing an unknown session is a no-op.
	Clear(ctx context.Context, sessionID string) error
}

// Session is a handle bound to one session identifier of a Store.
type Session struct {
	id    string
	store Store
}

// NewSession binds id to store. Store implementations return it from
// GetOrCreate.
func NewSession(id string, store Store) *Session {
	return &Session{id: id, store: store}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Entries returns the transcript of this session.
func (s *Session) Entries(ctx context.Context) ([]Entry, error) {
	return s.store.Entries(ctx, s.id)
}

// History renders the transcript for prompt construction.
func (s *Session) History(ctx context.Context) (string, error) {
	entries, err := s.store.Entries(ctx, s.id)
	if err != nil {
		return "", err
	}
	return RenderHistory(entries), nil
}

// Append records one completed exchange.
func (s *Session) Append(ctx context.Context, input, output string) error {
	return s.store.Append(ctx, s.id, Entry{
		Input:     input,
		Output:    output,
		Timestamp: time.Now().UTC(),
	})
}

// Clear truncates this session's transcript.
func (s *Session) Clear(ctx context.Context) error {
	return s.store.Clear(ctx, s.id)
}

// RenderHistory formats entries as alternating Human/AI lines. An empty
// transcript renders as the empty string.
func RenderHistory(entries []Entry) string {
	if len(entries) == 0 {
		return ""
	}

	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("Human: ")
		b.WriteString(e.Input)
		b.WriteString("\nAI: ")
		b.WriteString(e.Output)
	}
	return b.String()
}

// RenderSessionHistory renders the transcript stored for sessionID.
func RenderSessionHistory(ctx context.Context, store Store, sessionID string) (string, error) {
	entries, err := store.Entries(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return RenderHistory(entries), nil
}
