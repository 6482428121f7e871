package chat

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Session is the state of one browser (or chat) session: its transcript,
// the API key the user entered and the run currently in flight.
type Session struct {
	ID         string
	Transcript *Transcript

	mu         sync.Mutex
	credential string
	cancel     context.CancelFunc
	lastSeen   time.Time
}

// NewSession creates a session with a greeting-only transcript.
func NewSession(id, greeting string) *Session {
	return &Session{
		ID:         id,
		Transcript: NewTranscript(greeting),
		lastSeen:   time.Now(),
	}
}

// SetCredential stores the API key, trimmed. An empty key clears it.
func (s *Session) SetCredential(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credential = strings.TrimSpace(key)
}

// Credential returns the stored API key.
func (s *Session) Credential() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credential
}

// HasCredential reports whether a non-empty key is stored.
func (s *Session) HasCredential() bool {
	return s.Credential() != ""
}

// Begin marks a run as in flight and returns its cancellable context.
// It returns false when another run is still going.
func (s *Session) Begin(parent context.Context) (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil, false
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.lastSeen = time.Now()
	return ctx, true
}

// End releases the run slot taken by Begin.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.lastSeen = time.Now()
}

// Cancel aborts the in-flight run, if any. The slot is released by End.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

// Busy reports whether a run is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Touch records activity on the session.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
}

// LastSeen returns the time of the latest activity.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}
