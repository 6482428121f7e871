package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Manager keeps the sessions of all users in memory, keyed by session ID.
// Nothing is written to disk; idle sessions are swept away.
type Manager struct {
	greeting string
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewManager creates an empty session store.
func NewManager(greeting string) *Manager {
	return &Manager{
		greeting: greeting,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for id, creating it on first use.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if ok {
		s.Touch()
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double check under lock
	if s, ok = m.sessions[id]; ok {
		s.Touch()
		return s
	}

	s = NewSession(id, m.greeting)
	m.sessions[id] = s
	slog.Debug("Session created", "session", id)
	return s
}

// Lookup returns an existing session without creating one.
func (m *Manager) Lookup(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete forgets a session, cancelling its run.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Cancel()
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes sessions idle for longer than maxIdle. Busy sessions are kept.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if s.Busy() || s.LastSeen().After(cutoff) {
			continue
		}
		delete(m.sessions, id)
		removed++
	}
	return removed
}

// RunJanitor sweeps idle sessions every interval until ctx is done.
// maxIdle is read on every tick so that reloads apply.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration, maxIdle func() time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(maxIdle()); n > 0 {
				slog.Info("Expired idle sessions", "count", n, "remaining", m.Len())
			}
		}
	}
}
