package bridge

import (
	"log/slog"
	"sync"
)

// Manager tracks active sessions. Sessions own their state exclusively; the
// manager only exists for counting and draining on shutdown.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a new session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Add registers a session.
func (m *Manager) Add(s *Session) {
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
}

// Remove unregisters a session.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll tears down every active session. Used on process shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	active := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		active = append(active, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range active {
		s.Teardown("shutdown")
	}
	if len(active) > 0 {
		slog.Info("[Bridge] drained active sessions", "count", len(active))
	}
}
