package store

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Session bundles the live subscriptions of one signed-in user.
type Session struct {
	UserID     string
	Tasks      *TaskSubscription
	Categories *CategorySubscription
}

// Close tears down both subscriptions. Safe to call multiple times.
func (s *Session) Close() {
	s.Tasks.Close()
	s.Categories.Close()
}

// Manager owns one Session per user and implements the session-change
// contract: whenever a user signs out (End) or the manager shuts down, the
// in-memory state is dropped and a later Session call re-subscribes from
// scratch.
type Manager struct {
	ctx        context.Context
	tasks      *TaskStore
	categories *CategoryStore
	log        *log.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a session manager. ctx bounds the lifetime of every
// subscription the manager opens.
func NewManager(ctx context.Context, backend Backend, feed Feed, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Manager{
		ctx:        ctx,
		tasks:      NewTaskStore(backend, feed, logger),
		categories: NewCategoryStore(backend, feed, logger),
		log:        logger,
		sessions:   make(map[string]*Session),
	}
}

// Session returns the live session for the user, opening the subscriptions
// on first use. An empty userID returns an inert session whose writes fail
// with ErrUnauthenticated.
func (m *Manager) Session(userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		return s
	}
	s := &Session{
		UserID:     userID,
		Tasks:      m.tasks.Subscribe(m.ctx, userID),
		Categories: m.categories.Subscribe(m.ctx, userID),
	}
	if m.closed || userID == "" {
		// Do not retain inert or post-shutdown sessions.
		return s
	}
	m.sessions[userID] = s
	m.log.WithField("user", userID).Debug("session opened")
	return s
}

// End closes the user's session and clears its in-memory state. The next
// Session call re-subscribes.
func (m *Manager) End(userID string) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()
	if ok {
		s.Close()
		m.log.WithField("user", userID).Debug("session closed")
	}
}

// Close ends every session.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
