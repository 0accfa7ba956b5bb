package editor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/askelund/forma/internal/layout"
	"github.com/askelund/forma/internal/store"
)

// InitialLayout loads the starting content for a page when no session exists
// yet. It returns the layout and the persisted version to build on.
type InitialLayout func(ctx context.Context) (layout.Layout, int, error)

// Manager tracks one live Session per layout page. Handlers ask for the
// session by ref; the manager creates it on first use and flushes it when the
// editor navigates away or the process shuts down.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	layouts  store.LayoutStore
	idem     IdempotencyStore
	debounce time.Duration
	log      *zap.Logger
	onDedup  func()
}

// ManagerOption configures optional manager behavior.
type ManagerOption func(*Manager)

// WithDedupHook registers a callback invoked for every save answered from the
// idempotency store.
func WithDedupHook(fn func()) ManagerOption {
	return func(m *Manager) {
		m.onDedup = fn
	}
}

// NewManager creates a session manager over the given store.
func NewManager(layouts store.LayoutStore, idem IdempotencyStore, debounce time.Duration, log *zap.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		layouts:  layouts,
		idem:     idem,
		debounce: debounce,
		log:      log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetOrCreate returns the live session for ref, creating one from the initial
// loader if none exists.
func (m *Manager) GetOrCreate(ctx context.Context, ref store.LayoutRef, savedBy string, initial InitialLayout) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[ref.Key()]; ok {
		m.mu.Unlock()
		s.touch()
		return s, nil
	}
	m.mu.Unlock()

	l, version, err := initial(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another request may have created the session while we loaded.
	if s, ok := m.sessions[ref.Key()]; ok {
		return s, nil
	}
	s := NewSession(ref, l, version, m.layouts, m.idem, m.debounce, savedBy, m.log)
	s.onDedup = m.onDedup
	m.sessions[ref.Key()] = s
	return s, nil
}

// Peek returns the live session for ref without creating one.
func (m *Manager) Peek(ref store.LayoutRef) (*Session, bool) {
	m.mu.Lock()
	s, ok := m.sessions[ref.Key()]
	m.mu.Unlock()
	if ok {
		s.touch()
	}
	return s, ok
}

// ExpireIdle flushes and removes sessions unused for longer than ttl. Returns
// the number of expired sessions.
func (m *Manager) ExpireIdle(ctx context.Context, ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}

	m.mu.Lock()
	var expired []*Session
	for key, s := range m.sessions {
		if s.idleSince() > ttl {
			expired = append(expired, s)
			delete(m.sessions, key)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		if err := s.Close(ctx); err != nil {
			m.log.Error("closing idle session failed",
				zap.String("session_id", s.ID),
				zap.Error(err))
		}
	}
	return len(expired)
}

// Discard flushes and closes the session for ref, if one exists. The next
// GetOrCreate reloads from the store.
func (m *Manager) Discard(ctx context.Context, ref store.LayoutRef) error {
	m.mu.Lock()
	s, ok := m.sessions[ref.Key()]
	delete(m.sessions, ref.Key())
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Close(ctx)
}

// FlushAll flushes every live session. Called on shutdown so no debounced
// edit is lost.
func (m *Manager) FlushAll(ctx context.Context) error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	var firstErr error
	for _, s := range sessions {
		if err := s.Flush(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Len returns the number of live sessions. For testing.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
