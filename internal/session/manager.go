package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager owns the live sessions of one process. Sessions are keyed by id
// and restored from the key-value store on first use.
type Manager struct {
	deps Deps
	cfg  Config

	mu       sync.Mutex
	sessions map[string]*Session

	obsMu    sync.RWMutex
	observer Observer
}

func NewManager(deps Deps, cfg Config) *Manager {
	return &Manager{
		deps:     deps.withDefaults(),
		cfg:      cfg.withDefaults(),
		sessions: make(map[string]*Session),
	}
}

// SetObserver installs the callback told about every session change.
func (m *Manager) SetObserver(o Observer) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.observer = o
}

func (m *Manager) currentObserver() Observer {
	m.obsMu.RLock()
	defer m.obsMu.RUnlock()
	return m.observer
}

// Open returns the live session for id, restoring it from storage first if
// needed. Sessions that were never greeted get their welcome message.
func (m *Manager) Open(ctx context.Context, id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidID
	}

	if s, ok := m.Get(id); ok {
		return s, nil
	}

	// Restore outside the registry lock; the first session registered for
	// id wins and a concurrent copy is dropped.
	s := New(id, m.deps, m.cfg)
	s.observer = m.currentObserver
	s.Load(ctx)

	m.mu.Lock()
	if live, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		s.Close()
		return live, nil
	}
	m.sessions[id] = s
	m.mu.Unlock()

	if _, err := s.Greet(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns a live session without touching storage.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Close tears a session down. Its persisted state stays in the store.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Close()
	}
	return ok
}

// CloseAll tears every live session down.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// EvictIdle closes sessions with no activity for longer than ttl and
// returns how many it closed.
func (m *Manager) EvictIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := m.deps.Clock().Add(-ttl)

	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	if len(idle) > 0 {
		m.deps.Logger.Info("Evicted idle sessions", zap.Int("count", len(idle)))
	}
	return len(idle)
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
