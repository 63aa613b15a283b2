// Package stream tracks the playback sessions running in the process,
// keyed by stream key, and routes control requests to them.
package stream

import (
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zsiec/playcore/internal/pipeline"
)

var (
	// ErrNotFound is returned for a key with no session.
	ErrNotFound = errors.New("stream: session not found")
	// ErrNotReady is returned for a session whose pipeline is not attached
	// yet.
	ErrNotReady = errors.New("stream: session not ready")
	// ErrBadPosition is returned for a negative seek position.
	ErrBadPosition = errors.New("stream: negative seek position")
)

// Player is the subset of pipeline.Pipeline a session controls.
type Player interface {
	Pause()
	Resume()
	SeekTo(us int64)
	Snapshot() pipeline.Snapshot
}

// Session is one playback session.
type Session struct {
	ID        string
	Key       string
	StartedAt time.Time
	done      chan struct{}

	mu     sync.RWMutex
	player Player
}

// Attach binds the session to the pipeline playing it.
func (s *Session) Attach(p Player) {
	s.mu.Lock()
	s.player = p
	s.mu.Unlock()
}

// Player returns the attached pipeline, or nil.
func (s *Session) Player() Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.player
}

// Done is closed when the session is removed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Snapshot returns the pipeline's stats, or only the session identity when
// no pipeline is attached.
func (s *Session) Snapshot() pipeline.Snapshot {
	p := s.Player()
	if p == nil {
		return pipeline.Snapshot{
			ID:        s.ID,
			Key:       s.Key,
			StartedAt: s.StartedAt.UnixMilli(),
			UptimeMs:  time.Since(s.StartedAt).Milliseconds(),
		}
	}
	snap := p.Snapshot()
	snap.ID = s.ID
	snap.Key = s.Key
	return snap
}

// Manager manages the lifecycle of active sessions.
type Manager struct {
	log      *slog.Logger
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a new session manager. If log is nil, slog.Default() is used.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:      log.With("component", "stream-manager"),
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session with a fresh id. Returns the session and
// true if created, or nil and false if a session with this key already
// exists.
func (m *Manager) Create(key string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[key]; ok {
		m.log.Warn("session already exists, rejecting duplicate", "key", key)
		return nil, false
	}

	s := &Session{
		ID:        uuid.NewString(),
		Key:       key,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}

	m.sessions[key] = s
	m.log.Info("session created", "key", key, "session", s.ID)
	return s, true
}

// Get returns the session for key.
func (m *Manager) Get(key string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	return s, ok
}

// Remove removes a session from the manager.
func (m *Manager) Remove(key string) {
	m.mu.Lock()
	s, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	m.mu.Unlock()

	if ok {
		close(s.done)
		m.log.Info("session removed", "key", key, "session", s.ID)
	}
}

// List returns all active sessions ordered by key.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	slices.SortFunc(sessions, func(a, b *Session) int { return strings.Compare(a.Key, b.Key) })
	return sessions
}

func (m *Manager) player(key string) (Player, error) {
	s, ok := m.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	p := s.Player()
	if p == nil {
		return nil, ErrNotReady
	}
	return p, nil
}

// Pause holds presentation of the session for key.
func (m *Manager) Pause(key string) error {
	p, err := m.player(key)
	if err != nil {
		return err
	}
	p.Pause()
	m.log.Info("session paused", "key", key)
	return nil
}

// Resume continues presentation of the session for key.
func (m *Manager) Resume(key string) error {
	p, err := m.player(key)
	if err != nil {
		return err
	}
	p.Resume()
	m.log.Info("session resumed", "key", key)
	return nil
}

// Seek repositions the session for key to us microseconds.
func (m *Manager) Seek(key string, us int64) error {
	if us < 0 {
		return ErrBadPosition
	}
	p, err := m.player(key)
	if err != nil {
		return err
	}
	p.SeekTo(us)
	return nil
}
