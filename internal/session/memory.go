package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"safetycopilot/internal/logging"
)

// InMemory is a Service backed by a map.
type InMemory struct {
	mu       sync.RWMutex
	sessions map[Key]*Session
	now      func() time.Time
}

// NewInMemory creates an empty in-memory session service.
func NewInMemory() *InMemory {
	return &InMemory{
		sessions: make(map[Key]*Session),
		now:      time.Now,
	}
}

func (m *InMemory) CreateSession(ctx context.Context, key Key) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[key]; ok {
		return nil, fmt.Errorf("%s/%s/%s: %w", key.AppName, key.UserID, key.ID, ErrExists)
	}
	s := &Session{AppName: key.AppName, UserID: key.UserID, ID: key.ID, CreatedAt: m.now()}
	m.sessions[key] = s
	logging.SessionDebug("Created session %s (app=%s user=%s)", key.ID, key.AppName, key.UserID)
	return clone(s), nil
}

func (m *InMemory) GetSession(ctx context.Context, key Key) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[key]
	if !ok {
		return nil, fmt.Errorf("%s/%s/%s: %w", key.AppName, key.UserID, key.ID, ErrNotFound)
	}
	return clone(s), nil
}

func (m *InMemory) AppendTurn(ctx context.Context, key Key, turns ...Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok {
		return fmt.Errorf("%s/%s/%s: %w", key.AppName, key.UserID, key.ID, ErrNotFound)
	}
	for _, t := range turns {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = m.now()
		}
		s.Turns = append(s.Turns, t)
	}
	logging.SessionDebug("Appended %d turns to %s (total=%d)", len(turns), key.ID, len(s.Turns))
	return nil
}

func (m *InMemory) DeleteSession(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
	logging.SessionDebug("Deleted session %s", key.ID)
	return nil
}

func clone(s *Session) *Session {
	out := *s
	out.Turns = append([]Turn(nil), s.Turns...)
	return &out
}
