// internal/session/session.go
package session

import (
	"context"
	"maps"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type Session struct {
	id      string
	created time.Time

	mu         sync.RWMutex
	lastAccess time.Time
	attrs      map[string]any

	invalid atomic.Bool
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		id:         id,
		created:    now,
		lastAccess: now,
		attrs:      make(map[string]any),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) CreationTime() time.Time { return s.created }

func (s *Session) LastAccessTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAccess
}

func (s *Session) Touch() {
	s.mu.Lock()
	s.lastAccess = time.Now()
	s.mu.Unlock()
}

func (s *Session) Valid() bool { return !s.invalid.Load() }

// Attribute writes from concurrent requests sharing a session are last-write-wins.
func (s *Session) Attribute(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.attrs[name]
	return v, ok
}

func (s *Session) SetAttribute(name string, value any) {
	s.mu.Lock()
	s.attrs[name] = value
	s.mu.Unlock()
}

func (s *Session) RemoveAttribute(name string) {
	s.mu.Lock()
	delete(s.attrs, name)
	s.mu.Unlock()
}

func (s *Session) AttributeNames() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.attrs))
	for k := range s.attrs {
		names = append(names, k)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (s *Session) snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.attrs)
}

func (s *Session) idleSince(now time.Time) time.Duration {
	return now.Sub(s.LastAccessTime())
}

// Store is the server-side session table. Implementations are safe for
// concurrent use; an issued id resolves to the same *Session until invalidated.
type Store interface {
	Create(ctx context.Context) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	Contains(ctx context.Context, id string) (bool, error)
	Save(ctx context.Context, s *Session) error
	Invalidate(ctx context.Context, id string) error
	Close() error
}
