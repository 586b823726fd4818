// internal/session/memory.go
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"webapp-server/internal/protocol"
)

type MemoryOptions struct {
	// TTL of zero disables expiry.
	TTL        time.Duration
	GCInterval time.Duration
	OnExpire   func(*Session)
	Logger     *zap.Logger
}

type MemoryStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	opts   MemoryOptions
	logger *zap.Logger
}

func NewMemoryStore(opts MemoryOptions) *MemoryStore {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		sessions: make(map[string]*Session),
		opts:     opts,
		logger:   logger,
	}
}

func (m *MemoryStore) Create(context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	for _, exists := m.sessions[id]; exists; _, exists = m.sessions[id] {
		id = uuid.NewString()
	}
	s := newSession(id, time.Now())
	m.sessions[id] = s
	return s, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, protocol.ErrSessionNotFound
	}
	return s, nil
}

func (m *MemoryStore) Contains(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.sessions[id]
	return ok, nil
}

// Save is a no-op: attributes live on the shared *Session.
func (m *MemoryStore) Save(context.Context, *Session) error { return nil }

func (m *MemoryStore) Invalidate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return protocol.ErrSessionNotFound
	}
	s.invalid.Store(true)
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *MemoryStore) Close() error { return nil }

// GC drops sessions idle for longer than ttl and returns them.
func (m *MemoryStore) GC(ttl time.Duration) []*Session {
	if ttl <= 0 {
		return nil
	}
	now := time.Now()

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.idleSince(now) > ttl {
			s.invalid.Store(true)
			delete(m.sessions, id)
			expired = append(expired, s)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		if m.opts.OnExpire != nil {
			m.opts.OnExpire(s)
		}
	}
	return expired
}

func (m *MemoryStore) StartGC(ctx context.Context) {
	if m.opts.TTL <= 0 {
		return
	}
	interval := m.opts.GCInterval
	if interval <= 0 {
		interval = time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := len(m.GC(m.opts.TTL)); n > 0 {
					m.logger.Info("sessions expired", zap.Int("count", n))
				}
			}
		}
	}()
}
