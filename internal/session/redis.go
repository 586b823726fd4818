// internal/session/redis.go
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"webapp-server/internal/protocol"
)

const (
	fieldCreated    = "created"
	fieldLastAccess = "last_access"
	fieldAttrs      = "attrs"
)

type RedisOptions struct {
	KeyPrefix string
	// TTL of zero keeps sessions until invalidated.
	TTL    time.Duration
	Logger *zap.Logger
}

// RedisStore persists session metadata and attributes in redis hashes while
// keeping one live *Session per id in this process. Attribute values must be
// representable as google.protobuf.Value; numbers come back as float64.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger

	mu    sync.RWMutex
	local map[string]*Session
}

func NewRedisStore(client *redis.Client, opts RedisOptions) *RedisStore {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client: client,
		prefix: opts.KeyPrefix,
		ttl:    opts.TTL,
		logger: logger,
		local:  make(map[string]*Session),
	}
}

func (r *RedisStore) key(id string) string {
	return r.prefix + "session:" + id
}

func (r *RedisStore) Create(ctx context.Context) (*Session, error) {
	now := time.Now()
	var id string
	for {
		id = uuid.NewString()
		set, err := r.client.HSetNX(ctx, r.key(id), fieldCreated, formatMillis(now)).Result()
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		if set {
			break
		}
	}

	s := newSession(id, now)
	if err := r.write(ctx, s); err != nil {
		return nil, fmt.Errorf("create session %s: %w", id, err)
	}

	r.mu.Lock()
	r.local[id] = s
	r.mu.Unlock()
	return s, nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.local[id]
	r.mu.RUnlock()

	if ok {
		n, err := r.client.Exists(ctx, r.key(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("get session %s: %w", id, err)
		}
		if n == 0 {
			r.forget(id)
			return nil, protocol.ErrSessionNotFound
		}
		return s, nil
	}

	fields, err := r.client.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, protocol.ErrSessionNotFound
	}
	loaded, err := decodeSession(id, fields)
	if err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.local[id]; ok {
		return existing, nil
	}
	r.local[id] = loaded
	return loaded, nil
}

func (r *RedisStore) Contains(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("contains session %s: %w", id, err)
	}
	return n == 1, nil
}

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	if !s.Valid() {
		return protocol.ErrSessionInvalid
	}
	if err := r.write(ctx, s); err != nil {
		return fmt.Errorf("save session %s: %w", s.ID(), err)
	}
	return nil
}

func (r *RedisStore) Invalidate(ctx context.Context, id string) error {
	n, err := r.client.Del(ctx, r.key(id)).Result()
	if err != nil {
		return fmt.Errorf("invalidate session %s: %w", id, err)
	}
	cached := r.forget(id)
	if n == 0 && !cached {
		return protocol.ErrSessionNotFound
	}
	return nil
}

func (r *RedisStore) Close() error {
	r.mu.Lock()
	r.local = make(map[string]*Session)
	r.mu.Unlock()
	return nil
}

// LocalLen reports how many sessions are held in this process.
func (r *RedisStore) LocalLen() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.local)
}

// Sweep drops local sessions whose redis key is gone, e.g. expired by TTL or
// removed by another process, and returns how many were dropped.
func (r *RedisStore) Sweep(ctx context.Context) (int, error) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.local))
	for id := range r.local {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	if len(ids) == 0 {
		return 0, nil
	}

	cmds := make([]*redis.IntCmd, len(ids))
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.Exists(ctx, r.key(id))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}

	dropped := 0
	for i, cmd := range cmds {
		if cmd.Val() == 0 && r.forget(ids[i]) {
			dropped++
		}
	}
	return dropped, nil
}

// StartSweep runs Sweep every interval until ctx is done.
func (r *RedisStore) StartSweep(ctx context.Context, interval time.Duration) {
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
				n, err := r.Sweep(ctx)
				if err != nil {
					if ctx.Err() == nil {
						r.logger.Warn("session sweep failed", zap.Error(err))
					}
					continue
				}
				if n > 0 {
					r.logger.Debug("session sweep", zap.Int("dropped", n))
				}
			}
		}
	}()
}

func (r *RedisStore) forget(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.local[id]
	if ok {
		s.invalid.Store(true)
		delete(r.local, id)
	}
	return ok
}

func (r *RedisStore) write(ctx context.Context, s *Session) error {
	attrs, err := encodeAttributes(s.snapshot())
	if err != nil {
		return err
	}

	key := r.key(s.ID())
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]any{
			fieldCreated:    formatMillis(s.CreationTime()),
			fieldLastAccess: formatMillis(s.LastAccessTime()),
			fieldAttrs:      attrs,
		})
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	return err
}

func encodeAttributes(attrs map[string]any) ([]byte, error) {
	st, err := structpb.NewStruct(attrs)
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}
	return proto.Marshal(st)
}

func decodeAttributes(data []byte) (map[string]any, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	return st.AsMap(), nil
}

func decodeSession(id string, fields map[string]string) (*Session, error) {
	created, err := parseMillis(fields[fieldCreated])
	if err != nil {
		return nil, err
	}
	s := newSession(id, created)
	if v, ok := fields[fieldLastAccess]; ok {
		if s.lastAccess, err = parseMillis(v); err != nil {
			return nil, err
		}
	}
	if v, ok := fields[fieldAttrs]; ok && v != "" {
		if s.attrs, err = decodeAttributes([]byte(v)); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New("missing timestamp")
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	return time.UnixMilli(ms), nil
}
